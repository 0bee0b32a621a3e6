package datetime

import (
	"math"
	"strings"
	"time"

	"github.com/wyfcoding/optionpricer/xerrors"
)

const (
	// DaysPerYear 儒略年天数，年化期限统一按此换算。
	DaysPerYear = 365.25
	// SecondsPerYear 一个儒略年的秒数。
	SecondsPerYear = DaysPerYear * 24 * 3600

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// FormatTime 将时间格式化为标准字符串 "YYYY-MM-DD HH:MM:SS"。
func FormatTime(t time.Time) string {
	return t.Format(layoutDateTime)
}

// FormatDate 将时间格式化为标准日期字符串 "YYYY-MM-DD"。
func FormatDate(t time.Time) string {
	return t.Format(layoutDate)
}

// ParseExpiration 解析到期时间，依次尝试 RFC3339、"YYYY-MM-DD HH:MM:SS" 与 "YYYY-MM-DD"。
// 不带时区的格式按 loc 解释，loc 为 nil 时使用 UTC。
func ParseExpiration(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{layoutDateTime, layoutDate} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, xerrors.ErrInvalidInput.WithDetail("unrecognized expiration date %q", s)
}

// YearFraction 返回 from 到 to 之间的年化期限 (365.25 天/年)，to 不晚于 from 时返回 0。
func YearFraction(from, to time.Time) float64 {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return d.Seconds() / SecondsPerYear
}

// MaxDays AddDays 能表示的最大天数，受 time.Duration 的 int64 纳秒范围限制。
const MaxDays = float64(math.MaxInt64 / int64(24*time.Hour))

// CheckDays 拒绝 NaN、无穷以及绝对值超过 MaxDays 的天数。
func CheckDays(days float64) error {
	if math.IsNaN(days) || math.Abs(days) > MaxDays {
		return xerrors.ErrInvalidInput.WithDetail("days %v out of range, max %.0f", days, MaxDays)
	}
	return nil
}

// AddDays 按日历天偏移，days 可为小数，超出 MaxDays 的部分截断到 MaxDays。
func AddDays(t time.Time, days float64) time.Time {
	days = math.Max(-MaxDays, math.Min(days, MaxDays))
	return t.Add(time.Duration(days * float64(24*time.Hour)))
}
