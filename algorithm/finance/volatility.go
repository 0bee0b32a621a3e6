package finance

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wyfcoding/optionpricer/xerrors"
)

// TradingDaysPerYear 年化历史波动率使用的交易日数。
const TradingDaysPerYear = 252

// HistoricalVolatility 由收盘价序列计算年化历史波动率：对数收益率样本标准差 × √252。
// 至少需要 3 个收盘价 (2 个收益率)，价格必须为正。
func HistoricalVolatility(closes []float64) (float64, error) {
	if len(closes) < 3 {
		return 0, xerrors.ErrEmptyData.WithDetail("need at least 3 closes, got %d", len(closes))
	}
	returns := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, cur := closes[i-1], closes[i]
		if !(prev > 0) || !(cur > 0) {
			return 0, xerrors.ErrInvalidInput.WithDetail("close prices must be positive (index %d)", i)
		}
		returns[i-1] = math.Log(cur / prev)
	}
	vol := stat.StdDev(returns, nil) * math.Sqrt(TradingDaysPerYear)
	if !(vol > 0) {
		return 0, xerrors.ErrZeroVariance.WithDetail("log returns have zero variance")
	}
	return vol, nil
}
