// Package types 定义期权定价引擎共享的枚举类型。
package types

import (
	"strings"

	"github.com/wyfcoding/optionpricer/xerrors"
)

// OptionType 定义期权类型。
type OptionType string

const (
	OptionTypeCall OptionType = "CALL"
	OptionTypePut  OptionType = "PUT"
)

// IsValid 判断期权类型是否受支持。
func (t OptionType) IsValid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// Payoff 返回以 price 作为结算价时的内在收益。
func (t OptionType) Payoff(price, strike float64) float64 {
	if t == OptionTypePut {
		return max(strike-price, 0)
	}
	return max(price-strike, 0)
}

// ParseOptionType 解析 "call"/"put"，大小写不敏感。
func ParseOptionType(s string) (OptionType, error) {
	switch OptionType(strings.ToUpper(strings.TrimSpace(s))) {
	case OptionTypeCall:
		return OptionTypeCall, nil
	case OptionTypePut:
		return OptionTypePut, nil
	}
	return "", xerrors.ErrInvalidOptionType.WithDetail("unknown option type %q", s)
}

// PayoffStyle 蒙特卡洛收益结构。
type PayoffStyle string

const (
	StyleEuropean PayoffStyle = "EUROPEAN"
	StyleAsian    PayoffStyle = "ASIAN"   // 算术平均价
	StyleBarrier  PayoffStyle = "BARRIER" // 敲入/敲出
)

// ParsePayoffStyle 解析收益结构名称。
func ParsePayoffStyle(s string) (PayoffStyle, error) {
	switch PayoffStyle(strings.ToUpper(strings.TrimSpace(s))) {
	case StyleEuropean:
		return StyleEuropean, nil
	case StyleAsian:
		return StyleAsian, nil
	case StyleBarrier:
		return StyleBarrier, nil
	}
	return "", xerrors.ErrInvalidPayoffStyle.WithDetail("unknown option style %q", s)
}

// BarrierType 障碍期权的触发效果。
type BarrierType string

const (
	KnockOut BarrierType = "knock_out"
	KnockIn  BarrierType = "knock_in"
)

// ParseBarrierType 解析障碍类型，只接受 knock_out 与 knock_in。
func ParseBarrierType(s string) (BarrierType, error) {
	switch BarrierType(strings.ToLower(strings.TrimSpace(s))) {
	case KnockOut:
		return KnockOut, nil
	case KnockIn:
		return KnockIn, nil
	}
	return "", xerrors.ErrInvalidBarrierType.WithDetail("unknown barrier type %q", s)
}

// BarrierDirection 障碍的触碰方向。
type BarrierDirection string

const (
	// BarrierAuto 看涨按向上触碰 (S >= H)，看跌按向下触碰 (S <= H)。
	BarrierAuto BarrierDirection = "auto"
	BarrierUp   BarrierDirection = "up"
	BarrierDown BarrierDirection = "down"
)

// Resolve 将 auto 方向按期权类型落地为 up 或 down。
func (d BarrierDirection) Resolve(t OptionType) BarrierDirection {
	if d != BarrierAuto && d != "" {
		return d
	}
	if t == OptionTypePut {
		return BarrierDown
	}
	return BarrierUp
}

// ParseBarrierDirection 解析障碍方向，空字符串视为 auto。
func ParseBarrierDirection(s string) (BarrierDirection, error) {
	switch BarrierDirection(strings.ToLower(strings.TrimSpace(s))) {
	case "", BarrierAuto:
		return BarrierAuto, nil
	case BarrierUp:
		return BarrierUp, nil
	case BarrierDown:
		return BarrierDown, nil
	}
	return "", xerrors.ErrInvalidBarrierType.WithDetail("unknown barrier direction %q", s)
}
