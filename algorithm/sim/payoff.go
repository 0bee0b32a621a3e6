package sim

import (
	"gonum.org/v1/gonum/stat"

	"github.com/wyfcoding/optionpricer/algorithm/types"
	"github.com/wyfcoding/optionpricer/xerrors"
)

// Spec 蒙特卡洛收益结构描述。Barrier 相关字段仅在 Style 为 BARRIER 时生效。
type Spec struct {
	Style       types.PayoffStyle
	BarrierType types.BarrierType
	Direction   types.BarrierDirection // 空值等同 auto
	Barrier     float64
}

// European 欧式收益。
func European() Spec { return Spec{Style: types.StyleEuropean} }

// Asian 算术平均价收益。
func Asian() Spec { return Spec{Style: types.StyleAsian} }

// Barrier 障碍收益，触碰方向按期权类型推断。
func Barrier(level float64, bt types.BarrierType) Spec {
	return BarrierDirectional(level, bt, types.BarrierAuto)
}

// BarrierDirectional 显式指定触碰方向的障碍收益。
func BarrierDirectional(level float64, bt types.BarrierType, dir types.BarrierDirection) Spec {
	return Spec{Style: types.StyleBarrier, Barrier: level, BarrierType: bt, Direction: dir}
}

// Validate 校验收益结构。
func (s Spec) Validate() error {
	switch s.Style {
	case types.StyleEuropean, types.StyleAsian:
		return nil
	case types.StyleBarrier:
	default:
		return xerrors.ErrInvalidPayoffStyle.WithDetail("unknown option style %q", s.Style)
	}
	if s.BarrierType != types.KnockOut && s.BarrierType != types.KnockIn {
		return xerrors.ErrInvalidBarrierType.WithDetail("unknown barrier type %q", s.BarrierType)
	}
	switch s.Direction {
	case "", types.BarrierAuto, types.BarrierUp, types.BarrierDown:
	default:
		return xerrors.ErrInvalidBarrierType.WithDetail("unknown barrier direction %q", s.Direction)
	}
	if !(s.Barrier > 0) {
		return xerrors.ErrInvalidInput.WithDetail("barrier level must be positive, got %v", s.Barrier)
	}
	return nil
}

// payoffFunc 单条路径的未贴现收益。
type payoffFunc func(path []float64) float64

// payoff 按收益结构生成收益函数，调用前须已通过 Validate。
func (s Spec) payoff(optionType types.OptionType, strike float64) payoffFunc {
	switch s.Style {
	case types.StyleAsian:
		return func(path []float64) float64 {
			return optionType.Payoff(stat.Mean(path, nil), strike)
		}
	case types.StyleBarrier:
		up := s.Direction.Resolve(optionType) == types.BarrierUp
		knockIn := s.BarrierType == types.KnockIn
		level := s.Barrier
		return func(path []float64) float64 {
			if breached(path, level, up) != knockIn {
				return 0
			}
			return optionType.Payoff(path[len(path)-1], strike)
		}
	default:
		return func(path []float64) float64 {
			return optionType.Payoff(path[len(path)-1], strike)
		}
	}
}

// breached 路径是否触碰障碍：向上为任一点 >= H，向下为任一点 <= H。
func breached(path []float64, level float64, up bool) bool {
	for _, p := range path {
		if up && p >= level || !up && p <= level {
			return true
		}
	}
	return false
}
