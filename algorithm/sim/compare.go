package sim

import (
	"math"
	"time"

	"github.com/wyfcoding/optionpricer/algorithm/finance"
)

// Verdict 解析价与模拟价的比对结论.
type Verdict string

const (
	VerdictPass      Verdict = "PASS"
	VerdictCheck     Verdict = "CHECK"
	VerdictUndefined Verdict = "UNDEFINED" // 解析价为 0，相对误差无定义
)

// DefaultCompareSeed 比对时蒙特卡洛固定使用的种子.
const DefaultCompareSeed = 42

// CompareOptions 比对参数.
type CompareOptions struct {
	Simulations int
	Steps       int
	Seed        uint64
	Threshold   float64 // 相对误差阈值 (%)
	Workers     int
}

// DefaultCompareOptions 50000 条路径、252 步、种子 42、阈值 1%.
func DefaultCompareOptions() CompareOptions {
	return CompareOptions{
		Simulations: 50000,
		Steps:       DefaultSteps,
		Seed:        DefaultCompareSeed,
		Threshold:   1.0,
	}
}

// Comparison 同一合约两种方法的定价对比.
type Comparison struct {
	ConfidenceInterval95 [2]float64    `json:"confidence_interval"`
	Verdict              Verdict       `json:"verdict"`
	BlackScholesPrice    float64       `json:"black_scholes_price"`
	MonteCarloPrice      float64       `json:"monte_carlo_price"`
	Difference           float64       `json:"difference"`
	RelativeError        float64       `json:"relative_error"` // 百分比，解析价为 0 时为 NaN
	StandardError        float64       `json:"monte_carlo_std_error"`
	NumSimulations       int           `json:"num_simulations"`
	SimulationTime       time.Duration `json:"simulation_time"`
}

// CompareMethods 用默认参数比对欧式期权的 Black-Scholes 与蒙特卡洛价格.
func CompareMethods(c finance.Contract, numSimulations int) (*Comparison, error) {
	opts := DefaultCompareOptions()
	opts.Simulations = numSimulations
	return CompareMethodsWith(c, opts)
}

// CompareMethodsWith 按指定参数比对，任一引擎的错误原样返回.
func CompareMethodsWith(c finance.Contract, opts CompareOptions) (*Comparison, error) {
	bsPrice, err := finance.NewBlackScholesCalculator().PriceOption(c)
	if err != nil {
		return nil, err
	}
	steps := opts.Steps
	if steps == 0 {
		steps = DefaultSteps
	}
	engine := NewMonteCarloEngine(WithSeed(opts.Seed), WithWorkers(opts.Workers))
	mc, err := engine.PriceEuropean(c, opts.Simulations, steps)
	if err != nil {
		return nil, err
	}

	diff := math.Abs(bsPrice - mc.Price)
	cmp := &Comparison{
		BlackScholesPrice:    bsPrice,
		MonteCarloPrice:      mc.Price,
		Difference:           diff,
		StandardError:        mc.StandardError,
		ConfidenceInterval95: mc.ConfidenceInterval95,
		SimulationTime:       mc.SimulationTime,
		NumSimulations:       mc.NumSimulations,
	}
	switch {
	case bsPrice == 0:
		cmp.RelativeError = math.NaN()
		cmp.Verdict = VerdictUndefined
	default:
		cmp.RelativeError = diff / bsPrice * 100
		cmp.Verdict = VerdictPass
		if cmp.RelativeError > opts.Threshold {
			cmp.Verdict = VerdictCheck
		}
	}
	return cmp, nil
}
