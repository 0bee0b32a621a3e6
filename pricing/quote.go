package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/optionpricer/algorithm/finance"
	"github.com/wyfcoding/optionpricer/algorithm/sim"
	"github.com/wyfcoding/optionpricer/algorithm/types"
	"github.com/wyfcoding/optionpricer/datetime"
)

// 对外报价的小数位数。
const (
	pricePlaces  = 4
	greeksPlaces = 6
)

// round 按 decimal 四舍五入；NaN 与 Inf 原样返回。
func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

func millis(d time.Duration) float64 {
	return round(float64(d)/float64(time.Millisecond), 2)
}

// OptionView 合约的 JSON 视图。
type OptionView struct {
	Volatility       *float64         `json:"volatility"`
	Symbol           string           `json:"symbol"`
	OptionType       types.OptionType `json:"option_type"`
	ExpirationDate   string           `json:"expiration_date"`
	StrikePrice      float64          `json:"strike_price"`
	StockPrice       float64          `json:"stock_price"`
	DaysToExpiration int              `json:"days_to_expiration"`
	TimeToExpiration float64          `json:"time_to_expiration"`
	RiskFreeRate     float64          `json:"risk_free_rate"`
	IntrinsicValue   float64          `json:"intrinsic_value"`
	IsInTheMoney     bool             `json:"is_in_the_money"`
}

// NewOptionView 生成合约视图。剩余天数向下取整。
func NewOptionView(c finance.Contract) OptionView {
	v := OptionView{
		Symbol:           c.Symbol(),
		OptionType:       c.OptionType(),
		StrikePrice:      c.Strike(),
		StockPrice:       c.StockPrice(),
		ExpirationDate:   datetime.FormatTime(c.Expiration()),
		DaysToExpiration: int(math.Floor(c.Expiration().Sub(c.Now()).Hours() / 24)),
		TimeToExpiration: c.TimeToExpiration(),
		RiskFreeRate:     c.RiskFreeRate(),
		IsInTheMoney:     c.IsInTheMoney(),
		IntrinsicValue:   c.IntrinsicValue(),
	}
	if vol, ok := c.Volatility(); ok {
		v.Volatility = &vol
	}
	return v
}

// MonteCarloView 模拟统计量。
type MonteCarloView struct {
	ConfidenceInterval95 [2]float64 `json:"confidence_interval_95"`
	NumSimulations       int        `json:"num_simulations"`
	StandardError        float64    `json:"standard_error"`
	ComputationTimeMs    float64    `json:"computation_time_ms"`
}

func newMonteCarloView(r sim.MonteCarloResult) *MonteCarloView {
	return &MonteCarloView{
		NumSimulations:       r.NumSimulations,
		StandardError:        round(r.StandardError, greeksPlaces),
		ConfidenceInterval95: [2]float64{round(r.ConfidenceInterval95[0], pricePlaces), round(r.ConfidenceInterval95[1], pricePlaces)},
		ComputationTimeMs:    millis(r.SimulationTime),
	}
}

// GreeksInterpretation 用自然语言描述每个 Greek 的含义。
type GreeksInterpretation struct {
	Delta string `json:"delta_meaning"`
	Gamma string `json:"gamma_meaning"`
	Vega  string `json:"vega_meaning"`
	Theta string `json:"theta_meaning"`
	Rho   string `json:"rho_meaning"`
}

func interpret(g finance.GreeksResult) *GreeksInterpretation {
	return &GreeksInterpretation{
		Delta: fmt.Sprintf("If stock moves $1, option changes by $%.2f", g.Delta),
		Gamma: fmt.Sprintf("Delta changes by %.4f per $1 stock move", g.Gamma),
		Vega:  fmt.Sprintf("If volatility increases 1%%, option gains $%.2f", g.Vega),
		Theta: fmt.Sprintf("Option loses $%.2f per day", math.Abs(g.Theta)),
		Rho:   fmt.Sprintf("If rates increase 1%%, option changes by $%.2f", g.Rho),
	}
}

func roundGreeks(g finance.GreeksResult) *finance.GreeksResult {
	return &finance.GreeksResult{
		Delta: round(g.Delta, greeksPlaces),
		Gamma: round(g.Gamma, greeksPlaces),
		Vega:  round(g.Vega, greeksPlaces),
		Theta: round(g.Theta, greeksPlaces),
		Rho:   round(g.Rho, greeksPlaces),
	}
}

// Quote 一次定价的结果。Price 保留 4 位小数，Greeks 保留 6 位。
type Quote struct {
	Greeks         *finance.GreeksResult `json:"greeks,omitempty"`
	Interpretation *GreeksInterpretation `json:"interpretation,omitempty"`
	MonteCarlo     *MonteCarloView       `json:"monte_carlo,omitempty"`
	Market         *MarketSnapshot       `json:"market,omitempty"`
	Method         string                `json:"method"`
	Style          types.PayoffStyle     `json:"option_style,omitempty"`
	Option         OptionView            `json:"option"`
	Price          float64               `json:"price"`
	TimeValue      float64               `json:"time_value"`
}

func newQuote(method string, c finance.Contract, price float64) *Quote {
	return &Quote{
		Method:    method,
		Option:    NewOptionView(c),
		Price:     round(price, pricePlaces),
		TimeValue: round(price-c.IntrinsicValue(), pricePlaces),
	}
}

// ComparisonReport 解析价与模拟价的对比。解析价为 0 时 RelativeErrorPct 为空。
type ComparisonReport struct {
	RelativeErrorPct     *float64    `json:"relative_error_pct"`
	Verdict              sim.Verdict `json:"validation"`
	Option               OptionView  `json:"option"`
	ConfidenceInterval95 [2]float64  `json:"confidence_interval"`
	BlackScholesPrice    float64     `json:"black_scholes_price"`
	MonteCarloPrice      float64     `json:"monte_carlo_price"`
	AbsoluteDifference   float64     `json:"absolute_difference"`
	StandardError        float64     `json:"standard_error"`
	NumSimulations       int         `json:"num_simulations"`
	ComputationTimeMs    float64     `json:"computation_time_ms"`
}

func newComparisonReport(c finance.Contract, cmp *sim.Comparison) *ComparisonReport {
	r := &ComparisonReport{
		Option:             NewOptionView(c),
		Verdict:            cmp.Verdict,
		BlackScholesPrice:  round(cmp.BlackScholesPrice, pricePlaces),
		MonteCarloPrice:    round(cmp.MonteCarloPrice, pricePlaces),
		AbsoluteDifference: round(cmp.Difference, pricePlaces),
		StandardError:      round(cmp.StandardError, greeksPlaces),
		ConfidenceInterval95: [2]float64{
			round(cmp.ConfidenceInterval95[0], pricePlaces),
			round(cmp.ConfidenceInterval95[1], pricePlaces),
		},
		NumSimulations:    cmp.NumSimulations,
		ComputationTimeMs: millis(cmp.SimulationTime),
	}
	if !math.IsNaN(cmp.RelativeError) {
		rel := round(cmp.RelativeError, 2)
		r.RelativeErrorPct = &rel
	}
	return r
}
