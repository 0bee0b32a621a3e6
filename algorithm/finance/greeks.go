package finance

import (
	"math"

	"github.com/wyfcoding/optionpricer/algorithm/types"
	"github.com/wyfcoding/optionpricer/datetime"
	"github.com/wyfcoding/optionpricer/xerrors"
)

// GreeksResult 五个希腊字母。
// Vega 与 Rho 为每 1 个百分点的变化，Theta 为每日衰减。
type GreeksResult struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
	Rho   float64 `json:"rho"`
}

// Bumps 有限差分的扰动步长。
type Bumps struct {
	Spot      float64 `mapstructure:"delta_bump" toml:"delta_bump" validate:"gt=0"`
	Vol       float64 `mapstructure:"vega_bump" toml:"vega_bump" validate:"gt=0"`
	ThetaDays float64 `mapstructure:"theta_days" toml:"theta_days" validate:"gt=0"`
	Rate      float64 `mapstructure:"rho_bump" toml:"rho_bump" validate:"gt=0"`
}

// DefaultBumps 默认步长：标的 0.01，波动率 0.001，时间 1 天，利率 0.0001。
func DefaultBumps() Bumps {
	return Bumps{Spot: 0.01, Vol: 0.001, ThetaDays: 1, Rate: 0.0001}
}

// minBumpedVol 波动率向下扰动的下限。
const minBumpedVol = 0.001

// GreeksCalculator 希腊字母计算器，支持解析与数值两种模式。
type GreeksCalculator struct {
	bs *BlackScholesCalculator
}

// NewGreeksCalculator 创建希腊字母计算器。
func NewGreeksCalculator() *GreeksCalculator {
	return &GreeksCalculator{bs: NewBlackScholesCalculator()}
}

// Analytical 按 Black-Scholes 闭式解计算希腊字母。
// 已到期合约除 Delta 取边界值外全部为 0。
func (g *GreeksCalculator) Analytical(c Contract) (GreeksResult, error) {
	vol, ok := c.Volatility()
	if !ok {
		return GreeksResult{}, xerrors.ErrMissingVolatility.WithContext("symbol", c.Symbol())
	}
	t := c.TimeToExpiration()
	if t <= 0 {
		return expiredGreeks(c), nil
	}
	d1, d2, err := g.bs.D1D2(c.StockPrice(), c.Strike(), t, c.RiskFreeRate(), vol)
	if err != nil {
		return GreeksResult{}, err
	}
	return analyticalGreeks(c.OptionType(), c.StockPrice(), c.Strike(), t, c.RiskFreeRate(), vol, d1, d2), nil
}

func expiredGreeks(c Contract) GreeksResult {
	var delta float64
	if c.IsInTheMoney() {
		if c.IsCall() {
			delta = 1
		} else {
			delta = -1
		}
	}
	return GreeksResult{Delta: delta}
}

func analyticalGreeks(optionType types.OptionType, s, k, t, r, vol, d1, d2 float64) GreeksResult {
	sqrtT := math.Sqrt(t)
	pdfD1 := normPDF(d1)
	discount := math.Exp(-r * t)
	decay := -(s * pdfD1 * vol) / (2 * sqrtT)

	res := GreeksResult{
		Gamma: pdfD1 / (s * vol * sqrtT),
		Vega:  s * pdfD1 * sqrtT / 100,
	}
	if optionType == types.OptionTypePut {
		res.Delta = normCDF(d1) - 1
		res.Theta = (decay + r*k*discount*normCDF(-d2)) / 365
		res.Rho = -k * t * discount * normCDF(-d2) / 100
	} else {
		res.Delta = normCDF(d1)
		res.Theta = (decay - r*k*discount*normCDF(d2)) / 365
		res.Rho = k * t * discount * normCDF(d2) / 100
	}
	return res
}

// Numerical 通过有限差分对任意定价器计算希腊字母。
// 每次扰动都作用在合约副本上，调用方的合约保持不变，定价器错误原样返回。
// Vega 与 Rho 都把中心差分结果除以 100，按波动率或利率变动 1 个百分点报告，和 Analytical 口径一致；
// 未缩放的 ∂V/∂σ 等于 Vega*100。
func (g *GreeksCalculator) Numerical(p Pricer, c Contract, b Bumps) (GreeksResult, error) {
	if !(b.Spot > 0) || !(b.Vol > 0) || !(b.ThetaDays > 0) || !(b.Rate > 0) {
		return GreeksResult{}, xerrors.ErrInvalidInput.WithDetail("bump sizes must be positive: %+v", b)
	}
	base, err := p.Price(c)
	if err != nil {
		return GreeksResult{}, err
	}

	var res GreeksResult

	// delta / gamma：标的价格中心差分
	s := c.StockPrice()
	up, down, err := bumpedPair(p, c, func(c Contract, x float64) (Contract, error) { return c.WithStockPrice(x) }, s+b.Spot, s-b.Spot)
	if err != nil {
		return GreeksResult{}, err
	}
	res.Delta = (up - down) / (2 * b.Spot)
	res.Gamma = (up - 2*base + down) / (b.Spot * b.Spot)

	// vega：波动率中心差分，向下扰动不低于 0.001，与解析值同为每百分点
	if vol, ok := c.Volatility(); ok {
		up, down, err := bumpedPair(p, c, func(c Contract, x float64) (Contract, error) { return c.WithVolatility(x) }, vol+b.Vol, max(minBumpedVol, vol-b.Vol))
		if err != nil {
			return GreeksResult{}, err
		}
		res.Vega = (up - down) / (2 * b.Vol) / 100
	}

	// theta：到期日提前 ThetaDays 的前向差分，提前后不再晚于当前时刻则记为 0
	shifted := datetime.AddDays(c.Expiration(), -b.ThetaDays)
	if shifted.After(c.Now()) {
		tc, err := c.WithExpiration(shifted)
		if err != nil {
			return GreeksResult{}, err
		}
		v, err := p.Price(tc)
		if err != nil {
			return GreeksResult{}, err
		}
		res.Theta = (v - base) / b.ThetaDays
	}

	// rho：利率中心差分，向下扰动不低于 0
	r := c.RiskFreeRate()
	up, down, err = bumpedPair(p, c, func(c Contract, x float64) (Contract, error) { return c.WithRiskFreeRate(x) }, r+b.Rate, max(0, r-b.Rate))
	if err != nil {
		return GreeksResult{}, err
	}
	res.Rho = (up - down) / (2 * b.Rate) / 100

	return res, nil
}

// bumpedPair 对同一字段的上下两个扰动值分别定价。
func bumpedPair(p Pricer, c Contract, with func(Contract, float64) (Contract, error), hi, lo float64) (float64, float64, error) {
	cu, err := with(c, hi)
	if err != nil {
		return 0, 0, err
	}
	cd, err := with(c, lo)
	if err != nil {
		return 0, 0, err
	}
	up, err := p.Price(cu)
	if err != nil {
		return 0, 0, err
	}
	down, err := p.Price(cd)
	if err != nil {
		return 0, 0, err
	}
	return up, down, nil
}
