// Package finance - 期权定价算法（Black-Scholes 模型）与希腊字母。
package finance

import (
	"math"

	"github.com/wyfcoding/optionpricer/algorithm/types"
	"github.com/wyfcoding/optionpricer/xerrors"
)

// BlackScholesResult 一次计算同时给出的价格与希腊字母。
type BlackScholesResult struct {
	Price  float64      `json:"price"`
	D1     float64      `json:"d1"`
	D2     float64      `json:"d2"`
	Greeks GreeksResult `json:"greeks"`
}

// BlackScholesCalculator Black-Scholes 期权定价计算器。
type BlackScholesCalculator struct{}

// NewBlackScholesCalculator 创建 Black-Scholes 计算器。
func NewBlackScholesCalculator() *BlackScholesCalculator {
	return &BlackScholesCalculator{}
}

// D1D2 计算 d1 与 d2。参数在进入公式前校验，T<=0 会导致 √T 除零。
func (bsc *BlackScholesCalculator) D1D2(spot, strike, expiry, rate, vol float64) (d1, d2 float64, err error) {
	switch {
	case !(expiry > 0):
		return 0, 0, xerrors.ErrInvalidInput.WithDetail("time to expiration must be positive, got %v", expiry)
	case !(vol > 0):
		return 0, 0, xerrors.ErrInvalidInput.WithDetail("volatility must be positive, got %v", vol)
	case !(spot > 0):
		return 0, 0, xerrors.ErrInvalidInput.WithDetail("stock price must be positive, got %v", spot)
	case !(strike > 0):
		return 0, 0, xerrors.ErrInvalidInput.WithDetail("strike price must be positive, got %v", strike)
	}
	sqrtT := math.Sqrt(expiry)
	d1 = (math.Log(spot/strike) + (rate+0.5*vol*vol)*expiry) / (vol * sqrtT)
	d2 = d1 - vol*sqrtT
	return d1, d2, nil
}

// CalculateCallPrice 计算看涨期权价格。
func (bsc *BlackScholesCalculator) CalculateCallPrice(spot, strike, expiry, rate, vol float64) (float64, error) {
	d1, d2, err := bsc.D1D2(spot, strike, expiry, rate, vol)
	if err != nil {
		return 0, err
	}
	price := spot*normCDF(d1) - strike*math.Exp(-rate*expiry)*normCDF(d2)
	return max(price, 0), nil
}

// CalculatePutPrice 计算看跌期权价格。
func (bsc *BlackScholesCalculator) CalculatePutPrice(spot, strike, expiry, rate, vol float64) (float64, error) {
	d1, d2, err := bsc.D1D2(spot, strike, expiry, rate, vol)
	if err != nil {
		return 0, err
	}
	price := strike*math.Exp(-rate*expiry)*normCDF(-d2) - spot*normCDF(-d1)
	return max(price, 0), nil
}

// CalculatePrice 按期权类型分派。
func (bsc *BlackScholesCalculator) CalculatePrice(optionType types.OptionType, spot, strike, expiry, rate, vol float64) (float64, error) {
	switch optionType {
	case types.OptionTypeCall:
		return bsc.CalculateCallPrice(spot, strike, expiry, rate, vol)
	case types.OptionTypePut:
		return bsc.CalculatePutPrice(spot, strike, expiry, rate, vol)
	default:
		return 0, xerrors.ErrInvalidOptionType.WithDetail("unknown option type %q", optionType)
	}
}

// PriceOption 对合约定价，合约必须带波动率。
func (bsc *BlackScholesCalculator) PriceOption(c Contract) (float64, error) {
	vol, ok := c.Volatility()
	if !ok {
		return 0, xerrors.ErrMissingVolatility.WithContext("symbol", c.Symbol())
	}
	return bsc.CalculatePrice(c.OptionType(), c.StockPrice(), c.Strike(), c.TimeToExpiration(), c.RiskFreeRate(), vol)
}

// Price 实现 Pricer。
func (bsc *BlackScholesCalculator) Price(c Contract) (float64, error) {
	return bsc.PriceOption(c)
}

// Calculate 一次性计算价格、d1/d2 与解析希腊字母。
func (bsc *BlackScholesCalculator) Calculate(c Contract) (*BlackScholesResult, error) {
	vol, ok := c.Volatility()
	if !ok {
		return nil, xerrors.ErrMissingVolatility.WithContext("symbol", c.Symbol())
	}
	t := c.TimeToExpiration()
	d1, d2, err := bsc.D1D2(c.StockPrice(), c.Strike(), t, c.RiskFreeRate(), vol)
	if err != nil {
		return nil, err
	}
	price, err := bsc.PriceOption(c)
	if err != nil {
		return nil, err
	}
	return &BlackScholesResult{
		Price:  price,
		D1:     d1,
		D2:     d2,
		Greeks: analyticalGreeks(c.OptionType(), c.StockPrice(), c.Strike(), t, c.RiskFreeRate(), vol, d1, d2),
	}, nil
}

// CalculateImpliedVolatility 隐含波动率求解，尚未实现。
func (bsc *BlackScholesCalculator) CalculateImpliedVolatility(c Contract, marketPrice float64) (float64, error) {
	return 0, xerrors.ErrNotImplemented.WithDetail("implied volatility solving is not implemented (symbol %s, market price %v)", c.Symbol(), marketPrice)
}
