package finance

import (
	"fmt"
	"time"

	"github.com/wyfcoding/optionpricer/algorithm/types"
	"github.com/wyfcoding/optionpricer/datetime"
	"github.com/wyfcoding/optionpricer/xerrors"
)

// minTimeToExpiration 距到期不足一天的合约按整一天计。
const minTimeToExpiration = 1.0 / datetime.DaysPerYear

// Clock 返回当前时间，所有 "现在" 的判断都经由它完成。
type Clock func() time.Time

// ContractSpec 构造合约所需的条款与行情字段。
type ContractSpec struct {
	Expiration   time.Time
	Volatility   *float64 // 为空表示未提供波动率
	Symbol       string
	OptionType   types.OptionType
	Strike       float64
	StockPrice   float64
	RiskFreeRate float64
}

// ContractOption 合约构造选项。
type ContractOption func(*Contract)

// WithClock 注入时钟，测试中用于固定 "现在"。
func WithClock(clock Clock) ContractOption {
	return func(c *Contract) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// Contract 单个期权合约。
// 值类型且不可变：情景扫描通过 With* 系列方法得到重新校验过的新合约。
type Contract struct {
	expiration   time.Time
	clock        Clock
	symbol       string
	optionType   types.OptionType
	strike       float64
	stockPrice   float64
	riskFreeRate float64
	volatility   float64
	hasVol       bool
}

// NewContract 校验并创建合约。到期日必须严格晚于构造时刻。
func NewContract(spec ContractSpec, opts ...ContractOption) (Contract, error) {
	c := Contract{
		symbol:       spec.Symbol,
		strike:       spec.Strike,
		expiration:   spec.Expiration,
		optionType:   spec.OptionType,
		stockPrice:   spec.StockPrice,
		riskFreeRate: spec.RiskFreeRate,
		clock:        time.Now,
	}
	if spec.Volatility != nil {
		c.volatility = *spec.Volatility
		c.hasVol = true
	}
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.validate(); err != nil {
		return Contract{}, err
	}
	if err := c.validateExpiration(); err != nil {
		return Contract{}, err
	}
	return c, nil
}

func (c Contract) validate() error {
	if !c.optionType.IsValid() {
		return xerrors.ErrInvalidOptionType.WithDetail("unknown option type %q", c.optionType)
	}
	if !(c.strike > 0) {
		return xerrors.ErrInvalidInput.WithDetail("strike price must be positive, got %v", c.strike)
	}
	if !(c.stockPrice > 0) {
		return xerrors.ErrInvalidInput.WithDetail("current stock price must be positive, got %v", c.stockPrice)
	}
	if !(c.riskFreeRate >= 0) {
		return xerrors.ErrInvalidInput.WithDetail("risk-free rate cannot be negative, got %v", c.riskFreeRate)
	}
	if c.hasVol && !(c.volatility > 0) {
		return xerrors.ErrInvalidInput.WithDetail("volatility must be positive, got %v", c.volatility)
	}
	return nil
}

func (c Contract) validateExpiration() error {
	if !c.expiration.After(c.Now()) {
		return xerrors.ErrExpiredContract.WithDetail("expiration %s is not after now", datetime.FormatTime(c.expiration))
	}
	return nil
}

// Now 返回合约时钟的当前时间。
func (c Contract) Now() time.Time {
	if c.clock == nil {
		return time.Now()
	}
	return c.clock()
}

func (c Contract) Symbol() string               { return c.symbol }
func (c Contract) Strike() float64              { return c.strike }
func (c Contract) Expiration() time.Time        { return c.expiration }
func (c Contract) OptionType() types.OptionType { return c.optionType }
func (c Contract) StockPrice() float64          { return c.stockPrice }
func (c Contract) RiskFreeRate() float64        { return c.riskFreeRate }
func (c Contract) IsCall() bool                 { return c.optionType == types.OptionTypeCall }
func (c Contract) IsPut() bool                  { return c.optionType == types.OptionTypePut }
func (c Contract) Volatility() (float64, bool)  { return c.volatility, c.hasVol }

// TimeToExpiration 剩余期限 (年)。
// 已到期返回 0，不足一天按 1/365.25 计，每次调用按时钟重新计算。
func (c Contract) TimeToExpiration() float64 {
	years := datetime.YearFraction(c.Now(), c.expiration)
	if years <= 0 {
		return 0
	}
	return max(years, minTimeToExpiration)
}

// IsInTheMoney 是否实值。
func (c Contract) IsInTheMoney() bool {
	if c.IsCall() {
		return c.stockPrice > c.strike
	}
	return c.stockPrice < c.strike
}

// IntrinsicValue 立即行权价值。
func (c Contract) IntrinsicValue() float64 {
	return c.optionType.Payoff(c.stockPrice, c.strike)
}

func (c Contract) String() string {
	return fmt.Sprintf("%s $%.2f %s exp: %s", c.symbol, c.strike, c.optionType, datetime.FormatDate(c.expiration))
}

// --- 情景副本 ---

// WithStockPrice 返回标的价格替换后的新合约。
func (c Contract) WithStockPrice(s float64) (Contract, error) {
	c.stockPrice = s
	return c, c.validate()
}

// WithVolatility 返回波动率替换后的新合约。
func (c Contract) WithVolatility(vol float64) (Contract, error) {
	c.volatility = vol
	c.hasVol = true
	return c, c.validate()
}

// WithoutVolatility 返回去掉波动率的新合约。
func (c Contract) WithoutVolatility() Contract {
	c.volatility = 0
	c.hasVol = false
	return c
}

// WithRiskFreeRate 返回无风险利率替换后的新合约。
func (c Contract) WithRiskFreeRate(r float64) (Contract, error) {
	c.riskFreeRate = r
	return c, c.validate()
}

// WithExpiration 返回到期日替换后的新合约，新到期日同样必须晚于当前时刻。
func (c Contract) WithExpiration(exp time.Time) (Contract, error) {
	c.expiration = exp
	if err := c.validate(); err != nil {
		return c, err
	}
	return c, c.validateExpiration()
}
