package pricing

import (
	"strconv"
	"strings"
	"time"

	"github.com/wyfcoding/optionpricer/algorithm/finance"
	"github.com/wyfcoding/optionpricer/algorithm/sim"
	"github.com/wyfcoding/optionpricer/algorithm/types"
	"github.com/wyfcoding/optionpricer/cast"
	"github.com/wyfcoding/optionpricer/config"
	"github.com/wyfcoding/optionpricer/datetime"
	"github.com/wyfcoding/optionpricer/validator"
	"github.com/wyfcoding/optionpricer/xerrors"
)

// 请求参数的默认值。
const (
	DefaultSymbol       = "DEMO"
	DefaultRiskFreeRate = 0.05
)

// Limits 请求可指定的模拟规模上限，字段为 0 时不限制。
type Limits struct {
	MaxSimulations int
	MaxSteps       int
	MaxSweepPoints int
}

// LimitsFromConfig 取 engine.monte_carlo 与 server 段的上限。
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		MaxSimulations: cfg.Engine.MonteCarlo.MaxSimulations,
		MaxSteps:       cfg.Engine.MonteCarlo.MaxSteps,
		MaxSweepPoints: cfg.Server.MaxSweepPoints,
	}
}

// CheckSimulations 校验路径数与步数，0 表示使用配置默认值。
func (l Limits) CheckSimulations(sims, steps int) error {
	if sims < 0 || steps < 0 {
		return xerrors.ErrInvalidSimulation.WithDetail("num_simulations=%d num_steps=%d", sims, steps)
	}
	if l.MaxSimulations > 0 && sims > l.MaxSimulations {
		return xerrors.ErrInvalidSimulation.WithDetail("num_simulations=%d exceeds limit %d", sims, l.MaxSimulations)
	}
	if l.MaxSteps > 0 && steps > l.MaxSteps {
		return xerrors.ErrInvalidSimulation.WithDetail("num_steps=%d exceeds limit %d", steps, l.MaxSteps)
	}
	return nil
}

type contractParams struct {
	Volatility   *float64 `validate:"omitempty,gt=0"`
	Symbol       string   `validate:"required"`
	Strike       float64  `validate:"gt=0"`
	StockPrice   float64  `validate:"gt=0"`
	RiskFreeRate float64  `validate:"gte=0"`
}

// ParseContract 从无类型请求数据构造合约。
// 到期时间取 days_to_expiration（相对 clock 的天数）或 expiration_date，两者都缺失时报错。
// clock 为 nil 时使用 time.Now。
func ParseContract(data map[string]any, clock finance.Clock) (finance.Contract, error) {
	if clock == nil {
		clock = time.Now
	}
	for _, key := range []string{"strike_price", "stock_price"} {
		if !cast.Has(data, key) {
			return finance.Contract{}, xerrors.ErrInvalidInput.WithDetail("missing required parameter: %s", key)
		}
	}

	var (
		p   contractParams
		err error
	)
	if p.Symbol, err = cast.StringOr(data, "symbol", DefaultSymbol); err != nil {
		return finance.Contract{}, err
	}
	if p.Strike, err = cast.Float64Or(data, "strike_price", 0); err != nil {
		return finance.Contract{}, err
	}
	if p.StockPrice, err = cast.Float64Or(data, "stock_price", 0); err != nil {
		return finance.Contract{}, err
	}
	if p.RiskFreeRate, err = cast.Float64Or(data, "risk_free_rate", DefaultRiskFreeRate); err != nil {
		return finance.Contract{}, err
	}
	vol, hasVol, err := cast.Float64(data, "volatility")
	if err != nil {
		return finance.Contract{}, err
	}
	if hasVol {
		p.Volatility = &vol
	}
	if err := validator.Struct(p); err != nil {
		return finance.Contract{}, err
	}

	typ, err := cast.StringOr(data, "option_type", "call")
	if err != nil {
		return finance.Contract{}, err
	}
	optionType, err := types.ParseOptionType(typ)
	if err != nil {
		return finance.Contract{}, err
	}

	expiration, err := parseExpiration(data, clock())
	if err != nil {
		return finance.Contract{}, err
	}

	return finance.NewContract(finance.ContractSpec{
		Symbol:       p.Symbol,
		Strike:       p.Strike,
		Expiration:   expiration,
		OptionType:   optionType,
		StockPrice:   p.StockPrice,
		RiskFreeRate: p.RiskFreeRate,
		Volatility:   p.Volatility,
	}, finance.WithClock(clock))
}

func parseExpiration(data map[string]any, now time.Time) (time.Time, error) {
	days, ok, err := cast.Float64(data, "days_to_expiration")
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		if err := datetime.CheckDays(days); err != nil {
			return time.Time{}, err
		}
		return datetime.AddDays(now, days), nil
	}
	s, err := cast.StringOr(data, "expiration_date", "")
	if err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, xerrors.ErrInvalidInput.WithDetail("must provide either days_to_expiration or expiration_date")
	}
	return datetime.ParseExpiration(s, now.Location())
}

// ParseMonteCarlo 解析模拟参数：option_style（默认 european）、num_simulations、num_steps、
// seed，以及障碍期权的 barrier_level、barrier_type（默认 knock_out）、barrier_direction（默认 auto）。
// 未提供的路径数与步数保持为 0，由服务使用配置默认值；超过 lim 的取值返回 ErrInvalidSimulation。
func ParseMonteCarlo(data map[string]any, lim Limits) (MonteCarloRequest, error) {
	var req MonteCarloRequest

	styleStr, err := cast.StringOr(data, "option_style", string(types.StyleEuropean))
	if err != nil {
		return req, err
	}
	style, err := types.ParsePayoffStyle(styleStr)
	if err != nil {
		return req, err
	}

	switch style {
	case types.StyleAsian:
		req.Payoff = sim.Asian()
	case types.StyleBarrier:
		level, ok, err := cast.Float64(data, "barrier_level")
		if err != nil {
			return req, err
		}
		if !ok {
			return req, xerrors.ErrInvalidInput.WithDetail("barrier_level is required for barrier options")
		}
		btStr, err := cast.StringOr(data, "barrier_type", string(types.KnockOut))
		if err != nil {
			return req, err
		}
		bt, err := types.ParseBarrierType(btStr)
		if err != nil {
			return req, err
		}
		dirStr, err := cast.StringOr(data, "barrier_direction", string(types.BarrierAuto))
		if err != nil {
			return req, err
		}
		dir, err := types.ParseBarrierDirection(dirStr)
		if err != nil {
			return req, err
		}
		req.Payoff = sim.BarrierDirectional(level, bt, dir)
	default:
		req.Payoff = sim.European()
	}

	if req.Simulations, _, err = cast.Int(data, "num_simulations"); err != nil {
		return req, err
	}
	if req.Steps, _, err = cast.Int(data, "num_steps"); err != nil {
		return req, err
	}
	seed, ok, err := cast.Int(data, "seed")
	if err != nil {
		return req, err
	}
	if ok {
		if seed < 0 {
			return req, xerrors.ErrInvalidInput.WithDetail("seed must be non-negative, got %d", seed)
		}
		s := uint64(seed)
		req.Seed = &s
	}
	if err := lim.CheckSimulations(req.Simulations, req.Steps); err != nil {
		return req, err
	}
	return req, req.Payoff.Validate()
}

// ParsePortfolio 解析 positions 列表，每项包含 quantity（默认 1）与 option 对象。
func ParsePortfolio(data map[string]any, clock finance.Clock) ([]Position, error) {
	items, ok, err := cast.Slice(data, "positions")
	if err != nil {
		return nil, err
	}
	if !ok || len(items) == 0 {
		return nil, xerrors.ErrEmptyData.WithDetail("no positions provided")
	}

	positions := make([]Position, 0, len(items))
	for i, item := range items {
		leg, err := cast.StringMap(item)
		if err != nil {
			return nil, xerrors.ErrInvalidInput.WithDetail("position %d: %v", i, err)
		}
		qty, err := cast.Float64Or(leg, "quantity", 1)
		if err != nil {
			return nil, err
		}
		raw, ok := leg["option"]
		if !ok {
			return nil, xerrors.ErrInvalidInput.WithDetail("position %d: missing option", i)
		}
		optData, err := cast.StringMap(raw)
		if err != nil {
			return nil, xerrors.ErrInvalidInput.WithDetail("position %d: %v", i, err)
		}
		c, err := ParseContract(optData, clock)
		if err != nil {
			return nil, xerrors.Wrap(err, xerrors.ErrInvalidArg, "invalid option in position "+strconv.Itoa(i))
		}
		positions = append(positions, Position{Quantity: qty, Contract: c})
	}
	return positions, nil
}

// ParseSweep 解析 "参数:起点:终点:点数" 形式的扫描描述，例如 "spot:80:120:9"。
// maxPoints 为正时点数不得超过它。
func ParseSweep(s string, maxPoints int) (SweepParameter, []float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 4 {
		return "", nil, xerrors.ErrInvalidInput.WithDetail("sweep %q: want param:from:to:points", s)
	}
	param, err := ParseSweepParameter(parts[0])
	if err != nil {
		return "", nil, err
	}
	from, err1 := strconv.ParseFloat(parts[1], 64)
	to, err2 := strconv.ParseFloat(parts[2], 64)
	n, err3 := strconv.Atoi(parts[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return "", nil, xerrors.ErrInvalidInput.WithDetail("sweep %q: malformed bounds", s)
	}
	if maxPoints > 0 && n > maxPoints {
		return "", nil, xerrors.ErrInvalidSimulation.WithDetail("sweep %q: %d points exceeds limit %d", s, n, maxPoints)
	}
	values, err := Linspace(from, to, n)
	if err != nil {
		return "", nil, err
	}
	return param, values, nil
}

// ParseMarketRequest 解析按行情定价的请求：symbol、option_type、strike_price、days_to_expiration、use_implied_vol。
func ParseMarketRequest(data map[string]any) (MarketRequest, error) {
	var req MarketRequest
	var err error
	if req.Symbol, err = cast.StringOr(data, "symbol", ""); err != nil {
		return req, err
	}
	typ, err := cast.StringOr(data, "option_type", "call")
	if err != nil {
		return req, err
	}
	if req.OptionType, err = types.ParseOptionType(typ); err != nil {
		return req, err
	}
	if req.Strike, err = cast.Float64Or(data, "strike_price", 0); err != nil {
		return req, err
	}
	if req.DaysToExpiration, err = cast.Float64Or(data, "days_to_expiration", 0); err != nil {
		return req, err
	}
	if err := datetime.CheckDays(req.DaysToExpiration); err != nil {
		return req, err
	}
	req.UseImpliedVol, err = cast.BoolOr(data, "use_implied_vol", false)
	return req, err
}
