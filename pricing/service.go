// Package pricing 是定价引擎之上的应用服务：请求解析、行情补全、报价取整、组合汇总与情景扫描，
// 并在每次引擎调用外围记录日志、指标与链路追踪。
package pricing

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wyfcoding/optionpricer/algorithm/finance"
	"github.com/wyfcoding/optionpricer/algorithm/sim"
	"github.com/wyfcoding/optionpricer/async"
	"github.com/wyfcoding/optionpricer/config"
	"github.com/wyfcoding/optionpricer/logging"
	"github.com/wyfcoding/optionpricer/metrics"
	"github.com/wyfcoding/optionpricer/tracing"
	"github.com/wyfcoding/optionpricer/worker"
	"github.com/wyfcoding/optionpricer/xerrors"
)

// GreeksMethod Greeks 的计算方式。
type GreeksMethod string

const (
	GreeksAnalytical GreeksMethod = "analytical"
	GreeksNumerical  GreeksMethod = "numerical"   // 对 Black-Scholes 做有限差分
	GreeksMonteCarlo GreeksMethod = "monte_carlo" // 对固定种子的蒙特卡洛欧式定价做有限差分
)

// ParseGreeksMethod 大小写不敏感，空串视为 analytical。
func ParseGreeksMethod(s string) (GreeksMethod, error) {
	switch m := GreeksMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return GreeksAnalytical, nil
	case GreeksAnalytical, GreeksNumerical, GreeksMonteCarlo:
		return m, nil
	}
	return "", xerrors.ErrInvalidInput.WithDetail("unknown greeks method %q", s)
}

// MonteCarloRequest 模拟参数。零值字段使用配置默认值。
type MonteCarloRequest struct {
	Seed        *uint64
	Payoff      sim.Spec
	Simulations int
	Steps       int
}

// Service 定价应用服务，可并发使用。
type Service struct {
	bs      *finance.BlackScholesCalculator
	greeks  *finance.GreeksCalculator
	metrics *metrics.Metrics
	logger  *logging.Logger
	market  MarketDataProvider
	clock   finance.Clock
	pool    *worker.Pool
	engine  config.EngineConfig
	mu      sync.RWMutex
	ownPool bool
}

// Option 服务构造选项。
type Option func(*Service)

// WithMetrics 注入指标采集器。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger 注入日志记录器。
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMarketData 设置行情源，PriceFromMarket 需要。
func WithMarketData(p MarketDataProvider) Option {
	return func(s *Service) { s.market = p }
}

// WithClock 行情构造合约时使用的时钟。
func WithClock(clock finance.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPool 使用外部 worker 池执行情景扫描，服务不负责关闭它。
func WithPool(p *worker.Pool) Option {
	return func(s *Service) { s.pool = p }
}

// NewService 创建服务。未注入 worker 池时按 cfg.Pool 创建并在 Close 时关闭。
func NewService(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		bs:     finance.NewBlackScholesCalculator(),
		greeks: finance.NewGreeksCalculator(),
		logger: logging.Default(),
		clock:  time.Now,
		engine: cfg.Engine,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = worker.NewPool("pricing-sweep", cfg.Pool,
			worker.WithLogger(s.logger.Logger),
			worker.WithMetrics(s.metrics),
		)
		s.ownPool = true
	}
	return s
}

// Close 释放服务自建的资源。
func (s *Service) Close() {
	if s.ownPool {
		s.pool.Stop()
	}
}

// UpdateEngine 替换引擎参数，用作配置热更新回调。
func (s *Service) UpdateEngine(cfg config.EngineConfig) {
	s.mu.Lock()
	s.engine = cfg
	s.mu.Unlock()
	s.logger.Info("pricing engine config updated",
		"mc_simulations", cfg.MonteCarlo.Simulations, "compare_simulations", cfg.Compare.Simulations)
}

func (s *Service) engineConfig() config.EngineConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

func (s *Service) bumps() finance.Bumps {
	g := s.engineConfig().Greeks
	return finance.Bumps{Spot: g.DeltaBump, Vol: g.VegaBump, ThetaDays: g.ThetaDays, Rate: g.RhoBump}
}

// instrument 为一次操作开启 Span，返回的函数在结束时记录指标、日志并关闭 Span。
func (s *Service) instrument(ctx context.Context, method string, c finance.Contract) (context.Context, func(error)) {
	ctx, finish := tracing.Start(ctx, "pricing."+method,
		attribute.String("option.symbol", c.Symbol()),
		attribute.String("option.type", string(c.OptionType())),
		attribute.Float64("option.strike", c.Strike()),
	)
	start := time.Now()
	return ctx, func(err error) {
		elapsed := time.Since(start)
		s.metrics.ObservePricing(method, err, elapsed)
		if err != nil {
			s.logger.ErrorContext(ctx, "pricing failed", "method", method, "contract", c.String(), "error", err)
		} else {
			s.logger.DebugContext(ctx, "pricing finished", "method", method, "contract", c.String(), "duration", elapsed)
		}
		finish(err)
	}
}

// PriceBlackScholes 解析定价。
func (s *Service) PriceBlackScholes(ctx context.Context, c finance.Contract) (q *Quote, err error) {
	_, done := s.instrument(ctx, "black_scholes", c)
	defer func() { done(err) }()

	price, err := s.bs.PriceOption(c)
	if err != nil {
		return nil, err
	}
	return newQuote("black_scholes", c, price), nil
}

func (s *Service) newEngine(seed *uint64) *sim.MonteCarloEngine {
	mc := s.engineConfig().MonteCarlo
	opts := []sim.Option{sim.WithWorkers(mc.Workers), sim.WithChunkSize(mc.ChunkSize)}
	switch {
	case seed != nil:
		opts = append(opts, sim.WithSeed(*seed))
	case mc.Seed != 0:
		opts = append(opts, sim.WithSeed(mc.Seed))
	}
	return sim.NewMonteCarloEngine(opts...)
}

func (s *Service) simulationSize(req MonteCarloRequest) (int, int) {
	mc := s.engineConfig().MonteCarlo
	n, steps := req.Simulations, req.Steps
	if n == 0 {
		n = mc.Simulations
	}
	if steps == 0 {
		steps = mc.Steps
	}
	return n, steps
}

// PriceMonteCarlo 按 req.Payoff 模拟定价，零值 Payoff 视为欧式。
func (s *Service) PriceMonteCarlo(ctx context.Context, c finance.Contract, req MonteCarloRequest) (q *Quote, err error) {
	ctx, done := s.instrument(ctx, "monte_carlo", c)
	defer func() { done(err) }()

	if req.Payoff.Style == "" {
		req.Payoff = sim.European()
	}
	n, steps := s.simulationSize(req)
	tracing.AddTag(ctx, "mc.style", string(req.Payoff.Style))
	tracing.AddTag(ctx, "mc.simulations", n)

	res, err := s.newEngine(req.Seed).Price(c, req.Payoff, n, steps)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSimulation(string(req.Payoff.Style), res.NumSimulations, res.StandardError)

	q = newQuote("monte_carlo", c, res.Price)
	q.Style = req.Payoff.Style
	q.MonteCarlo = newMonteCarloView(res)
	return q, nil
}

// Greeks 计算价格与 Greeks。价格总是 Black-Scholes 解析价。
func (s *Service) Greeks(ctx context.Context, c finance.Contract, method GreeksMethod) (q *Quote, err error) {
	if method == "" {
		method = GreeksAnalytical
	}
	_, done := s.instrument(ctx, "greeks_"+string(method), c)
	defer func() { done(err) }()

	price, err := s.bs.PriceOption(c)
	if err != nil {
		return nil, err
	}

	var g finance.GreeksResult
	switch method {
	case GreeksAnalytical:
		g, err = s.greeks.Analytical(c)
	case GreeksNumerical:
		g, err = s.greeks.Numerical(s.bs, c, s.bumps())
	case GreeksMonteCarlo:
		eng := s.engineConfig()
		n, steps := s.simulationSize(MonteCarloRequest{})
		seed := eng.MonteCarlo.Seed
		if seed == 0 {
			seed = eng.Compare.Seed
		}
		p := sim.Pricer(sim.European(), n, steps, seed, sim.WithWorkers(eng.MonteCarlo.Workers))
		g, err = s.greeks.Numerical(p, c, s.bumps())
	default:
		err = xerrors.ErrInvalidInput.WithDetail("unknown greeks method %q", method)
	}
	if err != nil {
		return nil, err
	}

	q = newQuote("greeks", c, price)
	q.Greeks = roundGreeks(g)
	q.Interpretation = interpret(g)
	return q, nil
}

// Compare 使用配置中的路径数、种子与阈值比对两种方法。simulations 为 0 时取配置值。
func (s *Service) Compare(ctx context.Context, c finance.Contract, simulations int) (r *ComparisonReport, err error) {
	ctx, done := s.instrument(ctx, "compare", c)
	defer func() { done(err) }()

	eng := s.engineConfig()
	opts := sim.DefaultCompareOptions()
	opts.Simulations = eng.Compare.Simulations
	opts.Seed = eng.Compare.Seed
	opts.Threshold = eng.Compare.Threshold
	opts.Steps = eng.MonteCarlo.Steps
	opts.Workers = eng.MonteCarlo.Workers
	if simulations > 0 {
		opts.Simulations = simulations
	}

	cmp, err := sim.CompareMethodsWith(c, opts)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSimulation("compare", cmp.NumSimulations, cmp.StandardError)
	if cmp.Verdict == sim.VerdictCheck {
		s.logger.WarnContext(ctx, "monte carlo deviates from black-scholes",
			"contract", c.String(), "relative_error_pct", cmp.RelativeError, "threshold", opts.Threshold)
	}
	return newComparisonReport(c, cmp), nil
}

// Evaluation 同一合约的解析报价、模拟报价与方法比对。
type Evaluation struct {
	BlackScholes *Quote            `json:"black_scholes"`
	MonteCarlo   *Quote            `json:"monte_carlo"`
	Comparison   *ComparisonReport `json:"comparison"`
}

// Evaluate 并发计算解析报价（含 Greeks）、蒙特卡洛报价与方法比对，任一失败即返回错误。
func (s *Service) Evaluate(ctx context.Context, c finance.Contract, req MonteCarloRequest) (*Evaluation, error) {
	bs := async.NewFuture(ctx, func(ctx context.Context) (*Quote, error) {
		return s.Greeks(ctx, c, GreeksAnalytical)
	})
	mc := async.NewFuture(ctx, func(ctx context.Context) (*Quote, error) {
		return s.PriceMonteCarlo(ctx, c, req)
	})
	cmp := async.NewFuture(ctx, func(ctx context.Context) (*ComparisonReport, error) {
		return s.Compare(ctx, c, 0)
	})

	var (
		out Evaluation
		err error
	)
	if out.BlackScholes, err = bs.Get(ctx); err != nil {
		return nil, err
	}
	if out.MonteCarlo, err = mc.Get(ctx); err != nil {
		return nil, err
	}
	if out.Comparison, err = cmp.Get(ctx); err != nil {
		return nil, err
	}
	return &out, nil
}

// ContractFromMarket 用服务的行情源与配置兜底值构造合约。
func (s *Service) ContractFromMarket(ctx context.Context, req MarketRequest) (finance.Contract, MarketSnapshot, error) {
	if s.market == nil {
		return finance.Contract{}, MarketSnapshot{}, xerrors.ErrMarketDataUnavailable.WithDetail("no market data provider configured")
	}
	eng := s.engineConfig()
	return ContractFromMarket(ctx, s.market, req,
		WithFallbackMetrics(s.metrics),
		WithDefaults(eng.DefaultVolatility, eng.DefaultRiskFreeRate),
		WithMarketClock(s.clock),
	)
}

// PriceFromMarket 按行情构造合约并返回含 Greeks 的解析报价。
func (s *Service) PriceFromMarket(ctx context.Context, req MarketRequest) (*Quote, error) {
	c, snap, err := s.ContractFromMarket(ctx, req)
	if err != nil {
		s.logger.ErrorContext(ctx, "build contract from market failed", "symbol", req.Symbol, "error", err)
		return nil, err
	}
	q, err := s.Greeks(ctx, c, GreeksAnalytical)
	if err != nil {
		return nil, err
	}
	q.Market = &snap
	return q, nil
}
