package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wyfcoding/optionpricer/algorithm/finance"
	"github.com/wyfcoding/optionpricer/algorithm/types"
	"github.com/wyfcoding/optionpricer/breaker"
	"github.com/wyfcoding/optionpricer/cache"
	"github.com/wyfcoding/optionpricer/config"
	"github.com/wyfcoding/optionpricer/datetime"
	"github.com/wyfcoding/optionpricer/metrics"
	"github.com/wyfcoding/optionpricer/validator"
	"github.com/wyfcoding/optionpricer/xerrors"
)

// 行情回退的默认值与回看窗口。
const (
	DefaultVolatility   = 0.25
	DefaultLookbackDays = 30
)

// 波动率与利率的数据来源。
const (
	SourceImplied    = "implied"
	SourceHistorical = "historical"
	SourceDefault    = "default"
	SourceProvider   = "provider"
)

// MarketDataProvider 行情数据源。定价核心从不直接调用。
type MarketDataProvider interface {
	StockPrice(ctx context.Context, symbol string) (float64, error)
	ImpliedVolatility(ctx context.Context, symbol string, optionType types.OptionType, strike float64) (float64, error)
	HistoricalCloses(ctx context.Context, symbol string, days int) ([]float64, error)
	RiskFreeRate(ctx context.Context) (float64, error)
}

// StaticProvider 内存行情源，适用于离线定价与测试。
type StaticProvider struct {
	spots  map[string]float64
	ivs    map[string]float64
	closes map[string][]float64
	rate   *float64
	mu     sync.RWMutex
}

// NewStaticProvider 创建空的内存行情源。
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		spots:  make(map[string]float64),
		ivs:    make(map[string]float64),
		closes: make(map[string][]float64),
	}
}

func ivKey(symbol string, optionType types.OptionType, strike float64) string {
	return fmt.Sprintf("%s:%s:%g", strings.ToUpper(symbol), optionType, strike)
}

// SetStockPrice 设置标的现价。
func (p *StaticProvider) SetStockPrice(symbol string, price float64) *StaticProvider {
	p.mu.Lock()
	p.spots[strings.ToUpper(symbol)] = price
	p.mu.Unlock()
	return p
}

// SetImpliedVolatility 设置指定行权价的隐含波动率。
func (p *StaticProvider) SetImpliedVolatility(symbol string, optionType types.OptionType, strike, iv float64) *StaticProvider {
	p.mu.Lock()
	p.ivs[ivKey(symbol, optionType, strike)] = iv
	p.mu.Unlock()
	return p
}

// SetHistoricalCloses 设置按时间升序排列的收盘价。
func (p *StaticProvider) SetHistoricalCloses(symbol string, closes []float64) *StaticProvider {
	p.mu.Lock()
	p.closes[strings.ToUpper(symbol)] = append([]float64(nil), closes...)
	p.mu.Unlock()
	return p
}

// SetRiskFreeRate 设置无风险利率。
func (p *StaticProvider) SetRiskFreeRate(rate float64) *StaticProvider {
	p.mu.Lock()
	p.rate = &rate
	p.mu.Unlock()
	return p
}

func (p *StaticProvider) StockPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.spots[strings.ToUpper(symbol)]
	if !ok {
		return 0, xerrors.ErrMarketDataUnavailable.WithDetail("no stock price for %s", symbol)
	}
	return v, nil
}

func (p *StaticProvider) ImpliedVolatility(_ context.Context, symbol string, optionType types.OptionType, strike float64) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.ivs[ivKey(symbol, optionType, strike)]
	if !ok {
		return 0, xerrors.ErrMarketDataUnavailable.WithDetail("no implied volatility for %s %s %g", symbol, optionType, strike)
	}
	return v, nil
}

// HistoricalCloses 返回最近 days+1 个收盘价（days 个收益率）。
func (p *StaticProvider) HistoricalCloses(_ context.Context, symbol string, days int) ([]float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	closes, ok := p.closes[strings.ToUpper(symbol)]
	if !ok || len(closes) == 0 {
		return nil, xerrors.ErrMarketDataUnavailable.WithDetail("no price history for %s", symbol)
	}
	if days > 0 && len(closes) > days+1 {
		closes = closes[len(closes)-days-1:]
	}
	return append([]float64(nil), closes...), nil
}

func (p *StaticProvider) RiskFreeRate(context.Context) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.rate == nil {
		return 0, xerrors.ErrMarketDataUnavailable.WithDetail("no risk-free rate")
	}
	return *p.rate, nil
}

// CachedProvider 为下游行情源加一层本地缓存，并发的相同请求只回源一次。
// 错误不缓存。
type CachedProvider struct {
	next  MarketDataProvider
	cache cache.Cache
	group singleflight.Group
}

// NewCachedProvider 包装 next。
func NewCachedProvider(next MarketDataProvider, c cache.Cache) *CachedProvider {
	return &CachedProvider{next: next, cache: c}
}

func cached[T any](ctx context.Context, p *CachedProvider, key string, fetch func(context.Context) (T, error)) (T, error) {
	var v T
	err := p.cache.Get(ctx, key, &v)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		slog.WarnContext(ctx, "market data cache read failed", "key", key, "error", err)
	}

	res, err, _ := p.group.Do(key, func() (any, error) {
		val, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := p.cache.Set(ctx, key, val, 0); err != nil {
			slog.WarnContext(ctx, "market data cache write failed", "key", key, "error", err)
		}
		return val, nil
	})
	if err != nil {
		return v, err
	}
	return res.(T), nil
}

func (p *CachedProvider) StockPrice(ctx context.Context, symbol string) (float64, error) {
	return cached(ctx, p, "spot:"+strings.ToUpper(symbol), func(ctx context.Context) (float64, error) {
		return p.next.StockPrice(ctx, symbol)
	})
}

func (p *CachedProvider) ImpliedVolatility(ctx context.Context, symbol string, optionType types.OptionType, strike float64) (float64, error) {
	return cached(ctx, p, "iv:"+ivKey(symbol, optionType, strike), func(ctx context.Context) (float64, error) {
		return p.next.ImpliedVolatility(ctx, symbol, optionType, strike)
	})
}

func (p *CachedProvider) HistoricalCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	key := fmt.Sprintf("hist:%s:%d", strings.ToUpper(symbol), days)
	return cached(ctx, p, key, func(ctx context.Context) ([]float64, error) {
		return p.next.HistoricalCloses(ctx, symbol, days)
	})
}

func (p *CachedProvider) RiskFreeRate(ctx context.Context) (float64, error) {
	return cached(ctx, p, "rate", p.next.RiskFreeRate)
}

// GuardedProvider 用熔断器包装下游行情源，连续失败后快速返回 xerrors.ErrCircuitOpen。
// 行情源明确答复的 ErrMarketDataUnavailable 不计为失败。
type GuardedProvider struct {
	next MarketDataProvider
	b    *breaker.Breaker
}

// NewGuardedProvider 按 cfg 创建名为 name 的熔断器。
func NewGuardedProvider(next MarketDataProvider, name string, cfg config.BreakerConfig, m *metrics.Metrics) *GuardedProvider {
	return &GuardedProvider{
		next: next,
		b: breaker.New(name, cfg,
			breaker.WithMetrics(m),
			breaker.WithBenignErrors(func(err error) bool {
				return errors.Is(err, xerrors.ErrMarketDataUnavailable)
			}),
		),
	}
}

func (p *GuardedProvider) StockPrice(ctx context.Context, symbol string) (float64, error) {
	return breaker.Execute(p.b, func() (float64, error) { return p.next.StockPrice(ctx, symbol) })
}

func (p *GuardedProvider) ImpliedVolatility(ctx context.Context, symbol string, optionType types.OptionType, strike float64) (float64, error) {
	return breaker.Execute(p.b, func() (float64, error) {
		return p.next.ImpliedVolatility(ctx, symbol, optionType, strike)
	})
}

func (p *GuardedProvider) HistoricalCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	return breaker.Execute(p.b, func() ([]float64, error) { return p.next.HistoricalCloses(ctx, symbol, days) })
}

func (p *GuardedProvider) RiskFreeRate(ctx context.Context) (float64, error) {
	return breaker.Execute(p.b, func() (float64, error) { return p.next.RiskFreeRate(ctx) })
}

// MarketRequest 按行情构造合约所需的条款。
type MarketRequest struct {
	Symbol           string           `json:"symbol"             validate:"required"`
	OptionType       types.OptionType `json:"option_type"`
	Strike           float64          `json:"strike_price"       validate:"gt=0"`
	DaysToExpiration float64          `json:"days_to_expiration" validate:"gt=0"`
	// UseImpliedVol 为 false 时跳过隐含波动率，直接使用历史波动率。
	UseImpliedVol bool `json:"use_implied_vol"`
}

// MarketSnapshot 记录构造合约时实际使用的行情与来源。
type MarketSnapshot struct {
	Timestamp        time.Time `json:"timestamp"`
	Symbol           string    `json:"symbol"`
	VolatilitySource string    `json:"volatility_source"`
	RateSource       string    `json:"rate_source"`
	StockPrice       float64   `json:"stock_price"`
	Volatility       float64   `json:"volatility"`
	RiskFreeRate     float64   `json:"risk_free_rate"`
}

type marketOptions struct {
	metrics      *metrics.Metrics
	clock        finance.Clock
	volatility   float64
	rate         float64
	lookbackDays int
}

// MarketOption ContractFromMarket 的可选参数。
type MarketOption func(*marketOptions)

// WithFallbackMetrics 记录每次回退。
func WithFallbackMetrics(m *metrics.Metrics) MarketOption {
	return func(o *marketOptions) { o.metrics = m }
}

// WithDefaults 覆盖波动率与利率的兜底值。
func WithDefaults(volatility, rate float64) MarketOption {
	return func(o *marketOptions) {
		if volatility > 0 {
			o.volatility = volatility
		}
		if rate >= 0 {
			o.rate = rate
		}
	}
}

// WithLookbackDays 历史波动率的回看天数。
func WithLookbackDays(days int) MarketOption {
	return func(o *marketOptions) {
		if days > 0 {
			o.lookbackDays = days
		}
	}
}

// WithMarketClock 合约使用的时钟。
func WithMarketClock(clock finance.Clock) MarketOption {
	return func(o *marketOptions) { o.clock = clock }
}

// ContractFromMarket 用行情填充合约。
// 标的现价取不到时报错；波动率依次回退 隐含 → 历史 → 默认值；利率取不到时使用默认值。
func ContractFromMarket(ctx context.Context, p MarketDataProvider, req MarketRequest, opts ...MarketOption) (finance.Contract, MarketSnapshot, error) {
	o := marketOptions{
		volatility:   DefaultVolatility,
		rate:         DefaultRiskFreeRate,
		lookbackDays: DefaultLookbackDays,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if req.OptionType == "" {
		req.OptionType = types.OptionTypeCall
	}
	if err := validator.Struct(req); err != nil {
		return finance.Contract{}, MarketSnapshot{}, err
	}
	if err := datetime.CheckDays(req.DaysToExpiration); err != nil {
		return finance.Contract{}, MarketSnapshot{}, err
	}

	spot, err := p.StockPrice(ctx, req.Symbol)
	if err != nil {
		return finance.Contract{}, MarketSnapshot{}, xerrors.Wrap(err, xerrors.ErrUnavailable, "fetch stock price for "+req.Symbol)
	}

	snap := MarketSnapshot{
		Symbol:     req.Symbol,
		StockPrice: spot,
		Timestamp:  o.clock(),
	}
	snap.Volatility, snap.VolatilitySource = resolveVolatility(ctx, p, req, &o)

	snap.RiskFreeRate, snap.RateSource = o.rate, SourceDefault
	if rate, err := p.RiskFreeRate(ctx); err == nil && rate >= 0 {
		snap.RiskFreeRate, snap.RateSource = rate, SourceProvider
	} else {
		slog.DebugContext(ctx, "risk-free rate unavailable, using default", "rate", o.rate, "error", err)
		o.metrics.ObserveFallback("risk_free_rate", SourceDefault)
	}

	vol := snap.Volatility
	c, err := finance.NewContract(finance.ContractSpec{
		Symbol:       req.Symbol,
		Strike:       req.Strike,
		Expiration:   datetime.AddDays(snap.Timestamp, req.DaysToExpiration),
		OptionType:   req.OptionType,
		StockPrice:   spot,
		RiskFreeRate: snap.RiskFreeRate,
		Volatility:   &vol,
	}, finance.WithClock(o.clock))
	if err != nil {
		return finance.Contract{}, snap, err
	}
	return c, snap, nil
}

func resolveVolatility(ctx context.Context, p MarketDataProvider, req MarketRequest, o *marketOptions) (float64, string) {
	if req.UseImpliedVol {
		iv, err := p.ImpliedVolatility(ctx, req.Symbol, req.OptionType, req.Strike)
		if err == nil && iv > 0 {
			return iv, SourceImplied
		}
		slog.DebugContext(ctx, "implied volatility unavailable, falling back to historical", "symbol", req.Symbol, "error", err)
		o.metrics.ObserveFallback("volatility", SourceHistorical)
	}

	closes, err := p.HistoricalCloses(ctx, req.Symbol, o.lookbackDays)
	if err == nil {
		var hv float64
		if hv, err = finance.HistoricalVolatility(closes); err == nil {
			return hv, SourceHistorical
		}
	}
	slog.DebugContext(ctx, "historical volatility unavailable, using default", "symbol", req.Symbol, "volatility", o.volatility, "error", err)
	o.metrics.ObserveFallback("volatility", SourceDefault)
	return o.volatility, SourceDefault
}
