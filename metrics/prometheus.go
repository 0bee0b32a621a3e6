package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装了基于 Prometheus 的指标采集注册表及预定义的定价指标。
type Metrics struct {
	registry *prometheus.Registry // 内部独立的 Prometheus 注册中心

	PricingRequestsTotal     *prometheus.CounterVec   // 定价请求总量 (维度: method, status)
	PricingDuration          *prometheus.HistogramVec // 定价耗时分布 (维度: method)
	MonteCarloPathsTotal     *prometheus.CounterVec   // 已模拟路径数 (维度: style)
	MonteCarloStandardError  *prometheus.GaugeVec     // 最近一次模拟的标准误 (维度: style)
	MarketDataFallbacksTotal *prometheus.CounterVec   // 行情回退次数 (维度: field, source)
	CircuitBreakerState      *prometheus.GaugeVec     // 熔断器状态 (维度: name)

	HTTPRequestsTotal     *prometheus.CounterVec   // HTTP 请求总量 (维度: method, path, status)
	HTTPRequestDuration   *prometheus.HistogramVec // HTTP 请求耗时 (维度: method, path)
	HTTPInFlight          *prometheus.GaugeVec     // 处理中的 HTTP 请求 (维度: method, path)
	HTTPSlowRequestsTotal *prometheus.CounterVec   // 慢请求计数 (维度: method, path)

	BuildInfo *prometheus.GaugeVec
}

// NewMetrics 初始化并返回一个新的指标采集器。
// 它会自动注册 Go 运行时指标和进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.PricingRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_requests_total",
		Help: "Total number of pricing requests",
	}, []string{"method", "status"})

	m.PricingDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricing_duration_seconds",
		Help:    "Pricing latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"method"})

	m.MonteCarloPathsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "monte_carlo_paths_total",
		Help: "Total number of simulated Monte Carlo paths",
	}, []string{"style"})

	m.MonteCarloStandardError = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "monte_carlo_standard_error",
		Help: "Standard error of the latest Monte Carlo estimate",
	}, []string{"style"})

	m.MarketDataFallbacksTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "market_data_fallbacks_total",
		Help: "Times a market data field fell back to a secondary source",
	}, []string{"field", "source"})

	m.CircuitBreakerState = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0: closed, 1: half-open, 2: open)",
	}, []string{"name"})

	m.HTTPRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.HTTPInFlight = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "HTTP requests currently being served",
	}, []string{"method", "path"})

	m.HTTPSlowRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_slow_requests_total",
		Help: "HTTP requests slower than the configured threshold",
	}, []string{"method", "path"})

	slog.Info("unified metrics registry initialized", "service", serviceName)
	return m
}

// Registry 返回内部注册中心，测试中用于 Gather。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// NewCounterVec 创建并注册一个新的计数器指标。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册一个新的仪表盘指标。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewGauge 创建并注册一个无标签的仪表盘指标。
func (m *Metrics) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	g := prometheus.NewGauge(opts)
	m.registry.MustRegister(g)
	return g
}

// NewHistogramVec 创建并注册一个新的直方图指标。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// ObservePricing 记录一次定价调用的结果与耗时。
func (m *Metrics) ObservePricing(method string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PricingRequestsTotal.WithLabelValues(method, status).Inc()
	m.PricingDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveSimulation 记录一次蒙特卡洛模拟的路径数与标准误。
func (m *Metrics) ObserveSimulation(style string, paths int, standardError float64) {
	if m == nil {
		return
	}
	m.MonteCarloPathsTotal.WithLabelValues(style).Add(float64(paths))
	m.MonteCarloStandardError.WithLabelValues(style).Set(standardError)
}

// ObserveFallback 记录一次行情字段回退。
func (m *Metrics) ObserveFallback(field, source string) {
	if m == nil {
		return
	}
	m.MarketDataFallbacksTotal.WithLabelValues(field, source).Inc()
}

// Handler 返回用于暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ExposeHttp 在指定地址启动一个独立的 HTTP 服务器用于暴露指标数据。
// 返回一个清理函数用于优雅关闭该服务器。
func (m *Metrics) ExposeHttp(addr, path string) func() {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown metrics server", "error", err)
		}
	}
}
