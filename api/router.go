package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optionpricer/config"
	"github.com/wyfcoding/optionpricer/idgen"
	"github.com/wyfcoding/optionpricer/metrics"
	"github.com/wyfcoding/optionpricer/middleware"
	"github.com/wyfcoding/optionpricer/pricing"
	"github.com/wyfcoding/optionpricer/server"
)

// Deps 构造路由所需的依赖，Metrics 可为 nil。
type Deps struct {
	Config  *config.Config
	Service *pricing.Service
	Metrics *metrics.Metrics
	IDs     idgen.Generator
	Logger  *slog.Logger
	Version string
}

// NewRouter 组装中间件链与路由。Metrics 启用时在主端口的 cfg.Metrics.Path 同时暴露指标。
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := server.NewEngine(
		middleware.Recovery(logger),
		middleware.RequestID(d.IDs),
		middleware.Tracing(cfg.Tracing.ServiceName),
		middleware.TraceIDHeader(),
		middleware.RequestLogger(logger),
		middleware.HTTPMetrics(d.Metrics, middleware.MetricsOptions{
			SlowThreshold: cfg.Server.SlowThreshold,
			SkipPaths:     []string{"/api/health", cfg.Metrics.Path},
		}),
		middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		middleware.MaxBodyBytes(cfg.Server.MaxBodyBytes),
		middleware.Timeout(cfg.Server.RequestTimeout),
	)

	if d.Metrics != nil && cfg.Metrics.Enabled && cfg.Metrics.Path != "" {
		engine.GET(cfg.Metrics.Path, gin.WrapH(d.Metrics.Handler()))
	}
	NewHandler(d.Service, logger, d.Version, pricing.LimitsFromConfig(cfg)).Register(engine)
	return engine
}
