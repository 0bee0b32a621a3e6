// pricer 命令行入口：读取配置与合约参数，调用定价服务并把结果以 JSON 写到标准输出。
//
// 用法示例:
//
//	pricer -method all -strike 100 -spot 100 -days 30 -vol 0.2
//	pricer -method mc -request contract.json -style barrier -barrier 120 -barrier-type knock_out
//	pricer -method portfolio -request portfolio.json
//	pricer -method sweep -strike 100 -spot 100 -days 90 -vol 0.2 -sweep vol:0.1:0.5:9
//	pricer -method market -market market.json -symbol AAPL -strike 150 -days 30 -use-iv
//	pricer -serve -config configs/config.toml -market market.json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optionpricer/algorithm/types"
	"github.com/wyfcoding/optionpricer/api"
	"github.com/wyfcoding/optionpricer/cache"
	"github.com/wyfcoding/optionpricer/config"
	"github.com/wyfcoding/optionpricer/idgen"
	"github.com/wyfcoding/optionpricer/logging"
	"github.com/wyfcoding/optionpricer/metrics"
	"github.com/wyfcoding/optionpricer/pricing"
	"github.com/wyfcoding/optionpricer/server"
	"github.com/wyfcoding/optionpricer/tracing"
	"github.com/wyfcoding/optionpricer/xerrors"
)

var version = "dev"

type options struct {
	configPath  string
	method      string
	requestPath string
	marketPath  string
	sweep       string
	greeks      string

	symbol      string
	optionType  string
	expiration  string
	style       string
	barrierType string
	direction   string
	strike      float64
	spot        float64
	days        float64
	rate        float64
	vol         float64
	barrier     float64
	sims        int
	steps       int
	seed        int64
	useIV       bool
	serve       bool
}

func parseFlags(args []string) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("pricer", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "path to config file (toml)")
	fs.StringVar(&o.method, "method", "all", "bs | mc | greeks | compare | all | portfolio | sweep | market")
	fs.StringVar(&o.requestPath, "request", "", "JSON request file, overrides contract flags")
	fs.StringVar(&o.marketPath, "market", "", "JSON market data file for -method market")
	fs.StringVar(&o.sweep, "sweep", "", "sweep spec param:from:to:points, e.g. spot:80:120:9")
	fs.StringVar(&o.greeks, "greeks", "analytical", "greeks method: analytical | numerical | monte_carlo")

	fs.StringVar(&o.symbol, "symbol", pricing.DefaultSymbol, "underlying symbol")
	fs.StringVar(&o.optionType, "type", "call", "call | put")
	fs.StringVar(&o.expiration, "expiration", "", "expiration date (2006-01-02), alternative to -days")
	fs.Float64Var(&o.strike, "strike", 0, "strike price")
	fs.Float64Var(&o.spot, "spot", 0, "underlying price")
	fs.Float64Var(&o.days, "days", 0, "days to expiration")
	fs.Float64Var(&o.rate, "rate", pricing.DefaultRiskFreeRate, "annual risk-free rate")
	fs.Float64Var(&o.vol, "vol", 0, "annual volatility, 0 means absent")

	fs.StringVar(&o.style, "style", "european", "monte carlo payoff: european | asian | barrier")
	fs.Float64Var(&o.barrier, "barrier", 0, "barrier level")
	fs.StringVar(&o.barrierType, "barrier-type", "knock_out", "knock_out | knock_in")
	fs.StringVar(&o.direction, "barrier-direction", "", "up | down, empty infers from option type (call up, put down)")
	fs.IntVar(&o.sims, "sims", 0, "monte carlo simulations, 0 uses config")
	fs.IntVar(&o.steps, "steps", 0, "monte carlo time steps, 0 uses config")
	fs.Int64Var(&o.seed, "seed", -1, "monte carlo seed, negative means unseeded")
	fs.BoolVar(&o.useIV, "use-iv", false, "prefer implied volatility for -method market")
	fs.BoolVar(&o.serve, "serve", false, "run the HTTP API instead of a one-off pricing")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

// requestData 返回请求参数：优先读取 -request 文件，否则由命令行参数拼装。
func (o *options) requestData() (map[string]any, error) {
	if o.requestPath != "" {
		b, err := os.ReadFile(o.requestPath)
		if err != nil {
			return nil, fmt.Errorf("read request file: %w", err)
		}
		data := map[string]any{}
		if err := json.Unmarshal(b, &data); err != nil {
			return nil, xerrors.ErrInvalidInput.WithDetail("request file: %v", err)
		}
		return data, nil
	}

	data := map[string]any{
		"symbol":         o.symbol,
		"option_type":    o.optionType,
		"risk_free_rate": o.rate,
		"option_style":   o.style,
		"barrier_type":   o.barrierType,
	}
	if o.strike != 0 {
		data["strike_price"] = o.strike
	}
	if o.spot != 0 {
		data["stock_price"] = o.spot
	}
	if o.vol != 0 {
		data["volatility"] = o.vol
	}
	if o.expiration != "" {
		data["expiration_date"] = o.expiration
	} else if o.days != 0 {
		data["days_to_expiration"] = o.days
	}
	if o.barrier != 0 {
		data["barrier_level"] = o.barrier
	}
	if o.direction != "" {
		data["barrier_direction"] = o.direction
	}
	if o.sims != 0 {
		data["num_simulations"] = o.sims
	}
	if o.steps != 0 {
		data["num_steps"] = o.steps
	}
	if o.seed >= 0 {
		data["seed"] = o.seed
	}
	return data, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, opts, os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, opts *options, stdout io.Writer) int {
	cfg := config.Default()
	if opts.configPath != "" {
		if err := config.Load(opts.configPath, cfg); err != nil {
			slog.Error("failed to load config", "path", opts.configPath, "error", err)
			return 1
		}
	}

	// 结果占用标准输出，日志未配置文件时写到标准错误。
	var logger *logging.Logger
	if cfg.Log.File == "" {
		logger = logging.NewWithWriter(cfg.Log, os.Stderr)
		logging.SetDefault(logger)
	} else {
		logger = logging.InitLogger(cfg.Log)
	}

	shutdownTracer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		logger.Error("failed to init tracer", "error", err)
		return 1
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	m := metrics.NewMetrics(cfg.Log.Service)
	m.RegisterBuildInfo(cfg.Log.Service, version)
	// -serve 时指标挂在 API 端口上
	if cfg.Metrics.Enabled && !opts.serve {
		stopMetrics := m.ExposeHttp(cfg.Metrics.Port, cfg.Metrics.Path)
		defer stopMetrics()
	}

	svcOpts := []pricing.Option{pricing.WithMetrics(m), pricing.WithLogger(logger)}
	if opts.marketPath != "" {
		provider, err := loadMarketFile(opts.marketPath)
		if err != nil {
			logger.Error("failed to load market data", "path", opts.marketPath, "error", err)
			return 1
		}
		bc, err := cache.NewBigCache(cfg.Cache.LifeWindow, cfg.Cache.HardMaxCacheSize, m)
		if err != nil {
			logger.Error("failed to init market data cache", "error", err)
			return 1
		}
		defer bc.Close()
		guarded := pricing.NewGuardedProvider(provider, "market-data", cfg.Breaker, m)
		svcOpts = append(svcOpts, pricing.WithMarketData(pricing.NewCachedProvider(guarded, bc)))
	}

	svc := pricing.NewService(cfg, svcOpts...)
	defer svc.Close()
	config.RegisterReloadHook(func(c *config.Config) { svc.UpdateEngine(c.Engine) })

	if opts.serve {
		if err := serve(ctx, cfg, svc, m, logger); err != nil {
			logger.Error("http server failed", "error", err)
			return 1
		}
		return 0
	}

	result, err := execute(ctx, svc, opts, pricing.LimitsFromConfig(cfg))
	if err != nil {
		logger.ErrorContext(ctx, "pricing failed", "method", opts.method, "error", err)
		_ = writeJSON(stdout, errorBody(err))
		return 1
	}
	if err := writeJSON(stdout, result); err != nil {
		logger.Error("failed to write result", "error", err)
		return 1
	}
	return 0
}

func execute(ctx context.Context, svc *pricing.Service, opts *options, lim pricing.Limits) (any, error) {
	method := strings.ToLower(opts.method)
	if method == "market" {
		ot, err := types.ParseOptionType(opts.optionType)
		if err != nil {
			return nil, err
		}
		return svc.PriceFromMarket(ctx, pricing.MarketRequest{
			Symbol:           opts.symbol,
			OptionType:       ot,
			Strike:           opts.strike,
			DaysToExpiration: opts.days,
			UseImpliedVol:    opts.useIV,
		})
	}

	data, err := opts.requestData()
	if err != nil {
		return nil, err
	}
	if method == "portfolio" {
		positions, err := pricing.ParsePortfolio(data, nil)
		if err != nil {
			return nil, err
		}
		return svc.AnalyzePortfolio(ctx, positions)
	}

	c, err := pricing.ParseContract(data, nil)
	if err != nil {
		return nil, err
	}
	mc, err := pricing.ParseMonteCarlo(data, lim)
	if err != nil {
		return nil, err
	}

	switch method {
	case "bs":
		return svc.PriceBlackScholes(ctx, c)
	case "mc":
		return svc.PriceMonteCarlo(ctx, c, mc)
	case "greeks":
		gm, err := pricing.ParseGreeksMethod(opts.greeks)
		if err != nil {
			return nil, err
		}
		return svc.Greeks(ctx, c, gm)
	case "compare":
		return svc.Compare(ctx, c, mc.Simulations)
	case "all":
		return svc.Evaluate(ctx, c, mc)
	case "sweep":
		param, values, err := pricing.ParseSweep(opts.sweep, lim.MaxSweepPoints)
		if err != nil {
			return nil, err
		}
		req := pricing.SweepRequest{Parameter: param, Values: values}
		if _, ok := data["num_simulations"]; ok {
			req.MonteCarlo = &mc
		}
		return svc.Sweep(ctx, c, req)
	}
	return nil, xerrors.ErrInvalidInput.WithDetail("unknown method %q", opts.method)
}

func serve(ctx context.Context, cfg *config.Config, svc *pricing.Service, m *metrics.Metrics, logger *logging.Logger) error {
	ids, err := idgen.New(cfg.IDGen)
	if err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Deps{
		Config:  cfg,
		Service: svc,
		Metrics: m,
		IDs:     ids,
		Logger:  logger.Logger,
		Version: version,
	})
	return server.NewGinServer(router, cfg.Server, logger.Logger).Start(ctx)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func errorBody(err error) map[string]any {
	body := map[string]any{"error": err.Error()}
	if xe, ok := xerrors.FromError(err); ok {
		body["code"] = xe.Code
		body["type"] = xe.Type.String()
	}
	return body
}
