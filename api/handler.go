// Package api 定价服务的 HTTP 接口。请求体为 JSON 对象，字段与命令行 -request 文件一致。
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optionpricer/cast"
	"github.com/wyfcoding/optionpricer/pricing"
	"github.com/wyfcoding/optionpricer/response"
	"github.com/wyfcoding/optionpricer/xerrors"
)

// Handler 把 HTTP 请求转给 pricing.Service。
type Handler struct {
	svc     *pricing.Service
	logger  *slog.Logger
	version string
	limits  pricing.Limits
}

// NewHandler logger 为 nil 时使用 slog.Default()，limits 约束请求中的路径数、步数与扫描点数。
func NewHandler(svc *pricing.Service, logger *slog.Logger, version string, limits pricing.Limits) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger, version: version, limits: limits}
}

// Register 挂载全部路由。
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/", h.index)

	g := r.Group("/api")
	g.GET("/health", h.health)
	g.POST("/price/black-scholes", h.blackScholes)
	g.POST("/price/monte-carlo", h.monteCarlo)
	g.POST("/greeks", h.greeks)
	g.POST("/compare", h.compare)
	g.POST("/evaluate", h.evaluate)
	g.POST("/portfolio/analyze", h.portfolio)
	g.POST("/sweep", h.sweep)
	g.POST("/market/price", h.marketPrice)
}

func (h *Handler) index(c *gin.Context) {
	response.Success(c, gin.H{
		"name":    "option pricer",
		"version": h.version,
		"endpoints": gin.H{
			"black_scholes": "POST /api/price/black-scholes",
			"monte_carlo":   "POST /api/price/monte-carlo",
			"greeks":        "POST /api/greeks",
			"compare":       "POST /api/compare",
			"evaluate":      "POST /api/evaluate",
			"portfolio":     "POST /api/portfolio/analyze",
			"sweep":         "POST /api/sweep",
			"market":        "POST /api/market/price",
			"health":        "GET /api/health",
		},
	})
}

func (h *Handler) health(c *gin.Context) {
	response.Success(c, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
	})
}

// bind 把请求体解码为无类型对象，交给 pricing.Parse* 做字段级校验。
func bind(c *gin.Context) (map[string]any, error) {
	data := map[string]any{}
	if err := c.ShouldBindJSON(&data); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, err
		}
		return nil, xerrors.ErrInvalidInput.WithDetail("request body: %v", err)
	}
	return data, nil
}

// reply 成功时写 data；失败时客户端错误记 warn，其余记 error。
func (h *Handler) reply(c *gin.Context, data any, err error) {
	if err == nil {
		response.Success(c, data)
		return
	}
	_ = c.Error(err)
	if xe, ok := xerrors.FromError(err); ok && xe.HTTPStatus() < http.StatusInternalServerError {
		h.logger.WarnContext(c.Request.Context(), "pricing request rejected", "path", c.FullPath(), "error", err)
	} else {
		h.logger.ErrorContext(c.Request.Context(), "pricing request failed", "path", c.FullPath(), "error", err)
	}
	response.Error(c, err)
}

func (h *Handler) blackScholes(c *gin.Context) {
	data, err := bind(c)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	ct, err := pricing.ParseContract(data, nil)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	q, err := h.svc.PriceBlackScholes(c.Request.Context(), ct)
	h.reply(c, q, err)
}

func (h *Handler) monteCarlo(c *gin.Context) {
	data, err := bind(c)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	ct, err := pricing.ParseContract(data, nil)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	mc, err := pricing.ParseMonteCarlo(data, h.limits)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	q, err := h.svc.PriceMonteCarlo(c.Request.Context(), ct, mc)
	h.reply(c, q, err)
}

func (h *Handler) greeks(c *gin.Context) {
	data, err := bind(c)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	ct, err := pricing.ParseContract(data, nil)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	name, err := cast.StringOr(data, "greeks_method", string(pricing.GreeksAnalytical))
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	method, err := pricing.ParseGreeksMethod(name)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	q, err := h.svc.Greeks(c.Request.Context(), ct, method)
	h.reply(c, q, err)
}

func (h *Handler) compare(c *gin.Context) {
	data, err := bind(c)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	ct, err := pricing.ParseContract(data, nil)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	sims, _, err := cast.Int(data, "num_simulations")
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	if err := h.limits.CheckSimulations(sims, 0); err != nil {
		h.reply(c, nil, err)
		return
	}
	r, err := h.svc.Compare(c.Request.Context(), ct, sims)
	h.reply(c, r, err)
}

func (h *Handler) evaluate(c *gin.Context) {
	data, err := bind(c)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	ct, err := pricing.ParseContract(data, nil)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	mc, err := pricing.ParseMonteCarlo(data, h.limits)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	ev, err := h.svc.Evaluate(c.Request.Context(), ct, mc)
	h.reply(c, ev, err)
}

func (h *Handler) portfolio(c *gin.Context) {
	data, err := bind(c)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	positions, err := pricing.ParsePortfolio(data, nil)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	r, err := h.svc.AnalyzePortfolio(c.Request.Context(), positions)
	h.reply(c, r, err)
}

// sweep 请求体为合约字段加 "sweep": "spot:80:120:9"；带 num_simulations 时按蒙特卡洛定价。
func (h *Handler) sweep(c *gin.Context) {
	data, err := bind(c)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	ct, err := pricing.ParseContract(data, nil)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	spec, err := cast.StringOr(data, "sweep", "")
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	param, values, err := pricing.ParseSweep(spec, h.limits.MaxSweepPoints)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	req := pricing.SweepRequest{Parameter: param, Values: values}
	if cast.Has(data, "num_simulations") {
		mc, err := pricing.ParseMonteCarlo(data, h.limits)
		if err != nil {
			h.reply(c, nil, err)
			return
		}
		req.MonteCarlo = &mc
	}
	r, err := h.svc.Sweep(c.Request.Context(), ct, req)
	h.reply(c, r, err)
}

func (h *Handler) marketPrice(c *gin.Context) {
	data, err := bind(c)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	req, err := pricing.ParseMarketRequest(data)
	if err != nil {
		h.reply(c, nil, err)
		return
	}
	q, err := h.svc.PriceFromMarket(c.Request.Context(), req)
	h.reply(c, q, err)
}
