package pricing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wyfcoding/optionpricer/algorithm/finance"
	"github.com/wyfcoding/optionpricer/algorithm/sim"
	"github.com/wyfcoding/optionpricer/tracing"
	"github.com/wyfcoding/optionpricer/xerrors"
)

// SweepParameter 情景扫描中变化的参数。
type SweepParameter string

const (
	SweepSpot       SweepParameter = "spot"
	SweepVolatility SweepParameter = "vol"
	SweepRate       SweepParameter = "rate"
)

// ParseSweepParameter 接受 spot/stock_price、vol/volatility、rate/risk_free_rate。
func ParseSweepParameter(s string) (SweepParameter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spot", "stock_price":
		return SweepSpot, nil
	case "vol", "volatility":
		return SweepVolatility, nil
	case "rate", "risk_free_rate":
		return SweepRate, nil
	}
	return "", xerrors.ErrInvalidInput.WithDetail("unknown sweep parameter %q", s)
}

func (p SweepParameter) apply(c finance.Contract, v float64) (finance.Contract, error) {
	switch p {
	case SweepSpot:
		return c.WithStockPrice(v)
	case SweepVolatility:
		return c.WithVolatility(v)
	case SweepRate:
		return c.WithRiskFreeRate(v)
	}
	return finance.Contract{}, xerrors.ErrInvalidInput.WithDetail("unknown sweep parameter %q", p)
}

// Linspace 返回 [from, to] 上等间距的 n 个点，n=1 时只有 from。
func Linspace(from, to float64, n int) ([]float64, error) {
	if n <= 0 {
		return nil, xerrors.ErrInvalidInput.WithDetail("sweep needs at least one point, got %d", n)
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = from
		return out, nil
	}
	step := (to - from) / float64(n-1)
	for i := range out {
		out[i] = from + float64(i)*step
	}
	out[n-1] = to
	return out, nil
}

// SweepRequest 情景扫描请求。MonteCarlo 为空时用 Black-Scholes 定价并附带解析 Greeks。
type SweepRequest struct {
	MonteCarlo *MonteCarloRequest
	Parameter  SweepParameter
	Values     []float64
}

// SweepPoint 单个情景点的结果，失败时 Error 非空。
type SweepPoint struct {
	Greeks *finance.GreeksResult `json:"greeks,omitempty"`
	Error  string                `json:"error,omitempty"`
	Value  float64               `json:"value"`
	Price  float64               `json:"price"`
}

// SweepReport 扫描结果，Points 与 Values 一一对应。
type SweepReport struct {
	Parameter SweepParameter `json:"parameter"`
	Method    string         `json:"method"`
	Base      OptionView     `json:"base"`
	Points    []SweepPoint   `json:"points"`
	Failed    int            `json:"failed"`
}

// Sweep 在 worker 池中并发为每个情景点定价。每个点使用基准合约的独立副本；
// 单点失败只记录在该点上，ctx 取消或池已关闭时返回错误。
func (s *Service) Sweep(ctx context.Context, base finance.Contract, req SweepRequest) (report *SweepReport, err error) {
	ctx, finish := tracing.Start(ctx, "pricing.sweep")
	start := time.Now()
	defer func() {
		s.metrics.ObservePricing("sweep", err, time.Since(start))
		finish(err)
	}()

	if len(req.Values) == 0 {
		return nil, xerrors.ErrEmptyData.WithDetail("sweep has no values")
	}
	if _, err := ParseSweepParameter(string(req.Parameter)); err != nil {
		return nil, err
	}
	method := "black_scholes"
	if req.MonteCarlo != nil {
		method = "monte_carlo"
	}
	tracing.AddTag(ctx, "sweep.parameter", string(req.Parameter))
	tracing.AddTag(ctx, "sweep.points", len(req.Values))

	points := make([]SweepPoint, len(req.Values))
	var wg sync.WaitGroup
	for i, v := range req.Values {
		wg.Add(1)
		task := func(context.Context) {
			defer wg.Done()
			points[i] = s.sweepPoint(ctx, base, req, v)
		}
		if err := s.pool.Submit(ctx, task); err != nil {
			wg.Done()
			wg.Wait()
			return nil, err
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report = &SweepReport{
		Parameter: req.Parameter,
		Method:    method,
		Base:      NewOptionView(base),
		Points:    points,
	}
	for _, p := range points {
		if p.Error != "" {
			report.Failed++
		}
	}
	s.logger.InfoContext(ctx, "sweep finished",
		"parameter", req.Parameter, "points", len(points), "failed", report.Failed, "duration", time.Since(start))
	return report, nil
}

func (s *Service) sweepPoint(ctx context.Context, base finance.Contract, req SweepRequest, v float64) SweepPoint {
	pt := SweepPoint{Value: v}
	if err := ctx.Err(); err != nil {
		pt.Error = err.Error()
		return pt
	}
	c, err := req.Parameter.apply(base, v)
	if err != nil {
		pt.Error = err.Error()
		return pt
	}

	if req.MonteCarlo != nil {
		mc := *req.MonteCarlo
		if mc.Payoff.Style == "" {
			mc.Payoff = sim.European()
		}
		n, steps := s.simulationSize(mc)
		res, err := s.newEngine(mc.Seed).Price(c, mc.Payoff, n, steps)
		if err != nil {
			pt.Error = err.Error()
			return pt
		}
		s.metrics.ObserveSimulation(string(mc.Payoff.Style), res.NumSimulations, res.StandardError)
		pt.Price = round(res.Price, pricePlaces)
		return pt
	}

	price, err := s.bs.PriceOption(c)
	if err != nil {
		pt.Error = err.Error()
		return pt
	}
	g, err := s.greeks.Analytical(c)
	if err != nil {
		pt.Error = err.Error()
		return pt
	}
	pt.Price = round(price, pricePlaces)
	pt.Greeks = roundGreeks(g)
	return pt
}
