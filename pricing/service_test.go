package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wyfcoding/optionpricer/algorithm/finance"
	"github.com/wyfcoding/optionpricer/algorithm/sim"
	"github.com/wyfcoding/optionpricer/algorithm/types"
	"github.com/wyfcoding/optionpricer/config"
	"github.com/wyfcoding/optionpricer/logging"
	"github.com/wyfcoding/optionpricer/metrics"
	"github.com/wyfcoding/optionpricer/xerrors"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics("test")
	cfg := config.Default()
	cfg.Pool.Size = 4
	logger := logging.NewWithWriter(logging.Config{Service: "test", Module: "pricing", Level: "error"}, io.Discard)
	s := NewService(cfg, append([]Option{WithMetrics(m), WithLogger(logger), WithClock(fixedClock)}, opts...)...)
	t.Cleanup(s.Close)
	return s, m
}

func atmContract(t *testing.T, optionType string) finance.Contract {
	t.Helper()
	data := atmRequest()
	data["option_type"] = optionType
	c, err := ParseContract(data, fixedClock)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func seed(v uint64) *uint64 { return &v }

func TestPriceBlackScholes(t *testing.T) {
	s, m := newTestService(t)
	ctx := context.Background()

	q, err := s.PriceBlackScholes(ctx, atmContract(t, "call"))
	if err != nil {
		t.Fatal(err)
	}
	if q.Price != 10.4506 {
		t.Errorf("call price = %v, want 10.4506", q.Price)
	}
	if q.TimeValue != q.Price {
		t.Errorf("ATM time value = %v, want the full price", q.TimeValue)
	}
	if q.Option.DaysToExpiration != 365 || q.Option.IsInTheMoney {
		t.Errorf("option view = %+v", q.Option)
	}

	put, err := s.PriceBlackScholes(ctx, atmContract(t, "put"))
	if err != nil {
		t.Fatal(err)
	}
	if put.Price != 5.5735 {
		t.Errorf("put price = %v, want 5.5735", put.Price)
	}

	noVol := atmContract(t, "call").WithoutVolatility()
	if _, err := s.PriceBlackScholes(ctx, noVol); !errors.Is(err, xerrors.ErrMissingVolatility) {
		t.Errorf("err = %v, want ErrMissingVolatility", err)
	}

	if got := testutil.ToFloat64(m.PricingRequestsTotal.WithLabelValues("black_scholes", "ok")); got != 2 {
		t.Errorf("ok counter = %v", got)
	}
	if got := testutil.ToFloat64(m.PricingRequestsTotal.WithLabelValues("black_scholes", "error")); got != 1 {
		t.Errorf("error counter = %v", got)
	}
}

func TestPriceMonteCarlo(t *testing.T) {
	s, m := newTestService(t)
	ctx := context.Background()
	c := atmContract(t, "call")

	q, err := s.PriceMonteCarlo(ctx, c, MonteCarloRequest{Simulations: 20000, Steps: 50, Seed: seed(7)})
	if err != nil {
		t.Fatal(err)
	}
	if q.Style != types.StyleEuropean || q.MonteCarlo == nil {
		t.Fatalf("quote = %+v", q)
	}
	if q.MonteCarlo.NumSimulations != 20000 {
		t.Errorf("simulations = %d", q.MonteCarlo.NumSimulations)
	}
	if !almostEqual(q.Price, 10.4506, 4*q.MonteCarlo.StandardError) {
		t.Errorf("mc price %v too far from 10.4506 (se %v)", q.Price, q.MonteCarlo.StandardError)
	}
	lo, hi := q.MonteCarlo.ConfidenceInterval95[0], q.MonteCarlo.ConfidenceInterval95[1]
	if !(lo < q.Price && q.Price < hi) {
		t.Errorf("price %v outside CI [%v, %v]", q.Price, lo, hi)
	}

	again, err := s.PriceMonteCarlo(ctx, c, MonteCarloRequest{Simulations: 20000, Steps: 50, Seed: seed(7)})
	if err != nil {
		t.Fatal(err)
	}
	if again.Price != q.Price {
		t.Errorf("same seed gave %v then %v", q.Price, again.Price)
	}

	asian, err := s.PriceMonteCarlo(ctx, c, MonteCarloRequest{Payoff: sim.Asian(), Simulations: 20000, Steps: 50, Seed: seed(7)})
	if err != nil {
		t.Fatal(err)
	}
	if asian.Style != types.StyleAsian || !(asian.Price < q.Price) {
		t.Errorf("asian %v should be cheaper than european %v", asian.Price, q.Price)
	}

	if got := testutil.ToFloat64(m.MonteCarloPathsTotal.WithLabelValues("EUROPEAN")); got != 40000 {
		t.Errorf("european paths = %v", got)
	}
	if _, err := s.PriceMonteCarlo(ctx, c, MonteCarloRequest{Simulations: -1}); !errors.Is(err, xerrors.ErrInvalidSimulation) {
		t.Errorf("err = %v", err)
	}
}

func TestGreeksMethods(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	c := atmContract(t, "call")

	q, err := s.Greeks(ctx, c, GreeksAnalytical)
	if err != nil {
		t.Fatal(err)
	}
	want := finance.GreeksResult{Delta: 0.636831, Gamma: 0.018762, Vega: 0.375240, Theta: -0.017573, Rho: 0.532325}
	if *q.Greeks != want {
		t.Errorf("analytical greeks = %+v, want %+v", *q.Greeks, want)
	}
	if q.Interpretation == nil || q.Interpretation.Delta != "If stock moves $1, option changes by $0.64" {
		t.Errorf("interpretation = %+v", q.Interpretation)
	}

	num, err := s.Greeks(ctx, c, GreeksNumerical)
	if err != nil {
		t.Fatal(err)
	}
	checks := []struct {
		name      string
		got, want float64
		tol       float64
	}{
		{"delta", num.Greeks.Delta, want.Delta, 1e-4},
		{"gamma", num.Greeks.Gamma, want.Gamma, 1e-4},
		{"vega", num.Greeks.Vega, want.Vega, 1e-3},
		{"theta", num.Greeks.Theta, want.Theta, 1e-3},
		{"rho", num.Greeks.Rho, want.Rho, 1e-3},
	}
	for _, ck := range checks {
		if !almostEqual(ck.got, ck.want, ck.tol) {
			t.Errorf("numerical %s = %v, want %v ± %v", ck.name, ck.got, ck.want, ck.tol)
		}
	}

	if _, err := s.Greeks(ctx, c, "bogus"); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}

func TestGreeksMonteCarlo(t *testing.T) {
	s, _ := newTestService(t)
	eng := config.Default().Engine
	eng.MonteCarlo.Simulations = 20000
	eng.MonteCarlo.Steps = 20
	s.UpdateEngine(eng)

	q, err := s.Greeks(context.Background(), atmContract(t, "call"), GreeksMonteCarlo)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(q.Greeks.Delta, 0.636831, 0.05) {
		t.Errorf("mc delta = %v", q.Greeks.Delta)
	}
	if !almostEqual(q.Greeks.Vega, 0.375240, 0.05) {
		t.Errorf("mc vega = %v", q.Greeks.Vega)
	}
}

func TestCompare(t *testing.T) {
	s, _ := newTestService(t)
	r, err := s.Compare(context.Background(), atmContract(t, "call"), 50000)
	if err != nil {
		t.Fatal(err)
	}
	if r.BlackScholesPrice != 10.4506 {
		t.Errorf("bs = %v", r.BlackScholesPrice)
	}
	if r.RelativeErrorPct == nil || *r.RelativeErrorPct > 2 {
		t.Errorf("relative error = %v", r.RelativeErrorPct)
	}
	if r.Verdict != sim.VerdictPass && r.Verdict != sim.VerdictCheck {
		t.Errorf("verdict = %v", r.Verdict)
	}
	if r.NumSimulations != 50000 {
		t.Errorf("simulations = %d", r.NumSimulations)
	}
	if _, err := json.Marshal(r); err != nil {
		t.Errorf("marshal: %v", err)
	}
}

func TestComparisonReportUndefined(t *testing.T) {
	c := atmContract(t, "call")
	r := newComparisonReport(c, &sim.Comparison{
		Verdict:       sim.VerdictUndefined,
		RelativeError: math.NaN(),
	})
	if r.RelativeErrorPct != nil {
		t.Errorf("relative error = %v, want nil", *r.RelativeErrorPct)
	}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out["relative_error_pct"] != nil || out["validation"] != "UNDEFINED" {
		t.Errorf("json = %s", b)
	}
}

func TestEvaluate(t *testing.T) {
	s, _ := newTestService(t)
	ev, err := s.Evaluate(context.Background(), atmContract(t, "put"),
		MonteCarloRequest{Simulations: 10000, Steps: 20, Seed: seed(1)})
	if err != nil {
		t.Fatal(err)
	}
	if ev.BlackScholes.Price != 5.5735 || ev.BlackScholes.Greeks == nil {
		t.Errorf("black-scholes = %+v", ev.BlackScholes)
	}
	if ev.MonteCarlo.MonteCarlo == nil || ev.Comparison == nil {
		t.Errorf("evaluation incomplete: %+v", ev)
	}

	noVol := atmContract(t, "put").WithoutVolatility()
	if _, err := s.Evaluate(context.Background(), noVol, MonteCarloRequest{}); !errors.Is(err, xerrors.ErrMissingVolatility) {
		t.Errorf("err = %v", err)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		v      float64
		places int32
		want   float64
	}{
		{10.450583572185565, 4, 10.4506},
		{-0.0175727, 6, -0.017573},
		{2.5, 0, 3},
		{-2.5, 0, -3},
	}
	for _, tt := range tests {
		if got := round(tt.v, tt.places); got != tt.want {
			t.Errorf("round(%v, %d) = %v, want %v", tt.v, tt.places, got, tt.want)
		}
	}
	if !math.IsNaN(round(math.NaN(), 4)) || !math.IsInf(round(math.Inf(1), 4), 1) {
		t.Error("non-finite values must pass through")
	}
}
