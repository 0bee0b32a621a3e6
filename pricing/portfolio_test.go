package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/wyfcoding/optionpricer/xerrors"
)

func TestAnalyzePortfolio(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	call := atmContract(t, "call")
	put := atmContract(t, "put")

	t.Run("long straddle", func(t *testing.T) {
		r, err := s.AnalyzePortfolio(ctx, []Position{{Contract: call, Quantity: 1}, {Contract: put, Quantity: 1}})
		if err != nil {
			t.Fatal(err)
		}
		// 10.4506 + 5.5735
		if r.Summary.TotalValue != 16.02 {
			t.Errorf("total value = %v", r.Summary.TotalValue)
		}
		// call delta 0.6368 + put delta -0.3632
		if r.Summary.NetDelta != 0.2737 {
			t.Errorf("net delta = %v", r.Summary.NetDelta)
		}
		if r.Summary.NetGamma != 0.037524 {
			t.Errorf("net gamma = %v", r.Summary.NetGamma)
		}
		if r.Summary.NetVega != 0.7505 {
			t.Errorf("net vega = %v", r.Summary.NetVega)
		}
		if len(r.Positions) != 2 || r.Positions[1].Quote.Option.OptionType != put.OptionType() {
			t.Errorf("positions out of order: %+v", r.Positions)
		}
		if r.Hedge.Action != HedgeNone {
			t.Errorf("hedge = %+v", r.Hedge)
		}
	})

	t.Run("long calls", func(t *testing.T) {
		r, err := s.AnalyzePortfolio(ctx, []Position{{Contract: call, Quantity: 10}})
		if err != nil {
			t.Fatal(err)
		}
		if r.Summary.NetDelta != 6.3683 || r.Risk.DeltaEquivalentShares != 6.37 {
			t.Errorf("summary = %+v, risk = %+v", r.Summary, r.Risk)
		}
		if r.Hedge.Action != HedgeSell || r.Hedge.Shares != 6 {
			t.Errorf("hedge = %+v, want sell 6", r.Hedge)
		}
		if r.Risk.DailyThetaDecay != 0.18 || r.Risk.MonthlyThetaDecay != 5.27 {
			t.Errorf("theta decay = %+v", r.Risk)
		}
	})

	t.Run("short puts", func(t *testing.T) {
		r, err := s.AnalyzePortfolio(ctx, []Position{{Contract: put, Quantity: -20}})
		if err != nil {
			t.Fatal(err)
		}
		// -20 × -0.3632 = +7.26，应卖出 7 股
		if r.Hedge.Action != HedgeSell || r.Hedge.Shares != 7 {
			t.Errorf("hedge = %+v", r.Hedge)
		}
		if r.Summary.TotalValue != -111.47 {
			t.Errorf("total value = %v", r.Summary.TotalValue)
		}
	})

	t.Run("errors", func(t *testing.T) {
		if _, err := s.AnalyzePortfolio(ctx, nil); !errors.Is(err, xerrors.ErrEmptyData) {
			t.Errorf("err = %v", err)
		}
		_, err := s.AnalyzePortfolio(ctx, []Position{{Contract: call, Quantity: 1}, {Contract: put.WithoutVolatility(), Quantity: 1}})
		if !errors.Is(err, xerrors.ErrMissingVolatility) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestDeltaHedge(t *testing.T) {
	tests := []struct {
		netDelta float64
		action   string
		shares   float64
	}{
		{-250.4, HedgeBuy, 250},
		{99.6, HedgeSell, 100},
		{0.3, HedgeNone, 0},
		{-0.49, HedgeNone, 0},
		{-0.5, HedgeBuy, 1},
	}
	for _, tt := range tests {
		h := deltaHedge(tt.netDelta)
		if h.Action != tt.action || h.Shares != tt.shares {
			t.Errorf("deltaHedge(%v) = %+v, want %s %v", tt.netDelta, h, tt.action, tt.shares)
		}
	}
}
