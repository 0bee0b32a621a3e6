package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/wyfcoding/optionpricer/xerrors"
)

func TestSweepSpot(t *testing.T) {
	s, _ := newTestService(t)
	base := atmContract(t, "call")

	r, err := s.Sweep(context.Background(), base, SweepRequest{
		Parameter: SweepSpot,
		Values:    []float64{80, 90, 100, 110, 120, -1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Method != "black_scholes" || len(r.Points) != 6 {
		t.Fatalf("report = %+v", r)
	}
	if r.Points[2].Price != 10.4506 {
		t.Errorf("atm point = %v, want 10.4506", r.Points[2].Price)
	}
	for i := 1; i < 5; i++ {
		if !(r.Points[i].Price > r.Points[i-1].Price) {
			t.Errorf("call price not increasing in spot: %v", r.Points)
		}
		if !(r.Points[i].Greeks.Delta > r.Points[i-1].Greeks.Delta) {
			t.Errorf("call delta not increasing in spot at %v", r.Points[i].Value)
		}
	}
	if r.Failed != 1 || r.Points[5].Error == "" {
		t.Errorf("negative spot should fail: %+v", r.Points[5])
	}
	if base.StockPrice() != 100 {
		t.Error("base contract was modified")
	}
}

func TestSweepVolatilityMonteCarlo(t *testing.T) {
	s, _ := newTestService(t)
	r, err := s.Sweep(context.Background(), atmContract(t, "put"), SweepRequest{
		Parameter:  SweepVolatility,
		Values:     []float64{0.1, 0.3, 0.5},
		MonteCarlo: &MonteCarloRequest{Simulations: 5000, Steps: 10, Seed: seed(3)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Method != "monte_carlo" || r.Failed != 0 {
		t.Fatalf("report = %+v", r)
	}
	if !(r.Points[0].Price < r.Points[1].Price && r.Points[1].Price < r.Points[2].Price) {
		t.Errorf("put price not increasing in vol: %+v", r.Points)
	}
	if r.Points[0].Greeks != nil {
		t.Error("monte carlo points carry no greeks")
	}
}

func TestSweepRateAndErrors(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	c := atmContract(t, "call")

	r, err := s.Sweep(ctx, c, SweepRequest{Parameter: SweepRate, Values: []float64{0, 0.05, 0.1}})
	if err != nil {
		t.Fatal(err)
	}
	if !(r.Points[0].Price < r.Points[1].Price && r.Points[1].Price < r.Points[2].Price) {
		t.Errorf("call price not increasing in rate: %+v", r.Points)
	}

	if _, err := s.Sweep(ctx, c, SweepRequest{Parameter: SweepRate}); !errors.Is(err, xerrors.ErrEmptyData) {
		t.Errorf("err = %v", err)
	}
	if _, err := s.Sweep(ctx, c, SweepRequest{Parameter: "dividend", Values: []float64{1}}); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.Sweep(canceled, c, SweepRequest{Parameter: SweepSpot, Values: []float64{90, 100}}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestLinspace(t *testing.T) {
	got, err := Linspace(0.1, 0.5, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.1, 0.2, 0.3, 0.4, 0.5}
	for i := range want {
		if !almostEqual(got[i], want[i], 1e-12) {
			t.Fatalf("Linspace = %v", got)
		}
	}
	if one, _ := Linspace(3, 9, 1); len(one) != 1 || one[0] != 3 {
		t.Errorf("single point = %v", one)
	}
	if _, err := Linspace(0, 1, 0); err == nil {
		t.Error("expected error for zero points")
	}
}
