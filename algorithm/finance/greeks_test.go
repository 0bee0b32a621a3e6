package finance

import (
	"errors"
	"testing"
	"time"

	"github.com/wyfcoding/optionpricer/algorithm/types"
	"github.com/wyfcoding/optionpricer/xerrors"
)

func TestAnalyticalGreeksKnownValues(t *testing.T) {
	gc := NewGreeksCalculator()

	call, err := gc.Analytical(mustContract(t, atmSpec(types.OptionTypeCall)))
	if err != nil {
		t.Fatal(err)
	}
	want := GreeksResult{Delta: 0.636831, Gamma: 0.018762, Vega: 0.375240, Theta: -0.017573, Rho: 0.532325}
	checks := []struct {
		name      string
		got, want float64
	}{
		{"delta", call.Delta, want.Delta},
		{"gamma", call.Gamma, want.Gamma},
		{"vega", call.Vega, want.Vega},
		{"theta", call.Theta, want.Theta},
		{"rho", call.Rho, want.Rho},
	}
	for _, c := range checks {
		if !almostEqual(c.got, c.want, 1e-5) {
			t.Errorf("call %s = %v, want %v", c.name, c.got, c.want)
		}
	}

	put, err := gc.Analytical(mustContract(t, atmSpec(types.OptionTypePut)))
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(put.Delta, want.Delta-1, 1e-9) {
		t.Errorf("put delta = %v", put.Delta)
	}
	if put.Rho >= 0 {
		t.Errorf("put rho = %v, want negative", put.Rho)
	}
}

func TestGammaVegaSymmetry(t *testing.T) {
	gc := NewGreeksCalculator()
	for _, k := range []float64{80, 100, 125} {
		cs, ps := atmSpec(types.OptionTypeCall), atmSpec(types.OptionTypePut)
		cs.Strike, ps.Strike = k, k
		call, err := gc.Analytical(mustContract(t, cs))
		if err != nil {
			t.Fatal(err)
		}
		put, err := gc.Analytical(mustContract(t, ps))
		if err != nil {
			t.Fatal(err)
		}
		if call.Gamma != put.Gamma {
			t.Errorf("K=%v gamma call %v != put %v", k, call.Gamma, put.Gamma)
		}
		if call.Vega != put.Vega {
			t.Errorf("K=%v vega call %v != put %v", k, call.Vega, put.Vega)
		}
	}
}

func TestExpiredGreeks(t *testing.T) {
	tests := []struct {
		typ       types.OptionType
		spot      float64
		wantDelta float64
	}{
		{types.OptionTypeCall, 110, 1},
		{types.OptionTypeCall, 90, 0},
		{types.OptionTypePut, 90, -1},
		{types.OptionTypePut, 110, 0},
		{types.OptionTypeCall, 100, 0},
	}
	for _, tt := range tests {
		now := testNow
		spec := atmSpec(tt.typ)
		spec.StockPrice = tt.spot
		c, err := NewContract(spec, WithClock(func() time.Time { return now }))
		if err != nil {
			t.Fatal(err)
		}
		now = spec.Expiration.Add(time.Minute)

		g, err := NewGreeksCalculator().Analytical(c)
		if err != nil {
			t.Fatal(err)
		}
		if want := (GreeksResult{Delta: tt.wantDelta}); g != want {
			t.Errorf("%s S=%v: got %+v, want %+v", tt.typ, tt.spot, g, want)
		}
	}
}

func TestAnalyticalRequiresVolatility(t *testing.T) {
	spec := atmSpec(types.OptionTypeCall)
	spec.Volatility = nil
	_, err := NewGreeksCalculator().Analytical(mustContract(t, spec))
	if !errors.Is(err, xerrors.ErrMissingVolatility) {
		t.Fatalf("err = %v", err)
	}
}

func TestNumericalVegaPerVolPoint(t *testing.T) {
	bsc := NewBlackScholesCalculator()
	c := mustContract(t, atmSpec(types.OptionTypeCall))
	b := DefaultBumps()
	vol, _ := c.Volatility()

	up, err := c.WithVolatility(vol + b.Vol)
	if err != nil {
		t.Fatal(err)
	}
	down, err := c.WithVolatility(vol - b.Vol)
	if err != nil {
		t.Fatal(err)
	}
	pu, _ := bsc.Price(up)
	pd, _ := bsc.Price(down)
	raw := (pu - pd) / (2 * b.Vol)

	num, err := NewGreeksCalculator().Numerical(bsc, c, b)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(num.Vega*100, raw, 1e-9) {
		t.Errorf("vega*100 = %v, raw dV/dvol = %v", num.Vega*100, raw)
	}
}

func TestNumericalMatchesAnalytical(t *testing.T) {
	gc := NewGreeksCalculator()
	bsc := NewBlackScholesCalculator()
	for _, typ := range []types.OptionType{types.OptionTypeCall, types.OptionTypePut} {
		c := mustContract(t, atmSpec(typ))
		ana, err := gc.Analytical(c)
		if err != nil {
			t.Fatal(err)
		}
		num, err := gc.Numerical(bsc, c, DefaultBumps())
		if err != nil {
			t.Fatal(err)
		}
		checks := []struct {
			name           string
			got, want, tol float64
		}{
			{"delta", num.Delta, ana.Delta, 1e-4},
			{"gamma", num.Gamma, ana.Gamma, 1e-3},
			{"vega", num.Vega, ana.Vega, 1e-3},
			{"theta", num.Theta, ana.Theta, 5e-4},
			{"rho", num.Rho, ana.Rho, 1e-3},
		}
		for _, ch := range checks {
			if !almostEqual(ch.got, ch.want, ch.tol) {
				t.Errorf("%s %s numerical %v vs analytical %v", typ, ch.name, ch.got, ch.want)
			}
		}
	}
}

func TestNumericalDoesNotMutate(t *testing.T) {
	c := mustContract(t, atmSpec(types.OptionTypeCall))
	before := c
	seen := 0
	p := PricerFunc(func(x Contract) (float64, error) {
		seen++
		return x.StockPrice(), nil
	})
	if _, err := NewGreeksCalculator().Numerical(p, c, DefaultBumps()); err != nil {
		t.Fatal(err)
	}
	if c.StockPrice() != before.StockPrice() || c.RiskFreeRate() != before.RiskFreeRate() || !c.Expiration().Equal(before.Expiration()) {
		t.Fatalf("contract mutated: %v", c)
	}
	if v, _ := c.Volatility(); v != 0.2 {
		t.Fatalf("volatility mutated: %v", v)
	}
	// base + 2 spot + 2 vol + 1 theta + 2 rate
	if seen != 8 {
		t.Errorf("pricer called %d times, want 8", seen)
	}
}

func TestNumericalThetaNearExpiry(t *testing.T) {
	spec := atmSpec(types.OptionTypeCall)
	spec.Expiration = testNow.Add(12 * time.Hour)
	c := mustContract(t, spec)

	g, err := NewGreeksCalculator().Numerical(NewBlackScholesCalculator(), c, DefaultBumps())
	if err != nil {
		t.Fatal(err)
	}
	if g.Theta != 0 {
		t.Errorf("theta = %v, want 0 when the bump crosses expiration", g.Theta)
	}
}

func TestNumericalWithoutVolatility(t *testing.T) {
	spec := atmSpec(types.OptionTypePut)
	spec.Volatility = nil
	c := mustContract(t, spec)
	p := PricerFunc(func(x Contract) (float64, error) { return x.IntrinsicValue(), nil })

	g, err := NewGreeksCalculator().Numerical(p, c, DefaultBumps())
	if err != nil {
		t.Fatal(err)
	}
	if g.Vega != 0 {
		t.Errorf("vega = %v, want 0 without volatility", g.Vega)
	}
}

func TestNumericalRhoFloorAtZeroRate(t *testing.T) {
	spec := atmSpec(types.OptionTypeCall)
	spec.RiskFreeRate = 0
	c := mustContract(t, spec)
	var minRate = 1.0
	p := PricerFunc(func(x Contract) (float64, error) {
		minRate = min(minRate, x.RiskFreeRate())
		return NewBlackScholesCalculator().Price(x)
	})
	if _, err := NewGreeksCalculator().Numerical(p, c, DefaultBumps()); err != nil {
		t.Fatal(err)
	}
	if minRate < 0 {
		t.Errorf("rate bumped negative: %v", minRate)
	}
}

func TestNumericalPropagatesPricerError(t *testing.T) {
	c := mustContract(t, atmSpec(types.OptionTypeCall))
	boom := errors.New("boom")
	p := PricerFunc(func(Contract) (float64, error) { return 0, boom })
	if _, err := NewGreeksCalculator().Numerical(p, c, DefaultBumps()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	spec := atmSpec(types.OptionTypeCall)
	spec.Volatility = nil
	_, err := NewGreeksCalculator().Numerical(NewBlackScholesCalculator(), mustContract(t, spec), DefaultBumps())
	if !errors.Is(err, xerrors.ErrMissingVolatility) {
		t.Fatalf("err = %v, want ErrMissingVolatility", err)
	}

	if _, err := NewGreeksCalculator().Numerical(p, c, Bumps{}); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Fatalf("zero bumps err = %v", err)
	}
}
