package finance

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/wyfcoding/optionpricer/algorithm/types"
	"github.com/wyfcoding/optionpricer/xerrors"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestBlackScholesKnownValues(t *testing.T) {
	bsc := NewBlackScholesCalculator()

	call, err := bsc.PriceOption(mustContract(t, atmSpec(types.OptionTypeCall)))
	if err != nil {
		t.Fatal(err)
	}
	put, err := bsc.PriceOption(mustContract(t, atmSpec(types.OptionTypePut)))
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(call, 10.4506, 1e-3) {
		t.Errorf("call = %v, want 10.4506", call)
	}
	if !almostEqual(put, 5.5735, 1e-3) {
		t.Errorf("put = %v, want 5.5735", put)
	}

	d1, d2, err := bsc.D1D2(100, 100, 1, 0.05, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(d1, 0.35, 1e-12) || !almostEqual(d2, 0.15, 1e-12) {
		t.Errorf("d1,d2 = %v,%v want 0.35,0.15", d1, d2)
	}
}

func TestPutCallParity(t *testing.T) {
	bsc := NewBlackScholesCalculator()
	cases := []struct{ s, k, t, r, v float64 }{
		{100, 100, 1, 0.05, 0.2},
		{50, 60, 0.25, 0.01, 0.45},
		{250, 200, 2, 0.08, 0.15},
		{10, 12, 30 / 365.0, 0, 0.9},
	}
	for _, c := range cases {
		call, err := bsc.CalculateCallPrice(c.s, c.k, c.t, c.r, c.v)
		if err != nil {
			t.Fatal(err)
		}
		put, err := bsc.CalculatePutPrice(c.s, c.k, c.t, c.r, c.v)
		if err != nil {
			t.Fatal(err)
		}
		lhs := call - put
		rhs := c.s - c.k*math.Exp(-c.r*c.t)
		if !almostEqual(lhs, rhs, 1e-2) {
			t.Errorf("%+v: call-put = %v, S-Ke^-rT = %v", c, lhs, rhs)
		}
	}
}

func TestThirtyDayScenario(t *testing.T) {
	spec := atmSpec(types.OptionTypeCall)
	spec.Expiration = testNow.Add(30 * 24 * time.Hour)
	price, err := NewBlackScholesCalculator().PriceOption(mustContract(t, spec))
	if err != nil {
		t.Fatal(err)
	}
	if price <= 2.0 || price >= 4.0 {
		t.Errorf("30-day ATM call = %v, want within (2, 4)", price)
	}
}

func TestD1D2Validation(t *testing.T) {
	bsc := NewBlackScholesCalculator()
	tests := []struct {
		name          string
		s, k, tt, vol float64
	}{
		{"zero time", 100, 100, 0, 0.2},
		{"negative time", 100, 100, -1, 0.2},
		{"zero vol", 100, 100, 1, 0},
		{"zero spot", 0, 100, 1, 0.2},
		{"zero strike", 100, 0, 1, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := bsc.D1D2(tt.s, tt.k, tt.tt, 0.05, tt.vol)
			if !errors.Is(err, xerrors.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			if _, err := bsc.CalculateCallPrice(tt.s, tt.k, tt.tt, 0.05, tt.vol); err == nil {
				t.Fatal("call price should fail")
			}
		})
	}
}

func TestPriceOptionErrors(t *testing.T) {
	bsc := NewBlackScholesCalculator()

	spec := atmSpec(types.OptionTypeCall)
	spec.Volatility = nil
	if _, err := bsc.PriceOption(mustContract(t, spec)); !errors.Is(err, xerrors.ErrMissingVolatility) {
		t.Errorf("missing vol err = %v", err)
	}

	now := testNow
	c, err := NewContract(atmSpec(types.OptionTypeCall), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}
	now = c.Expiration().Add(time.Hour)
	if _, err := bsc.PriceOption(c); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Errorf("expired contract err = %v", err)
	}
}

func TestImpliedVolatilityNotImplemented(t *testing.T) {
	c := mustContract(t, atmSpec(types.OptionTypeCall))
	_, err := NewBlackScholesCalculator().CalculateImpliedVolatility(c, 10)
	if !errors.Is(err, xerrors.ErrNotImplemented) {
		t.Fatalf("err = %v, want ErrNotImplemented", err)
	}
	if errors.Is(err, xerrors.ErrInvalidInput) {
		t.Fatal("not-implemented must be distinguishable from bad input")
	}
}

func TestZeroVolBoundary(t *testing.T) {
	bsc := NewBlackScholesCalculator()
	const s, r, tt, sigma = 100.0, 0.05, 1.0, 1e-6

	// 波动率趋零时价格趋于远期价格的贴现内在价值
	for _, k := range []float64{80, 90, 110, 120} {
		df := math.Exp(-r * tt)
		call, err := bsc.CalculateCallPrice(s, k, tt, r, sigma)
		if err != nil {
			t.Fatal(err)
		}
		put, err := bsc.CalculatePutPrice(s, k, tt, r, sigma)
		if err != nil {
			t.Fatal(err)
		}
		if want := max(s-k*df, 0); !almostEqual(call, want, 1e-6) {
			t.Errorf("K=%v call = %v, want %v", k, call, want)
		}
		if want := max(k*df-s, 0); !almostEqual(put, want, 1e-6) {
			t.Errorf("K=%v put = %v, want %v", k, put, want)
		}
	}
}

func TestCalculateCombined(t *testing.T) {
	c := mustContract(t, atmSpec(types.OptionTypeCall))
	res, err := NewBlackScholesCalculator().Calculate(c)
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGreeksCalculator().Analytical(c)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(res.Price, 10.4506, 1e-3) {
		t.Errorf("price = %v", res.Price)
	}
	if res.Greeks != g {
		t.Errorf("greeks mismatch: %+v vs %+v", res.Greeks, g)
	}
}
