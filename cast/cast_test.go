package cast

import (
	"errors"
	"testing"

	"github.com/wyfcoding/optionpricer/xerrors"
)

func TestFloat64(t *testing.T) {
	data := map[string]any{
		"num":    150,
		"str":    "0.25",
		"blank":  "  ",
		"nil":    nil,
		"broken": "abc",
	}

	tests := []struct {
		key     string
		want    float64
		wantOK  bool
		wantErr bool
	}{
		{"num", 150, true, false},
		{"str", 0.25, true, false},
		{"blank", 0, false, false},
		{"nil", 0, false, false},
		{"missing", 0, false, false},
		{"broken", 0, true, true},
	}
	for _, tt := range tests {
		got, ok, err := Float64(data, tt.key)
		if (err != nil) != tt.wantErr || ok != tt.wantOK || got != tt.want {
			t.Errorf("Float64(%q) = %v, %v, %v", tt.key, got, ok, err)
		}
		if err != nil && !errors.Is(err, xerrors.ErrInvalidInput) {
			t.Errorf("Float64(%q) err = %v, want ErrInvalidInput", tt.key, err)
		}
	}
}

func TestDefaults(t *testing.T) {
	data := map[string]any{"rate": "0.03", "symbol": " AAPL ", "days": "30"}

	if r, err := Float64Or(data, "rate", 0.05); err != nil || r != 0.03 {
		t.Errorf("rate = %v, %v", r, err)
	}
	if r, err := Float64Or(data, "absent", 0.05); err != nil || r != 0.05 {
		t.Errorf("default rate = %v, %v", r, err)
	}
	if s, err := StringOr(data, "symbol", "DEMO"); err != nil || s != "AAPL" {
		t.Errorf("symbol = %q, %v", s, err)
	}
	if s, _ := StringOr(data, "absent", "DEMO"); s != "DEMO" {
		t.Errorf("default symbol = %q", s)
	}
	if d, ok, err := Int(data, "days"); err != nil || !ok || d != 30 {
		t.Errorf("days = %v, %v, %v", d, ok, err)
	}
	if !Has(data, "days") || Has(data, "absent") {
		t.Error("Has misbehaves")
	}
}

func TestSliceAndStringMap(t *testing.T) {
	data := map[string]any{
		"positions": []any{map[string]any{"quantity": 2}},
		"scalar":    3,
	}
	s, ok, err := Slice(data, "positions")
	if err != nil || !ok || len(s) != 1 {
		t.Fatalf("Slice() = %v, %v, %v", s, ok, err)
	}
	m, err := StringMap(s[0])
	if err != nil || m["quantity"] != 2 {
		t.Fatalf("StringMap() = %v, %v", m, err)
	}
	if _, ok, _ := Slice(data, "missing"); ok {
		t.Error("missing key reported as present")
	}
	if _, err := StringMap("not an object"); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Errorf("StringMap(string) err = %v", err)
	}
}

func TestBoolOr(t *testing.T) {
	data := map[string]any{"yes": true, "one": "1", "no": "false", "bad": "maybe"}
	tests := []struct {
		key     string
		def     bool
		want    bool
		wantErr bool
	}{
		{"yes", false, true, false},
		{"one", false, true, false},
		{"no", true, false, false},
		{"missing", true, true, false},
		{"bad", false, false, true},
	}
	for _, tt := range tests {
		got, err := BoolOr(data, tt.key, tt.def)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("BoolOr(%q) = %v, %v", tt.key, got, err)
		}
	}
}

func TestIntDecimalStrings(t *testing.T) {
	tests := []struct {
		in      any
		want    int
		wantErr bool
	}{
		{"010", 10, false},
		{" 5000 ", 5000, false},
		{"-7", -7, false},
		{"0x10", 0, true},
		{"1e3", 0, true},
		{float64(2500), 2500, false},
	}
	for _, tt := range tests {
		got, ok, err := Int(map[string]any{"n": tt.in}, "n")
		if tt.wantErr {
			if !errors.Is(err, xerrors.ErrInvalidInput) {
				t.Errorf("Int(%v) err = %v, want ErrInvalidInput", tt.in, err)
			}
			continue
		}
		if err != nil || !ok || got != tt.want {
			t.Errorf("Int(%v) = %d, %v, %v, want %d", tt.in, got, ok, err, tt.want)
		}
	}
}
