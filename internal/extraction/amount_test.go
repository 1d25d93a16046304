package extraction_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/JaimeStill/invoice-pipeline/internal/extraction"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want extraction.Amount
	}{
		{"12500.00", 1250000},
		{"12500", 1250000},
		{"12 500,00 Ft", 1250000},
		{"12.500", 1250000},
		{"12,500", 1250000},
		{"1.234.567", 123456700},
		{"1,234,567.89", 123456789},
		{"1.234.567,89 EUR", 123456789},
		{"$1,234.565", 123457},
		{"€ 99,99", 9999},
		{"0.005", 1},
		{"0.004", 0},
		{"12,5", 1250},
		{"-42.10", -4210},
		{"(42.10)", -4210},
		{"2.995", 299500},
		{"12500 Ft.", 1250000},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := extraction.ParseAmount(tt.raw)
			if err != nil {
				t.Fatalf("ParseAmount(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	invalid := []string{
		"", "   ", "n/a", ".,", "12#00",
		"99999999999999999",
		"-99999999999999999",
		"92233720368547758.00",
		"99999999999999999999999",
	}
	for _, raw := range invalid {
		if _, err := extraction.ParseAmount(raw); !errors.Is(err, extraction.ErrInvalidAmount) {
			t.Errorf("ParseAmount(%q) error = %v, want ErrInvalidAmount", raw, err)
		}
	}

	for _, f := range []float64{1e17, -1e17, math.Inf(1), math.NaN()} {
		if a, err := extraction.AmountFromFloat(f); !errors.Is(err, extraction.ErrInvalidAmount) {
			t.Errorf("AmountFromFloat(%g) = %s, %v; want ErrInvalidAmount", f, a, err)
		}
	}

	if a, err := extraction.ParseAmount("92233720368547757.99"); err != nil || a <= 0 {
		t.Errorf("ParseAmount(max) = %s, %v; want positive amount", a, err)
	}
}

func TestAmount_RoundingIsFixedPoint(t *testing.T) {
	inputs := []string{"12500.00", "0.005", "1,234.565", "99,999", "-0.015", "7"}

	for _, raw := range inputs {
		first, err := extraction.ParseAmount(raw)
		if err != nil {
			t.Fatalf("ParseAmount(%q) error = %v", raw, err)
		}
		second, err := extraction.ParseAmount(first.String())
		if err != nil {
			t.Fatalf("ParseAmount(%q) error = %v", first.String(), err)
		}
		if first != second {
			t.Errorf("rounding %q twice: %s then %s", raw, first, second)
		}
	}
}

func TestAmountFromFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{12500, "12500.00"},
		{2.675, "2.68"},
		{1.005, "1.01"},
		{1234.5, "1234.50"},
		{-3.125, "-3.13"},
	}

	for _, tt := range tests {
		got, err := extraction.AmountFromFloat(tt.in)
		if err != nil {
			t.Fatalf("AmountFromFloat(%v) error = %v", tt.in, err)
		}
		if got.String() != tt.want {
			t.Errorf("AmountFromFloat(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestAmount_JSON(t *testing.T) {
	data, err := json.Marshal(extraction.Amount(1250000))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"12500.00"` {
		t.Errorf("Marshal() = %s, want \"12500.00\"", data)
	}

	var a extraction.Amount
	if err := json.Unmarshal([]byte(`12500.005`), &a); err != nil {
		t.Fatalf("Unmarshal(number) error = %v", err)
	}
	if a != 1250001 {
		t.Errorf("Unmarshal(number) = %s, want 12500.01", a)
	}
}
