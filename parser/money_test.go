package parser

import (
	"math"
	"reflect"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{name: "thousands and decimal", input: "1,234.56", expected: 1234.56},
		{name: "comma as decimal", input: "12,34", expected: 12.34},
		{name: "comma as thousands", input: "1,234", expected: 1234},
		{name: "european thousands with decimal comma", input: "1,234,56", expected: 1234.56},
		{name: "plain decimal", input: "19.99", expected: 19.99},
		{name: "currency symbol", input: "£51.77", expected: 51.77},
		{name: "currency code and spaces", input: "CAD 1 299.00", expected: 1299},
		{name: "trailing comma", input: "19.99,", expected: 19.99},
		{name: "numeric prefix wins", input: "12.34.56", expected: 12.34},
		{name: "range keeps first number", input: "10-20", expected: 10},
		{name: "integer", input: "$25", expected: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAmount(tt.input)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("ParseAmount(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseAmountGarbage(t *testing.T) {
	for _, input := range []string{"", "N/A", "price unavailable", "-", ",", "."} {
		if got := ParseAmount(input); !math.IsNaN(got) {
			t.Errorf("ParseAmount(%q) = %v, want NaN", input, got)
		}
	}
}

func TestFirstAmount(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{input: "Our price: $14.99 (was $20.00)", expected: 14.99},
		{input: "EUR 12,50", expected: 12.50},
		{input: "usd19.00", expected: 19},
		{input: "€ 7", expected: 7},
	}

	for _, tt := range tests {
		if got := FirstAmount(tt.input); math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("FirstAmount(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}

	if got := FirstAmount("no digits here"); !math.IsNaN(got) {
		t.Errorf("FirstAmount without digits = %v, want NaN", got)
	}
}

func TestAllAmounts(t *testing.T) {
	got := AllAmounts("Price: $19.99, was $29.99")
	want := []float64{19.99, 29.99}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("AllAmounts = %v, want %v", got, want)
	}

	if got := AllAmounts(""); len(got) != 0 {
		t.Fatalf("AllAmounts(\"\") = %v, want empty", got)
	}
	if got := AllAmounts("nothing to see"); len(got) != 0 {
		t.Fatalf("AllAmounts(garbage) = %v, want empty", got)
	}
}

func TestPlausibleAndSmallest(t *testing.T) {
	values := []float64{0.2, 120, 15.5, 99999, 3}
	plausible := Plausible(values, 0.5, 50000)
	if !reflect.DeepEqual(plausible, []float64{120, 15.5, 3}) {
		t.Fatalf("Plausible = %v", plausible)
	}

	smallest, ok := Smallest(plausible)
	if !ok || smallest != 3 {
		t.Fatalf("Smallest = %v/%v, want 3/true", smallest, ok)
	}
	if plausible[2] != 3 || plausible[0] != 120 {
		t.Fatalf("Smallest must not reorder its input: %v", plausible)
	}

	if _, ok := Smallest(nil); ok {
		t.Fatalf("Smallest(nil) should report no value")
	}
}
