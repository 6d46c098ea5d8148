package money_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/traderisk/trade-engine/internal/money"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestScale_RoundsHalfUp(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"150", "150"},
		{"1.23455", "1.2346"},
		{"1.23454", "1.2345"},
		{"0.00005", "0.0001"},
		{"99.99995", "100"},
	}
	for _, c := range cases {
		if got := money.Scale(d(c.in)); !got.Equal(d(c.want)) {
			t.Errorf("Scale(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestScaleRatio_EightDigits(t *testing.T) {
	got := money.ScaleRatio(d("0.123456785"))
	if !got.Equal(d("0.12345679")) {
		t.Errorf("ScaleRatio = %s, want 0.12345679", got)
	}
}

func TestDivPrice(t *testing.T) {
	// (10×100 + 10×200) / 20 = 150
	got := money.DivPrice(d("3000"), d("20"))
	if !got.Equal(d("150")) {
		t.Errorf("DivPrice = %s, want 150", got)
	}

	// Repeating decimal rounds at scale 4.
	got = money.DivPrice(d("100"), d("3"))
	if !got.Equal(d("33.3333")) {
		t.Errorf("DivPrice(100,3) = %s, want 33.3333", got)
	}
}

func TestRatio_ZeroDenominatorIsZero(t *testing.T) {
	if got := money.Ratio(d("700"), decimal.Zero); !got.IsZero() {
		t.Errorf("Ratio with zero denominator = %s, want 0", got)
	}
}

func TestRatio(t *testing.T) {
	got := money.Ratio(d("700"), d("1000"))
	if !got.Equal(d("0.7")) {
		t.Errorf("Ratio(700,1000) = %s, want 0.7", got)
	}

	got = money.Ratio(d("1"), d("3"))
	if !got.Equal(d("0.33333333")) {
		t.Errorf("Ratio(1,3) = %s, want 0.33333333", got)
	}
}
