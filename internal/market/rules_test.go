package market

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/domain"
)

func newRules() *Rules {
	return NewRules(config.Default().Market)
}

func TestClassifyBoard(t *testing.T) {
	r := newRules()
	r.MarkST("600666.SH")

	tests := []struct {
		symbol string
		want   domain.Board
	}{
		{"600519.SH", domain.BoardMain},
		{"000001.SZ", domain.BoardMain},
		{"688981.SH", domain.BoardGrowth}, // STAR market
		{"300750.SZ", domain.BoardGrowth}, // GEM
		{"600666.SH", domain.BoardST},
	}
	for _, tt := range tests {
		if got := r.ClassifyBoard(tt.symbol); got != tt.want {
			t.Errorf("ClassifyBoard(%s) = %s, want %s", tt.symbol, got, tt.want)
		}
	}
}

func TestPriceLimits(t *testing.T) {
	r := newRules()
	prevClose := decimal.NewFromFloat(10.00)

	upper, lower := r.PriceLimits("600519.SH", prevClose)
	if want := decimal.NewFromFloat(11.00); !upper.Equal(want) {
		t.Errorf("main board upper = %s, want %s", upper, want)
	}
	if want := decimal.NewFromFloat(9.00); !lower.Equal(want) {
		t.Errorf("main board lower = %s, want %s", lower, want)
	}

	upper, lower = r.PriceLimits("300750.SZ", prevClose)
	if want := decimal.NewFromFloat(12.00); !upper.Equal(want) {
		t.Errorf("growth board upper = %s, want %s", upper, want)
	}
	if want := decimal.NewFromFloat(8.00); !lower.Equal(want) {
		t.Errorf("growth board lower = %s, want %s", lower, want)
	}
}

func TestLotHelpers(t *testing.T) {
	r := newRules()

	if !r.ValidLot(100) || !r.ValidLot(1500) {
		t.Error("lot multiples should be valid")
	}
	if r.ValidLot(0) || r.ValidLot(150) || r.ValidLot(-100) {
		t.Error("non-multiples and non-positive quantities should be invalid")
	}

	if got := r.FloorToLot(199); got != 100 {
		t.Errorf("FloorToLot(199) = %d, want 100", got)
	}
	if got := r.FloorToLot(99); got != 0 {
		t.Errorf("FloorToLot(99) = %d, want 0", got)
	}
}

func TestRoundToTick(t *testing.T) {
	got := RoundToTick(decimal.NewFromFloat(10.456))
	if want := decimal.NewFromFloat(10.46); !got.Equal(want) {
		t.Errorf("RoundToTick(10.456) = %s, want %s", got, want)
	}
}
