package cost

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/domain"
)

func defaultModel() *Model {
	return NewModel(config.Default().Costs)
}

func TestCostMinimumCommission(t *testing.T) {
	m := defaultModel()

	// 1000 shares @ 10.00: 10,000 × 0.0003 = 3.00, below the 5.00 floor.
	fees := m.Cost(domain.OrderSideBuy, decimal.NewFromFloat(10.00), 1000)

	if want := decimal.NewFromFloat(5.00); !fees.Commission.Equal(want) {
		t.Errorf("commission = %s, want %s (minimum floor)", fees.Commission, want)
	}
}

func TestCostCommissionAboveMinimum(t *testing.T) {
	m := defaultModel()

	// 10000 shares @ 50.00: 500,000 × 0.0003 = 150.00.
	fees := m.Cost(domain.OrderSideBuy, decimal.NewFromFloat(50.00), 10000)

	if want := decimal.NewFromFloat(150.00); !fees.Commission.Equal(want) {
		t.Errorf("commission = %s, want %s", fees.Commission, want)
	}
}

func TestCostStampTaxSellOnly(t *testing.T) {
	m := defaultModel()
	price := decimal.NewFromFloat(10.00)

	buy := m.Cost(domain.OrderSideBuy, price, 1000)
	if !buy.StampTax.IsZero() {
		t.Errorf("buy stamp tax = %s, want 0", buy.StampTax)
	}

	// Sell of 10,000 at 0.1% tax = 10.00.
	sell := m.Cost(domain.OrderSideSell, price, 1000)
	if want := decimal.NewFromFloat(10.00); !sell.StampTax.Equal(want) {
		t.Errorf("sell stamp tax = %s, want %s", sell.StampTax, want)
	}
}

func TestCostTransferFeeBothSides(t *testing.T) {
	m := defaultModel()
	price := decimal.NewFromFloat(10.00)

	// 10,000 × 0.00002 = 0.20 on either side.
	want := decimal.NewFromFloat(0.20)
	for _, side := range []domain.OrderSide{domain.OrderSideBuy, domain.OrderSideSell} {
		fees := m.Cost(side, price, 1000)
		if !fees.TransferFee.Equal(want) {
			t.Errorf("%s transfer fee = %s, want %s", side, fees.TransferFee, want)
		}
	}
}

func TestCostDeterminism(t *testing.T) {
	m := defaultModel()
	price := decimal.NewFromFloat(23.45)

	first := m.Cost(domain.OrderSideSell, price, 700)
	for i := 0; i < 10; i++ {
		again := m.Cost(domain.OrderSideSell, price, 700)
		if !again.Commission.Equal(first.Commission) ||
			!again.StampTax.Equal(first.StampTax) ||
			!again.TransferFee.Equal(first.TransferFee) {
			t.Fatalf("cost model not deterministic: %+v vs %+v", again, first)
		}
	}
}

func TestCostConfigurableRates(t *testing.T) {
	m := NewModel(config.CostConfig{
		CommissionRate:  0.001,
		MinCommission:   1.0,
		StampTaxRate:    0.002,
		TransferFeeRate: 0.0001,
	})

	fees := m.Cost(domain.OrderSideSell, decimal.NewFromFloat(100.00), 100)
	// Amount 10,000: commission 10.00, stamp 20.00, transfer 1.00.
	if want := decimal.NewFromFloat(10.00); !fees.Commission.Equal(want) {
		t.Errorf("commission = %s, want %s", fees.Commission, want)
	}
	if want := decimal.NewFromFloat(20.00); !fees.StampTax.Equal(want) {
		t.Errorf("stamp tax = %s, want %s", fees.StampTax, want)
	}
	if want := decimal.NewFromFloat(1.00); !fees.TransferFee.Equal(want) {
		t.Errorf("transfer fee = %s, want %s", fees.TransferFee, want)
	}
}
