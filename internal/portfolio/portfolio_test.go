package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/domain"
)

func buyFill(symbol string, qty int64, price float64, commission float64) *domain.Fill {
	return &domain.Fill{
		ID:      "f-buy",
		Symbol:  symbol,
		Side:    domain.OrderSideBuy,
		Qty:     qty,
		Price:   decimal.NewFromFloat(price),
		Fees:    domain.Fees{Commission: decimal.NewFromFloat(commission)},
		Timestamp: time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC),
	}
}

func TestApplyFillBuyThenSettlement(t *testing.T) {
	p := New(decimal.NewFromInt(1_000_000))

	p.ApplyFill(buyFill("600519.SH", 1000, 10.00, 5.00))

	// Cash drops by gross value plus fees.
	if want := decimal.NewFromFloat(989_995); !p.Cash().Equal(want) {
		t.Errorf("cash = %s, want %s", p.Cash(), want)
	}

	pos := p.Position("600519.SH")
	if pos == nil {
		t.Fatal("position missing after buy")
	}
	if pos.Qty != 1000 {
		t.Errorf("qty = %d, want 1000", pos.Qty)
	}
	// T+1: nothing available the same session.
	if pos.AvailableQty != 0 {
		t.Errorf("available = %d, want 0 before settlement", pos.AvailableQty)
	}

	p.StartSession()
	if pos.AvailableQty != 1000 {
		t.Errorf("available = %d, want 1000 after session rollover", pos.AvailableQty)
	}
}

func TestApplyFillAverageCost(t *testing.T) {
	p := New(decimal.NewFromInt(1_000_000))

	p.ApplyFill(buyFill("600519.SH", 1000, 10.00, 5.00))
	p.ApplyFill(buyFill("600519.SH", 1000, 12.00, 5.00))

	pos := p.Position("600519.SH")
	if want := decimal.NewFromFloat(11.00); !pos.AvgCost.Equal(want) {
		t.Errorf("avg cost = %s, want %s", pos.AvgCost, want)
	}

	// Selling half leaves the average cost unchanged.
	p.StartSession()
	p.ApplyFill(&domain.Fill{
		ID: "f-sell", Symbol: "600519.SH", Side: domain.OrderSideSell,
		Qty: 1000, Price: decimal.NewFromFloat(13.00),
	})
	pos = p.Position("600519.SH")
	if want := decimal.NewFromFloat(11.00); !pos.AvgCost.Equal(want) {
		t.Errorf("avg cost after sell = %s, want %s", pos.AvgCost, want)
	}
	if pos.Qty != 1000 || pos.AvailableQty != 1000 {
		t.Errorf("qty/available = %d/%d, want 1000/1000", pos.Qty, pos.AvailableQty)
	}
}

func TestApplyFillClosesPosition(t *testing.T) {
	p := New(decimal.NewFromInt(100_000))

	p.ApplyFill(buyFill("000001.SZ", 100, 15.00, 5.00))
	p.StartSession()
	p.ApplyFill(&domain.Fill{
		ID: "f-close", Symbol: "000001.SZ", Side: domain.OrderSideSell,
		Qty: 100, Price: decimal.NewFromFloat(16.00),
	})

	if p.Position("000001.SZ") != nil {
		t.Error("flat position should be removed")
	}
}

func TestEquityAndExposure(t *testing.T) {
	p := New(decimal.NewFromInt(1_000_000))
	p.ApplyFill(buyFill("600519.SH", 1000, 10.00, 0))

	p.Mark("600519.SH", decimal.NewFromFloat(12.00))

	if want := decimal.NewFromInt(12_000); !p.StockValue().Equal(want) {
		t.Errorf("stock value = %s, want %s", p.StockValue(), want)
	}
	// 990,000 cash + 12,000 marked value.
	if want := decimal.NewFromInt(1_002_000); !p.Equity().Equal(want) {
		t.Errorf("equity = %s, want %s", p.Equity(), want)
	}
	if p.Exposure().LessThanOrEqual(decimal.Zero) || p.Exposure().GreaterThan(decimal.NewFromFloat(0.02)) {
		t.Errorf("exposure = %s, want ~0.012", p.Exposure())
	}
}

func TestEquityCurve(t *testing.T) {
	p := New(decimal.NewFromInt(500_000))

	t1 := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	t2 := t1.AddDate(0, 0, 3)
	p.RecordEquity(t1)
	p.ApplyFill(buyFill("600519.SH", 100, 10.00, 5.00))
	p.RecordEquity(t2)

	curve := p.EquityCurve()
	if len(curve) != 2 {
		t.Fatalf("curve length = %d, want 2", len(curve))
	}
	if !curve[0].Timestamp.Equal(t1) || !curve[1].Timestamp.Equal(t2) {
		t.Error("curve timestamps out of order")
	}
	if !curve[0].Equity.Equal(decimal.NewFromInt(500_000)) {
		t.Errorf("initial equity = %s, want 500000", curve[0].Equity)
	}
}
