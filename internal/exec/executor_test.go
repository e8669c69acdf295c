package exec

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/domain"
	"github.com/Mason55/stock/internal/market"
	"github.com/Mason55/stock/internal/portfolio"
)

func newExecutor() *SignalExecutor {
	cfg := config.Default()
	return NewSignalExecutor(market.NewRules(cfg.Market), cfg.Risk)
}

func signal(typ domain.SignalType, strength float64) domain.Signal {
	return domain.Signal{
		StrategyID: "sma_cross",
		Symbol:     "600519.SH",
		Type:       typ,
		Strength:   strength,
		CreatedAt:  time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC),
	}
}

func TestBuildOrderBuySizing(t *testing.T) {
	e := newExecutor()
	pf := portfolio.New(decimal.NewFromInt(1_000_000))

	// Budget = 1,000,000 × 10% × 1.0 = 100,000; at 10.30 that is 9,708
	// shares, floored to 9,700.
	order := e.BuildOrder(signal(domain.SignalTypeBuy, 1.0), pf, decimal.NewFromFloat(10.30), time.Now())
	if order == nil {
		t.Fatal("expected an order")
	}
	if order.Side != domain.OrderSideBuy || order.Type != domain.OrderTypeMarket {
		t.Errorf("side/type = %s/%s, want buy/market", order.Side, order.Type)
	}
	if order.Qty != 9700 {
		t.Errorf("qty = %d, want 9700", order.Qty)
	}
	if order.Qty%100 != 0 {
		t.Errorf("qty %d is not a lot multiple", order.Qty)
	}
	if order.Status != domain.OrderStatusCreated {
		t.Errorf("status = %s, want created", order.Status)
	}
	if order.StrategyID != "sma_cross" {
		t.Errorf("strategy = %s, want sma_cross", order.StrategyID)
	}
}

func TestBuildOrderStrengthScalesSize(t *testing.T) {
	e := newExecutor()
	pf := portfolio.New(decimal.NewFromInt(1_000_000))
	price := decimal.NewFromFloat(10.00)

	full := e.BuildOrder(signal(domain.SignalTypeBuy, 1.0), pf, price, time.Now())
	half := e.BuildOrder(signal(domain.SignalTypeBuy, 0.5), pf, price, time.Now())

	if full.Qty != 10_000 || half.Qty != 5_000 {
		t.Errorf("qty full/half = %d/%d, want 10000/5000", full.Qty, half.Qty)
	}
}

func TestBuildOrderBuyBelowOneLot(t *testing.T) {
	e := newExecutor()
	pf := portfolio.New(decimal.NewFromInt(5_000))

	// Budget 500 at price 10 is 50 shares: below one lot, no order.
	if order := e.BuildOrder(signal(domain.SignalTypeBuy, 1.0), pf, decimal.NewFromFloat(10.00), time.Now()); order != nil {
		t.Errorf("expected nil order, got qty %d", order.Qty)
	}
}

func TestBuildOrderSellCappedByAvailable(t *testing.T) {
	e := newExecutor()
	pf := portfolio.New(decimal.NewFromInt(1_000_000))
	pf.ApplyFill(&domain.Fill{
		ID: "f-1", Symbol: "600519.SH", Side: domain.OrderSideBuy,
		Qty: 1000, Price: decimal.NewFromFloat(10.00),
	})

	// Same session: T+1 leaves nothing available to sell.
	if order := e.BuildOrder(signal(domain.SignalTypeSell, 1.0), pf, decimal.NewFromFloat(10.00), time.Now()); order != nil {
		t.Errorf("expected nil order before settlement, got qty %d", order.Qty)
	}

	pf.StartSession()
	order := e.BuildOrder(signal(domain.SignalTypeSell, 1.0), pf, decimal.NewFromFloat(10.00), time.Now())
	if order == nil || order.Qty != 1000 {
		t.Fatalf("expected full liquidation of 1000, got %+v", order)
	}

	// Half strength sells half the position.
	order = e.BuildOrder(signal(domain.SignalTypeSell, 0.5), pf, decimal.NewFromFloat(10.00), time.Now())
	if order == nil || order.Qty != 500 {
		t.Fatalf("expected 500, got %+v", order)
	}
}

func TestBuildOrderHoldAndFlat(t *testing.T) {
	e := newExecutor()
	pf := portfolio.New(decimal.NewFromInt(1_000_000))

	if order := e.BuildOrder(signal(domain.SignalTypeHold, 1.0), pf, decimal.NewFromFloat(10.00), time.Now()); order != nil {
		t.Error("hold signal should produce no order")
	}
	if order := e.BuildOrder(signal(domain.SignalTypeSell, 1.0), pf, decimal.NewFromFloat(10.00), time.Now()); order != nil {
		t.Error("sell with no position should produce no order")
	}
}
