package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/cost"
	"github.com/Mason55/stock/internal/domain"
)

func newConnectedMock(t *testing.T, cfg config.MockSettings) *Mock {
	t.Helper()
	costs := cost.NewModel(config.Default().Costs)
	m := NewMock(cfg, costs)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	m.SetQuote("600519.SH", decimal.NewFromFloat(10.00))
	return m
}

func marketOrder(side domain.OrderSide, qty int64) *domain.Order {
	return &domain.Order{
		ID:     "o-1",
		Symbol: "600519.SH",
		Side:   side,
		Type:   domain.OrderTypeMarket,
		Qty:    qty,
	}
}

func TestMockRequiresConnection(t *testing.T) {
	m := NewMock(config.MockSettings{InitialCash: 100_000, Seed: 1}, nil)

	if _, err := m.PlaceOrder(context.Background(), marketOrder(domain.OrderSideBuy, 100)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestMockImmediateFill(t *testing.T) {
	m := newConnectedMock(t, config.MockSettings{InitialCash: 1_000_000, Seed: 1})
	ctx := context.Background()

	brokerID, err := m.PlaceOrder(ctx, marketOrder(domain.OrderSideBuy, 1000))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	snap, err := m.GetOrderStatus(ctx, brokerID)
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	if snap.Status != domain.OrderStatusFilled {
		t.Errorf("status = %s, want filled", snap.Status)
	}
	if snap.FilledQty != 1000 {
		t.Errorf("filled qty = %d, want 1000", snap.FilledQty)
	}
	if !snap.AvgFillPrice.Equal(decimal.NewFromFloat(10.00)) {
		t.Errorf("fill price = %s, want 10.00", snap.AvgFillPrice)
	}

	positions, err := m.GetPositions(ctx)
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(positions) != 1 || positions[0].Qty != 1000 {
		t.Fatalf("positions = %+v, want one of 1000", positions)
	}

	account, err := m.GetAccount(ctx)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	// 1,000,000 − 10,000 gross − 5.00 commission − 0.20 transfer fee.
	if want := decimal.NewFromFloat(989_994.80); !account.Cash.Equal(want) {
		t.Errorf("cash = %s, want %s", account.Cash, want)
	}
}

func TestMockSlippage(t *testing.T) {
	m := newConnectedMock(t, config.MockSettings{InitialCash: 1_000_000, Slippage: 0.001, Seed: 1})

	brokerID, err := m.PlaceOrder(context.Background(), marketOrder(domain.OrderSideBuy, 1000))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	snap, _ := m.GetOrderStatus(context.Background(), brokerID)
	if want := decimal.NewFromFloat(10.01); !snap.AvgFillPrice.Equal(want) {
		t.Errorf("buy fill price = %s, want %s", snap.AvgFillPrice, want)
	}
}

func TestMockRejectionRateDeterministic(t *testing.T) {
	m := newConnectedMock(t, config.MockSettings{InitialCash: 1_000_000, RejectionRate: 0.5, Seed: 42})

	var rejected int
	for i := 0; i < 100; i++ {
		if _, err := m.PlaceOrder(context.Background(), marketOrder(domain.OrderSideBuy, 100)); errors.Is(err, ErrOrderRejected) {
			rejected++
		}
	}
	if rejected < 30 || rejected > 70 {
		t.Errorf("rejected %d of 100, want roughly half", rejected)
	}

	// Same seed reproduces the same rejection sequence.
	m2 := newConnectedMock(t, config.MockSettings{InitialCash: 1_000_000, RejectionRate: 0.5, Seed: 42})
	var rejected2 int
	for i := 0; i < 100; i++ {
		if _, err := m2.PlaceOrder(context.Background(), marketOrder(domain.OrderSideBuy, 100)); errors.Is(err, ErrOrderRejected) {
			rejected2++
		}
	}
	if rejected != rejected2 {
		t.Errorf("rejection counts differ across identical seeds: %d vs %d", rejected, rejected2)
	}
}

func TestMockCancel(t *testing.T) {
	// A long fill delay keeps the order open for cancellation.
	m := newConnectedMock(t, config.MockSettings{InitialCash: 1_000_000, FillDelayMs: 60_000, Seed: 1})
	ctx := context.Background()

	brokerID, err := m.PlaceOrder(ctx, marketOrder(domain.OrderSideBuy, 1000))
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if err := m.CancelOrder(ctx, brokerID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	snap, _ := m.GetOrderStatus(ctx, brokerID)
	if snap.Status != domain.OrderStatusCanceled {
		t.Errorf("status = %s, want canceled", snap.Status)
	}

	// Canceling a filled order fails.
	m2 := newConnectedMock(t, config.MockSettings{InitialCash: 1_000_000, Seed: 1})
	id2, _ := m2.PlaceOrder(ctx, marketOrder(domain.OrderSideBuy, 1000))
	if err := m2.CancelOrder(ctx, id2); !errors.Is(err, ErrOrderRejected) {
		t.Errorf("cancel filled: err = %v, want ErrOrderRejected", err)
	}
}

func TestMockUnknownOrder(t *testing.T) {
	m := newConnectedMock(t, config.MockSettings{InitialCash: 1_000_000, Seed: 1})

	if _, err := m.GetOrderStatus(context.Background(), "nope"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("err = %v, want ErrOrderNotFound", err)
	}
	if err := m.CancelOrder(context.Background(), "nope"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestMockRoundTrip(t *testing.T) {
	m := newConnectedMock(t, config.MockSettings{InitialCash: 1_000_000, Seed: 1})
	ctx := context.Background()

	if _, err := m.PlaceOrder(ctx, marketOrder(domain.OrderSideBuy, 1000)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := m.PlaceOrder(ctx, marketOrder(domain.OrderSideSell, 1000)); err != nil {
		t.Fatalf("sell: %v", err)
	}

	positions, _ := m.GetPositions(ctx)
	if len(positions) != 0 {
		t.Errorf("positions after round trip = %+v, want none", positions)
	}

	account, _ := m.GetAccount(ctx)
	// Round trip at the same price loses only fees.
	if account.Cash.GreaterThanOrEqual(decimal.NewFromInt(1_000_000)) {
		t.Errorf("cash = %s, want less than initial after fees", account.Cash)
	}
	if account.Cash.LessThan(decimal.NewFromInt(999_000)) {
		t.Errorf("cash = %s, lost more than fees", account.Cash)
	}
}

func TestMockSubscribeQuotes(t *testing.T) {
	m := newConnectedMock(t, config.MockSettings{InitialCash: 1_000_000, Seed: 1})
	ctx, cancel := context.WithCancel(context.Background())

	quotes, err := m.SubscribeQuotes(ctx, []string{"600519.SH"})
	if err != nil {
		t.Fatalf("SubscribeQuotes: %v", err)
	}

	m.SetQuote("600519.SH", decimal.NewFromFloat(10.50))
	m.SetQuote("000001.SZ", decimal.NewFromFloat(9.00)) // not subscribed

	q := <-quotes
	if q.Symbol != "600519.SH" || !q.Price.Equal(decimal.NewFromFloat(10.50)) {
		t.Errorf("quote = %+v, want 600519.SH @ 10.50", q)
	}
	select {
	case q := <-quotes:
		t.Errorf("unexpected quote for unsubscribed symbol: %+v", q)
	default:
	}

	cancel()
	for range quotes {
	}
}
