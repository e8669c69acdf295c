package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/broker"
	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/cost"
	"github.com/Mason55/stock/internal/domain"
	"github.com/Mason55/stock/internal/store"
	"github.com/Mason55/stock/internal/strategy"
)

func liveConfig() *config.Config {
	cfg := config.Default()
	cfg.Trading.EnableTrading = true
	cfg.Trading.MonitorPollMs = 5
	return cfg
}

func waitLive(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func barOn(day time.Time, price float64) domain.Bar {
	return domain.Bar{
		Symbol:    "600519.SH",
		Timestamp: day,
		Open:      price,
		High:      price * 1.02,
		Low:       price * 0.98,
		Close:     price,
		PrevClose: price,
		Volume:    10_000_000,
	}
}

func TestLiveBuyThenSellAcrossSessions(t *testing.T) {
	cfg := liveConfig()
	mock := broker.NewMock(config.MockSettings{InitialCash: 1_000_000, Seed: 1},
		cost.NewModel(cfg.Costs))
	mock.SetQuote("600519.SH", decimal.NewFromFloat(10.00))
	repo := store.NewMemoryRepository()

	reg := strategy.NewRegistry()
	reg.Register(&scripted{name: "scripted", plan: map[string]domain.SignalType{
		"2024-06-10": domain.SignalTypeBuy,
		"2024-06-11": domain.SignalTypeSell,
	}})

	l := NewLive(cfg, reg, mock, repo)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	monday := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	if !l.PushBar(barOn(monday, 10.00)) {
		t.Fatal("PushBar returned false")
	}

	// The buy order fills at the mock and flows back through the queue.
	waitLive(t, func() bool {
		pending, _ := repo.PendingOrders(context.Background())
		orders := ordersInRepo(repo)
		return len(orders) == 1 && len(pending) == 0
	})

	orders := ordersInRepo(repo)
	if orders[0].Status != domain.OrderStatusFilled {
		t.Fatalf("buy status = %s, want filled", orders[0].Status)
	}
	if orders[0].FilledQty != 10_000 {
		t.Errorf("buy qty = %d, want 10000", orders[0].FilledQty)
	}

	// Wait until the dispatcher has booked the fill into the portfolio.
	waitLive(t, func() bool {
		return l.Status().Cash.LessThan(decimal.NewFromInt(1_000_000)) || l.queue.Len() == 0
	})

	// Next session: shares settle and the sell goes through.
	tuesday := monday.AddDate(0, 0, 1)
	l.PushBar(barOn(tuesday, 10.00))

	waitLive(t, func() bool {
		for _, o := range ordersInRepo(repo) {
			if o.Side == domain.OrderSideSell && o.Status == domain.OrderStatusFilled {
				return true
			}
		}
		return false
	})

	account, err := mock.GetAccount(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Flat round trip loses only fees.
	if account.Cash.GreaterThanOrEqual(decimal.NewFromInt(1_000_000)) ||
		account.Cash.LessThan(decimal.NewFromInt(999_000)) {
		t.Errorf("broker cash = %s, want initial minus fees", account.Cash)
	}
}

// crashing errors on every bar and counts how many bars it saw.
type crashing struct {
	calls atomic.Int64
}

func (c *crashing) Name() string { return "crashing" }
func (c *crashing) Init(context.Context) error { return nil }
func (c *crashing) OnBar(context.Context, domain.Bar) ([]domain.Signal, error) {
	c.calls.Add(1)
	return nil, errors.New("boom")
}

func TestLiveDisablesFailingStrategy(t *testing.T) {
	cfg := liveConfig()
	mock := broker.NewMock(config.MockSettings{InitialCash: 1_000_000, Seed: 1},
		cost.NewModel(cfg.Costs))
	mock.SetQuote("600519.SH", decimal.NewFromFloat(10.00))
	repo := store.NewMemoryRepository()

	crasher := &crashing{}
	reg := strategy.NewRegistry()
	reg.Register(crasher)
	reg.Register(&scripted{name: "scripted", plan: map[string]domain.SignalType{
		"2024-06-13": domain.SignalTypeBuy,
	}})

	l := NewLive(cfg, reg, mock, repo)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	monday := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		l.PushBar(barOn(monday.AddDate(0, 0, i), 10.00))
	}

	// The healthy strategy keeps trading after the crasher is disabled.
	waitLive(t, func() bool {
		for _, o := range ordersInRepo(repo) {
			if o.Status == domain.OrderStatusFilled {
				return true
			}
		}
		return false
	})

	// Bars are dispatched in order, so a fill from Thursday's signal means
	// Monday through Wednesday already ran: the crasher errored its way to the
	// failure cap and later bars never reached it.
	if got, want := crasher.calls.Load(), int64(cfg.Trading.MaxStrategyFailures); got != want {
		t.Errorf("failing strategy saw %d bars, want %d before disable", got, want)
	}
}

func TestLiveTradingDisabled(t *testing.T) {
	cfg := liveConfig()
	cfg.Trading.EnableTrading = false

	mock := broker.NewMock(config.MockSettings{InitialCash: 1_000_000, Seed: 1}, nil)
	mock.SetQuote("600519.SH", decimal.NewFromFloat(10.00))
	repo := store.NewMemoryRepository()

	reg := strategy.NewRegistry()
	reg.Register(&scripted{name: "scripted", plan: map[string]domain.SignalType{
		"2024-06-10": domain.SignalTypeBuy,
	}})

	l := NewLive(cfg, reg, mock, repo)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	l.PushBar(barOn(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), 10.00))

	// Give the dispatcher time to process, then confirm nothing was placed.
	waitLive(t, func() bool { return l.queue.Len() == 0 })
	l.Stop()

	if orders := ordersInRepo(repo); len(orders) != 0 {
		t.Errorf("orders = %d, want none with trading disabled", len(orders))
	}
}

func TestLiveStatus(t *testing.T) {
	cfg := liveConfig()
	mock := broker.NewMock(config.MockSettings{InitialCash: 500_000, Seed: 1}, nil)
	repo := store.NewMemoryRepository()

	l := NewLive(cfg, strategy.NewRegistry(), mock, repo)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	st := l.Status()
	if !st.Connected {
		t.Error("status should report connected")
	}
	if st.Suspended {
		t.Error("fresh engine should not be suspended")
	}
	if st.PendingOrders != 0 {
		t.Errorf("pending = %d, want 0", st.PendingOrders)
	}
}

// ordersInRepo lists every order in the memory repository, terminal or not.
func ordersInRepo(repo *store.MemoryRepository) []domain.Order {
	return repo.AllOrders()
}
