package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/domain"
)

func sampleOrder(id string) *domain.Order {
	now := time.Date(2024, 6, 14, 9, 30, 0, 0, time.UTC)
	return &domain.Order{
		ID:         id,
		Symbol:     "600519.SH",
		Side:       domain.OrderSideBuy,
		Type:       domain.OrderTypeLimit,
		Qty:        1000,
		LimitPrice: decimal.NewFromFloat(10.50),
		Status:     domain.OrderStatusCreated,
		StrategyID: "sma_cross",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// repositoryTests exercises the Repository contract against any
// implementation.
func repositoryTests(t *testing.T, repo Repository) {
	ctx := context.Background()

	t.Run("order round trip", func(t *testing.T) {
		order := sampleOrder("o-1")
		if err := repo.SaveOrder(ctx, order); err != nil {
			t.Fatalf("SaveOrder: %v", err)
		}

		got, err := repo.GetOrder(ctx, "o-1")
		if err != nil {
			t.Fatalf("GetOrder: %v", err)
		}
		if got.Symbol != order.Symbol || got.Qty != order.Qty || got.Status != order.Status {
			t.Errorf("got %+v, want %+v", got, order)
		}
		if !got.LimitPrice.Equal(order.LimitPrice) {
			t.Errorf("limit price = %s, want %s", got.LimitPrice, order.LimitPrice)
		}
	})

	t.Run("update", func(t *testing.T) {
		order := sampleOrder("o-2")
		if err := repo.SaveOrder(ctx, order); err != nil {
			t.Fatalf("SaveOrder: %v", err)
		}

		order.Status = domain.OrderStatusFilled
		order.FilledQty = 1000
		order.AvgFillPrice = decimal.NewFromFloat(10.48)
		if err := repo.UpdateOrder(ctx, order); err != nil {
			t.Fatalf("UpdateOrder: %v", err)
		}

		got, _ := repo.GetOrder(ctx, "o-2")
		if got.Status != domain.OrderStatusFilled || got.FilledQty != 1000 {
			t.Errorf("update not persisted: %+v", got)
		}
	})

	t.Run("pending excludes terminal", func(t *testing.T) {
		pending, err := repo.PendingOrders(ctx)
		if err != nil {
			t.Fatalf("PendingOrders: %v", err)
		}
		for _, o := range pending {
			if o.Status.IsTerminal() {
				t.Errorf("terminal order %s in pending set", o.ID)
			}
		}
		var found bool
		for _, o := range pending {
			if o.ID == "o-1" {
				found = true
			}
		}
		if !found {
			t.Error("created order o-1 missing from pending set")
		}
	})

	t.Run("missing order", func(t *testing.T) {
		if _, err := repo.GetOrder(ctx, "nope"); !errors.Is(err, ErrOrderNotFound) {
			t.Errorf("err = %v, want ErrOrderNotFound", err)
		}
		if err := repo.UpdateOrder(ctx, sampleOrder("nope")); !errors.Is(err, ErrOrderNotFound) {
			t.Errorf("update err = %v, want ErrOrderNotFound", err)
		}
	})

	t.Run("fills", func(t *testing.T) {
		fill := &domain.Fill{
			ID:      "f-1",
			OrderID: "o-1",
			Symbol:  "600519.SH",
			Side:    domain.OrderSideBuy,
			Qty:     500,
			Price:   decimal.NewFromFloat(10.49),
			Fees: domain.Fees{
				Commission:  decimal.NewFromFloat(5.00),
				TransferFee: decimal.NewFromFloat(0.10),
			},
			Timestamp: time.Date(2024, 6, 14, 9, 31, 0, 0, time.UTC),
		}
		if err := repo.SaveFill(ctx, fill); err != nil {
			t.Fatalf("SaveFill: %v", err)
		}

		fills, err := repo.ListFills(ctx, "o-1")
		if err != nil {
			t.Fatalf("ListFills: %v", err)
		}
		if len(fills) != 1 {
			t.Fatalf("fills = %d, want 1", len(fills))
		}
		if !fills[0].Price.Equal(fill.Price) || !fills[0].Fees.Commission.Equal(fill.Fees.Commission) {
			t.Errorf("fill round trip mismatch: %+v", fills[0])
		}
	})

	t.Run("equity curve", func(t *testing.T) {
		t1 := time.Date(2024, 6, 14, 15, 0, 0, 0, time.UTC)
		t2 := t1.AddDate(0, 0, 3)
		for i, ts := range []time.Time{t1, t2} {
			err := repo.SaveEquityPoint(ctx, domain.EquityPoint{
				Timestamp: ts,
				Equity:    decimal.NewFromInt(int64(1_000_000 + i*1000)),
				Cash:      decimal.NewFromInt(500_000),
			})
			if err != nil {
				t.Fatalf("SaveEquityPoint: %v", err)
			}
		}

		points, err := repo.ListEquityPoints(ctx, t1, t1)
		if err != nil {
			t.Fatalf("ListEquityPoints: %v", err)
		}
		if len(points) != 1 {
			t.Fatalf("points = %d, want 1 (range filter)", len(points))
		}
		if !points[0].Equity.Equal(decimal.NewFromInt(1_000_000)) {
			t.Errorf("equity = %s, want 1000000", points[0].Equity)
		}
	})
}

func TestSQLiteRepository(t *testing.T) {
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "trader.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()

	repositoryTests(t, repo)
}

func TestMemoryRepository(t *testing.T) {
	repositoryTests(t, NewMemoryRepository())
}

func TestParquetStoreRoundTrip(t *testing.T) {
	s := NewParquetStore(t.TempDir())
	ctx := context.Background()

	day := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	bars := []domain.Bar{
		{Symbol: "600519.SH", Timestamp: day, Open: 10.1, High: 10.5, Low: 9.9, Close: 10.3, PrevClose: 10.0, Volume: 1000},
		{Symbol: "600519.SH", Timestamp: day.AddDate(0, 0, 3), Open: 10.3, High: 10.6, Low: 10.2, Close: 10.5, PrevClose: 10.3, Volume: 1200},
	}
	if err := s.WriteBars(ctx, bars, domain.MarketCN); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := s.ReadBars(ctx, "600519.SH", domain.MarketCN, day, day.AddDate(0, 0, 10))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("bars = %d, want 2", len(got))
	}
	if got[0].Close != 10.3 || got[0].PrevClose != 10.0 {
		t.Errorf("bar round trip mismatch: %+v", got[0])
	}

	// Range filter.
	got, _ = s.ReadBars(ctx, "600519.SH", domain.MarketCN, day, day)
	if len(got) != 1 {
		t.Errorf("range-filtered bars = %d, want 1", len(got))
	}

	// Rewriting the same day merges instead of duplicating.
	if err := s.WriteBars(ctx, bars[:1], domain.MarketCN); err != nil {
		t.Fatalf("WriteBars merge: %v", err)
	}
	got, _ = s.ReadBars(ctx, "600519.SH", domain.MarketCN, day, day.AddDate(0, 0, 10))
	if len(got) != 2 {
		t.Errorf("bars after merge = %d, want 2", len(got))
	}

	symbols, err := s.ListSymbols(ctx, domain.MarketCN)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 1 || symbols[0] != "600519.SH" {
		t.Errorf("symbols = %v, want [600519.SH]", symbols)
	}
}
