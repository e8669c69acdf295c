// Package store defines storage interfaces for market data and trading
// records, with Parquet-backed bars and a SQLite-backed trade journal.
package store

import (
	"context"
	"time"

	"github.com/Mason55/stock/internal/domain"
)

// BarSource provides historical OHLCV bars for backtests.
type BarSource interface {
	// ReadBars returns bars for the given symbol and market within
	// [start, end], sorted by timestamp.
	ReadBars(ctx context.Context, symbol string, market domain.Market, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market domain.Market) ([]string, error)
}

// BarSink persists bars, for data gathering and backtest fixtures.
type BarSink interface {
	// WriteBars persists a batch of bars, merging with existing data.
	WriteBars(ctx context.Context, bars []domain.Bar, market domain.Market) error
}

// Repository is the trade journal: orders, fills, and the equity curve. Live
// trading persists every order mutation here before acting on it, so a crash
// can be recovered from the journal.
type Repository interface {
	// SaveOrder inserts a new order.
	SaveOrder(ctx context.Context, order *domain.Order) error

	// UpdateOrder persists changes to an existing order.
	UpdateOrder(ctx context.Context, order *domain.Order) error

	// GetOrder retrieves a single order by its ID.
	GetOrder(ctx context.Context, id string) (*domain.Order, error)

	// PendingOrders returns all orders in a non-terminal status.
	PendingOrders(ctx context.Context) ([]domain.Order, error)

	// SaveFill inserts an execution record.
	SaveFill(ctx context.Context, fill *domain.Fill) error

	// ListFills returns all fills for an order in execution order.
	ListFills(ctx context.Context, orderID string) ([]domain.Fill, error)

	// SaveEquityPoint appends a sample to the equity curve.
	SaveEquityPoint(ctx context.Context, point domain.EquityPoint) error

	// ListEquityPoints returns equity samples within [start, end].
	ListEquityPoints(ctx context.Context, start, end time.Time) ([]domain.EquityPoint, error)

	// Close releases the underlying resources.
	Close() error
}
