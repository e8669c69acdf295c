// Package broker defines the Adapter interface for order execution venues
// and provides implementations: a deterministic mock for paper trading and
// tests, and an Alpaca-backed adapter for live US trading.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/domain"
)

// Adapter failures. ErrConnectionLost is retryable; the others are not.
var (
	ErrNotConnected   = errors.New("broker not connected")
	ErrConnectionLost = errors.New("broker connection lost")
	ErrOrderRejected  = errors.New("order rejected by broker")
	ErrOrderNotFound  = errors.New("order not found at broker")
)

// OrderSnapshot is the broker's view of an order, returned by status polls
// and reconciliation queries.
type OrderSnapshot struct {
	BrokerOrderID string
	Status        domain.OrderStatus
	FilledQty     int64
	AvgFillPrice  decimal.Decimal
	UpdatedAt     time.Time
}

// Adapter abstracts an execution venue. Implementations must be safe for
// concurrent use: the engine places orders from the dispatcher while monitor
// goroutines poll status.
type Adapter interface {
	// Name returns the adapter identifier (e.g. "mock", "alpaca").
	Name() string

	// Connect establishes the session. Idempotent.
	Connect(ctx context.Context) error

	// Close tears down the session. Idempotent.
	Close() error

	// IsConnected reports whether the session is usable.
	IsConnected() bool

	// PlaceOrder submits the order and returns the broker-assigned ID.
	PlaceOrder(ctx context.Context, order *domain.Order) (string, error)

	// CancelOrder requests cancellation of an open order by broker ID.
	CancelOrder(ctx context.Context, brokerOrderID string) error

	// GetOrderStatus returns the broker's current view of an order.
	GetOrderStatus(ctx context.Context, brokerOrderID string) (*OrderSnapshot, error)

	// GetPositions returns all positions held at the broker.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetAccount returns a snapshot of the account's financial state.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)

	// GetQuote returns the latest price for a symbol.
	GetQuote(ctx context.Context, symbol string) (*domain.Quote, error)

	// SubscribeQuotes streams quote updates for the given symbols until ctx
	// is canceled. The returned channel is closed when the stream ends.
	// Slow consumers may miss intermediate quotes.
	SubscribeQuotes(ctx context.Context, symbols []string) (<-chan domain.Quote, error)
}
