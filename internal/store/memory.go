package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Mason55/stock/internal/domain"
)

// Compile-time interface check.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory Repository for backtests and tests,
// where durability across a crash does not matter.
type MemoryRepository struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	seq    []string // insertion order of order IDs
	fills  map[string][]domain.Fill
	curve  []domain.EquityPoint
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[string]domain.Order),
		fills:  make(map[string][]domain.Fill),
	}
}

// SaveOrder inserts a new order.
func (m *MemoryRepository) SaveOrder(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	m.orders[o.ID] = *o
	m.seq = append(m.seq, o.ID)
	return nil
}

// UpdateOrder persists changes to an existing order.
func (m *MemoryRepository) UpdateOrder(_ context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[o.ID]; !exists {
		return fmt.Errorf("updating order %s: %w", o.ID, ErrOrderNotFound)
	}
	m.orders[o.ID] = *o
	return nil
}

// GetOrder retrieves a single order by its ID.
func (m *MemoryRepository) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrOrderNotFound)
	}
	return &o, nil
}

// PendingOrders returns all orders in a non-terminal status, oldest first.
func (m *MemoryRepository) PendingOrders(_ context.Context) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []domain.Order
	for _, id := range m.seq {
		if o := m.orders[id]; !o.Status.IsTerminal() {
			pending = append(pending, o)
		}
	}
	return pending, nil
}

// AllOrders returns every order in insertion order, for backtest reporting.
func (m *MemoryRepository) AllOrders() []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Order, 0, len(m.seq))
	for _, id := range m.seq {
		out = append(out, m.orders[id])
	}
	return out
}

// SaveFill inserts an execution record.
func (m *MemoryRepository) SaveFill(_ context.Context, f *domain.Fill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fills[f.OrderID] = append(m.fills[f.OrderID], *f)
	return nil
}

// ListFills returns all fills for an order in execution order.
func (m *MemoryRepository) ListFills(_ context.Context, orderID string) ([]domain.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Fill, len(m.fills[orderID]))
	copy(out, m.fills[orderID])
	return out, nil
}

// AllFills returns every fill in timestamp order, for backtest reporting.
func (m *MemoryRepository) AllFills() []domain.Fill {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Fill
	for _, fills := range m.fills {
		out = append(out, fills...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// SaveEquityPoint appends a sample to the equity curve.
func (m *MemoryRepository) SaveEquityPoint(_ context.Context, p domain.EquityPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.curve = append(m.curve, p)
	return nil
}

// ListEquityPoints returns equity samples within [start, end].
func (m *MemoryRepository) ListEquityPoints(_ context.Context, start, end time.Time) ([]domain.EquityPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EquityPoint
	for _, p := range m.curve {
		if !p.Timestamp.Before(start) && !p.Timestamp.After(end) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryRepository) Close() error { return nil }
