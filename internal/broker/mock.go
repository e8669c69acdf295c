package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/cost"
	"github.com/Mason55/stock/internal/domain"
)

// Compile-time interface check.
var _ Adapter = (*Mock)(nil)

// Mock is an in-memory broker for paper trading and tests. Behavior is
// deterministic for a fixed seed: fills arrive after a configurable delay at
// the last quote plus slippage, and a configurable fraction of orders is
// rejected at placement.
type Mock struct {
	costs *cost.Model

	fillDelay     time.Duration
	slippage      decimal.Decimal
	rejectionRate float64

	mu        sync.Mutex
	connected bool
	rng       *rand.Rand
	seq       int64
	cash      decimal.Decimal
	positions map[string]*domain.Position
	quotes    map[string]decimal.Decimal
	orders    map[string]*OrderSnapshot
	subs      map[int64]*quoteSub
}

// quoteSub is one SubscribeQuotes listener.
type quoteSub struct {
	ch      chan domain.Quote
	symbols map[string]bool
}

// NewMock creates a Mock from configuration. costs may be nil, in which case
// fills carry no fees.
func NewMock(cfg config.MockSettings, costs *cost.Model) *Mock {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Mock{
		costs:         costs,
		fillDelay:     time.Duration(cfg.FillDelayMs) * time.Millisecond,
		slippage:      decimal.NewFromFloat(cfg.Slippage),
		rejectionRate: cfg.RejectionRate,
		rng:           rand.New(rand.NewSource(seed)),
		cash:          decimal.NewFromFloat(cfg.InitialCash),
		positions:     make(map[string]*domain.Position),
		quotes:        make(map[string]decimal.Decimal),
		orders:        make(map[string]*OrderSnapshot),
		subs:          make(map[int64]*quoteSub),
	}
}

// Name returns "mock".
func (m *Mock) Name() string { return "mock" }

// Connect marks the session as established.
func (m *Mock) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

// Close tears down the session.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected reports whether Connect has been called.
func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SetQuote seeds the last price for a symbol. Orders fill against this, and
// subscribers are notified.
func (m *Mock) SetQuote(symbol string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = price

	q := domain.Quote{Symbol: symbol, Price: price, Timestamp: time.Now()}
	for _, sub := range m.subs {
		if !sub.symbols[symbol] {
			continue
		}
		select {
		case sub.ch <- q:
		default: // slow consumer, drop
		}
	}
}

// SubscribeQuotes streams SetQuote updates for the given symbols until ctx
// is canceled.
func (m *Mock) SubscribeQuotes(ctx context.Context, symbols []string) (<-chan domain.Quote, error) {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil, ErrNotConnected
	}
	m.seq++
	id := m.seq
	sub := &quoteSub{ch: make(chan domain.Quote, 16), symbols: make(map[string]bool, len(symbols))}
	for _, s := range symbols {
		sub.symbols[s] = true
	}
	m.subs[id] = sub
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		close(sub.ch)
	}()
	return sub.ch, nil
}

// PlaceOrder accepts the order and schedules its fill. With a zero fill
// delay the order fills before PlaceOrder returns.
func (m *Mock) PlaceOrder(_ context.Context, order *domain.Order) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return "", ErrNotConnected
	}
	if m.rejectionRate > 0 && m.rng.Float64() < m.rejectionRate {
		return "", fmt.Errorf("%w: random rejection", ErrOrderRejected)
	}
	quote, ok := m.quotes[order.Symbol]
	if !ok {
		return "", fmt.Errorf("%w: no quote for %s", ErrOrderRejected, order.Symbol)
	}

	m.seq++
	brokerID := fmt.Sprintf("mock-%d", m.seq)
	m.orders[brokerID] = &OrderSnapshot{
		BrokerOrderID: brokerID,
		Status:        domain.OrderStatusAccepted,
		UpdatedAt:     time.Now(),
	}

	price := m.fillPrice(order, quote)
	qty := order.Qty
	if m.fillDelay <= 0 {
		m.fill(brokerID, order.Symbol, order.Side, qty, price)
		return brokerID, nil
	}

	time.AfterFunc(m.fillDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.orders[brokerID].Status == domain.OrderStatusAccepted {
			m.fill(brokerID, order.Symbol, order.Side, qty, price)
		}
	})
	return brokerID, nil
}

// fillPrice applies slippage against the quote: buys pay up, sells receive
// less. Caller holds the lock.
func (m *Mock) fillPrice(order *domain.Order, quote decimal.Decimal) decimal.Decimal {
	if order.Type == domain.OrderTypeLimit {
		return order.LimitPrice
	}
	one := decimal.NewFromInt(1)
	if order.Side == domain.OrderSideBuy {
		return quote.Mul(one.Add(m.slippage)).Round(2)
	}
	return quote.Mul(one.Sub(m.slippage)).Round(2)
}

// fill executes the order in full. Caller holds the lock.
func (m *Mock) fill(brokerID, symbol string, side domain.OrderSide, qty int64, price decimal.Decimal) {
	snap := m.orders[brokerID]
	snap.Status = domain.OrderStatusFilled
	snap.FilledQty = qty
	snap.AvgFillPrice = price
	snap.UpdatedAt = time.Now()

	var fees domain.Fees
	if m.costs != nil {
		fees = m.costs.Cost(side, price, qty)
	}
	gross := price.Mul(decimal.NewFromInt(qty))

	pos := m.positions[symbol]
	if pos == nil {
		pos = &domain.Position{Symbol: symbol}
		m.positions[symbol] = pos
	}
	if side == domain.OrderSideBuy {
		m.cash = m.cash.Sub(gross).Sub(fees.Total())
		oldValue := pos.AvgCost.Mul(decimal.NewFromInt(pos.Qty))
		pos.Qty += qty
		pos.AvgCost = oldValue.Add(gross).Div(decimal.NewFromInt(pos.Qty))
	} else {
		m.cash = m.cash.Add(gross).Sub(fees.Total())
		pos.Qty -= qty
	}
	pos.AvailableQty = pos.Qty
	pos.UpdatedAt = snap.UpdatedAt
	if pos.Qty == 0 {
		delete(m.positions, symbol)
	}
}

// CancelOrder cancels the order if it has not filled yet.
func (m *Mock) CancelOrder(_ context.Context, brokerOrderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	snap, ok := m.orders[brokerOrderID]
	if !ok {
		return ErrOrderNotFound
	}
	if snap.Status.IsTerminal() {
		return fmt.Errorf("%w: order %s already %s", ErrOrderRejected, brokerOrderID, snap.Status)
	}
	snap.Status = domain.OrderStatusCanceled
	snap.UpdatedAt = time.Now()
	return nil
}

// GetOrderStatus returns a copy of the broker's view of the order.
func (m *Mock) GetOrderStatus(_ context.Context, brokerOrderID string) (*OrderSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, ErrNotConnected
	}
	snap, ok := m.orders[brokerOrderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *snap
	return &cp, nil
}

// GetPositions returns copies of all positions held at the mock.
func (m *Mock) GetPositions(_ context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, ErrNotConnected
	}
	out := make([]domain.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, *pos)
	}
	return out, nil
}

// GetAccount returns the mock's account snapshot. Stock value uses the last
// quotes.
func (m *Mock) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, ErrNotConnected
	}
	stock := decimal.Zero
	for symbol, pos := range m.positions {
		price, ok := m.quotes[symbol]
		if !ok {
			price = pos.AvgCost
		}
		stock = stock.Add(price.Mul(decimal.NewFromInt(pos.Qty)))
	}
	return &domain.AccountInfo{
		Cash:        m.cash,
		Equity:      m.cash.Add(stock),
		StockValue:  stock,
		BuyingPower: m.cash,
	}, nil
}

// GetQuote returns the last seeded quote for the symbol.
func (m *Mock) GetQuote(_ context.Context, symbol string) (*domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, ErrNotConnected
	}
	price, ok := m.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &domain.Quote{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
}
