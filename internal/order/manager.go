// Package order manages the live order lifecycle: submission, status
// monitoring, cancellation, and crash recovery. Every state change is
// persisted to the journal before the manager acts on it, so a restart can
// resume from durable state.
package order

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Mason55/stock/internal/broker"
	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/cost"
	"github.com/Mason55/stock/internal/domain"
	"github.com/Mason55/stock/internal/store"
)

// UpdateFunc is invoked on every order state change. fill is non-nil when
// the change includes an execution. Callbacks run on monitor goroutines; the
// receiver must hand off to its own loop.
type UpdateFunc func(order *domain.Order, fill *domain.Fill)

// Manager tracks in-flight orders and drives them through the lifecycle
// state machine against the broker.
type Manager struct {
	broker   broker.Adapter
	repo     store.Repository
	costs    *cost.Model
	onUpdate UpdateFunc
	log      *slog.Logger

	maxRetries   int
	pollInterval time.Duration
	lotSize      int64

	mu      sync.Mutex
	pending map[string]*domain.Order

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a Manager. lotSize is the exchange lot used for
// pre-submission validation; onUpdate may be nil.
func NewManager(b broker.Adapter, repo store.Repository, costs *cost.Model, cfg config.Trading, lotSize int64, onUpdate UpdateFunc) *Manager {
	return &Manager{
		broker:       b,
		repo:         repo,
		costs:        costs,
		onUpdate:     onUpdate,
		log:          slog.Default().With("component", "order-manager"),
		maxRetries:   cfg.MonitorMaxRetries,
		pollInterval: time.Duration(cfg.MonitorPollMs) * time.Millisecond,
		lotSize:      lotSize,
		pending:      make(map[string]*domain.Order),
		stopCh:       make(chan struct{}),
	}
}

// Submit persists and submits a validated order, then starts a monitor
// goroutine that polls the broker until the order reaches a terminal state.
// The order's shape is re-checked here so a mislabeled order can never reach
// the broker; a placement failure transitions the order to rejected.
func (m *Manager) Submit(ctx context.Context, o *domain.Order) error {
	if o.Status != domain.OrderStatusValidated {
		return fmt.Errorf("submitting order %s: status %s, want validated", o.ID, o.Status)
	}
	if err := o.Validate(m.lotSize); err != nil {
		return fmt.Errorf("submitting order %s: %w", o.ID, err)
	}
	if err := m.repo.SaveOrder(ctx, o); err != nil {
		return err
	}
	if err := m.transition(ctx, o, domain.OrderStatusSubmitted, ""); err != nil {
		return err
	}

	brokerID, err := m.broker.PlaceOrder(ctx, o)
	if err != nil {
		if terr := m.transition(ctx, o, domain.OrderStatusRejected, err.Error()); terr != nil {
			return terr
		}
		m.notify(o, nil)
		return fmt.Errorf("placing order %s: %w", o.ID, err)
	}

	o.BrokerOrderID = brokerID
	if err := m.transition(ctx, o, domain.OrderStatusAccepted, ""); err != nil {
		return err
	}
	m.notify(o, nil)

	m.track(o)
	return nil
}

// Reject persists a validated order straight to rejected, for orders that
// fail pre-trade checks.
func (m *Manager) Reject(ctx context.Context, o *domain.Order, reason string) error {
	if err := m.repo.SaveOrder(ctx, o); err != nil {
		return err
	}
	if err := m.transition(ctx, o, domain.OrderStatusRejected, reason); err != nil {
		return err
	}
	m.notify(o, nil)
	return nil
}

// Cancel requests cancellation of a pending order. The monitor observes the
// resulting state from the broker.
func (m *Manager) Cancel(ctx context.Context, orderID string) error {
	m.mu.Lock()
	o, ok := m.pending[orderID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("canceling order %s: not pending", orderID)
	}
	if !o.CanCancel() {
		return fmt.Errorf("canceling order %s: status %s not cancelable", orderID, o.Status)
	}
	return m.broker.CancelOrder(ctx, o.BrokerOrderID)
}

// Pending returns copies of all orders currently being monitored.
func (m *Manager) Pending() []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Order, 0, len(m.pending))
	for _, o := range m.pending {
		out = append(out, *o)
	}
	return out
}

// Recover reloads non-terminal orders from the journal after a restart.
// Orders that reached the broker resume monitoring; orders that never got a
// broker ID are rejected, since their submission outcome is unknowable.
func (m *Manager) Recover(ctx context.Context) error {
	orders, err := m.repo.PendingOrders(ctx)
	if err != nil {
		return fmt.Errorf("recovering orders: %w", err)
	}

	for i := range orders {
		o := orders[i]
		switch {
		case o.Status == domain.OrderStatusUnknown:
			// Frozen for manual reconciliation; leave it alone.
			m.log.Warn("skipping frozen order", "order", o.ID)
		case o.BrokerOrderID == "":
			o.Status = domain.OrderStatusRejected
			o.RejectReason = "lost before submission"
			o.UpdatedAt = time.Now()
			if err := m.repo.UpdateOrder(ctx, &o); err != nil {
				return err
			}
			m.log.Warn("rejected unsubmitted order from journal", "order", o.ID)
		default:
			m.log.Info("resuming order monitor", "order", o.ID, "status", o.Status)
			m.track(&o)
		}
	}
	return nil
}

// Stop terminates all monitor goroutines and waits for them to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// track registers the order as pending and starts its monitor.
func (m *Manager) track(o *domain.Order) {
	m.mu.Lock()
	m.pending[o.ID] = o
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.monitor(o)
	}()
}

// untrack removes the order from the pending set.
func (m *Manager) untrack(orderID string) {
	m.mu.Lock()
	delete(m.pending, orderID)
	m.mu.Unlock()
}

// monitor polls the broker for the order's status until it reaches a
// terminal state. Consecutive poll failures back off exponentially; after
// maxRetries the order freezes as unknown rather than guessing.
func (m *Manager) monitor(o *domain.Order) {
	defer m.untrack(o.ID)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.pollInterval
	bo.MaxInterval = 30 * time.Second
	failures := 0
	wait := m.pollInterval

	for {
		select {
		case <-m.stopCh:
			return
		case <-time.After(wait):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		snap, err := m.broker.GetOrderStatus(ctx, o.BrokerOrderID)
		cancel()

		if err != nil {
			failures++
			m.log.Warn("status poll failed",
				"order", o.ID, "attempt", failures, "err", err)
			if failures >= m.maxRetries {
				m.freeze(o)
				return
			}
			wait = bo.NextBackOff()
			continue
		}
		failures = 0
		bo.Reset()
		wait = m.pollInterval

		done, err := m.apply(o, snap)
		if err != nil {
			m.log.Error("applying order update failed", "order", o.ID, "err", err)
			return
		}
		if done {
			return
		}
	}
}

// apply reconciles a broker snapshot into the local order. Returns true when
// the order reached a terminal state.
func (m *Manager) apply(o *domain.Order, snap *broker.OrderSnapshot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var fill *domain.Fill
	if delta := snap.FilledQty - o.FilledQty; delta > 0 {
		fill = &domain.Fill{
			ID:        fmt.Sprintf("%s-%d", o.ID, snap.FilledQty),
			OrderID:   o.ID,
			Symbol:    o.Symbol,
			Side:      o.Side,
			Qty:       delta,
			Price:     snap.AvgFillPrice,
			Timestamp: snap.UpdatedAt,
		}
		if m.costs != nil {
			fill.Fees = m.costs.Cost(o.Side, fill.Price, delta)
		}
	}

	changed := fill != nil || snap.Status != o.Status
	if !changed {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if fill != nil {
		if err := m.repo.SaveFill(ctx, fill); err != nil {
			return false, err
		}
		o.FilledQty = snap.FilledQty
		o.AvgFillPrice = snap.AvgFillPrice
	}

	if snap.Status != o.Status {
		if !domain.CanTransition(o.Status, snap.Status) {
			return false, fmt.Errorf("illegal transition %s -> %s for order %s",
				o.Status, snap.Status, o.ID)
		}
		o.Status = snap.Status
	}
	o.UpdatedAt = snap.UpdatedAt
	if err := m.repo.UpdateOrder(ctx, o); err != nil {
		return false, err
	}

	m.notify(o, fill)
	return o.Status.IsTerminal(), nil
}

// freeze marks the order unknown after exhausting status polls. The order
// stays out of the pending set until a human reconciles it.
func (m *Manager) freeze(o *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if !domain.CanTransition(o.Status, domain.OrderStatusUnknown) {
		return
	}
	o.Status = domain.OrderStatusUnknown
	o.UpdatedAt = time.Now()
	if err := m.repo.UpdateOrder(ctx, o); err != nil {
		m.log.Error("persisting frozen order failed", "order", o.ID, "err", err)
	}
	m.log.Error("order frozen after exhausted status polls", "order", o.ID)
	m.notify(o, nil)
}

// transition moves the order to the next status and persists it. The status
// graph is enforced here; an illegal transition is a bug.
func (m *Manager) transition(ctx context.Context, o *domain.Order, to domain.OrderStatus, reason string) error {
	if !domain.CanTransition(o.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s for order %s", o.Status, to, o.ID)
	}
	o.Status = to
	o.RejectReason = reason
	o.UpdatedAt = time.Now()
	return m.repo.UpdateOrder(ctx, o)
}

func (m *Manager) notify(o *domain.Order, fill *domain.Fill) {
	if m.onUpdate == nil {
		return
	}
	cp := *o
	m.onUpdate(&cp, fill)
}
