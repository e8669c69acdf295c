package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/broker"
	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/cost"
	"github.com/Mason55/stock/internal/domain"
	"github.com/Mason55/stock/internal/event"
	"github.com/Mason55/stock/internal/exec"
	"github.com/Mason55/stock/internal/market"
	"github.com/Mason55/stock/internal/order"
	"github.com/Mason55/stock/internal/portfolio"
	"github.com/Mason55/stock/internal/risk"
	"github.com/Mason55/stock/internal/store"
	"github.com/Mason55/stock/internal/strategy"
	"github.com/Mason55/stock/internal/util"
)

// reconcileReport is what the reconcile loop observed at the broker. It is
// handed to the dispatcher so portfolio corrections happen on the single
// writer goroutine.
type reconcileReport struct {
	positions []domain.Position
	account   *domain.AccountInfo
}

// LiveStatus is a point-in-time snapshot of the live engine.
type LiveStatus struct {
	Connected     bool
	Suspended     bool
	PendingOrders int
	QueueDepth    int
	Equity        decimal.Decimal
	Cash          decimal.Decimal
	StartedAt     time.Time
}

// Live runs strategies against a real broker. A single dispatcher goroutine
// owns the portfolio and all strategy state; every other goroutine
// (heartbeat, reconcile, order monitors) communicates with it through the
// event queue or the reconcile channel.
type Live struct {
	cfg      *config.Config
	registry *strategy.Registry
	adapter  broker.Adapter
	repo     store.Repository

	cal      *market.Calendar
	riskMgr  *risk.Manager
	executor *exec.SignalExecutor
	manager  *order.Manager
	limiter  *util.RateLimiter
	log      *slog.Logger

	queue       *event.Queue
	reconcileCh chan reconcileReport

	pf         *portfolio.Portfolio
	currentDay time.Time
	failures   map[string]int
	disabled   map[string]bool

	suspended atomic.Bool
	startedAt time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	status LiveStatus
}

// NewLive wires a live engine. The repo journals every order mutation so a
// restart can recover in-flight orders.
func NewLive(cfg *config.Config, registry *strategy.Registry, adapter broker.Adapter, repo store.Repository) *Live {
	costs := cost.NewModel(cfg.Costs)
	rules := market.NewRules(cfg.Market)
	l := &Live{
		cfg:         cfg,
		registry:    registry,
		adapter:     adapter,
		repo:        repo,
		cal:         market.NewCalendar(cfg.Market.Holidays),
		riskMgr:     risk.NewManager(cfg.Risk),
		executor:    exec.NewSignalExecutor(rules, cfg.Risk),
		limiter:     util.NewRateLimiter(cfg.Trading.MaxOrdersPerSec, int(cfg.Trading.MaxOrdersPerSec)),
		log:         slog.Default().With("component", "live"),
		queue:       event.NewQueue(),
		reconcileCh: make(chan reconcileReport, 1),
		pf:          portfolio.New(decimal.NewFromFloat(cfg.Trading.InitialCapital)),
		failures:    make(map[string]int),
		disabled:    make(map[string]bool),
	}
	l.manager = order.NewManager(adapter, repo, costs, cfg.Trading, cfg.Market.LotSize, l.onOrderUpdate)
	return l
}

// Start connects to the broker, recovers journaled orders, and launches the
// dispatcher, heartbeat, and reconcile loops.
func (l *Live) Start(ctx context.Context) error {
	ctx, l.cancel = context.WithCancel(ctx)
	l.startedAt = time.Now()

	if err := l.adapter.Connect(ctx); err != nil {
		return err
	}
	for _, s := range l.registry.All() {
		if err := s.Init(ctx); err != nil {
			return err
		}
	}
	if err := l.manager.Recover(ctx); err != nil {
		return err
	}
	if err := l.syncFromBroker(ctx); err != nil {
		return err
	}

	l.wg.Add(3)
	go l.dispatch(ctx)
	go l.heartbeat(ctx)
	go l.reconcile(ctx)

	l.log.Info("live engine started",
		"broker", l.adapter.Name(),
		"trading_enabled", l.cfg.Trading.EnableTrading,
		"strategies", l.registry.List(),
	)
	return nil
}

// Stop shuts the engine down: no new events are accepted, queued events
// drain, and order monitors finish.
func (l *Live) Stop() {
	l.queue.Close()
	if l.cancel != nil {
		l.cancel()
	}
	l.manager.Stop()
	l.wg.Wait()
	if err := l.adapter.Close(); err != nil {
		l.log.Warn("closing broker failed", "err", err)
	}
	l.log.Info("live engine stopped")
}

// PushBar feeds one market-data bar into the engine. Safe to call from any
// goroutine; returns false after Stop.
func (l *Live) PushBar(bar domain.Bar) bool {
	return l.queue.Push(event.MarketData{Bar: bar})
}

// Status returns a snapshot of the engine's state.
func (l *Live) Status() LiveStatus {
	l.mu.Lock()
	st := l.status
	l.mu.Unlock()
	st.Connected = l.adapter.IsConnected()
	st.Suspended = l.suspended.Load()
	st.PendingOrders = len(l.manager.Pending())
	st.QueueDepth = l.queue.Len()
	st.StartedAt = l.startedAt
	return st
}

// onOrderUpdate runs on a monitor goroutine; it forwards broker-confirmed
// state changes into the dispatcher via the queue.
func (l *Live) onOrderUpdate(o *domain.Order, fill *domain.Fill) {
	if fill != nil {
		l.queue.Push(event.FillEvent{Fill: *fill})
	}
	l.queue.Push(event.OrderEvent{Order: o, Timestamp: o.UpdatedAt})
}

// syncFromBroker seeds the portfolio from broker truth at startup.
func (l *Live) syncFromBroker(ctx context.Context) error {
	account, err := l.adapter.GetAccount(ctx)
	if err != nil {
		return err
	}
	positions, err := l.adapter.GetPositions(ctx)
	if err != nil {
		return err
	}
	l.pf = portfolio.New(account.Cash)
	for _, pos := range positions {
		l.pf.SeedPosition(pos)
	}
	l.log.Info("synced from broker",
		"cash", account.Cash, "positions", len(positions))
	return nil
}

// ---------------------------------------------------------------------------
// Dispatcher — the single writer
// ---------------------------------------------------------------------------

func (l *Live) dispatch(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case ev, ok := <-l.queue.C():
			if !ok {
				return
			}
			l.handle(ctx, ev)
		case report := <-l.reconcileCh:
			l.applyReconcile(ctx, report)
		case <-ctx.Done():
			// Drain remaining events so pushed fills are not lost.
			for ev := range l.queue.C() {
				l.handle(ctx, ev)
			}
			return
		}
	}
}

func (l *Live) handle(ctx context.Context, ev event.Event) {
	switch e := ev.(type) {
	case event.MarketData:
		l.handleBar(ctx, e.Bar)
	case event.FillEvent:
		l.pf.ApplyFill(&e.Fill)
		l.notifyFill(ctx, e.Fill)
		l.log.Info("fill",
			"order", e.Fill.OrderID, "symbol", e.Fill.Symbol,
			"side", e.Fill.Side, "qty", e.Fill.Qty, "price", e.Fill.Price)
	case event.OrderEvent:
		l.log.Info("order update",
			"order", e.Order.ID, "status", e.Order.Status,
			"filled", e.Order.FilledQty, "reason", e.Order.RejectReason)
	case event.SignalEvent:
		l.handleSignal(ctx, e.Signal)
	}
}

func (l *Live) handleBar(ctx context.Context, bar domain.Bar) {
	day := bar.Timestamp.Truncate(24 * time.Hour)
	if !day.Equal(l.currentDay) {
		l.pf.StartSession()
		l.currentDay = day
	}
	l.pf.Mark(bar.Symbol, decimal.NewFromFloat(bar.Close))
	l.updateStatus()

	for _, s := range l.registry.All() {
		if l.disabled[s.Name()] {
			continue
		}
		signals, err := s.OnBar(ctx, bar)
		if err != nil {
			l.failures[s.Name()]++
			l.log.Warn("strategy failed",
				"strategy", s.Name(), "failures", l.failures[s.Name()], "err", err)
			if l.failures[s.Name()] >= l.cfg.Trading.MaxStrategyFailures {
				l.disabled[s.Name()] = true
				l.log.Error("strategy disabled after repeated failures", "strategy", s.Name())
			}
			continue
		}
		l.failures[s.Name()] = 0
		for _, sig := range signals {
			l.queue.Push(event.SignalEvent{Signal: sig, Timestamp: sig.CreatedAt})
		}
	}
}

func (l *Live) handleSignal(ctx context.Context, sig domain.Signal) {
	if l.suspended.Load() {
		l.log.Warn("signal dropped while suspended",
			"strategy", sig.StrategyID, "symbol", sig.Symbol, "type", sig.Type)
		return
	}

	refPrice, ok := l.pf.LastPrice(sig.Symbol)
	if !ok {
		l.log.Warn("signal for unpriced symbol", "symbol", sig.Symbol)
		return
	}

	o := l.executor.BuildOrder(sig, l.pf, refPrice, time.Now())
	if o == nil {
		return
	}
	if err := o.Validate(l.cfg.Market.LotSize); err != nil {
		l.log.Error("order failed validation",
			"strategy", sig.StrategyID, "symbol", sig.Symbol, "err", err)
		return
	}
	o.Status = domain.OrderStatusValidated

	if err := l.riskMgr.Check(o, l.pf, refPrice); err != nil {
		if rerr := l.manager.Reject(ctx, o, err.Error()); rerr != nil {
			l.log.Error("persisting rejection failed", "order", o.ID, "err", rerr)
		}
		return
	}

	if !l.cfg.Trading.EnableTrading {
		l.log.Info("trading disabled, order not submitted",
			"symbol", o.Symbol, "side", o.Side, "qty", o.Qty)
		return
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return
	}
	if err := l.manager.Submit(ctx, o); err != nil {
		l.log.Error("order submission failed", "order", o.ID, "err", err)
	}
}

func (l *Live) notifyFill(ctx context.Context, fill domain.Fill) {
	for _, s := range l.registry.All() {
		if h, ok := s.(strategy.FillHandler); ok {
			if err := h.OnFill(ctx, fill); err != nil {
				l.log.Warn("fill handler failed", "strategy", s.Name(), "err", err)
			}
		}
	}
}

func (l *Live) updateStatus() {
	l.mu.Lock()
	l.status.Equity = l.pf.Equity()
	l.status.Cash = l.pf.Cash()
	l.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Heartbeat — connection supervision
// ---------------------------------------------------------------------------

// heartbeat pings the broker on a fixed interval. While the broker is
// unreachable, trading is suspended and reconnection retries back off
// exponentially.
func (l *Live) heartbeat(ctx context.Context) {
	defer l.wg.Done()
	interval := time.Duration(l.cfg.Trading.HeartbeatIntervalS) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := l.adapter.GetAccount(ctx); err == nil {
			if l.suspended.CompareAndSwap(true, false) {
				l.log.Info("broker connection restored, trading resumed")
			}
			continue
		}

		if l.suspended.CompareAndSwap(false, true) {
			l.log.Error("broker heartbeat failed, trading suspended")
		}
		l.reconnect(ctx)
	}
}

// reconnect retries Connect with exponential backoff until it succeeds or
// the engine stops.
func (l *Live) reconnect(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = time.Duration(l.cfg.Trading.HeartbeatIntervalS) * time.Second
	bo.MaxElapsedTime = 0 // retry until stopped

	err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return l.adapter.Connect(ctx)
	}, backoff.WithContext(bo, ctx))

	if err == nil {
		l.suspended.Store(false)
		l.log.Info("reconnected to broker, trading resumed")
	}
}

// ---------------------------------------------------------------------------
// Reconcile — broker truth wins
// ---------------------------------------------------------------------------

// reconcile periodically fetches broker state and hands it to the dispatcher
// for drift correction, then samples the equity curve.
func (l *Live) reconcile(ctx context.Context) {
	defer l.wg.Done()
	interval := time.Duration(l.cfg.Trading.ReconcileIntervalS) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		positions, err := l.adapter.GetPositions(ctx)
		if err != nil {
			l.log.Warn("reconcile: fetching positions failed", "err", err)
			continue
		}
		account, err := l.adapter.GetAccount(ctx)
		if err != nil {
			l.log.Warn("reconcile: fetching account failed", "err", err)
			continue
		}

		select {
		case l.reconcileCh <- reconcileReport{positions: positions, account: account}:
		case <-ctx.Done():
			return
		}
	}
}

// applyReconcile corrects local positions against broker truth. Runs on the
// dispatcher goroutine.
func (l *Live) applyReconcile(ctx context.Context, report reconcileReport) {
	brokerQty := make(map[string]int64, len(report.positions))
	for _, pos := range report.positions {
		brokerQty[pos.Symbol] = pos.Qty
	}

	for _, local := range l.pf.Positions() {
		if got, want := local.Qty, brokerQty[local.Symbol]; got != want {
			l.log.Warn("position drift detected",
				"symbol", local.Symbol, "local", got, "broker", want)
			l.pf.CorrectPosition(local.Symbol, want)
		}
		delete(brokerQty, local.Symbol)
	}
	for symbol, qty := range brokerQty {
		l.log.Warn("position missing locally", "symbol", symbol, "broker", qty)
		for _, pos := range report.positions {
			if pos.Symbol == symbol {
				l.pf.SeedPosition(pos)
			}
		}
	}

	if !l.pf.Cash().Equal(report.account.Cash) {
		l.log.Warn("cash drift detected",
			"local", l.pf.Cash(), "broker", report.account.Cash)
		l.pf.CorrectCash(report.account.Cash)
	}

	l.updateStatus()
	if err := l.repo.SaveEquityPoint(ctx, domain.EquityPoint{
		Timestamp: time.Now(),
		Equity:    l.pf.Equity(),
		Cash:      l.pf.Cash(),
	}); err != nil {
		l.log.Warn("persisting equity point failed", "err", err)
	}
}
