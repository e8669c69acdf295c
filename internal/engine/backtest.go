// Package engine coordinates strategies, risk checks, execution, and
// persistence. The Backtest replays historical bars through the full order
// lifecycle deterministically; the Live engine drives the same components
// against a real broker.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/cost"
	"github.com/Mason55/stock/internal/domain"
	"github.com/Mason55/stock/internal/exec"
	"github.com/Mason55/stock/internal/market"
	"github.com/Mason55/stock/internal/portfolio"
	"github.com/Mason55/stock/internal/risk"
	"github.com/Mason55/stock/internal/store"
	"github.com/Mason55/stock/internal/strategy"
)

// Result is the outcome of a backtest run.
type Result struct {
	Performance Performance
	EquityCurve []domain.EquityPoint
	Fills       []domain.Fill
	FinalEquity decimal.Decimal
	Orders      int
	Rejected    int
}

// Backtest replays bars through registered strategies and simulates fills
// under exchange rules. Runs are single-threaded and deterministic: the same
// data and configuration always produce the same trades.
type Backtest struct {
	cfg      *config.Config
	registry *strategy.Registry
	bars     store.BarSource

	cal      *market.Calendar
	sim      *market.Simulator
	riskMgr  *risk.Manager
	executor *exec.SignalExecutor
	log      *slog.Logger

	// Per-run state.
	pf       *portfolio.Portfolio
	repo     *store.MemoryRepository
	pending  []*domain.Order
	failures map[string]int
	disabled map[string]bool
	orders   int
	rejected int
}

// NewBacktest creates a Backtest from configuration, a strategy registry,
// and a bar source.
func NewBacktest(cfg *config.Config, registry *strategy.Registry, bars store.BarSource) *Backtest {
	cal := market.NewCalendar(cfg.Market.Holidays)
	costs := cost.NewModel(cfg.Costs)
	sim := market.NewSimulator(cfg.Market, cal, costs)
	return &Backtest{
		cfg:      cfg,
		registry: registry,
		bars:     bars,
		cal:      cal,
		sim:      sim,
		riskMgr:  risk.NewManager(cfg.Risk),
		executor: exec.NewSignalExecutor(sim.Rules(), cfg.Risk),
		log:      slog.Default().With("component", "backtest"),
	}
}

// Run replays all bars for the given symbols within [start, end] and returns
// the run's performance. Strategies that keep erroring are disabled after
// MaxStrategyFailures rather than aborting the run.
func (b *Backtest) Run(ctx context.Context, mkt domain.Market, symbols []string, start, end time.Time) (*Result, error) {
	b.pf = portfolio.New(decimal.NewFromFloat(b.cfg.Trading.InitialCapital))
	b.repo = store.NewMemoryRepository()
	b.pending = nil
	b.failures = make(map[string]int)
	b.disabled = make(map[string]bool)
	b.orders, b.rejected = 0, 0

	for _, s := range b.registry.All() {
		if err := s.Init(ctx); err != nil {
			return nil, fmt.Errorf("initializing strategy %s: %w", s.Name(), err)
		}
	}

	bars, err := b.loadBars(ctx, mkt, symbols, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars for %v in [%s, %s]", symbols, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	var currentDay time.Time
	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		day := bar.Timestamp.Truncate(24 * time.Hour)
		if !day.Equal(currentDay) {
			if !currentDay.IsZero() {
				b.endSession(ctx, currentDay)
			}
			b.pf.StartSession()
			currentDay = day
		}

		b.matchPending(ctx, bar)
		b.pf.Mark(bar.Symbol, decimal.NewFromFloat(bar.Close))
		b.dispatchBar(ctx, bar)
	}
	b.endSession(ctx, currentDay)
	b.expireAll(ctx)

	curve := b.pf.EquityCurve()
	fills := b.repo.AllFills()
	return &Result{
		Performance: ComputePerformance(curve, fills),
		EquityCurve: curve,
		Fills:       fills,
		FinalEquity: b.pf.Equity(),
		Orders:      b.orders,
		Rejected:    b.rejected,
	}, nil
}

// loadBars reads and merges bars for all symbols, sorted by timestamp with
// symbol as the tiebreaker so runs are order-stable.
func (b *Backtest) loadBars(ctx context.Context, mkt domain.Market, symbols []string, start, end time.Time) ([]domain.Bar, error) {
	var all []domain.Bar
	for _, symbol := range symbols {
		bars, err := b.bars.ReadBars(ctx, symbol, mkt, start, end)
		if err != nil {
			return nil, fmt.Errorf("loading bars for %s: %w", symbol, err)
		}
		all = append(all, bars...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].Timestamp.Before(all[j].Timestamp)
		}
		return all[i].Symbol < all[j].Symbol
	})
	return all, nil
}

// dispatchBar feeds the bar to every enabled strategy and turns the
// resulting signals into orders.
func (b *Backtest) dispatchBar(ctx context.Context, bar domain.Bar) {
	for _, s := range b.registry.All() {
		if b.disabled[s.Name()] {
			continue
		}
		signals, err := s.OnBar(ctx, bar)
		if err != nil {
			b.failures[s.Name()]++
			b.log.Warn("strategy failed",
				"strategy", s.Name(), "failures", b.failures[s.Name()], "err", err)
			if b.failures[s.Name()] >= b.cfg.Trading.MaxStrategyFailures {
				b.disabled[s.Name()] = true
				b.log.Error("strategy disabled after repeated failures", "strategy", s.Name())
			}
			continue
		}
		b.failures[s.Name()] = 0
		for _, sig := range signals {
			b.handleSignal(ctx, sig, bar)
		}
	}
}

// handleSignal sizes, validates, and enqueues an order for the signal. A
// malformed order is dropped before it is journaled; validation failures are
// never retried. Market orders fill on the next bar; with SameBarFill they
// match this one.
func (b *Backtest) handleSignal(ctx context.Context, sig domain.Signal, bar domain.Bar) {
	refPrice := decimal.NewFromFloat(bar.Close)
	o := b.executor.BuildOrder(sig, b.pf, refPrice, bar.Timestamp)
	if o == nil {
		return
	}
	b.orders++

	if err := o.Validate(b.cfg.Market.LotSize); err != nil {
		b.rejected++
		b.log.Error("order failed validation",
			"strategy", sig.StrategyID, "symbol", sig.Symbol, "err", err)
		return
	}

	if err := b.repo.SaveOrder(ctx, o); err != nil {
		b.log.Error("saving order failed", "order", o.ID, "err", err)
		return
	}
	b.transition(ctx, o, domain.OrderStatusValidated, "")

	if err := b.riskMgr.Check(o, b.pf, refPrice); err != nil {
		b.rejected++
		b.transition(ctx, o, domain.OrderStatusRejected, err.Error())
		b.log.Debug("order rejected by risk", "order", o.ID, "reason", err)
		return
	}

	b.transition(ctx, o, domain.OrderStatusSubmitted, "")
	if b.cfg.Market.SameBarFill {
		b.tryMatch(ctx, o, bar)
		return
	}
	b.pending = append(b.pending, o)
}

// matchPending attempts all queued orders for the bar's symbol against it.
func (b *Backtest) matchPending(ctx context.Context, bar domain.Bar) {
	remaining := b.pending[:0]
	for _, o := range b.pending {
		if o.Symbol != bar.Symbol {
			remaining = append(remaining, o)
			continue
		}
		if b.tryMatch(ctx, o, bar) {
			remaining = append(remaining, o)
		}
	}
	b.pending = remaining
}

// tryMatch runs the order against the bar. Returns true when the order
// should stay queued for a later bar.
func (b *Backtest) tryMatch(ctx context.Context, o *domain.Order, bar domain.Bar) bool {
	if o.Status == domain.OrderStatusSubmitted {
		b.transition(ctx, o, domain.OrderStatusAccepted, "")
	}

	attempt := *o
	attempt.Qty = o.Qty - o.FilledQty
	fill, err := b.sim.Match(&attempt, bar, b.pf.Position(o.Symbol))
	if err != nil {
		switch {
		case errors.Is(err, market.ErrNotCrossed),
			errors.Is(err, market.ErrNoLiquidity),
			errors.Is(err, market.ErrSuspended):
			// Nothing traded on this bar; the order lives until session end.
			return true
		default:
			b.rejected++
			b.transition(ctx, o, domain.OrderStatusRejected, err.Error())
			return false
		}
	}

	b.applyFill(ctx, o, fill)
	return o.FilledQty < o.Qty
}

// applyFill books the fill into the order, portfolio, and journal, and
// notifies strategies that track their executions.
func (b *Backtest) applyFill(ctx context.Context, o *domain.Order, fill *domain.Fill) {
	oldValue := o.AvgFillPrice.Mul(decimal.NewFromInt(o.FilledQty))
	o.FilledQty += fill.Qty
	o.AvgFillPrice = oldValue.Add(fill.GrossValue()).Div(decimal.NewFromInt(o.FilledQty))

	if o.FilledQty >= o.Qty {
		b.transition(ctx, o, domain.OrderStatusFilled, "")
	} else {
		b.transition(ctx, o, domain.OrderStatusPartialFilled, "")
	}

	if err := b.repo.SaveFill(ctx, fill); err != nil {
		b.log.Error("saving fill failed", "fill", fill.ID, "err", err)
	}
	b.pf.ApplyFill(fill)

	for _, s := range b.registry.All() {
		if h, ok := s.(strategy.FillHandler); ok && s.Name() == o.StrategyID {
			if err := h.OnFill(ctx, *fill); err != nil {
				b.log.Warn("fill handler failed", "strategy", s.Name(), "err", err)
			}
		}
	}
}

// endSession expires day orders that have had their matching session and
// samples the equity curve. An order queued from day T's signal fills at day
// T+1's open, so it must survive exactly one rollover: orders queued during
// `day` stay pending, orders queued before it expire.
func (b *Backtest) endSession(ctx context.Context, day time.Time) {
	remaining := b.pending[:0]
	for _, o := range b.pending {
		if !o.CreatedAt.Truncate(24 * time.Hour).Before(day) {
			remaining = append(remaining, o)
			continue
		}
		b.expire(ctx, o)
	}
	b.pending = remaining
	b.pf.RecordEquity(day)
}

// expireAll force-expires whatever is still queued when the run ends.
func (b *Backtest) expireAll(ctx context.Context) {
	for _, o := range b.pending {
		b.expire(ctx, o)
	}
	b.pending = nil
}

func (b *Backtest) expire(ctx context.Context, o *domain.Order) {
	if o.Status == domain.OrderStatusSubmitted {
		b.transition(ctx, o, domain.OrderStatusAccepted, "")
	}
	b.transition(ctx, o, domain.OrderStatusExpired, "unfilled at session end")
}

// transition advances the order's lifecycle state and persists it. Illegal
// transitions indicate an engine bug and are logged loudly.
func (b *Backtest) transition(ctx context.Context, o *domain.Order, to domain.OrderStatus, reason string) {
	if !domain.CanTransition(o.Status, to) {
		b.log.Error("illegal order transition",
			"order", o.ID, "from", o.Status, "to", to)
		return
	}
	o.Status = to
	if reason != "" {
		o.RejectReason = reason
	}
	o.UpdatedAt = time.Now()
	if err := b.repo.UpdateOrder(ctx, o); err != nil {
		b.log.Error("persisting order failed", "order", o.ID, "err", err)
	}
}
