// Package exec translates strategy signals into concrete orders. Sizing is
// deterministic: the same signal against the same portfolio state always
// produces the same order.
package exec

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/domain"
	"github.com/Mason55/stock/internal/market"
	"github.com/Mason55/stock/internal/portfolio"
)

// SignalExecutor sizes orders from signals. Buys allocate a fraction of free
// cash scaled by signal strength; sells liquidate a strength-scaled fraction
// of the position, capped at what T+1 makes available.
type SignalExecutor struct {
	rules          *market.Rules
	maxPositionPct decimal.Decimal
}

// NewSignalExecutor creates an executor using the exchange rules for lot
// flooring and the risk config's position cap as the per-trade allocation.
func NewSignalExecutor(rules *market.Rules, cfg config.RiskConfig) *SignalExecutor {
	return &SignalExecutor{
		rules:          rules,
		maxPositionPct: decimal.NewFromFloat(cfg.MaxPositionPct),
	}
}

// BuildOrder converts a signal into an order at the given reference price.
// Returns nil when the signal is a hold or the sized quantity rounds below
// one lot; that is not an error, just nothing to do.
func (e *SignalExecutor) BuildOrder(sig domain.Signal, pf *portfolio.Portfolio, refPrice decimal.Decimal, now time.Time) *domain.Order {
	var qty int64
	var side domain.OrderSide

	switch sig.Type {
	case domain.SignalTypeBuy:
		side = domain.OrderSideBuy
		qty = e.buyQty(sig, pf, refPrice)
	case domain.SignalTypeSell:
		side = domain.OrderSideSell
		qty = e.sellQty(sig, pf)
	default:
		return nil
	}
	if qty <= 0 {
		return nil
	}

	return &domain.Order{
		ID:         uuid.NewString(),
		Symbol:     sig.Symbol,
		Side:       side,
		Type:       domain.OrderTypeMarket,
		Qty:        qty,
		Status:     domain.OrderStatusCreated,
		StrategyID: sig.StrategyID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// buyQty allocates maxPositionPct of free cash, scaled by strength, floored
// to a lot.
func (e *SignalExecutor) buyQty(sig domain.Signal, pf *portfolio.Portfolio, refPrice decimal.Decimal) int64 {
	if refPrice.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	budget := pf.Cash().Mul(e.maxPositionPct).Mul(decimal.NewFromFloat(sig.Strength))
	return e.rules.FloorToLot(budget.Div(refPrice).IntPart())
}

// sellQty liquidates a strength-scaled fraction of the position, floored to
// a lot and capped at the T+1 available quantity.
func (e *SignalExecutor) sellQty(sig domain.Signal, pf *portfolio.Portfolio) int64 {
	pos := pf.Position(sig.Symbol)
	if pos == nil {
		return 0
	}
	qty := e.rules.FloorToLot(decimal.NewFromInt(pos.Qty).
		Mul(decimal.NewFromFloat(sig.Strength)).IntPart())
	if qty > pos.AvailableQty {
		qty = e.rules.FloorToLot(pos.AvailableQty)
	}
	return qty
}
