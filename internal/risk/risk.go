// Package risk implements pre-trade checks applied to every order before
// submission. A rejected order never reaches the broker and never mutates
// portfolio state.
package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/domain"
)

// Rejection reasons. Callers match with errors.Is; the wrapped message
// carries the offending numbers for the order's reject reason.
var (
	ErrInsufficientCash              = errors.New("insufficient cash")
	ErrInsufficientAvailableQuantity = errors.New("insufficient available quantity")
	ErrPositionLimitExceeded         = errors.New("position limit exceeded")
	ErrExposureLimitExceeded         = errors.New("exposure limit exceeded")
	ErrNotionalTooLarge              = errors.New("order notional above maximum")
	ErrNotionalTooSmall              = errors.New("order notional below minimum")
)

// View is the portfolio state the risk checks read. Checks never mutate it.
type View interface {
	Cash() decimal.Decimal
	Equity() decimal.Decimal
	Position(symbol string) *domain.Position
	PositionValue(symbol string) decimal.Decimal
	StockValue() decimal.Decimal
}

// Manager evaluates orders against configured limits.
type Manager struct {
	maxPositionPct   decimal.Decimal
	maxTotalExposure decimal.Decimal
	maxOrderNotional decimal.Decimal
	minOrderNotional decimal.Decimal
}

// NewManager creates a Manager from risk configuration.
func NewManager(cfg config.RiskConfig) *Manager {
	return &Manager{
		maxPositionPct:   decimal.NewFromFloat(cfg.MaxPositionPct),
		maxTotalExposure: decimal.NewFromFloat(cfg.MaxTotalExposure),
		maxOrderNotional: decimal.NewFromFloat(cfg.MaxOrderNotional),
		minOrderNotional: decimal.NewFromFloat(cfg.MinOrderNotional),
	}
}

// Check validates the order against the portfolio at the given reference
// price. Checks run in a fixed sequence and the first failure wins. A nil
// return means the order passed every check.
func (m *Manager) Check(order *domain.Order, pf View, refPrice decimal.Decimal) error {
	notional := order.Notional(refPrice)

	// Funding first: cash for buys, settled shares for sells.
	if order.Side == domain.OrderSideSell {
		var available int64
		if pos := pf.Position(order.Symbol); pos != nil {
			available = pos.AvailableQty
		}
		if order.Qty > available {
			return fmt.Errorf("%w: want %d, available %d",
				ErrInsufficientAvailableQuantity, order.Qty, available)
		}
	} else {
		if notional.GreaterThan(pf.Cash()) {
			return fmt.Errorf("%w: need %s, have %s", ErrInsufficientCash, notional, pf.Cash())
		}

		// Concentration limits only bind on buys; a sell reduces both.
		equity := pf.Equity()
		if equity.IsPositive() {
			posAfter := pf.PositionValue(order.Symbol).Add(notional)
			if posAfter.Div(equity).GreaterThan(m.maxPositionPct) {
				return fmt.Errorf("%w: %s would be %s of equity, cap %s",
					ErrPositionLimitExceeded, order.Symbol, posAfter.Div(equity).Round(4), m.maxPositionPct)
			}

			exposureAfter := pf.StockValue().Add(notional).Div(equity)
			if exposureAfter.GreaterThan(m.maxTotalExposure) {
				return fmt.Errorf("%w: would be %s, cap %s",
					ErrExposureLimitExceeded, exposureAfter.Round(4), m.maxTotalExposure)
			}
		}
	}

	// Notional bounds come last: when several limits are violated at once,
	// the reject reason names the funding or concentration breach.
	if notional.GreaterThan(m.maxOrderNotional) {
		return fmt.Errorf("%w: %s > %s", ErrNotionalTooLarge, notional, m.maxOrderNotional)
	}
	if notional.LessThan(m.minOrderNotional) {
		return fmt.Errorf("%w: %s < %s", ErrNotionalTooSmall, notional, m.minOrderNotional)
	}

	return nil
}
