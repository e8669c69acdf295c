package market

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/cost"
	"github.com/Mason55/stock/internal/domain"
)

// Rejection reasons returned by Match. ErrNotCrossed is not a rejection: the
// order simply did not trade on this bar and may trade later.
var (
	ErrOutsideTradingHours           = errors.New("outside trading hours")
	ErrSuspended                     = errors.New("instrument suspended")
	ErrPriceLimitExceeded            = errors.New("price limit exceeded")
	ErrInsufficientAvailableQuantity = errors.New("insufficient available quantity")
	ErrInvalidLotSize                = errors.New("quantity not a lot multiple")
	ErrNoLiquidity                   = errors.New("no liquidity within participation cap")
	ErrNotCrossed                    = errors.New("limit price not crossed")
)

// Simulator matches orders against historical bars under exchange rules.
// Backtest only: live fills come from the broker.
type Simulator struct {
	rules *Rules
	cal   *Calendar
	costs *cost.Model

	sameBarFill      bool
	clampPriceLimit  bool
	baseImpact       decimal.Decimal
	maxImpact        decimal.Decimal
	maxParticipation decimal.Decimal
}

// NewSimulator creates a Simulator from market configuration and the shared
// calendar and cost model.
func NewSimulator(cfg config.MarketConfig, cal *Calendar, costs *cost.Model) *Simulator {
	return &Simulator{
		rules:            NewRules(cfg),
		cal:              cal,
		costs:            costs,
		sameBarFill:      cfg.SameBarFill,
		clampPriceLimit:  cfg.ClampPriceLimit,
		baseImpact:       decimal.NewFromFloat(cfg.BaseImpact),
		maxImpact:        decimal.NewFromFloat(cfg.MaxImpact),
		maxParticipation: decimal.NewFromFloat(cfg.MaxParticipationRate),
	}
}

// Rules exposes the simulator's exchange rules for validation elsewhere.
func (s *Simulator) Rules() *Rules { return s.rules }

// Match attempts to execute the order against one bar. pos is the current
// position in the order's symbol (nil when flat) and is only consulted for
// the T+1 availability check on sells. Checks apply in a fixed sequence:
// trading hours, price limits, T+1 availability, lot size, then price
// formation and the liquidity cap. Partial fills occur when the
// participation cap binds.
func (s *Simulator) Match(order *domain.Order, bar domain.Bar, pos *domain.Position) (*domain.Fill, error) {
	if !s.cal.WithinTradingHours(bar.Timestamp) {
		return nil, ErrOutsideTradingHours
	}
	if bar.Suspended {
		return nil, ErrSuspended
	}

	prevClose := decimal.NewFromFloat(bar.PrevClose)
	upper, lower := s.rules.PriceLimits(order.Symbol, prevClose)

	limitPrice := order.LimitPrice
	if order.Type == domain.OrderTypeLimit {
		if limitPrice.GreaterThan(upper) || limitPrice.LessThan(lower) {
			if !s.clampPriceLimit {
				return nil, ErrPriceLimitExceeded
			}
			if limitPrice.GreaterThan(upper) {
				limitPrice = upper
			} else {
				limitPrice = lower
			}
		}
	} else {
		// A market buy cannot fill when the bar is pinned limit-up (no
		// sellers), nor a market sell when pinned limit-down.
		closeP := decimal.NewFromFloat(bar.Close)
		if order.Side == domain.OrderSideBuy && closeP.GreaterThanOrEqual(upper) {
			return nil, ErrPriceLimitExceeded
		}
		if order.Side == domain.OrderSideSell && closeP.LessThanOrEqual(lower) {
			return nil, ErrPriceLimitExceeded
		}
	}

	if order.Side == domain.OrderSideSell {
		var available int64
		if pos != nil {
			available = pos.AvailableQty
		}
		if order.Qty > available {
			return nil, ErrInsufficientAvailableQuantity
		}
	}

	if !s.rules.ValidLot(order.Qty) {
		return nil, ErrInvalidLotSize
	}

	var price decimal.Decimal
	switch order.Type {
	case domain.OrderTypeMarket:
		price = s.marketFillPrice(order, bar, upper, lower)
	case domain.OrderTypeLimit:
		if !s.limitCrosses(order.Side, limitPrice, bar) {
			return nil, ErrNotCrossed
		}
		price = limitPrice
	}

	qty := s.cappedQty(order.Qty, bar.Volume)
	if qty == 0 {
		return nil, ErrNoLiquidity
	}

	return &domain.Fill{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Qty:       qty,
		Price:     price,
		Fees:      s.costs.Cost(order.Side, price, qty),
		Timestamp: fillTime(bar),
	}, nil
}

// marketFillPrice prices a market order off the bar's open (or close when
// same-bar fill is configured), pushed by a volume-proportional impact and
// clamped to the daily band.
func (s *Simulator) marketFillPrice(order *domain.Order, bar domain.Bar, upper, lower decimal.Decimal) decimal.Decimal {
	base := decimal.NewFromFloat(bar.Open)
	if s.sameBarFill {
		base = decimal.NewFromFloat(bar.Close)
	}

	impact := decimal.Zero
	if bar.Volume > 0 {
		ratio := decimal.NewFromInt(order.Qty).Div(decimal.NewFromInt(bar.Volume))
		impact = s.baseImpact.Mul(ratio)
		if impact.GreaterThan(s.maxImpact) {
			impact = s.maxImpact
		}
	}

	var price decimal.Decimal
	if order.Side == domain.OrderSideBuy {
		price = base.Mul(decimal.NewFromInt(1).Add(impact))
		if price.GreaterThan(upper) {
			price = upper
		}
	} else {
		price = base.Mul(decimal.NewFromInt(1).Sub(impact))
		if price.LessThan(lower) {
			price = lower
		}
	}
	return RoundToTick(price)
}

// limitCrosses reports whether the bar's range reached the limit price: a buy
// fills when the bar traded at or below the limit, a sell at or above.
func (s *Simulator) limitCrosses(side domain.OrderSide, limit decimal.Decimal, bar domain.Bar) bool {
	if side == domain.OrderSideBuy {
		return limit.GreaterThanOrEqual(decimal.NewFromFloat(bar.Low))
	}
	return limit.LessThanOrEqual(decimal.NewFromFloat(bar.High))
}

// cappedQty limits the fill to the participation cap of bar volume, rounded
// down to a lot.
func (s *Simulator) cappedQty(qty, volume int64) int64 {
	if volume <= 0 {
		return 0
	}
	maxQty := s.rules.FloorToLot(decimal.NewFromInt(volume).Mul(s.maxParticipation).IntPart())
	if qty < maxQty {
		return qty
	}
	return maxQty
}

func fillTime(bar domain.Bar) time.Time { return bar.Timestamp }
