// Package portfolio tracks cash, positions, and the equity curve. All
// mutation goes through ApplyFill and StartSession so the T+1 availability
// invariant cannot be violated from outside.
package portfolio

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/domain"
)

// Portfolio is the authoritative account state during a backtest or live
// session. It is not safe for concurrent use; the engine serializes access.
type Portfolio struct {
	cash      decimal.Decimal
	positions map[string]*domain.Position

	// pendingAvail accumulates shares bought in the current session, which
	// become sellable at the next session rollover.
	pendingAvail map[string]int64

	lastPrices map[string]decimal.Decimal
	curve      []domain.EquityPoint
}

// New creates a Portfolio with the given starting cash.
func New(initialCash decimal.Decimal) *Portfolio {
	return &Portfolio{
		cash:         initialCash,
		positions:    make(map[string]*domain.Position),
		pendingAvail: make(map[string]int64),
		lastPrices:   make(map[string]decimal.Decimal),
	}
}

// Cash returns the free cash balance.
func (p *Portfolio) Cash() decimal.Decimal { return p.cash }

// Position returns the position in symbol, or nil when flat.
func (p *Portfolio) Position(symbol string) *domain.Position {
	return p.positions[symbol]
}

// Positions returns all open positions sorted by symbol.
func (p *Portfolio) Positions() []*domain.Position {
	out := make([]*domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ApplyFill updates cash and positions for one execution. Buys add shares
// that stay unavailable until the next session; sells consume available
// shares first. Average cost is volume-weighted and unchanged by sells.
func (p *Portfolio) ApplyFill(fill *domain.Fill) {
	p.cash = p.cash.Add(fill.NetCash())

	pos := p.positions[fill.Symbol]
	if pos == nil {
		pos = &domain.Position{Symbol: fill.Symbol, AvgCost: decimal.Zero}
		p.positions[fill.Symbol] = pos
	}

	if fill.Side == domain.OrderSideBuy {
		oldValue := pos.AvgCost.Mul(decimal.NewFromInt(pos.Qty))
		newQty := pos.Qty + fill.Qty
		pos.AvgCost = oldValue.Add(fill.GrossValue()).Div(decimal.NewFromInt(newQty))
		pos.Qty = newQty
		p.pendingAvail[fill.Symbol] += fill.Qty
	} else {
		pos.Qty -= fill.Qty
		pos.AvailableQty -= fill.Qty
	}
	pos.UpdatedAt = fill.Timestamp

	if pos.Qty == 0 {
		delete(p.positions, fill.Symbol)
		delete(p.pendingAvail, fill.Symbol)
	}
}

// StartSession rolls the portfolio into a new trading session: shares bought
// in the previous session become available for sale.
func (p *Portfolio) StartSession() {
	for symbol, qty := range p.pendingAvail {
		if pos := p.positions[symbol]; pos != nil {
			pos.AvailableQty += qty
		}
		delete(p.pendingAvail, symbol)
	}
}

// SeedPosition installs a position wholesale, for startup sync and
// reconciliation against broker truth.
func (p *Portfolio) SeedPosition(pos domain.Position) {
	cp := pos
	p.positions[pos.Symbol] = &cp
}

// CorrectPosition forces the position in symbol to the given quantity,
// shrinking availability to match. Used when reconciliation finds drift;
// the broker's number wins.
func (p *Portfolio) CorrectPosition(symbol string, qty int64) {
	pos := p.positions[symbol]
	if pos == nil {
		return
	}
	if qty <= 0 {
		delete(p.positions, symbol)
		delete(p.pendingAvail, symbol)
		return
	}
	pos.Qty = qty
	if pos.AvailableQty > qty {
		pos.AvailableQty = qty
	}
}

// CorrectCash forces the cash balance, for reconciliation.
func (p *Portfolio) CorrectCash(cash decimal.Decimal) {
	p.cash = cash
}

// Mark records the latest price for a symbol, used for equity valuation.
func (p *Portfolio) Mark(symbol string, price decimal.Decimal) {
	p.lastPrices[symbol] = price
}

// LastPrice returns the most recent marked price for symbol.
func (p *Portfolio) LastPrice(symbol string) (decimal.Decimal, bool) {
	price, ok := p.lastPrices[symbol]
	return price, ok
}

// StockValue returns the marked-to-market value of all positions. Positions
// without a mark are valued at average cost.
func (p *Portfolio) StockValue() decimal.Decimal {
	total := decimal.Zero
	for symbol, pos := range p.positions {
		price, ok := p.lastPrices[symbol]
		if !ok {
			price = pos.AvgCost
		}
		total = total.Add(price.Mul(decimal.NewFromInt(pos.Qty)))
	}
	return total
}

// Equity returns cash plus the marked value of all positions.
func (p *Portfolio) Equity() decimal.Decimal {
	return p.cash.Add(p.StockValue())
}

// Exposure returns the fraction of equity held in positions.
func (p *Portfolio) Exposure() decimal.Decimal {
	equity := p.Equity()
	if equity.IsZero() {
		return decimal.Zero
	}
	return p.StockValue().Div(equity)
}

// PositionValue returns the marked value of the position in symbol.
func (p *Portfolio) PositionValue(symbol string) decimal.Decimal {
	pos := p.positions[symbol]
	if pos == nil {
		return decimal.Zero
	}
	price, ok := p.lastPrices[symbol]
	if !ok {
		price = pos.AvgCost
	}
	return price.Mul(decimal.NewFromInt(pos.Qty))
}

// RecordEquity appends a point to the equity curve.
func (p *Portfolio) RecordEquity(ts time.Time) {
	p.curve = append(p.curve, domain.EquityPoint{
		Timestamp: ts,
		Equity:    p.Equity(),
		Cash:      p.cash,
	})
}

// EquityCurve returns the recorded equity points in chronological order.
func (p *Portfolio) EquityCurve() []domain.EquityPoint { return p.curve }

// Account returns a broker-style snapshot of the portfolio.
func (p *Portfolio) Account() domain.AccountInfo {
	return domain.AccountInfo{
		Cash:        p.cash,
		Equity:      p.Equity(),
		StockValue:  p.StockValue(),
		BuyingPower: p.cash,
	}
}
