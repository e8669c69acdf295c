package market

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/domain"
)

var tick = decimal.NewFromFloat(0.01)

// Rules captures per-instrument exchange constraints: lot size and the daily
// price-limit band, which varies by listing board.
type Rules struct {
	lotSize   int64
	mainPct   decimal.Decimal
	growthPct decimal.Decimal
	stPct     decimal.Decimal
	st        map[string]struct{}
}

// NewRules creates Rules from market configuration.
func NewRules(cfg config.MarketConfig) *Rules {
	return &Rules{
		lotSize:   cfg.LotSize,
		mainPct:   decimal.NewFromFloat(cfg.PriceLimitMainPct),
		growthPct: decimal.NewFromFloat(cfg.PriceLimitGrowthPct),
		stPct:     decimal.NewFromFloat(cfg.PriceLimitSTPct),
		st:        make(map[string]struct{}),
	}
}

// LotSize returns the minimum tradable unit.
func (r *Rules) LotSize() int64 { return r.lotSize }

// MarkST flags symbols as special-treatment, which narrows their price band.
func (r *Rules) MarkST(symbols ...string) {
	for _, s := range symbols {
		r.st[s] = struct{}{}
	}
}

// ClassifyBoard determines the listing board from the symbol's exchange
// suffix and code prefix: 688xxx.SH is the STAR market and 300xxx.SZ the
// GEM, both with a widened band; everything else is main board unless the
// symbol was flagged ST.
func (r *Rules) ClassifyBoard(symbol string) domain.Board {
	if _, ok := r.st[symbol]; ok {
		return domain.BoardST
	}
	code := symbol
	if i := strings.IndexByte(symbol, '.'); i >= 0 {
		code = symbol[:i]
	}
	switch {
	case strings.HasSuffix(symbol, ".SH") && strings.HasPrefix(code, "688"):
		return domain.BoardGrowth
	case strings.HasSuffix(symbol, ".SZ") && strings.HasPrefix(code, "300"):
		return domain.BoardGrowth
	}
	return domain.BoardMain
}

// LimitPct returns the daily price-limit percentage for the symbol's board.
func (r *Rules) LimitPct(symbol string) decimal.Decimal {
	switch r.ClassifyBoard(symbol) {
	case domain.BoardGrowth:
		return r.growthPct
	case domain.BoardST:
		return r.stPct
	}
	return r.mainPct
}

// PriceLimits returns the upper and lower daily price bounds for the symbol
// given the previous close, rounded to the price tick.
func (r *Rules) PriceLimits(symbol string, prevClose decimal.Decimal) (upper, lower decimal.Decimal) {
	delta := prevClose.Mul(r.LimitPct(symbol))
	return RoundToTick(prevClose.Add(delta)), RoundToTick(prevClose.Sub(delta))
}

// ValidLot reports whether qty is a positive multiple of the lot size.
func (r *Rules) ValidLot(qty int64) bool {
	return qty > 0 && qty%r.lotSize == 0
}

// FloorToLot rounds qty down to the nearest lot multiple.
func (r *Rules) FloorToLot(qty int64) int64 {
	if qty < 0 {
		return 0
	}
	return qty - qty%r.lotSize
}

// RoundToTick rounds a price to the minimum tick (0.01).
func RoundToTick(p decimal.Decimal) decimal.Decimal {
	return p.Div(tick).Round(0).Mul(tick)
}
