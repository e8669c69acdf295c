// Package domain defines the core types shared across the trading system:
// market data, orders, fills, positions, accounts, and trading signals.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market identifies an equity market.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// Board identifies a listing board, which determines the daily price-limit
// percentage applied by the exchange.
type Board string

const (
	BoardMain   Board = "main"   // main board, ±10%
	BoardGrowth Board = "growth" // GEM / STAR market, ±20%
	BoardST     Board = "st"     // special-treatment stocks, ±5%
)

// Bar is a single OHLCV bar for a symbol.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	PrevClose  float64
	Volume     int64
	TradeCount int64
	VWAP       float64
	Suspended  bool
}

// Quote is the latest observed price for a symbol.
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	Volume    int64
	Timestamp time.Time
}

// SignalType classifies a strategy's trade intent.
type SignalType string

const (
	SignalTypeBuy  SignalType = "buy"
	SignalTypeSell SignalType = "sell"
	SignalTypeHold SignalType = "hold"
)

// Signal is a strategy's abstract trade intent. Strength expresses conviction
// in [0,1] and scales position size.
type Signal struct {
	ID         int64
	StrategyID string
	Symbol     string
	Type       SignalType
	Strength   float64
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Position tracks holdings in a single symbol. AvailableQty is the portion
// sellable under T+1 settlement: shares bought today only become available at
// the next trading session. Invariant: AvailableQty <= Qty.
type Position struct {
	Symbol       string
	Qty          int64
	AvailableQty int64
	AvgCost      decimal.Decimal
	UpdatedAt    time.Time
}

// AccountInfo is a snapshot of broker account state.
type AccountInfo struct {
	Cash        decimal.Decimal
	Equity      decimal.Decimal
	StockValue  decimal.Decimal
	BuyingPower decimal.Decimal
}

// EquityPoint is one sample of the portfolio equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    decimal.Decimal
	Cash      decimal.Decimal
}
