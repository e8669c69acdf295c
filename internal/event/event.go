// Package event defines the tagged event types flowing through the trading
// engines and the queues that carry them.
package event

import (
	"time"

	"github.com/Mason55/stock/internal/domain"
)

// Type tags an event. Delivery order is the queue's FIFO order: market data
// is pushed before any signal derived from it, so strategies can never act
// on data from the future.
type Type int

const (
	TypeMarketData Type = iota
	TypeSignal
	TypeOrder
	TypeFill
)

func (t Type) String() string {
	switch t {
	case TypeMarketData:
		return "market_data"
	case TypeSignal:
		return "signal"
	case TypeOrder:
		return "order"
	case TypeFill:
		return "fill"
	}
	return "unknown"
}

// Event is implemented by every event variant. All events carry a timestamp.
type Event interface {
	Kind() Type
	When() time.Time
}

// MarketData carries one OHLCV bar.
type MarketData struct {
	Bar domain.Bar
}

func (e MarketData) Kind() Type { return TypeMarketData }
func (e MarketData) When() time.Time { return e.Bar.Timestamp }

// SignalEvent carries a strategy signal.
type SignalEvent struct {
	Signal    domain.Signal
	Timestamp time.Time
}

func (e SignalEvent) Kind() Type { return TypeSignal }
func (e SignalEvent) When() time.Time { return e.Timestamp }

// OrderEvent carries an order entering the execution path.
type OrderEvent struct {
	Order     *domain.Order
	Timestamp time.Time
}

func (e OrderEvent) Kind() Type { return TypeOrder }
func (e OrderEvent) When() time.Time { return e.Timestamp }

// FillEvent carries a confirmed execution.
type FillEvent struct {
	Fill domain.Fill
}

func (e FillEvent) Kind() Type { return TypeFill }
func (e FillEvent) When() time.Time { return e.Fill.Timestamp }
