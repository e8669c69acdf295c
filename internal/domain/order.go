package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType distinguishes market and limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is a state in the order lifecycle state machine.
type OrderStatus string

const (
	OrderStatusCreated       OrderStatus = "created"
	OrderStatusValidated     OrderStatus = "validated"
	OrderStatusSubmitted     OrderStatus = "submitted"
	OrderStatusAccepted      OrderStatus = "accepted"
	OrderStatusPartialFilled OrderStatus = "partial_filled"
	OrderStatusFilled        OrderStatus = "filled"
	OrderStatusCanceled      OrderStatus = "canceled"
	OrderStatusRejected      OrderStatus = "rejected"
	OrderStatusExpired       OrderStatus = "expired"

	// OrderStatusUnknown marks an order whose broker state could not be
	// determined after exhausting status-poll retries. The order is frozen
	// pending manual reconciliation.
	OrderStatusUnknown OrderStatus = "unknown"
)

// transitions is the legal order state graph. Any transition not listed here
// is a programming error, not a recoverable condition.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:   {OrderStatusValidated},
	OrderStatusValidated: {OrderStatusSubmitted, OrderStatusRejected},
	OrderStatusSubmitted: {
		OrderStatusAccepted, OrderStatusPartialFilled, OrderStatusFilled,
		OrderStatusCanceled, OrderStatusRejected, OrderStatusUnknown,
	},
	OrderStatusAccepted: {
		OrderStatusPartialFilled, OrderStatusFilled, OrderStatusCanceled,
		OrderStatusExpired, OrderStatusUnknown,
	},
	OrderStatusPartialFilled: {
		OrderStatusPartialFilled, OrderStatusFilled, OrderStatusCanceled,
		OrderStatusExpired, OrderStatusUnknown,
	},
}

// CanTransition reports whether moving an order from one status to another is
// legal under the lifecycle state machine.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further mutation.
// OrderStatusUnknown is not terminal: the order is frozen, but a manual
// reconciliation may still move it to a real terminal state.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// Order is a request to trade a fixed quantity of a symbol. Quantity is in
// shares and must be a multiple of the exchange lot size. Invariant:
// FilledQty <= Qty; once Status is terminal the order is immutable.
type Order struct {
	ID            string
	BrokerOrderID string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Qty           int64
	LimitPrice    decimal.Decimal // zero for market orders
	FilledQty     int64
	AvgFillPrice  decimal.Decimal
	Status        OrderStatus
	RejectReason  string
	StrategyID    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validation errors: the order is malformed and can never be submitted.
var (
	ErrMissingSymbol     = errors.New("order has no symbol")
	ErrInvalidSide       = errors.New("order side is not buy or sell")
	ErrInvalidType       = errors.New("order type is not market or limit")
	ErrInvalidQuantity   = errors.New("order quantity must be positive")
	ErrInvalidLot        = errors.New("order quantity is not a lot multiple")
	ErrMissingLimitPrice = errors.New("limit order has no limit price")
)

// Validate checks the order's shape: required fields present, a positive
// lot-multiple quantity, and a price on limit orders. It gates the
// created → validated transition; a failure is fatal to the order, never
// retried.
func (o *Order) Validate(lotSize int64) error {
	if o.Symbol == "" {
		return ErrMissingSymbol
	}
	if o.Side != OrderSideBuy && o.Side != OrderSideSell {
		return fmt.Errorf("%w: %q", ErrInvalidSide, o.Side)
	}
	if o.Type != OrderTypeMarket && o.Type != OrderTypeLimit {
		return fmt.Errorf("%w: %q", ErrInvalidType, o.Type)
	}
	if o.Qty <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, o.Qty)
	}
	if lotSize > 0 && o.Qty%lotSize != 0 {
		return fmt.Errorf("%w: %d %% %d != 0", ErrInvalidLot, o.Qty, lotSize)
	}
	if o.Type == OrderTypeLimit && !o.LimitPrice.IsPositive() {
		return ErrMissingLimitPrice
	}
	return nil
}

// Notional returns the order's value at the given reference price.
func (o *Order) Notional(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(o.Qty))
}

// CanCancel reports whether the order is still cancelable.
func (o *Order) CanCancel() bool {
	switch o.Status {
	case OrderStatusSubmitted, OrderStatusAccepted, OrderStatusPartialFilled:
		return true
	}
	return false
}

// Fees is the cost breakdown attached to a fill.
type Fees struct {
	Commission  decimal.Decimal
	StampTax    decimal.Decimal
	TransferFee decimal.Decimal
}

// Total returns the sum of all fee components.
func (f Fees) Total() decimal.Decimal {
	return f.Commission.Add(f.StampTax).Add(f.TransferFee)
}

// Fill records an execution against an order. Fills are immutable once
// created.
type Fill struct {
	ID        string
	OrderID   string
	Symbol    string
	Side      OrderSide
	Qty       int64
	Price     decimal.Decimal
	Fees      Fees
	Timestamp time.Time
}

// GrossValue returns Qty × Price.
func (f *Fill) GrossValue() decimal.Decimal {
	return f.Price.Mul(decimal.NewFromInt(f.Qty))
}

// NetCash returns the signed cash impact of the fill: negative for buys
// (value plus fees leave the account), positive for sells (value minus fees).
func (f *Fill) NetCash() decimal.Decimal {
	if f.Side == OrderSideBuy {
		return f.GrossValue().Add(f.Fees.Total()).Neg()
	}
	return f.GrossValue().Sub(f.Fees.Total())
}
