package broker

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/domain"
)

// Compile-time interface check.
var _ Adapter = (*AlpacaAdapter)(nil)

// AlpacaAdapter executes orders through the Alpaca brokerage API. US market
// only; quantities are whole shares.
type AlpacaAdapter struct {
	trading   *alpaca.Client
	data      *marketdata.Client
	connected atomic.Bool
}

// NewAlpacaAdapter creates an adapter from broker configuration. Credentials
// fall back to the standard APCA_* environment variables when unset.
func NewAlpacaAdapter(cfg config.Alpaca) *AlpacaAdapter {
	return &AlpacaAdapter{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.BaseURL,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
		}),
	}
}

// Name returns "alpaca".
func (a *AlpacaAdapter) Name() string { return "alpaca" }

// Connect verifies the credentials with an account fetch.
func (a *AlpacaAdapter) Connect(_ context.Context) error {
	if _, err := a.trading.GetAccount(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	a.connected.Store(true)
	return nil
}

// Close marks the session as closed. The underlying client is stateless.
func (a *AlpacaAdapter) Close() error {
	a.connected.Store(false)
	return nil
}

// IsConnected reports whether Connect succeeded.
func (a *AlpacaAdapter) IsConnected() bool { return a.connected.Load() }

// PlaceOrder submits the order and returns Alpaca's order ID.
func (a *AlpacaAdapter) PlaceOrder(_ context.Context, order *domain.Order) (string, error) {
	if !a.connected.Load() {
		return "", ErrNotConnected
	}

	qty := decimal.NewFromInt(order.Qty)
	req := alpaca.PlaceOrderRequest{
		Symbol:        order.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(order.Side),
		Type:          alpaca.OrderType(order.Type),
		TimeInForce:   alpaca.Day,
		ClientOrderID: order.ID,
	}
	if order.Type == domain.OrderTypeLimit {
		limit := order.LimitPrice
		req.LimitPrice = &limit
	}

	placed, err := a.trading.PlaceOrder(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOrderRejected, err)
	}
	return placed.ID, nil
}

// CancelOrder requests cancellation of an open order.
func (a *AlpacaAdapter) CancelOrder(_ context.Context, brokerOrderID string) error {
	if !a.connected.Load() {
		return ErrNotConnected
	}
	if err := a.trading.CancelOrder(brokerOrderID); err != nil {
		return fmt.Errorf("canceling order %s: %w", brokerOrderID, err)
	}
	return nil
}

// GetOrderStatus fetches the broker's view of an order.
func (a *AlpacaAdapter) GetOrderStatus(_ context.Context, brokerOrderID string) (*OrderSnapshot, error) {
	if !a.connected.Load() {
		return nil, ErrNotConnected
	}
	order, err := a.trading.GetOrder(brokerOrderID)
	if err != nil {
		return nil, fmt.Errorf("fetching order %s: %w", brokerOrderID, err)
	}

	snap := &OrderSnapshot{
		BrokerOrderID: order.ID,
		Status:        mapAlpacaStatus(order.Status),
		FilledQty:     order.FilledQty.IntPart(),
		UpdatedAt:     order.UpdatedAt,
	}
	if order.FilledAvgPrice != nil {
		snap.AvgFillPrice = *order.FilledAvgPrice
	}
	return snap, nil
}

// mapAlpacaStatus translates Alpaca order statuses into the local lifecycle.
// Anything unrecognized maps to unknown so the order freezes for manual
// reconciliation rather than guessing.
func mapAlpacaStatus(status string) domain.OrderStatus {
	switch strings.ToLower(status) {
	case "new", "accepted", "pending_new":
		return domain.OrderStatusAccepted
	case "partially_filled":
		return domain.OrderStatusPartialFilled
	case "filled":
		return domain.OrderStatusFilled
	case "canceled", "pending_cancel", "done_for_day":
		return domain.OrderStatusCanceled
	case "rejected":
		return domain.OrderStatusRejected
	case "expired":
		return domain.OrderStatusExpired
	}
	return domain.OrderStatusUnknown
}

// GetPositions returns all positions held at Alpaca. The US market has no
// T+1 restriction, so every share is available.
func (a *AlpacaAdapter) GetPositions(_ context.Context) ([]domain.Position, error) {
	if !a.connected.Load() {
		return nil, ErrNotConnected
	}
	positions, err := a.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}

	out := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, domain.Position{
			Symbol:       p.Symbol,
			Qty:          p.Qty.IntPart(),
			AvailableQty: p.Qty.IntPart(),
			AvgCost:      p.AvgEntryPrice,
			UpdatedAt:    time.Now(),
		})
	}
	return out, nil
}

// GetAccount returns the account's financial snapshot.
func (a *AlpacaAdapter) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	if !a.connected.Load() {
		return nil, ErrNotConnected
	}
	account, err := a.trading.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("fetching account: %w", err)
	}
	return &domain.AccountInfo{
		Cash:        account.Cash,
		Equity:      account.Equity,
		StockValue:  account.Equity.Sub(account.Cash),
		BuyingPower: account.BuyingPower,
	}, nil
}

// GetQuote returns the latest trade price for the symbol.
func (a *AlpacaAdapter) GetQuote(_ context.Context, symbol string) (*domain.Quote, error) {
	if !a.connected.Load() {
		return nil, ErrNotConnected
	}
	trade, err := a.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return nil, fmt.Errorf("fetching quote for %s: %w", symbol, err)
	}
	return &domain.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(trade.Price),
		Volume:    int64(trade.Size),
		Timestamp: trade.Timestamp,
	}, nil
}

// quotePollInterval paces SubscribeQuotes against the data API.
const quotePollInterval = 5 * time.Second

// SubscribeQuotes polls the latest trades on a fixed interval and streams
// price changes until ctx is canceled.
func (a *AlpacaAdapter) SubscribeQuotes(ctx context.Context, symbols []string) (<-chan domain.Quote, error) {
	if !a.connected.Load() {
		return nil, ErrNotConnected
	}

	ch := make(chan domain.Quote, len(symbols))
	go func() {
		defer close(ch)
		ticker := time.NewTicker(quotePollInterval)
		defer ticker.Stop()

		last := make(map[string]decimal.Decimal, len(symbols))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			for _, symbol := range symbols {
				quote, err := a.GetQuote(ctx, symbol)
				if err != nil {
					continue
				}
				if prev, ok := last[symbol]; ok && prev.Equal(quote.Price) {
					continue
				}
				last[symbol] = quote.Price
				select {
				case ch <- *quote:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
