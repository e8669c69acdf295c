package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Mason55/stock/internal/broker"
	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/cost"
	"github.com/Mason55/stock/internal/domain"
	"github.com/Mason55/stock/internal/engine"
	"github.com/Mason55/stock/internal/store"
	"github.com/Mason55/stock/internal/strategy"
	"github.com/Mason55/stock/internal/strategy/builtins"
	"github.com/Mason55/stock/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := "config/stock.yaml"
	if p := os.Getenv("STOCK_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	util.SetDefault(util.NewLogger(cfg.Logging.Level))

	symbols := splitSymbols(os.Getenv("TRADE_SYMBOLS"))
	if len(symbols) == 0 {
		log.Fatal("TRADE_SYMBOLS is required (comma-separated symbols)")
	}

	adapter, err := newAdapter(cfg)
	if err != nil {
		log.Fatalf("broker setup: %v", err)
	}

	repo, err := store.NewSQLiteRepository(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening order journal: %v", err)
	}
	defer repo.Close()

	reg := strategy.NewRegistry()
	reg.Register(builtins.NewSMACross(5, 20))
	reg.Register(builtins.NewMomentum(20, 0.05, -0.03))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng := engine.NewLive(cfg, reg, adapter, repo)
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("starting engine: %v", err)
	}

	slog.Info("trader started",
		"broker", adapter.Name(),
		"symbols", symbols,
		"enable_trading", cfg.Trading.EnableTrading)

	if err := feedQuotes(ctx, eng, adapter, symbols); err != nil {
		slog.Error("quote stream failed", "err", err)
	}

	slog.Info("shutting down")
	eng.Stop()
}

// feedQuotes streams broker quotes and feeds them to the engine as one-tick
// bars until ctx is canceled. Daily strategies only react on session
// rollover, but a fresh mark keeps the equity and risk numbers current.
func feedQuotes(ctx context.Context, eng *engine.Live, adapter broker.Adapter, symbols []string) error {
	quotes, err := adapter.SubscribeQuotes(ctx, symbols)
	if err != nil {
		return err
	}

	prev := make(map[string]float64)
	for quote := range quotes {
		price, _ := quote.Price.Float64()
		prevClose := prev[quote.Symbol]
		if prevClose == 0 {
			prevClose = price
		}
		eng.PushBar(domain.Bar{
			Symbol:    quote.Symbol,
			Timestamp: quote.Timestamp,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			PrevClose: prevClose,
			Volume:    quote.Volume,
		})
		prev[quote.Symbol] = price
	}
	return nil
}

func newAdapter(cfg *config.Config) (broker.Adapter, error) {
	switch cfg.Broker.Name {
	case "mock":
		return broker.NewMock(cfg.Broker.Mock, cost.NewModel(cfg.Costs)), nil
	case "alpaca":
		return broker.NewAlpacaAdapter(cfg.Broker.Alpaca), nil
	default:
		return nil, fmt.Errorf("unknown broker %q (want mock or alpaca)", cfg.Broker.Name)
	}
}

func splitSymbols(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, sym := range strings.Split(s, ",") {
		if sym = strings.TrimSpace(sym); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}
