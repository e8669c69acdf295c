package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Mason55/stock/internal/config"
	"github.com/Mason55/stock/internal/domain"
	"github.com/Mason55/stock/internal/engine"
	"github.com/Mason55/stock/internal/store"
	"github.com/Mason55/stock/internal/strategy"
	"github.com/Mason55/stock/internal/strategy/builtins"
	"github.com/Mason55/stock/internal/util"
)

func main() {
	strategyName := flag.String("strategy", "sma-cross", "strategy to run: sma-cross or momentum")
	symbolList := flag.String("symbols", "", "comma-separated symbols, e.g. 600519.SH,000001.SZ (default: all in the data dir)")
	marketName := flag.String("market", "cn", "market: cn or us")
	startDate := flag.String("start", "", "backtest start date YYYY-MM-DD")
	endDate := flag.String("end", "", "backtest end date YYYY-MM-DD")
	smaShort := flag.Int("sma-short", 5, "short SMA period (sma-cross)")
	smaLong := flag.Int("sma-long", 20, "long SMA period (sma-cross)")
	momLookback := flag.Int("mom-lookback", 20, "lookback window in bars (momentum)")
	momEntry := flag.Float64("mom-entry", 0.05, "entry return threshold (momentum)")
	momExit := flag.Float64("mom-exit", -0.03, "exit return threshold (momentum)")
	flag.Parse()

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

	if *startDate == "" || *endDate == "" {
		log.Fatal("-start and -end are required")
	}
	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("bad -start: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		log.Fatalf("bad -end: %v", err)
	}
	// Include the whole end day.
	end = end.Add(24*time.Hour - time.Nanosecond)

	mkt := domain.Market(*marketName)
	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	ctx := context.Background()

	symbols := splitSymbols(*symbolList)
	if len(symbols) == 0 {
		symbols, err = pstore.ListSymbols(ctx, mkt)
		if err != nil {
			log.Fatalf("listing symbols: %v", err)
		}
		if len(symbols) == 0 {
			log.Fatalf("no symbols under %s for market %s", cfg.Storage.DataDir, mkt)
		}
	}

	reg := strategy.NewRegistry()
	switch *strategyName {
	case "sma-cross":
		reg.Register(builtins.NewSMACross(*smaShort, *smaLong))
	case "momentum":
		reg.Register(builtins.NewMomentum(*momLookback, *momEntry, *momExit))
	default:
		log.Fatalf("unknown strategy %q (want sma-cross or momentum)", *strategyName)
	}

	bt := engine.NewBacktest(cfg, reg, pstore)
	result, err := bt.Run(ctx, mkt, symbols, start, end)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	printResult(*strategyName, symbols, result)
	printIndicators(reg)
}

// printIndicators dumps the final indicator values of any strategy that
// exposes them.
func printIndicators(reg *strategy.Registry) {
	for _, s := range reg.All() {
		provider, ok := s.(strategy.IndicatorProvider)
		if !ok {
			continue
		}
		indicators := provider.Indicators()
		if len(indicators) == 0 {
			continue
		}
		keys := make([]string, 0, len(indicators))
		for k := range indicators {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Printf("indicators (%s):\n", s.Name())
		for _, k := range keys {
			fmt.Printf("  %-30s %.4f\n", k, indicators[k])
		}
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

func printResult(name string, symbols []string, r *engine.Result) {
	p := r.Performance
	fmt.Printf("backtest %s on %d symbol(s)\n", name, len(symbols))
	fmt.Printf("  orders:            %d (%d rejected)\n", r.Orders, r.Rejected)
	fmt.Printf("  fills:             %d\n", len(r.Fills))
	fmt.Printf("  final equity:      %s\n", r.FinalEquity.StringFixed(2))
	fmt.Printf("  total return:      %.2f%%\n", p.TotalReturn*100)
	fmt.Printf("  annualized return: %.2f%%\n", p.AnnualizedReturn*100)
	fmt.Printf("  volatility:        %.2f%%\n", p.Volatility*100)
	fmt.Printf("  sharpe:            %.2f\n", p.SharpeRatio)
	fmt.Printf("  max drawdown:      %.2f%%\n", p.MaxDrawdown*100)
	fmt.Printf("  trades:            %d (win rate %.1f%%, profit factor %.2f)\n",
		p.Trades, p.WinRate*100, p.ProfitFactor)
}
