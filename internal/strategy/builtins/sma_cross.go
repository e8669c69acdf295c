// Package builtins provides built-in strategy implementations that ship with
// the platform.
package builtins

import (
	"context"

	"github.com/Mason55/stock/internal/domain"
	"github.com/Mason55/stock/internal/strategy"
)

// Compile-time interface checks.
var (
	_ strategy.Strategy          = (*SMACross)(nil)
	_ strategy.IndicatorProvider = (*SMACross)(nil)
)

// SMACross implements a simple moving average crossover strategy. It
// generates a buy signal when the short-period SMA crosses above the
// long-period SMA, and a sell signal when it crosses below. State is kept
// per symbol, so one instance can trade a whole universe.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	closes      map[string][]float64
	// prevDiff is the short−long SMA difference on the previous bar, used
	// for crossover detection.
	prevDiff map[string]float64
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods.
func NewSMACross(short, long int) *SMACross {
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
		closes:      make(map[string][]float64),
		prevDiff:    make(map[string]float64),
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Init resets all per-symbol state.
func (s *SMACross) Init(_ context.Context) error {
	s.closes = make(map[string][]float64)
	s.prevDiff = make(map[string]float64)
	return nil
}

// OnBar appends the bar's close to the symbol's history and emits a signal
// when the SMAs cross. Suspended bars are skipped to keep the averages
// honest.
func (s *SMACross) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	if bar.Suspended {
		return nil, nil
	}

	history := append(s.closes[bar.Symbol], bar.Close)
	if len(history) > s.longPeriod {
		history = history[len(history)-s.longPeriod:]
	}
	s.closes[bar.Symbol] = history

	if len(history) < s.longPeriod {
		return nil, nil
	}

	diff := sma(history, s.shortPeriod) - sma(history, s.longPeriod)
	prev, seen := s.prevDiff[bar.Symbol]
	s.prevDiff[bar.Symbol] = diff
	if !seen {
		return nil, nil
	}

	var typ domain.SignalType
	switch {
	case prev <= 0 && diff > 0:
		typ = domain.SignalTypeBuy
	case prev >= 0 && diff < 0:
		typ = domain.SignalTypeSell
	default:
		return nil, nil
	}

	return []domain.Signal{{
		StrategyID: s.Name(),
		Symbol:     bar.Symbol,
		Type:       typ,
		Strength:   1.0,
		CreatedAt:  bar.Timestamp,
	}}, nil
}

// Indicators exposes the current short and long SMA per symbol.
func (s *SMACross) Indicators() map[string]float64 {
	out := make(map[string]float64)
	for symbol, history := range s.closes {
		if len(history) < s.longPeriod {
			continue
		}
		out[symbol+".sma_short"] = sma(history, s.shortPeriod)
		out[symbol+".sma_long"] = sma(history, s.longPeriod)
	}
	return out
}

// sma averages the last n values of history. Caller guarantees
// len(history) >= n.
func sma(history []float64, n int) float64 {
	sum := 0.0
	for _, v := range history[len(history)-n:] {
		sum += v
	}
	return sum / float64(n)
}
