package builtins

import (
	"context"

	"github.com/Mason55/stock/internal/domain"
	"github.com/Mason55/stock/internal/strategy"
)

// Compile-time interface checks.
var (
	_ strategy.Strategy          = (*Momentum)(nil)
	_ strategy.IndicatorProvider = (*Momentum)(nil)
)

// Momentum buys symbols whose return over the lookback window exceeds the
// entry threshold and sells them when it drops below the exit threshold.
// Signal strength scales with how far past the entry threshold the return
// is, capped at 1.
type Momentum struct {
	lookback       int
	entryThreshold float64
	exitThreshold  float64
	closes         map[string][]float64
	holding        map[string]bool
}

// NewMomentum creates a Momentum strategy. entryThreshold and exitThreshold
// are fractional returns over the lookback window (e.g. 0.05 for 5%).
func NewMomentum(lookback int, entryThreshold, exitThreshold float64) *Momentum {
	return &Momentum{
		lookback:       lookback,
		entryThreshold: entryThreshold,
		exitThreshold:  exitThreshold,
		closes:         make(map[string][]float64),
		holding:        make(map[string]bool),
	}
}

// Name returns "momentum".
func (m *Momentum) Name() string {
	return "momentum"
}

// Init resets all per-symbol state.
func (m *Momentum) Init(_ context.Context) error {
	m.closes = make(map[string][]float64)
	m.holding = make(map[string]bool)
	return nil
}

// OnBar tracks the symbol's closes and emits entry and exit signals around
// the momentum thresholds.
func (m *Momentum) OnBar(_ context.Context, bar domain.Bar) ([]domain.Signal, error) {
	if bar.Suspended {
		return nil, nil
	}

	history := append(m.closes[bar.Symbol], bar.Close)
	if len(history) > m.lookback+1 {
		history = history[len(history)-m.lookback-1:]
	}
	m.closes[bar.Symbol] = history

	if len(history) < m.lookback+1 {
		return nil, nil
	}

	base := history[0]
	if base == 0 {
		return nil, nil
	}
	ret := bar.Close/base - 1

	switch {
	case !m.holding[bar.Symbol] && ret >= m.entryThreshold:
		m.holding[bar.Symbol] = true
		strength := ret / (2 * m.entryThreshold)
		if strength > 1 {
			strength = 1
		}
		return []domain.Signal{{
			StrategyID: m.Name(),
			Symbol:     bar.Symbol,
			Type:       domain.SignalTypeBuy,
			Strength:   strength,
			CreatedAt:  bar.Timestamp,
		}}, nil
	case m.holding[bar.Symbol] && ret <= m.exitThreshold:		m.holding[bar.Symbol] = false
		return []domain.Signal{{
			StrategyID: m.Name(),
			Symbol:     bar.Symbol,
			Type:       domain.SignalTypeSell,
			Strength:   1.0,
			CreatedAt:  bar.Timestamp,
		}}, nil
	}
	return nil, nil
}

// Indicators exposes the current lookback return per symbol.
func (m *Momentum) Indicators() map[string]float64 {
	out := make(map[string]float64)
	for symbol, history := range m.closes {
		if len(history) < m.lookback+1 || history[0] == 0 {
			continue
		}
		out[symbol+".return"] = history[len(history)-1]/history[0] - 1
	}
	return out
}
