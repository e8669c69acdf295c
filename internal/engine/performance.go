package engine

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Mason55/stock/internal/domain"
)

// Performance summarizes a backtest run. Ratios are annualized assuming 252
// trading days.
type Performance struct {
	TotalReturn      float64
	AnnualizedReturn float64
	Volatility       float64
	SharpeRatio      float64
	MaxDrawdown      float64
	WinRate          float64
	ProfitFactor     float64
	Trades           int
}

const tradingDaysPerYear = 252

// ComputePerformance derives summary statistics from the equity curve and
// fill history. Equity math stays in decimal; the ratios are float64.
func ComputePerformance(curve []domain.EquityPoint, fills []domain.Fill) Performance {
	var p Performance
	p.Trades = len(fills)
	if len(curve) < 2 {
		return p
	}

	initial, _ := curve[0].Equity.Float64()
	final, _ := curve[len(curve)-1].Equity.Float64()
	if initial > 0 {
		p.TotalReturn = final/initial - 1
	}

	returns := dailyReturns(curve)
	if len(returns) > 0 {
		mean := meanOf(returns)
		p.AnnualizedReturn = math.Pow(1+mean, tradingDaysPerYear) - 1
		p.Volatility = stddevOf(returns, mean) * math.Sqrt(tradingDaysPerYear)
		if p.Volatility > 0 {
			p.SharpeRatio = p.AnnualizedReturn / p.Volatility
		}
	}
	p.MaxDrawdown = maxDrawdown(curve)
	p.WinRate, p.ProfitFactor = tradeStats(fills)
	return p
}

func dailyReturns(curve []domain.EquityPoint) []float64 {
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev, _ := curve[i-1].Equity.Float64()
		cur, _ := curve[i].Equity.Float64()
		if prev > 0 {
			returns = append(returns, cur/prev-1)
		}
	}
	return returns
}

func meanOf(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddevOf(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// maxDrawdown returns the largest peak-to-trough equity decline as a
// positive fraction.
func maxDrawdown(curve []domain.EquityPoint) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, pt := range curve {
		equity, _ := pt.Equity.Float64()
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := 1 - equity/peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// tradeStats pairs sells against the running average cost per symbol to
// compute realized PnL, then derives win rate and profit factor from the
// closed trades.
func tradeStats(fills []domain.Fill) (winRate, profitFactor float64) {
	ordered := make([]domain.Fill, len(fills))
	copy(ordered, fills)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	type book struct {
		qty     int64
		avgCost decimal.Decimal
	}
	books := make(map[string]*book)

	var wins, losses int
	grossProfit, grossLoss := decimal.Zero, decimal.Zero

	for _, f := range ordered {
		b := books[f.Symbol]
		if b == nil {
			b = &book{avgCost: decimal.Zero}
			books[f.Symbol] = b
		}
		if f.Side == domain.OrderSideBuy {
			oldValue := b.avgCost.Mul(decimal.NewFromInt(b.qty))
			b.qty += f.Qty
			b.avgCost = oldValue.Add(f.GrossValue()).Div(decimal.NewFromInt(b.qty))
			continue
		}

		pnl := f.Price.Sub(b.avgCost).Mul(decimal.NewFromInt(f.Qty)).Sub(f.Fees.Total())
		b.qty -= f.Qty
		if pnl.IsPositive() {
			wins++
			grossProfit = grossProfit.Add(pnl)
		} else {
			losses++
			grossLoss = grossLoss.Add(pnl.Abs())
		}
	}

	closed := wins + losses
	if closed > 0 {
		winRate = float64(wins) / float64(closed)
	}
	if grossLoss.IsPositive() {
		pf, _ := grossProfit.Div(grossLoss).Float64()
		profitFactor = pf
	} else if grossProfit.IsPositive() {
		profitFactor = math.Inf(1)
	}
	return winRate, profitFactor
}
