// Package report turns a finished run into its human-facing artifacts:
// summary metrics, the trade ledger CSV, a console leaderboard and an
// equity-curve chart.
package report

import (
	"math"

	"quant-sim/internal/engine"
)

// Summary condenses one run into the figures used for leaderboards and
// persistence. Percentages are 0-100 values, not fractions.
type Summary struct {
	TotalReturnPct float64
	SharpeRatio    float64
	MaxDrawdownPct float64
	WinRatePct     float64
	TotalTrades    int
}

// Summarize computes the headline metrics of a run. Sharpe is annualized
// from per-bar returns at a zero risk-free rate using periodsPerYear bars
// per year; a flat or too-short equity curve yields zero.
func Summarize(initial float64, equity []engine.EquityPoint, trades []engine.Trade, periodsPerYear float64) Summary {
	s := Summary{TotalTrades: len(trades)}
	if len(trades) > 0 {
		wins := 0
		for _, t := range trades {
			if t.PnL > 0 {
				wins++
			}
		}
		s.WinRatePct = float64(wins) / float64(len(trades)) * 100
	}
	if len(equity) == 0 || initial <= 0 {
		return s
	}
	final := equity[len(equity)-1].Equity
	s.TotalReturnPct = (final - initial) / initial * 100
	s.MaxDrawdownPct = maxDrawdown(equity)
	s.SharpeRatio = sharpe(equity, periodsPerYear)
	return s
}

func maxDrawdown(equity []engine.EquityPoint) float64 {
	peak := equity[0].Equity
	worst := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Equity) / peak * 100; dd > worst {
			worst = dd
		}
	}
	return worst
}

// sharpe needs at least two per-bar returns for a sample deviation, so
// curves shorter than three points score zero.
func sharpe(equity []engine.EquityPoint, periodsPerYear float64) float64 {
	if len(equity) < 3 || periodsPerYear <= 0 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			return 0
		}
		returns = append(returns, equity[i].Equity/prev-1)
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(periodsPerYear)
}
