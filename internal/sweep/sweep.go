// Package sweep expands a parameter grid into concrete run configs and
// executes them on a bounded worker pool against a shared dataset.
package sweep

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"quant-sim/internal/config"
	"quant-sim/internal/engine"
	"quant-sim/internal/metrics"
	"quant-sim/internal/report"
)

// Outcome is one grid point's result. Err is set when the combination was
// invalid or its run failed; the rest of the sweep continues regardless.
type Outcome struct {
	Cfg         config.RunConfig
	Summary     report.Summary
	FinalEquity float64
	Err         error
}

// Label renders the swept dimensions of a combination for leaderboards and
// log lines.
func Label(cfg config.RunConfig) string {
	return fmt.Sprintf("trail=%.2f be=%.2f htf=%.1f risk=%.3f",
		cfg.TrailingATRMultiplier, cfg.BreakevenATRThreshold, cfg.HTFThreshold, cfg.RiskPerTrade)
}

// Combinations expands the grid into one run config per cartesian product
// element. An empty dimension keeps the base value. Order is deterministic:
// trailing multiplier varies slowest, then breakeven threshold, then htf
// threshold, then risk fraction.
func Combinations(base config.RunConfig, grid config.SweepConfig) []config.RunConfig {
	trails := orBase(grid.TrailingATRMultipliers, base.TrailingATRMultiplier)
	bes := orBase(grid.BreakevenATRThresholds, base.BreakevenATRThreshold)
	htfs := orBase(grid.HTFThresholds, base.HTFThreshold)
	risks := orBase(grid.RiskPerTrade, base.RiskPerTrade)

	combos := make([]config.RunConfig, 0, len(trails)*len(bes)*len(htfs)*len(risks))
	for _, trail := range trails {
		for _, be := range bes {
			for _, htf := range htfs {
				for _, risk := range risks {
					cfg := base
					cfg.TrailingATRMultiplier = trail
					cfg.BreakevenATRThreshold = be
					cfg.HTFThreshold = htf
					cfg.RiskPerTrade = risk
					combos = append(combos, cfg)
				}
			}
		}
	}
	return combos
}

func orBase(dim []float64, base float64) []float64 {
	if len(dim) == 0 {
		return []float64{base}
	}
	return dim
}

// Runner executes combinations against a shared dataset. Workers read the
// series concurrently and never mutate them, so one copy serves the pool.
type Runner struct {
	Series         []engine.AssetSeries
	Workers        int
	PeriodsPerYear float64
	Log            *zap.Logger
	Metrics        *metrics.Metrics
}

// Run executes every combination and returns outcomes indexed in combination
// order, so results are identical for any worker count. Cancelling the
// context stops dispatch and surfaces the context error; a combination that
// fails on its own is recorded in its Outcome and does not abort the sweep.
func (r *Runner) Run(ctx context.Context, combos []config.RunConfig) ([]Outcome, error) {
	if len(combos) == 0 {
		return nil, nil
	}
	outcomes := make([]Outcome, len(combos))
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(combos) {
		workers = len(combos)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = r.runOne(ctx, combos[idx])
			}
		}()
	}

	var dispatchErr error
dispatch:
	for i := range combos {
		if err := ctx.Err(); err != nil {
			dispatchErr = err
			break
		}
		select {
		case <-ctx.Done():
			dispatchErr = ctx.Err()
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return outcomes, dispatchErr
}

func (r *Runner) runOne(ctx context.Context, cfg config.RunConfig) Outcome {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	m := r.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}

	out := Outcome{Cfg: cfg}
	m.RunsStarted.Inc()
	sim, err := engine.New(cfg, log, m)
	if err != nil {
		m.RunsFailed.Inc()
		log.Warn("combination rejected", zap.String("combo", Label(cfg)), zap.Error(err))
		out.Err = err
		return out
	}
	res, err := sim.Run(ctx, r.Series)
	if err != nil {
		m.RunsFailed.Inc()
		log.Warn("combination failed", zap.String("combo", Label(cfg)), zap.Error(err))
		out.Err = err
		return out
	}
	m.RunsCompleted.Inc()
	out.Summary = report.Summarize(cfg.InitialCapital, res.Equity, res.Trades, r.PeriodsPerYear)
	out.FinalEquity = res.FinalEquity()
	log.Debug("combination done",
		zap.String("combo", Label(cfg)),
		zap.Float64("sharpe", out.Summary.SharpeRatio),
		zap.Float64("return_pct", out.Summary.TotalReturnPct),
		zap.Int("trades", out.Summary.TotalTrades))
	return out
}
