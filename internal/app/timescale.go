package app

import (
	"quant-sim/internal/engine"
	"quant-sim/internal/timescale"
)

// recordTimescale mirrors a finished run into the warehouse queues. A nil
// writer (mirror disabled) makes this a no-op.
func (a *App) recordTimescale(runID string, res *engine.Result) {
	if a.writer == nil {
		return
	}
	for _, p := range res.Equity {
		a.writer.EnqueueEquity(timescale.EquitySample{
			RunID:  runID,
			Time:   p.Time,
			Equity: p.Equity,
		})
	}
	for _, t := range res.Trades {
		a.writer.EnqueueTrade(timescale.TradeRow{
			RunID:      runID,
			Symbol:     t.Symbol,
			Side:       string(t.Side),
			EntryTime:  t.EntryTime,
			ExitTime:   t.ExitTime,
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			Quantity:   t.Quantity,
			PnL:        t.PnL,
			Reason:     string(t.Reason),
		})
	}
}
