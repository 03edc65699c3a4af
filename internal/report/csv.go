package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"quant-sim/internal/engine"
)

var tradeHeader = []string{
	"symbol", "entry_time", "exit_time", "direction", "size",
	"entry_price", "entry_value", "exit_price", "pnl", "return_pct",
}

// WriteTradeCSV exports the trade ledger to path, creating parent
// directories as needed. Times are RFC 3339 UTC and floats use the shortest
// exact form so the file round-trips losslessly.
func WriteTradeCSV(path string, trades []engine.Trade) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trade csv: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(tradeHeader); err != nil {
		f.Close()
		return fmt.Errorf("write trade csv: %w", err)
	}
	for _, t := range trades {
		entryValue := t.EntryPrice * t.Quantity
		returnPct := 0.0
		if entryValue != 0 {
			returnPct = t.PnL / entryValue * 100
		}
		row := []string{
			t.Symbol,
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			string(t.Side),
			formatFloat(t.Quantity),
			formatFloat(t.EntryPrice),
			formatFloat(entryValue),
			formatFloat(t.ExitPrice),
			formatFloat(t.PnL),
			formatFloat(returnPct),
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write trade csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write trade csv: %w", err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
