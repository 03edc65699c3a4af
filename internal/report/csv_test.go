package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quant-sim/internal/engine"
)

const wantTradeHeader = "symbol,entry_time,exit_time,direction,size,entry_price,entry_value,exit_price,pnl,return_pct"

func TestWriteTradeCSV(t *testing.T) {
	entry := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	exit := entry.Add(5 * time.Hour)
	trades := []engine.Trade{
		{
			Symbol:     "BTC",
			Side:       engine.SideLong,
			EntryTime:  entry,
			ExitTime:   exit,
			EntryPrice: 100,
			ExitPrice:  110,
			Quantity:   2,
			PnL:        20,
			Reason:     engine.ExitTrailingStop,
		},
		{
			Symbol:     "ETH",
			Side:       engine.SideShort,
			EntryTime:  entry,
			ExitTime:   exit,
			EntryPrice: 50,
			ExitPrice:  55,
			Quantity:   4,
			PnL:        -20,
			Reason:     engine.ExitBreakevenStop,
		},
	}

	path := filepath.Join(t.TempDir(), "out", "trades.csv")
	if err := WriteTradeCSV(path, trades); err != nil {
		t.Fatalf("WriteTradeCSV: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 {
		t.Fatalf("line count = %d, want 3", len(lines))
	}
	if lines[0] != wantTradeHeader {
		t.Fatalf("header = %q", lines[0])
	}
	wantLong := "BTC,2024-01-02T03:00:00Z,2024-01-02T08:00:00Z,LONG,2,100,200,110,20,10"
	if lines[1] != wantLong {
		t.Fatalf("long row = %q, want %q", lines[1], wantLong)
	}
	wantShort := "ETH,2024-01-02T03:00:00Z,2024-01-02T08:00:00Z,SHORT,4,50,200,55,-20,-10"
	if lines[2] != wantShort {
		t.Fatalf("short row = %q, want %q", lines[2], wantShort)
	}
}

func TestWriteTradeCSVEmptyLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	if err := WriteTradeCSV(path, nil); err != nil {
		t.Fatalf("WriteTradeCSV: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got := strings.TrimSpace(string(raw)); got != wantTradeHeader {
		t.Fatalf("empty ledger file = %q, want header only", got)
	}
}
