package timescale

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"quant-sim/internal/config"
)

func TestNewDisabledReturnsNil(t *testing.T) {
	w, err := New(config.TimescaleConfig{Enabled: false}, zap.NewNop())
	if err != nil {
		t.Fatalf("disabled writer: %v", err)
	}
	if w != nil {
		t.Fatalf("expected nil writer, got %v", w)
	}
}

func TestNewEnabledRequiresDSN(t *testing.T) {
	if _, err := New(config.TimescaleConfig{Enabled: true}, zap.NewNop()); err == nil {
		t.Fatal("expected error for missing dsn")
	}
}

func TestNilWriterIsSafe(t *testing.T) {
	var w *Writer
	w.Start(context.Background())
	w.EnqueueEquity(EquitySample{RunID: "r", Time: time.Now(), Equity: 1})
	w.EnqueueTrade(TradeRow{RunID: "r", Symbol: "BTC"})
	if err := w.Drain(context.Background()); err != nil {
		t.Fatalf("nil drain: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestDrainWaitsForPendingRows(t *testing.T) {
	w := &Writer{
		log:    zap.NewNop(),
		equity: make(chan EquitySample, 1),
		trades: make(chan TradeRow, 1),
	}
	if err := w.Drain(context.Background()); err != nil {
		t.Fatalf("drain with empty queue: %v", err)
	}

	w.EnqueueEquity(EquitySample{RunID: "a"})
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := w.Drain(ctx); err == nil {
		t.Fatal("expected drain timeout while the run loop is not started")
	}
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	w := &Writer{
		log:    zap.NewNop(),
		equity: make(chan EquitySample, 1),
		trades: make(chan TradeRow, 1),
	}

	w.EnqueueEquity(EquitySample{RunID: "a"})
	w.EnqueueEquity(EquitySample{RunID: "b"})
	w.EnqueueEquity(EquitySample{RunID: "c"})
	if got := w.dropEq.Load(); got != 2 {
		t.Fatalf("dropped equity = %d, want 2", got)
	}
	if len(w.equity) != 1 {
		t.Fatalf("queued equity = %d, want 1", len(w.equity))
	}

	w.EnqueueTrade(TradeRow{RunID: "a"})
	w.EnqueueTrade(TradeRow{RunID: "b"})
	if got := w.dropTrade.Load(); got != 1 {
		t.Fatalf("dropped trades = %d, want 1", got)
	}
}
