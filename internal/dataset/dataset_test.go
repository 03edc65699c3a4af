package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quant-sim/internal/config"
)

const testEpoch = int64(1704067200) // 2024-01-01T00:00:00Z

func csvBody(start int64, closes []float64) string {
	var b strings.Builder
	b.WriteString("timestamp,open,high,low,close,htf_metric,ltf_metric\n")
	for i, c := range closes {
		ts := start + int64(i)*3600
		fmt.Fprintf(&b, "%d,%g,%g,%g,%g,60,60\n", ts, c, c+1, c-1, c)
	}
	return b.String()
}

func writeCSV(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func testDataConfig(dir string) config.DataConfig {
	return config.DataConfig{Dir: dir, ATRPeriod: 2, VolWindow: 2, MinBars: 4}
}

func TestLoaderAlignsAndEnriches(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAA.csv", csvBody(testEpoch, []float64{100, 101, 102, 103, 104, 105}))
	// BBB starts one hour later, so the aligned history is the overlap.
	writeCSV(t, dir, "BBB.csv", csvBody(testEpoch+3600, []float64{200, 202, 204, 206, 208, 210}))

	loader := NewLoader(testDataConfig(dir), nil)
	series, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(series))
	}
	if series[0].Symbol != "AAA" || series[1].Symbol != "BBB" {
		t.Fatalf("unexpected symbol order: %s, %s", series[0].Symbol, series[1].Symbol)
	}
	if len(series[0].Bars) != 5 || len(series[1].Bars) != 5 {
		t.Fatalf("expected 5 aligned bars, got %d and %d", len(series[0].Bars), len(series[1].Bars))
	}
	for i := range series[0].Bars {
		if !series[0].Bars[i].Time.Equal(series[1].Bars[i].Time) {
			t.Fatalf("bar %d timestamps misaligned", i)
		}
	}
	first := series[0].Bars[0].Time
	if !first.Equal(time.Unix(testEpoch+3600, 0).UTC()) {
		t.Fatalf("expected overlap to start at the second hour, got %v", first)
	}
	for _, bar := range series[0].Bars {
		if math.IsNaN(bar.ATR) || bar.ATR <= 0 {
			t.Fatalf("expected computed atr, got %v", bar.ATR)
		}
		if bar.HTF != 60 || bar.LTF != 60 {
			t.Fatalf("regime metrics lost: %+v", bar)
		}
	}
}

func TestLoaderDropsShortSeries(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAA.csv", csvBody(testEpoch, []float64{100, 101, 102, 103, 104}))
	writeCSV(t, dir, "BBB.csv", csvBody(testEpoch, []float64{200, 202}))

	loader := NewLoader(testDataConfig(dir), nil)
	series, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(series) != 1 || series[0].Symbol != "AAA" {
		t.Fatalf("expected only AAA to survive, got %+v", series)
	}
	if len(series[0].Bars) != 5 {
		t.Fatalf("expected full AAA history, got %d bars", len(series[0].Bars))
	}
}

func TestLoaderSortsAndDedupes(t *testing.T) {
	dir := t.TempDir()
	body := "timestamp,open,high,low,close,htf_metric,ltf_metric\n" +
		fmt.Sprintf("%d,103,104,102,103,60,60\n", testEpoch+3*3600) +
		fmt.Sprintf("%d,100,101,99,100,60,60\n", testEpoch) +
		fmt.Sprintf("%d,101,102,100,101,60,60\n", testEpoch+3600) +
		fmt.Sprintf("%d,999,999,999,999,60,60\n", testEpoch+3600) +
		fmt.Sprintf("%d,102,103,101,102,60,60\n", testEpoch+2*3600)
	writeCSV(t, dir, "AAA.csv", body)

	cfg := testDataConfig(dir)
	cfg.MinBars = 3
	series, err := NewLoader(cfg, nil).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	bars := series[0].Bars
	if len(bars) != 4 {
		t.Fatalf("expected 4 bars after dedupe, got %d", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			t.Fatalf("bars not strictly ordered at %d", i)
		}
	}
	// The first occurrence of a duplicated timestamp wins.
	if bars[1].Close != 101 {
		t.Fatalf("expected first duplicate kept, got close %v", bars[1].Close)
	}
}

func TestLoaderExplicitSymbols(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAA.csv", csvBody(testEpoch, []float64{100, 101, 102, 103, 104}))
	writeCSV(t, dir, "BBB.csv", csvBody(testEpoch, []float64{200, 202, 204, 206, 208}))

	cfg := testDataConfig(dir)
	cfg.Symbols = []string{"BBB", "AAA"}
	series, err := NewLoader(cfg, nil).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if series[0].Symbol != "BBB" || series[1].Symbol != "AAA" {
		t.Fatalf("expected configured order, got %s, %s", series[0].Symbol, series[1].Symbol)
	}
}

func TestLoaderMissingExplicitSymbol(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAA.csv", csvBody(testEpoch, []float64{100, 101, 102, 103, 104}))
	cfg := testDataConfig(dir)
	cfg.Symbols = []string{"AAA", "ZZZ"}
	if _, err := NewLoader(cfg, nil).Load(context.Background()); err == nil {
		t.Fatalf("expected error for missing symbol file")
	}
}

func TestLoaderEmptyDir(t *testing.T) {
	loader := NewLoader(testDataConfig(t.TempDir()), nil)
	if _, err := loader.Load(context.Background()); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestLoaderCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := writeCSV(t, dir, "AAA.csv", csvBody(testEpoch, []float64{100, 101, 102, 103, 104}))

	cfg := testDataConfig(dir)
	cfg.CachePath = filepath.Join(dir, "cache", "dataset.msgpack")

	first, err := NewLoader(cfg, nil).Load(context.Background())
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if _, err := os.Stat(cfg.CachePath); err != nil {
		t.Fatalf("expected cache file: %v", err)
	}

	// Corrupt the source but keep its mtime behind the cache: the second
	// load must be served from the cache and never parse the garbage.
	if err := os.WriteFile(src, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("corrupt source: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(src, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	second, err := NewLoader(cfg, nil).Load(context.Background())
	if err != nil {
		t.Fatalf("cached load: %v", err)
	}
	if len(second) != len(first) || second[0].Symbol != first[0].Symbol {
		t.Fatalf("cached dataset differs from original")
	}
	if len(second[0].Bars) != len(first[0].Bars) {
		t.Fatalf("cached bar count differs: %d vs %d", len(second[0].Bars), len(first[0].Bars))
	}
	for i := range first[0].Bars {
		a, b := first[0].Bars[i], second[0].Bars[i]
		if !a.Time.Equal(b.Time) || a.Close != b.Close || a.ATR != b.ATR || a.VolZ != b.VolZ {
			t.Fatalf("cached bar %d differs: %+v vs %+v", i, a, b)
		}
	}

	// Changing an indicator parameter invalidates the cache, which surfaces
	// the corrupted source.
	cfg.ATRPeriod = 3
	if _, err := NewLoader(cfg, nil).Load(context.Background()); err == nil {
		t.Fatalf("expected stale cache to be rejected and reload to fail")
	}
}
