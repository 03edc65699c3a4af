package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"quant-sim/internal/config"
	"quant-sim/internal/engine"
)

func baseRunConfig() config.RunConfig {
	return config.RunConfig{
		InitialCapital:        100000,
		Commission:            0.001,
		RiskPerTrade:          0.02,
		MaxConcurrentTrades:   3,
		MaxPortfolioExposure:  0.06,
		TrailingATRMultiplier: 3,
		BreakevenATRThreshold: 2,
		BreakevenFeeMargin:    0.002,
		MacroFilterType:       "hurst",
		HTFThreshold:          50,
		LTFThreshold:          50,
		VetoThreshold:         3,
		MomentumLookback:      1,
		ATRFloorEpsilon:       0.0001,
		StopFill:              "stop",
	}
}

func flatSeries(symbol string, closes ...float64) engine.AssetSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]engine.Bar, len(closes))
	for i, c := range closes {
		bars[i] = engine.Bar{
			Time:  start.Add(time.Duration(i) * time.Hour),
			Open:  c,
			High:  c,
			Low:   c,
			Close: c,
			ATR:   1,
			HTF:   60,
			LTF:   60,
		}
	}
	return engine.AssetSeries{Symbol: symbol, Bars: bars}
}

func testSeries() []engine.AssetSeries {
	return []engine.AssetSeries{
		flatSeries("AAA", 100, 105, 95, 95),
		flatSeries("BBB", 100, 100, 106, 112),
	}
}

func TestLabel(t *testing.T) {
	got := Label(baseRunConfig())
	want := "trail=3.00 be=2.00 htf=50.0 risk=0.020"
	if got != want {
		t.Fatalf("Label = %q, want %q", got, want)
	}
}

func TestCombinationsCartesianOrder(t *testing.T) {
	base := baseRunConfig()
	grid := config.SweepConfig{
		TrailingATRMultipliers: []float64{3, 4},
		BreakevenATRThresholds: []float64{1.5},
		HTFThresholds:          []float64{50, 55},
	}
	combos := Combinations(base, grid)
	if len(combos) != 4 {
		t.Fatalf("combo count = %d, want 4", len(combos))
	}
	want := []struct{ trail, be, htf float64 }{
		{3, 1.5, 50}, {3, 1.5, 55}, {4, 1.5, 50}, {4, 1.5, 55},
	}
	for i, w := range want {
		c := combos[i]
		if c.TrailingATRMultiplier != w.trail || c.BreakevenATRThreshold != w.be || c.HTFThreshold != w.htf {
			t.Fatalf("combo %d = trail=%v be=%v htf=%v, want %+v",
				i, c.TrailingATRMultiplier, c.BreakevenATRThreshold, c.HTFThreshold, w)
		}
		if c.RiskPerTrade != base.RiskPerTrade {
			t.Fatalf("combo %d risk = %v, want base %v", i, c.RiskPerTrade, base.RiskPerTrade)
		}
		if c.Commission != base.Commission || c.InitialCapital != base.InitialCapital {
			t.Fatalf("combo %d lost base fields: %+v", i, c)
		}
	}
}

func TestCombinationsEmptyGridIsBase(t *testing.T) {
	base := baseRunConfig()
	combos := Combinations(base, config.SweepConfig{})
	if len(combos) != 1 {
		t.Fatalf("combo count = %d, want 1", len(combos))
	}
	if combos[0] != base {
		t.Fatalf("combo = %+v, want base", combos[0])
	}
}

func TestRunnerDeterministicAcrossWorkerCounts(t *testing.T) {
	combos := Combinations(baseRunConfig(), config.SweepConfig{
		TrailingATRMultipliers: []float64{3, 4},
		RiskPerTrade:           []float64{0.01, 0.02},
	})
	if len(combos) != 4 {
		t.Fatalf("combo count = %d, want 4", len(combos))
	}

	serial := Runner{Series: testSeries(), Workers: 1, PeriodsPerYear: 365}
	parallel := Runner{Series: testSeries(), Workers: 4, PeriodsPerYear: 365}

	a, err := serial.Run(context.Background(), combos)
	if err != nil {
		t.Fatalf("serial run: %v", err)
	}
	b, err := parallel.Run(context.Background(), combos)
	if err != nil {
		t.Fatalf("parallel run: %v", err)
	}
	for i := range a {
		if a[i].Err != nil || b[i].Err != nil {
			t.Fatalf("combo %d errored: %v / %v", i, a[i].Err, b[i].Err)
		}
		if a[i].Summary != b[i].Summary || a[i].FinalEquity != b[i].FinalEquity {
			t.Fatalf("combo %d diverged: %+v vs %+v", i, a[i], b[i])
		}
		if a[i].Summary.TotalTrades == 0 {
			t.Fatalf("combo %d traded nothing, fixture too weak", i)
		}
	}
	if a[0].Summary == a[1].Summary {
		t.Fatalf("risk fraction had no effect: %+v", a[0].Summary)
	}
}

func TestRunnerRecordsInvalidCombination(t *testing.T) {
	combos := Combinations(baseRunConfig(), config.SweepConfig{
		BreakevenATRThresholds: []float64{2, 5},
	})
	r := Runner{Series: testSeries(), Workers: 2, PeriodsPerYear: 365}
	outs, err := r.Run(context.Background(), combos)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outs[0].Err != nil {
		t.Fatalf("valid combo errored: %v", outs[0].Err)
	}
	if !errors.Is(outs[1].Err, engine.ErrBadConfig) {
		t.Fatalf("invalid combo err = %v, want ErrBadConfig", outs[1].Err)
	}
	if outs[0].Summary.TotalTrades == 0 {
		t.Fatal("valid combo should still trade")
	}
}

func TestRunnerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Runner{Series: testSeries(), Workers: 2, PeriodsPerYear: 365}
	_, err := r.Run(ctx, Combinations(baseRunConfig(), config.SweepConfig{}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRunnerEmptyCombos(t *testing.T) {
	r := Runner{Series: testSeries(), Workers: 2}
	outs, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outs != nil {
		t.Fatalf("outs = %v, want nil", outs)
	}
}
