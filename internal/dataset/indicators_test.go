package dataset

import (
	"math"
	"testing"
)

func rowsFromOHLC(vals [][4]float64) []rawRow {
	rows := make([]rawRow, len(vals))
	for i, v := range vals {
		rows[i] = rawRow{open: v[0], high: v[1], low: v[2], close: v[3]}
	}
	return rows
}

func TestComputeATRConstantRange(t *testing.T) {
	rows := rowsFromOHLC([][4]float64{
		{100, 101, 99, 100},
		{100, 101, 99, 100},
		{100, 101, 99, 100},
		{100, 101, 99, 100},
	})
	atr := computeATR(rows, 3)
	for i, v := range atr {
		if !closeValue(v, 2) {
			t.Fatalf("bar %d: expected atr 2, got %v", i, v)
		}
	}
}

func TestComputeATRBackfillsWarmup(t *testing.T) {
	rows := rowsFromOHLC([][4]float64{
		{105, 110, 100, 105},
		{105, 106, 104, 105},
		{105, 106, 104, 105},
		{105, 106, 104, 105},
	})
	// True ranges are 10, 2, 2, 2; with a window of 2 the first complete
	// value is 6 and it backfills bar 0.
	atr := computeATR(rows, 2)
	want := []float64{6, 6, 2, 2}
	for i := range want {
		if !closeValue(atr[i], want[i]) {
			t.Fatalf("bar %d: expected atr %v, got %v", i, want[i], atr[i])
		}
	}
}

func TestComputeATRShortSeriesExpands(t *testing.T) {
	rows := rowsFromOHLC([][4]float64{
		{102, 104, 100, 102},
		{102, 103, 101, 102},
		{102, 103, 101, 102},
	})
	atr := computeATR(rows, 5)
	want := []float64{4, 3, 8.0 / 3.0}
	for i := range want {
		if !closeValue(atr[i], want[i]) {
			t.Fatalf("bar %d: expected atr %v, got %v", i, want[i], atr[i])
		}
	}
}

func TestComputeVolZQuietMarketIsZero(t *testing.T) {
	var rows []rawRow
	for i := 0; i < 10; i++ {
		rows = append(rows, rawRow{close: 100})
	}
	z := computeVolZ(rows, 3)
	for i, v := range z {
		if v != 0 {
			t.Fatalf("bar %d: expected zero z-score in a quiet market, got %v", i, v)
		}
	}
}

func TestComputeVolZFlagsSpike(t *testing.T) {
	closes := []float64{100, 101, 101.5, 102.5, 103, 104, 120}
	rows := make([]rawRow, len(closes))
	for i, c := range closes {
		rows[i].close = c
	}
	z := computeVolZ(rows, 2)
	for i := 0; i < 3; i++ {
		if z[i] != 0 {
			t.Fatalf("bar %d: expected warmup z-score 0, got %v", i, z[i])
		}
	}
	if z[len(z)-1] <= 0 {
		t.Fatalf("expected positive z-score on the volatility spike, got %v", z[len(z)-1])
	}
}

func TestRollingWindowsPropagateNaN(t *testing.T) {
	x := []float64{math.NaN(), 1, 2, 3}
	mean := rollingMean(x, 2)
	if !math.IsNaN(mean[0]) || !math.IsNaN(mean[1]) {
		t.Fatalf("expected NaN through the contaminated window, got %v", mean[:2])
	}
	if !closeValue(mean[2], 1.5) || !closeValue(mean[3], 2.5) {
		t.Fatalf("unexpected means: %v", mean)
	}
	std := rollingStd(x, 2)
	if !math.IsNaN(std[1]) {
		t.Fatalf("expected NaN std through the contaminated window, got %v", std[1])
	}
	if !closeValue(std[2], math.Sqrt(0.5)) {
		t.Fatalf("unexpected std: %v", std[2])
	}
}

func closeValue(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
