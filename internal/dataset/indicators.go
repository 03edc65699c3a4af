package dataset

import "math"

// computeATR derives the average true range as a rolling mean of the true
// range. The warmup bars before the first complete window borrow that
// window's value so the engine never sees NaN; a series shorter than the
// period degrades to an expanding mean.
func computeATR(rows []rawRow, period int) []float64 {
	tr := make([]float64, len(rows))
	for i := range rows {
		hl := rows[i].high - rows[i].low
		if i == 0 {
			tr[i] = hl
			continue
		}
		prev := rows[i-1].close
		tr[i] = math.Max(hl, math.Max(math.Abs(rows[i].high-prev), math.Abs(rows[i].low-prev)))
	}

	atr := rollingMean(tr, period)
	firstValid := -1
	for i, v := range atr {
		if !math.IsNaN(v) {
			firstValid = i
			break
		}
	}
	if firstValid < 0 {
		var sum float64
		for i, v := range tr {
			sum += v
			atr[i] = sum / float64(i+1)
		}
		return atr
	}
	for i := 0; i < firstValid; i++ {
		atr[i] = atr[firstValid]
	}
	return atr
}

// computeVolZ standardizes the rolling volatility of close-to-close returns
// against its own recent history. The warmup, where the nested windows are
// not yet filled, reads as zero so the veto stays quiet until the statistic
// is meaningful.
func computeVolZ(rows []rawRow, window int) []float64 {
	returns := make([]float64, len(rows))
	for i := range returns {
		if i == 0 {
			returns[i] = math.NaN()
			continue
		}
		prev := rows[i-1].close
		if prev == 0 {
			returns[i] = math.NaN()
			continue
		}
		returns[i] = rows[i].close/prev - 1
	}

	vol := rollingStd(returns, window)
	volMean := rollingMean(vol, window)
	volStd := rollingStd(vol, window)

	z := make([]float64, len(rows))
	for i := range z {
		if math.IsNaN(vol[i]) || math.IsNaN(volMean[i]) || math.IsNaN(volStd[i]) || volStd[i] <= 0 {
			z[i] = 0
			continue
		}
		z[i] = (vol[i] - volMean[i]) / volStd[i]
	}
	return z
}

// rollingMean mirrors a pandas rolling mean: windows that are incomplete or
// contain NaN yield NaN.
func rollingMean(x []float64, w int) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		if w < 1 || i < w-1 {
			out[i] = math.NaN()
			continue
		}
		sum, ok := windowSum(x, i, w)
		if !ok {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(w)
	}
	return out
}

// rollingStd is the sample standard deviation over the trailing window, NaN
// until the window fills.
func rollingStd(x []float64, w int) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		if w < 2 || i < w-1 {
			out[i] = math.NaN()
			continue
		}
		sum, ok := windowSum(x, i, w)
		if !ok {
			out[i] = math.NaN()
			continue
		}
		mean := sum / float64(w)
		var ss float64
		for j := i - w + 1; j <= i; j++ {
			d := x[j] - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(w-1))
	}
	return out
}

func windowSum(x []float64, end, w int) (float64, bool) {
	var sum float64
	for j := end - w + 1; j <= end; j++ {
		if math.IsNaN(x[j]) {
			return 0, false
		}
		sum += x[j]
	}
	return sum, true
}
