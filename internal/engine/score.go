package engine

import "math"

// RankScore measures opportunity strength as price change over the lookback
// horizon in units of volatility. The ATR is floored at a fraction of the
// current price so a dead-flat series cannot blow the division up, and any
// non-finite outcome collapses to the neutral score 0, which never competes
// in ranking.
func RankScore(closeNow, closePast, atr, floorEps float64) float64 {
	score, _ := rankScoreChecked(closeNow, closePast, atr, floorEps)
	return score
}

// rankScoreChecked additionally reports whether the inputs were degenerate
// and the score had to be neutralized.
func rankScoreChecked(closeNow, closePast, atr, floorEps float64) (float64, bool) {
	denom := math.Max(atr, closeNow*floorEps)
	if denom <= 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return 0, true
	}
	score := (closeNow - closePast) / denom
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, true
	}
	return score, false
}
