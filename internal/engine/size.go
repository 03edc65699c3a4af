package engine

import (
	"math"

	"quant-sim/internal/config"
)

// Sizing is the fully derived entry ticket for one admission: how much to
// buy or sell, where the initial stop sits, and what slice of equity is at
// risk between the two.
type Sizing struct {
	Quantity   float64
	Stop       float64
	Distance   float64
	RiskAmount float64
}

// SizePosition converts the per-trade risk budget into a quantity by dividing
// it through the distance to the initial stop. The ATR floor is the same one
// the rank scorer uses, so a dead market produces a small position instead of
// a division error. Returns ok=false when the inputs cannot produce a usable
// position; the caller skips the candidate and moves on.
func SizePosition(equity, price, atr float64, side Side, cfg config.RunConfig) (Sizing, bool) {
	floored := math.Max(atr, price*cfg.ATRFloorEpsilon)
	distance := cfg.TrailingATRMultiplier * floored
	riskAmount := equity * cfg.RiskPerTrade
	if distance <= 0 || riskAmount <= 0 {
		return Sizing{}, false
	}
	quantity := riskAmount / distance
	if quantity <= 0 || math.IsNaN(quantity) || math.IsInf(quantity, 0) {
		return Sizing{}, false
	}
	stop := price - distance
	if side == SideShort {
		stop = price + distance
	}
	return Sizing{
		Quantity:   quantity,
		Stop:       stop,
		Distance:   distance,
		RiskAmount: riskAmount,
	}, true
}
