package engine

import "math"

// Phase is the lifecycle state of an open position. A position enters at
// PhasePreBreakeven, may ratchet once into PhasePostBreakeven, and ends in
// PhaseClosed.
type Phase string

type PhaseEvent string

const (
	PhasePreBreakeven  Phase = "OPEN_PRE_BREAKEVEN"
	PhasePostBreakeven Phase = "OPEN_POST_BREAKEVEN"
	PhaseClosed        Phase = "CLOSED"
)

const (
	EventBreakeven PhaseEvent = "BREAKEVEN"
	EventStopHit   PhaseEvent = "STOP_HIT"
	EventDataEnd   PhaseEvent = "DATA_END"
)

func nextPhase(current Phase, event PhaseEvent) Phase {
	switch current {
	case PhasePreBreakeven:
		if event == EventBreakeven {
			return PhasePostBreakeven
		}
		if event == EventStopHit || event == EventDataEnd {
			return PhaseClosed
		}
	case PhasePostBreakeven:
		if event == EventStopHit || event == EventDataEnd {
			return PhaseClosed
		}
	}
	return current
}

// ExitDecision reports whether a position closed on this bar and at what
// price.
type ExitDecision struct {
	Exit   bool
	Price  float64
	Reason ExitReason
}

// AdvanceExit walks one open position through one bar: refresh the price
// extreme, arm the breakeven stop once the move has paid for itself, ratchet
// the trailing stop, then test for a breach. The stop only ever tightens;
// the breakeven jump is clamped by the same rule.
func AdvanceExit(st *AssetState, bar Bar, trailingMult, breakevenThreshold, feeMargin float64, fill StopFill) ExitDecision {
	if st.Status == StatusLong {
		return advanceLong(st, bar, trailingMult, breakevenThreshold, feeMargin, fill)
	}
	return advanceShort(st, bar, trailingMult, breakevenThreshold, feeMargin, fill)
}

func advanceLong(st *AssetState, bar Bar, trailingMult, breakevenThreshold, feeMargin float64, fill StopFill) ExitDecision {
	st.Extreme = math.Max(st.Extreme, bar.High)

	if st.Phase == PhasePreBreakeven && st.Extreme-st.EntryPrice >= breakevenThreshold*st.EntryATR {
		breakeven := st.EntryPrice * (1 + feeMargin)
		if breakeven > st.Stop {
			st.Stop = breakeven
		}
		st.Phase = nextPhase(st.Phase, EventBreakeven)
	}

	if candidate := st.Extreme - trailingMult*bar.ATR; candidate > st.Stop {
		st.Stop = candidate
	}

	if bar.Low <= st.Stop {
		price := st.Stop
		if fill == FillAtClose {
			price = bar.Close
		}
		reason := ExitTrailingStop
		if st.Phase == PhasePostBreakeven {
			reason = ExitBreakevenStop
		}
		st.Phase = nextPhase(st.Phase, EventStopHit)
		return ExitDecision{Exit: true, Price: price, Reason: reason}
	}
	return ExitDecision{}
}

func advanceShort(st *AssetState, bar Bar, trailingMult, breakevenThreshold, feeMargin float64, fill StopFill) ExitDecision {
	st.Extreme = math.Min(st.Extreme, bar.Low)

	if st.Phase == PhasePreBreakeven && st.EntryPrice-st.Extreme >= breakevenThreshold*st.EntryATR {
		breakeven := st.EntryPrice * (1 - feeMargin)
		if breakeven < st.Stop {
			st.Stop = breakeven
		}
		st.Phase = nextPhase(st.Phase, EventBreakeven)
	}

	if candidate := st.Extreme + trailingMult*bar.ATR; candidate < st.Stop {
		st.Stop = candidate
	}

	if bar.High >= st.Stop {
		price := st.Stop
		if fill == FillAtClose {
			price = bar.Close
		}
		reason := ExitTrailingStop
		if st.Phase == PhasePostBreakeven {
			reason = ExitBreakevenStop
		}
		st.Phase = nextPhase(st.Phase, EventStopHit)
		return ExitDecision{Exit: true, Price: price, Reason: reason}
	}
	return ExitDecision{}
}
