package engine

import (
	"fmt"
	"time"
)

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

type Status string

const (
	StatusFlat  Status = "FLAT"
	StatusLong  Status = "LONG"
	StatusShort Status = "SHORT"
)

type ExitReason string

const (
	ExitTrailingStop  ExitReason = "TRAILING_STOP"
	ExitBreakevenStop ExitReason = "BREAKEVEN_STOP"
	ExitEndOfData     ExitReason = "END_OF_DATA"
)

// MacroFilter selects which regime condition admits new entries.
type MacroFilter string

const (
	FilterHurst MacroFilter = "hurst"
	FilterChop  MacroFilter = "chop"
	FilterBoth  MacroFilter = "both"
)

func ParseMacroFilter(s string) (MacroFilter, error) {
	switch MacroFilter(s) {
	case FilterHurst, FilterChop, FilterBoth:
		return MacroFilter(s), nil
	}
	return "", fmt.Errorf("unknown macro filter %q: %w", s, ErrBadConfig)
}

// StopFill selects the fill price assumed when a bar trades through a stop.
type StopFill string

const (
	FillAtStop  StopFill = "stop"
	FillAtClose StopFill = "close"
)

func ParseStopFill(s string) (StopFill, error) {
	switch StopFill(s) {
	case FillAtStop, FillAtClose:
		return StopFill(s), nil
	}
	return "", fmt.Errorf("unknown stop fill %q: %w", s, ErrBadConfig)
}

// Bar carries one asset's aligned inputs for a single timestamp. The regime
// metrics arrive already resampled, shifted and forward-filled by the data
// layer so nothing here can look ahead.
type Bar struct {
	Time  time.Time `msgpack:"t"`
	Open  float64   `msgpack:"o"`
	High  float64   `msgpack:"h"`
	Low   float64   `msgpack:"l"`
	Close float64   `msgpack:"c"`
	ATR   float64   `msgpack:"atr"`
	HTF   float64   `msgpack:"htf"`
	LTF   float64   `msgpack:"ltf"`
	VolZ  float64   `msgpack:"volz"`
}

type AssetSeries struct {
	Symbol string `msgpack:"symbol"`
	Bars   []Bar  `msgpack:"bars"`
}

// AssetState is owned exclusively by the simulator while a run is in flight.
type AssetState struct {
	Status     Status
	Phase      Phase
	EntryPrice float64
	EntryTime  time.Time
	EntryATR   float64
	Quantity   float64
	Stop       float64
	// Extreme tracks the highest price since entry for a long and the
	// lowest since entry for a short.
	Extreme  float64
	RiskFrac float64
}

// PortfolioState holds the single portfolio-wide ledger of a run. Exposure is
// the sum of at-entry risk fractions of the open positions, so the budget
// check stays valid as equity drifts.
type PortfolioState struct {
	Cash      float64
	OpenCount int
	Exposure  float64
}

// Trade is an immutable ledger entry created when a position closes. PnL is
// net of both entry and exit commission so the ledger sums to the equity
// change of the run.
type Trade struct {
	Symbol     string
	AssetIndex int
	Side       Side
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	PnL        float64
	Reason     ExitReason
}

type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// Result is the output contract of one run: the ordered trade ledger, one
// equity value per bar, and the symbols dropped for missing history.
type Result struct {
	Trades  []Trade
	Equity  []EquityPoint
	Skipped []string
}

func (r *Result) FinalEquity() float64 {
	if len(r.Equity) == 0 {
		return 0
	}
	return r.Equity[len(r.Equity)-1].Equity
}
