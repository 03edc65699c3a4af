package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"quant-sim/internal/config"
	"quant-sim/internal/metrics"

	"go.uber.org/zap"
)

// exposureSlack absorbs float dust when summed risk fractions land exactly on
// the budget, e.g. three 0.02 entries against a 0.06 cap.
const exposureSlack = 1e-9

// Simulator drives one sequential bar-by-bar run. A single run never spawns
// goroutines: the exits, entries, ranking and sizing order within a bar is
// part of the contract. Independent Simulator instances share nothing and may
// run in parallel.
type Simulator struct {
	cfg    config.RunConfig
	filter MacroFilter
	fill   StopFill
	log    *zap.Logger
	m      *metrics.Metrics
}

func New(cfg config.RunConfig, log *zap.Logger, m *metrics.Metrics) (*Simulator, error) {
	if err := validateRunConfig(cfg); err != nil {
		return nil, err
	}
	filter, err := ParseMacroFilter(cfg.MacroFilterType)
	if err != nil {
		return nil, err
	}
	fill, err := ParseStopFill(cfg.StopFill)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Simulator{cfg: cfg, filter: filter, fill: fill, log: log, m: m}, nil
}

func validateRunConfig(cfg config.RunConfig) error {
	if cfg.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be > 0: %w", ErrBadConfig)
	}
	if cfg.Commission < 0 || cfg.Commission >= 1 {
		return fmt.Errorf("commission must be in [0,1): %w", ErrBadConfig)
	}
	if cfg.RiskPerTrade <= 0 || cfg.RiskPerTrade > 1 {
		return fmt.Errorf("risk_per_trade must be in (0,1]: %w", ErrBadConfig)
	}
	if cfg.MaxConcurrentTrades < 1 {
		return fmt.Errorf("max_concurrent_trades must be >= 1: %w", ErrBadConfig)
	}
	if cfg.MaxPortfolioExposure <= 0 || cfg.MaxPortfolioExposure > 1 {
		return fmt.Errorf("max_portfolio_exposure must be in (0,1]: %w", ErrBadConfig)
	}
	if cfg.TrailingATRMultiplier <= 0 {
		return fmt.Errorf("trailing_atr_multiplier must be > 0: %w", ErrBadConfig)
	}
	if cfg.BreakevenATRThreshold <= 0 {
		return fmt.Errorf("breakeven_atr_threshold must be > 0: %w", ErrBadConfig)
	}
	if cfg.BreakevenATRThreshold >= cfg.TrailingATRMultiplier {
		return fmt.Errorf("breakeven_atr_threshold must be < trailing_atr_multiplier or the ratchet can never fire: %w", ErrBadConfig)
	}
	if cfg.BreakevenFeeMargin < 0 {
		return fmt.Errorf("breakeven_fee_margin must be >= 0: %w", ErrBadConfig)
	}
	if cfg.VetoThreshold <= 0 {
		return fmt.Errorf("veto_threshold must be > 0: %w", ErrBadConfig)
	}
	if cfg.MomentumLookback < 1 {
		return fmt.Errorf("momentum_lookback must be >= 1: %w", ErrBadConfig)
	}
	if cfg.ATRFloorEpsilon <= 0 {
		return fmt.Errorf("atr_floor_epsilon must be > 0: %w", ErrBadConfig)
	}
	return nil
}

type candidate struct {
	index int
	score float64
}

// Run simulates the given aligned asset series and returns the trade ledger
// and equity curve. Assets with no bars are skipped and reported in the
// result; any other misalignment aborts before the first bar.
func (s *Simulator) Run(ctx context.Context, assets []AssetSeries) (*Result, error) {
	usable, skipped, ref, err := checkAlignment(assets)
	if err != nil {
		return nil, err
	}
	for _, sym := range skipped {
		s.log.Warn("asset skipped: no bars", zap.String("symbol", sym))
	}

	n := len(ref)
	states := make([]AssetState, len(assets))
	for i := range states {
		states[i].Status = StatusFlat
	}
	port := PortfolioState{Cash: s.cfg.InitialCapital}
	result := &Result{
		Equity:  make([]EquityPoint, 0, n),
		Skipped: skipped,
	}

	for t := 0; t < n; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		barTime := ref[t].Time

		// Exits first: capital and slots freed here are available to this
		// bar's entries.
		for i := range assets {
			if !usable[i] || states[i].Status == StatusFlat {
				continue
			}
			st := &states[i]
			bar := assets[i].Bars[t]
			dec := AdvanceExit(st, bar, s.cfg.TrailingATRMultiplier, s.cfg.BreakevenATRThreshold, s.cfg.BreakevenFeeMargin, s.fill)
			if dec.Exit {
				s.closePosition(&port, result, assets, i, st, dec.Price, dec.Reason, barTime)
			}
		}

		equityNow := port.Cash + unrealizedPnL(states, assets, usable, t)

		maxZ := math.Inf(-1)
		for i := range assets {
			if usable[i] {
				maxZ = math.Max(maxZ, assets[i].Bars[t].VolZ)
			}
		}
		if VetoActive(maxZ, s.cfg.VetoThreshold) {
			s.m.VetoBars.Inc()
		} else {
			cands := s.gatherCandidates(assets, states, usable, t)
			s.admit(&port, states, assets, cands, t, equityNow)
		}

		if t == n-1 {
			for i := range assets {
				if !usable[i] || states[i].Status == StatusFlat {
					continue
				}
				st := &states[i]
				st.Phase = nextPhase(st.Phase, EventDataEnd)
				s.closePosition(&port, result, assets, i, st, assets[i].Bars[t].Close, ExitEndOfData, barTime)
			}
		}

		result.Equity = append(result.Equity, EquityPoint{
			Time:   barTime,
			Equity: port.Cash + unrealizedPnL(states, assets, usable, t),
		})
	}

	s.log.Debug("run complete",
		zap.Int("bars", n),
		zap.Int("trades", len(result.Trades)),
		zap.Float64("final_equity", result.FinalEquity()),
	)
	return result, nil
}

// checkAlignment verifies that every non-empty series shares one bar index.
// Empty series are tolerated and reported; anything else is fatal before the
// run starts.
func checkAlignment(assets []AssetSeries) (usable []bool, skipped []string, ref []Bar, err error) {
	usable = make([]bool, len(assets))
	for i, a := range assets {
		if len(a.Bars) == 0 {
			skipped = append(skipped, a.Symbol)
			continue
		}
		usable[i] = true
		if ref == nil {
			ref = a.Bars
			continue
		}
		if len(a.Bars) != len(ref) {
			return nil, nil, nil, fmt.Errorf("asset %s has %d bars, expected %d: %w", a.Symbol, len(a.Bars), len(ref), ErrDataAlignment)
		}
		for t := range ref {
			if !a.Bars[t].Time.Equal(ref[t].Time) {
				return nil, nil, nil, fmt.Errorf("asset %s timestamp mismatch at bar %d: %w", a.Symbol, t, ErrDataAlignment)
			}
		}
	}
	if ref == nil {
		return nil, nil, nil, fmt.Errorf("no usable asset series: %w", ErrDataAlignment)
	}
	return usable, skipped, ref, nil
}

func (s *Simulator) gatherCandidates(assets []AssetSeries, states []AssetState, usable []bool, t int) []candidate {
	var cands []candidate
	for i := range assets {
		if !usable[i] || states[i].Status != StatusFlat {
			continue
		}
		bar := assets[i].Bars[t]
		if !PassesMacroFilter(s.filter, bar.HTF, bar.LTF, s.cfg.HTFThreshold, s.cfg.LTFThreshold) {
			continue
		}
		if t < s.cfg.MomentumLookback {
			continue
		}
		past := assets[i].Bars[t-s.cfg.MomentumLookback].Close
		score, anomalous := rankScoreChecked(bar.Close, past, bar.ATR, s.cfg.ATRFloorEpsilon)
		if anomalous {
			s.m.AnomaliesNeutralized.Inc()
		}
		if score == 0 {
			continue
		}
		cands = append(cands, candidate{index: i, score: score})
	}
	// Strongest first; exact ties resolve by ascending asset index so runs
	// stay deterministic.
	sort.Slice(cands, func(a, b int) bool {
		sa, sb := math.Abs(cands[a].score), math.Abs(cands[b].score)
		if sa != sb {
			return sa > sb
		}
		return cands[a].index < cands[b].index
	})
	return cands
}

// admit walks the ranked candidates and opens every one that still fits both
// the concurrency slots and the exposure budget. A candidate that does not
// fit is skipped rather than ending the walk, so capital is allocated by
// rank, never by iteration order.
func (s *Simulator) admit(port *PortfolioState, states []AssetState, assets []AssetSeries, cands []candidate, t int, equityNow float64) {
	for _, c := range cands {
		if port.OpenCount >= s.cfg.MaxConcurrentTrades {
			s.m.CandidatesSkipped.Inc()
			continue
		}
		if port.Exposure+s.cfg.RiskPerTrade > s.cfg.MaxPortfolioExposure+exposureSlack {
			s.m.CandidatesSkipped.Inc()
			continue
		}
		bar := assets[c.index].Bars[t]
		side := SideLong
		if c.score < 0 {
			side = SideShort
		}
		sz, ok := SizePosition(equityNow, bar.Close, bar.ATR, side, s.cfg)
		if !ok {
			s.m.CandidatesSkipped.Inc()
			continue
		}
		st := &states[c.index]
		st.Status = Status(side)
		st.Phase = PhasePreBreakeven
		st.EntryPrice = bar.Close
		st.EntryTime = bar.Time
		st.EntryATR = math.Max(bar.ATR, bar.Close*s.cfg.ATRFloorEpsilon)
		st.Quantity = sz.Quantity
		st.Stop = sz.Stop
		st.Extreme = bar.Close
		st.RiskFrac = s.cfg.RiskPerTrade

		port.Cash -= s.cfg.Commission * bar.Close * sz.Quantity
		port.OpenCount++
		port.Exposure += s.cfg.RiskPerTrade
		s.m.TradesOpened.Inc()
	}
}

func (s *Simulator) closePosition(port *PortfolioState, result *Result, assets []AssetSeries, i int, st *AssetState, price float64, reason ExitReason, barTime time.Time) {
	gross := (price - st.EntryPrice) * st.Quantity
	if st.Status == StatusShort {
		gross = (st.EntryPrice - price) * st.Quantity
	}
	entryComm := s.cfg.Commission * st.EntryPrice * st.Quantity
	exitComm := s.cfg.Commission * price * st.Quantity

	port.Cash += gross - exitComm
	port.OpenCount--
	port.Exposure -= st.RiskFrac
	if port.Exposure < 0 {
		port.Exposure = 0
	}

	result.Trades = append(result.Trades, Trade{
		Symbol:     assets[i].Symbol,
		AssetIndex: i,
		Side:       Side(st.Status),
		EntryTime:  st.EntryTime,
		ExitTime:   barTime,
		EntryPrice: st.EntryPrice,
		ExitPrice:  price,
		Quantity:   st.Quantity,
		PnL:        gross - entryComm - exitComm,
		Reason:     reason,
	})
	s.m.TradesClosed.Inc()

	*st = AssetState{Status: StatusFlat}
}

func unrealizedPnL(states []AssetState, assets []AssetSeries, usable []bool, t int) float64 {
	var total float64
	for i := range states {
		if !usable[i] || states[i].Status == StatusFlat {
			continue
		}
		close := assets[i].Bars[t].Close
		if states[i].Status == StatusLong {
			total += (close - states[i].EntryPrice) * states[i].Quantity
		} else {
			total += (states[i].EntryPrice - close) * states[i].Quantity
		}
	}
	return total
}
