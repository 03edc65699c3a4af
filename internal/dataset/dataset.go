package dataset

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"quant-sim/internal/config"
	"quant-sim/internal/engine"

	"go.uber.org/zap"
)

// Loader turns a directory of per-symbol CSV files into aligned asset series
// ready for the simulator. Enrichment (ATR, volatility z-score) happens on
// each symbol's full history before the cross-symbol intersection, so a gap
// in one file never distorts another symbol's indicators.
type Loader struct {
	cfg config.DataConfig
	log *zap.Logger
}

func NewLoader(cfg config.DataConfig, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{cfg: cfg, log: log}
}

func (l *Loader) Load(ctx context.Context) ([]engine.AssetSeries, error) {
	paths, symbols, err := l.discover()
	if err != nil {
		return nil, err
	}
	if cached, ok := l.loadCache(paths, symbols); ok {
		return cached, nil
	}

	var series []rawSeries
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rs, err := readSeries(path, symbols[i])
		if err != nil {
			return nil, err
		}
		l.prepare(&rs)
		if len(rs.rows) < l.cfg.MinBars {
			l.log.Warn("series dropped: not enough bars",
				zap.String("symbol", rs.symbol),
				zap.Int("bars", len(rs.rows)),
				zap.Int("min_bars", l.cfg.MinBars),
			)
			continue
		}
		series = append(series, rs)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no symbol survived loading from %s: %w", l.cfg.Dir, ErrNoData)
	}

	aligned := intersect(series)
	if len(aligned) == 0 || len(aligned[0].rows) < l.cfg.MinBars {
		n := 0
		if len(aligned) > 0 {
			n = len(aligned[0].rows)
		}
		return nil, fmt.Errorf("aligned history has %d bars, need %d: %w", n, l.cfg.MinBars, ErrNoData)
	}

	out := make([]engine.AssetSeries, len(aligned))
	for i, rs := range aligned {
		out[i] = toAssetSeries(rs)
	}
	l.log.Info("dataset loaded",
		zap.Int("symbols", len(out)),
		zap.Int("bars", len(out[0].Bars)),
	)
	l.saveCache(out, symbols)
	return out, nil
}

// discover resolves the input files. An explicit symbol list pins both the
// file set and the asset order; otherwise every CSV in the directory is
// taken in name order. Either way the order is deterministic, which matters
// because ranking ties resolve by asset index.
func (l *Loader) discover() ([]string, []string, error) {
	if len(l.cfg.Symbols) > 0 {
		paths := make([]string, len(l.cfg.Symbols))
		for i, sym := range l.cfg.Symbols {
			paths[i] = filepath.Join(l.cfg.Dir, sym+".csv")
		}
		return paths, l.cfg.Symbols, nil
	}
	matches, err := filepath.Glob(filepath.Join(l.cfg.Dir, "*.csv"))
	if err != nil {
		return nil, nil, err
	}
	if len(matches) == 0 {
		return nil, nil, fmt.Errorf("no csv files in %s: %w", l.cfg.Dir, ErrNoData)
	}
	sort.Strings(matches)
	symbols := make([]string, len(matches))
	for i, p := range matches {
		symbols[i] = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	}
	return matches, symbols, nil
}

// prepare sorts, dedupes and enriches one symbol's history in place.
func (l *Loader) prepare(rs *rawSeries) {
	sort.SliceStable(rs.rows, func(a, b int) bool {
		return rs.rows[a].t.Before(rs.rows[b].t)
	})
	deduped := rs.rows[:0]
	for i, row := range rs.rows {
		if i > 0 && row.t.Equal(rs.rows[i-1].t) {
			l.log.Warn("duplicate timestamp dropped",
				zap.String("symbol", rs.symbol),
				zap.Time("timestamp", row.t),
			)
			continue
		}
		deduped = append(deduped, row)
	}
	rs.rows = deduped

	if needsATR(rs) {
		atr := computeATR(rs.rows, l.cfg.ATRPeriod)
		for i := range rs.rows {
			rs.rows[i].atr = atr[i]
		}
	}
	volz := computeVolZ(rs.rows, l.cfg.VolWindow)
	for i := range rs.rows {
		rs.rows[i].volz = volz[i]
	}
}

// needsATR reports whether the ATR column must be recomputed, either because
// the file never had one or because some cells failed to parse.
func needsATR(rs *rawSeries) bool {
	if !rs.hasATR {
		return true
	}
	for _, row := range rs.rows {
		if math.IsNaN(row.atr) {
			return true
		}
	}
	return false
}

// intersect keeps only the timestamps present in every series, preserving
// series order and per-series row order.
func intersect(series []rawSeries) []rawSeries {
	counts := make(map[int64]int)
	for _, rs := range series {
		for _, row := range rs.rows {
			counts[row.t.UnixNano()]++
		}
	}
	out := make([]rawSeries, len(series))
	for i, rs := range series {
		kept := rawSeries{symbol: rs.symbol, hasATR: rs.hasATR}
		for _, row := range rs.rows {
			if counts[row.t.UnixNano()] == len(series) {
				kept.rows = append(kept.rows, row)
			}
		}
		out[i] = kept
	}
	return out
}

func toAssetSeries(rs rawSeries) engine.AssetSeries {
	bars := make([]engine.Bar, len(rs.rows))
	for i, row := range rs.rows {
		bars[i] = engine.Bar{
			Time:  row.t,
			Open:  row.open,
			High:  row.high,
			Low:   row.low,
			Close: row.close,
			ATR:   row.atr,
			HTF:   row.htf,
			LTF:   row.ltf,
			VolZ:  row.volz,
		}
	}
	return engine.AssetSeries{Symbol: rs.symbol, Bars: bars}
}
