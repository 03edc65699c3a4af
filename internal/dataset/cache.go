package dataset

import (
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"quant-sim/internal/engine"
)

// cacheFile is the msgpack envelope for an enriched, aligned dataset. The
// indicator parameters and the discovered source symbols are stored alongside
// the series so a config change invalidates the cache without any
// bookkeeping. Sources holds the discovery result rather than the survivors,
// since short files may legitimately be dropped during loading.
type cacheFile struct {
	ATRPeriod int                  `msgpack:"atr_period"`
	VolWindow int                  `msgpack:"vol_window"`
	Sources   []string             `msgpack:"sources"`
	Series    []engine.AssetSeries `msgpack:"series"`
}

// loadCache returns the cached dataset when the cache is fresher than every
// source file and was built with the same parameters and symbol set. Any
// failure falls through to a full reload.
func (l *Loader) loadCache(paths, symbols []string) ([]engine.AssetSeries, bool) {
	if l.cfg.CachePath == "" {
		return nil, false
	}
	info, err := os.Stat(l.cfg.CachePath)
	if err != nil {
		return nil, false
	}
	for _, p := range paths {
		src, err := os.Stat(p)
		if err != nil || src.ModTime().After(info.ModTime()) {
			return nil, false
		}
	}
	data, err := os.ReadFile(l.cfg.CachePath)
	if err != nil {
		return nil, false
	}
	var cf cacheFile
	if err := msgpack.Unmarshal(data, &cf); err != nil {
		l.log.Warn("dataset cache unreadable, reloading", zap.Error(err))
		return nil, false
	}
	if cf.ATRPeriod != l.cfg.ATRPeriod || cf.VolWindow != l.cfg.VolWindow {
		return nil, false
	}
	if len(cf.Sources) != len(symbols) {
		return nil, false
	}
	for i, sym := range symbols {
		if cf.Sources[i] != sym {
			return nil, false
		}
	}
	l.log.Info("dataset cache hit", zap.String("path", l.cfg.CachePath))
	return cf.Series, true
}

func (l *Loader) saveCache(series []engine.AssetSeries, sources []string) {
	if l.cfg.CachePath == "" {
		return
	}
	data, err := msgpack.Marshal(cacheFile{
		ATRPeriod: l.cfg.ATRPeriod,
		VolWindow: l.cfg.VolWindow,
		Sources:   sources,
		Series:    series,
	})
	if err != nil {
		l.log.Warn("dataset cache encode failed", zap.Error(err))
		return
	}
	if dir := filepath.Dir(l.cfg.CachePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			l.log.Warn("dataset cache dir", zap.Error(err))
			return
		}
	}
	if err := os.WriteFile(l.cfg.CachePath, data, 0o644); err != nil {
		l.log.Warn("dataset cache write failed", zap.Error(err))
	}
}
