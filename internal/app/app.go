package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"quant-sim/internal/alerts"
	"quant-sim/internal/config"
	"quant-sim/internal/dataset"
	"quant-sim/internal/engine"
	"quant-sim/internal/metrics"
	"quant-sim/internal/report"
	"quant-sim/internal/store"
	"quant-sim/internal/store/sqlite"
	"quant-sim/internal/sweep"
	"quant-sim/internal/timescale"
)

// Mode selects what Run executes: a single simulation of the configured
// parameters or a full grid sweep.
type Mode string

const (
	ModeRun   Mode = "run"
	ModeSweep Mode = "sweep"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRun, ModeSweep:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (want run or sweep)", s)
}

type App struct {
	cfg     *config.Config
	log     *zap.Logger
	mode    Mode
	loader  *dataset.Loader
	store   store.Store
	writer  *timescale.Writer
	metrics *metrics.Metrics
	prom    *metrics.Prometheus
	alerts  *alerts.Telegram
	out     io.Writer
}

func New(cfg *config.Config, log *zap.Logger, mode Mode) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	st, err := sqlite.New(cfg.Store.SQLitePath)
	if err != nil {
		return nil, err
	}
	writer, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	var prom *metrics.Prometheus
	m := metrics.NewNoop()
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}
	return &App{
		cfg:     cfg,
		log:     log,
		mode:    mode,
		loader:  dataset.NewLoader(cfg.Data, log),
		store:   st,
		writer:  writer,
		metrics: m,
		prom:    prom,
		alerts:  alerts.NewTelegram(cfg.Telegram, log),
		out:     os.Stdout,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.writer.Close()
	a.writer.Start(ctx)
	a.startMetricsServer(ctx)

	series, err := a.loader.Load(ctx)
	if err != nil {
		return err
	}
	switch a.mode {
	case ModeSweep:
		err = a.runSweep(ctx, series)
	default:
		err = a.runSingle(ctx, series)
	}
	if err != nil {
		return err
	}
	// The mirror writes asynchronously; give its queue a chance to empty
	// before the deferred Close ends the process.
	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.writer.Drain(drainCtx); err != nil {
		a.log.Warn("timescale mirror did not drain", zap.Error(err))
	}
	return nil
}

func (a *App) runSingle(ctx context.Context, series []engine.AssetSeries) error {
	start := time.Now()
	a.metrics.RunsStarted.Inc()
	sim, err := engine.New(a.cfg.Run, a.log, a.metrics)
	if err != nil {
		a.metrics.RunsFailed.Inc()
		return err
	}
	res, err := sim.Run(ctx, series)
	if err != nil {
		a.metrics.RunsFailed.Inc()
		return err
	}
	a.metrics.RunsCompleted.Inc()

	summary := report.Summarize(a.cfg.Run.InitialCapital, res.Equity, res.Trades, a.cfg.Output.PeriodsPerYear)
	runID := uuid.NewString()
	label := sweep.Label(a.cfg.Run)
	a.log.Info("run complete",
		zap.String("run_id", runID),
		zap.String("combo", label),
		zap.Float64("final_equity", res.FinalEquity()),
		zap.Float64("return_pct", summary.TotalReturnPct),
		zap.Float64("sharpe", summary.SharpeRatio),
		zap.Int("trades", summary.TotalTrades),
		zap.Strings("skipped", res.Skipped),
	)

	if err := report.WriteTradeCSV(filepath.Join(a.cfg.Output.Dir, "trades.csv"), res.Trades); err != nil {
		a.log.Warn("trade csv write failed", zap.Error(err))
	}
	if a.cfg.Output.ChartEnabled() {
		if err := report.WriteEquityChart(filepath.Join(a.cfg.Output.Dir, "equity.html"), "Portfolio "+label, res.Equity); err != nil {
			a.log.Warn("equity chart write failed", zap.Error(err))
		}
	}
	a.persistRun(ctx, store.RunRecord{
		ID:          runID,
		Label:       label,
		Mode:        string(ModeRun),
		Summary:     summary,
		FinalEquity: res.FinalEquity(),
	}, a.cfg.Run, res.Trades)
	a.recordTimescale(runID, res)
	report.WriteLeaderboard(a.out, []report.LeaderboardRow{{Label: label, Summary: summary}})
	a.notify(ctx, label, summary, res.FinalEquity(), time.Since(start))
	return nil
}

func (a *App) runSweep(ctx context.Context, series []engine.AssetSeries) error {
	start := time.Now()
	combos := sweep.Combinations(a.cfg.Run, a.cfg.Sweep)
	runner := &sweep.Runner{
		Series:         series,
		Workers:        a.cfg.Sweep.Workers,
		PeriodsPerYear: a.cfg.Output.PeriodsPerYear,
		Log:            a.log,
		Metrics:        a.metrics,
	}
	a.log.Info("sweep starting", zap.Int("combinations", len(combos)), zap.Int("workers", a.cfg.Sweep.Workers))
	outcomes, err := runner.Run(ctx, combos)
	if err != nil {
		return err
	}
	ranked := rankOutcomes(outcomes)
	if len(ranked) == 0 {
		return errors.New("sweep produced no valid combination")
	}

	if err := writeSweepCSV(filepath.Join(a.cfg.Output.Dir, "sweep.csv"), outcomes); err != nil {
		a.log.Warn("sweep csv write failed", zap.Error(err))
	}

	topN := a.cfg.Output.TopN
	if topN < 1 || topN > len(ranked) {
		topN = len(ranked)
	}
	rows := make([]report.LeaderboardRow, 0, topN)
	for _, out := range ranked[:topN] {
		rows = append(rows, report.LeaderboardRow{Label: sweep.Label(out.Cfg), Summary: out.Summary})
	}
	report.WriteLeaderboard(a.out, rows)

	for _, out := range ranked[:topN] {
		a.persistRun(ctx, store.RunRecord{
			ID:          uuid.NewString(),
			Label:       sweep.Label(out.Cfg),
			Mode:        string(ModeSweep),
			Summary:     out.Summary,
			FinalEquity: out.FinalEquity,
		}, out.Cfg, nil)
	}

	best := ranked[0]
	if err := a.writeRecommendation(best.Cfg); err != nil {
		a.log.Warn("recommendation write failed", zap.Error(err))
	}
	a.log.Info("sweep complete",
		zap.Int("combinations", len(combos)),
		zap.Int("valid", len(ranked)),
		zap.String("best", sweep.Label(best.Cfg)),
		zap.Float64("best_sharpe", best.Summary.SharpeRatio),
		zap.Duration("elapsed", time.Since(start)),
	)
	a.notify(ctx, "sweep best "+sweep.Label(best.Cfg), best.Summary, best.FinalEquity, time.Since(start))
	return nil
}

func (a *App) persistRun(ctx context.Context, rec store.RunRecord, runCfg config.RunConfig, trades []engine.Trade) {
	if a.store == nil {
		return
	}
	cfgJSON, err := store.EncodeRunConfig(runCfg)
	if err != nil {
		a.log.Warn("run config encode failed", zap.Error(err))
		cfgJSON = "{}"
	}
	rec.Config = cfgJSON
	if err := a.store.SaveRun(ctx, rec); err != nil {
		a.log.Warn("run persist failed", zap.String("run_id", rec.ID), zap.Error(err))
		return
	}
	if err := a.store.SaveTrades(ctx, rec.ID, trades); err != nil {
		a.log.Warn("trade persist failed", zap.String("run_id", rec.ID), zap.Error(err))
	}
}

// rankOutcomes keeps the valid outcomes sorted by Sharpe descending, ties
// broken by total return.
func rankOutcomes(outcomes []sweep.Outcome) []sweep.Outcome {
	valid := make([]sweep.Outcome, 0, len(outcomes))
	for _, out := range outcomes {
		if out.Err != nil || math.IsNaN(out.Summary.SharpeRatio) {
			continue
		}
		valid = append(valid, out)
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Summary.SharpeRatio != valid[j].Summary.SharpeRatio {
			return valid[i].Summary.SharpeRatio > valid[j].Summary.SharpeRatio
		}
		return valid[i].Summary.TotalReturnPct > valid[j].Summary.TotalReturnPct
	})
	return valid
}

func writeSweepCSV(path string, outcomes []sweep.Outcome) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	header := []string{
		"combination", "trailing_atr_multiplier", "breakeven_atr_threshold",
		"htf_threshold", "risk_per_trade", "return_pct", "sharpe",
		"max_drawdown_pct", "win_rate_pct", "trades", "error",
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	for _, out := range outcomes {
		errMsg := ""
		if out.Err != nil {
			errMsg = out.Err.Error()
		}
		row := []string{
			sweep.Label(out.Cfg),
			formatFloat(out.Cfg.TrailingATRMultiplier),
			formatFloat(out.Cfg.BreakevenATRThreshold),
			formatFloat(out.Cfg.HTFThreshold),
			formatFloat(out.Cfg.RiskPerTrade),
			formatFloat(out.Summary.TotalReturnPct),
			formatFloat(out.Summary.SharpeRatio),
			formatFloat(out.Summary.MaxDrawdownPct),
			formatFloat(out.Summary.WinRatePct),
			strconv.Itoa(out.Summary.TotalTrades),
			errMsg,
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writeRecommendation emits the winning parameters as a config fragment that
// drops into the run section of a config file.
func (a *App) writeRecommendation(best config.RunConfig) error {
	payload := struct {
		Run config.RunConfig `yaml:"run"`
	}{Run: best}
	raw, err := yaml.Marshal(payload)
	if err != nil {
		return err
	}
	path := filepath.Join(a.cfg.Output.Dir, "best.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func (a *App) notify(ctx context.Context, label string, summary report.Summary, finalEquity float64, elapsed time.Duration) {
	if a.alerts == nil {
		return
	}
	msg := alerts.FormatRunSummary(label, summary, finalEquity, elapsed)
	if err := a.alerts.Send(ctx, msg); err != nil {
		a.log.Warn("telegram notify failed", zap.Error(err))
	}
}

func (a *App) startMetricsServer(ctx context.Context) {
	if a.prom == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.log.Info("metrics server listening", zap.String("address", a.cfg.Metrics.Address), zap.String("path", a.cfg.Metrics.Path))
}
