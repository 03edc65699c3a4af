package config

import (
	"errors"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Data      DataConfig      `yaml:"data"`
	Run       RunConfig       `yaml:"run"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Output    OutputConfig    `yaml:"output"`
	Store     StoreConfig     `yaml:"store"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type DataConfig struct {
	Dir       string   `yaml:"dir"`
	Symbols   []string `yaml:"symbols"`
	ATRPeriod int      `yaml:"atr_period"`
	VolWindow int      `yaml:"vol_window"`
	MinBars   int      `yaml:"min_bars"`
	CachePath string   `yaml:"cache_path"`
}

// RunConfig is the immutable parameter set of one simulation run. The sweep
// engine copies it per grid combination.
type RunConfig struct {
	InitialCapital        float64 `yaml:"initial_capital"`
	Commission            float64 `yaml:"commission"`
	RiskPerTrade          float64 `yaml:"risk_per_trade"`
	MaxConcurrentTrades   int     `yaml:"max_concurrent_trades"`
	MaxPortfolioExposure  float64 `yaml:"max_portfolio_exposure"`
	TrailingATRMultiplier float64 `yaml:"trailing_atr_multiplier"`
	BreakevenATRThreshold float64 `yaml:"breakeven_atr_threshold"`
	BreakevenFeeMargin    float64 `yaml:"breakeven_fee_margin"`
	MacroFilterType       string  `yaml:"macro_filter_type"`
	HTFThreshold          float64 `yaml:"htf_threshold"`
	LTFThreshold          float64 `yaml:"ltf_threshold"`
	VetoThreshold         float64 `yaml:"veto_threshold"`
	MomentumLookback      int     `yaml:"momentum_lookback"`
	ATRFloorEpsilon       float64 `yaml:"atr_floor_epsilon"`
	StopFill              string  `yaml:"stop_fill"`
}

type SweepConfig struct {
	Workers                int       `yaml:"workers"`
	TrailingATRMultipliers []float64 `yaml:"trailing_atr_multipliers"`
	BreakevenATRThresholds []float64 `yaml:"breakeven_atr_thresholds"`
	HTFThresholds          []float64 `yaml:"htf_thresholds"`
	RiskPerTrade           []float64 `yaml:"risk_per_trade"`
}

type OutputConfig struct {
	Dir            string  `yaml:"dir"`
	PeriodsPerYear float64 `yaml:"periods_per_year"`
	Chart          *bool   `yaml:"chart"`
	TopN           int     `yaml:"top_n"`
}

func (o OutputConfig) ChartEnabled() bool {
	return o.Chart == nil || *o.Chart
}

type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 30
	}
	if cfg.Data.ATRPeriod == 0 {
		cfg.Data.ATRPeriod = 14
	}
	if cfg.Data.VolWindow == 0 {
		cfg.Data.VolWindow = 30
	}
	if cfg.Data.MinBars == 0 {
		cfg.Data.MinBars = 64
	}
	applyRunDefaults(&cfg.Run)
	if cfg.Sweep.Workers == 0 {
		cfg.Sweep.Workers = runtime.NumCPU()
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "data/backtest"
	}
	if cfg.Output.PeriodsPerYear == 0 {
		cfg.Output.PeriodsPerYear = 365
	}
	if cfg.Output.TopN == 0 {
		cfg.Output.TopN = 10
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "data/quant-sim.db"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func applyRunDefaults(run *RunConfig) {
	if run.InitialCapital == 0 {
		run.InitialCapital = 100000
	}
	if run.Commission == 0 {
		run.Commission = 0.001
	}
	if run.RiskPerTrade == 0 {
		run.RiskPerTrade = 0.02
	}
	if run.MaxConcurrentTrades == 0 {
		run.MaxConcurrentTrades = 3
	}
	if run.MaxPortfolioExposure == 0 {
		run.MaxPortfolioExposure = 0.06
	}
	if run.TrailingATRMultiplier == 0 {
		run.TrailingATRMultiplier = 3.0
	}
	if run.BreakevenATRThreshold == 0 {
		run.BreakevenATRThreshold = 2.0
	}
	if run.BreakevenFeeMargin == 0 {
		run.BreakevenFeeMargin = 0.002
	}
	if run.MacroFilterType == "" {
		run.MacroFilterType = "both"
	}
	if run.HTFThreshold == 0 {
		run.HTFThreshold = 50.0
	}
	if run.LTFThreshold == 0 {
		run.LTFThreshold = 50.0
	}
	if run.VetoThreshold == 0 {
		run.VetoThreshold = 3.0
	}
	if run.MomentumLookback == 0 {
		run.MomentumLookback = 20
	}
	if run.ATRFloorEpsilon == 0 {
		run.ATRFloorEpsilon = 0.0001
	}
	if run.StopFill == "" {
		run.StopFill = "stop"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("QS_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("QS_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("QS_TIMESCALE_DSN")); v != "" {
		cfg.Timescale.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("QS_DATA_DIR")); v != "" {
		cfg.Data.Dir = v
	}
}

func validate(cfg *Config) error {
	if cfg.Data.Dir == "" {
		return errors.New("data.dir is required")
	}
	if cfg.Data.ATRPeriod < 1 {
		return errors.New("data.atr_period must be >= 1")
	}
	if cfg.Data.VolWindow < 2 {
		return errors.New("data.vol_window must be >= 2")
	}
	if cfg.Data.MinBars <= cfg.Run.MomentumLookback {
		return errors.New("data.min_bars must exceed run.momentum_lookback")
	}
	if err := validateRun(&cfg.Run); err != nil {
		return err
	}
	if cfg.Sweep.Workers < 1 {
		return errors.New("sweep.workers must be >= 1")
	}
	for _, v := range cfg.Sweep.TrailingATRMultipliers {
		if v <= 0 {
			return errors.New("sweep.trailing_atr_multipliers must be > 0")
		}
	}
	for _, v := range cfg.Sweep.BreakevenATRThresholds {
		if v <= 0 {
			return errors.New("sweep.breakeven_atr_thresholds must be > 0")
		}
	}
	for _, v := range cfg.Sweep.RiskPerTrade {
		if v <= 0 || v > 1 {
			return errors.New("sweep.risk_per_trade values must be in (0,1]")
		}
	}
	if cfg.Output.PeriodsPerYear <= 0 {
		return errors.New("output.periods_per_year must be > 0")
	}
	if cfg.Output.TopN < 1 {
		return errors.New("output.top_n must be >= 1")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Address == "" {
			return errors.New("metrics.address is required when metrics are enabled")
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return errors.New("metrics.path must start with /")
		}
	}
	return nil
}

func validateRun(run *RunConfig) error {
	if run.InitialCapital <= 0 {
		return errors.New("run.initial_capital must be > 0")
	}
	if run.Commission < 0 || run.Commission >= 1 {
		return errors.New("run.commission must be in [0,1)")
	}
	if run.RiskPerTrade <= 0 || run.RiskPerTrade > 1 {
		return errors.New("run.risk_per_trade must be in (0,1]")
	}
	if run.MaxConcurrentTrades < 1 {
		return errors.New("run.max_concurrent_trades must be >= 1")
	}
	if run.MaxPortfolioExposure <= 0 || run.MaxPortfolioExposure > 1 {
		return errors.New("run.max_portfolio_exposure must be in (0,1]")
	}
	if run.TrailingATRMultiplier <= 0 {
		return errors.New("run.trailing_atr_multiplier must be > 0")
	}
	if run.BreakevenATRThreshold <= 0 {
		return errors.New("run.breakeven_atr_threshold must be > 0")
	}
	if run.BreakevenATRThreshold >= run.TrailingATRMultiplier {
		return errors.New("run.breakeven_atr_threshold must be < run.trailing_atr_multiplier")
	}
	if run.BreakevenFeeMargin < 0 {
		return errors.New("run.breakeven_fee_margin must be >= 0")
	}
	switch run.MacroFilterType {
	case "hurst", "chop", "both":
	default:
		return errors.New("run.macro_filter_type must be one of hurst, chop, both")
	}
	if run.VetoThreshold <= 0 {
		return errors.New("run.veto_threshold must be > 0")
	}
	if run.MomentumLookback < 1 {
		return errors.New("run.momentum_lookback must be >= 1")
	}
	if run.ATRFloorEpsilon <= 0 {
		return errors.New("run.atr_floor_epsilon must be > 0")
	}
	switch run.StopFill {
	case "stop", "close":
	default:
		return errors.New("run.stop_fill must be one of stop, close")
	}
	return nil
}
