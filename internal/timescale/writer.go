package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"quant-sim/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// EquitySample is one equity-curve point of a run, keyed by run id so
// several runs can share the table.
type EquitySample struct {
	RunID  string
	Time   time.Time
	Equity float64
}

// TradeRow mirrors a closed trade into the warehouse. Time columns are the
// exit-side timestamps since that is when the row becomes final.
type TradeRow struct {
	RunID      string
	Symbol     string
	Side       string
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	PnL        float64
	Reason     string
}

// Writer mirrors run output into TimescaleDB off the hot path. Enqueue never
// blocks; when a queue is full the sample is dropped and counted, with a
// single warning per queue.
type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	equity    chan EquitySample
	trades    chan TradeRow
	started   atomic.Bool
	pending   atomic.Int64
	dropEq    atomic.Uint64
	dropTrade atomic.Uint64
}

// New returns (nil, nil) when the mirror is disabled; a nil *Writer is safe
// to use everywhere.
func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		equity: make(chan EquitySample, queueSize),
		trades: make(chan TradeRow, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueEquity(sample EquitySample) {
	if w == nil {
		return
	}
	select {
	case w.equity <- sample:
		w.pending.Add(1)
		return
	default:
		if w.dropEq.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale equity queue full")
		}
	}
}

func (w *Writer) EnqueueTrade(row TradeRow) {
	if w == nil {
		return
	}
	select {
	case w.trades <- row:
		w.pending.Add(1)
		return
	default:
		if w.dropTrade.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale trade queue full")
		}
	}
}

// Drain blocks until every enqueued row has been written or ctx expires. A
// batch run calls this before closing the mirror so the tail of the queue is
// not lost to process exit.
func (w *Writer) Drain(ctx context.Context) error {
	if w == nil {
		return nil
	}
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		if w.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-w.equity:
			w.writeEquity(ctx, sample)
			w.pending.Add(-1)
		case row := <-w.trades:
			w.writeTrade(ctx, row)
			w.pending.Add(-1)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		run_id TEXT NOT NULL,
		equity DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ts, run_id)
	)`, w.table("equity_curves"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		run_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		exit_price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		pnl DOUBLE PRECISION NOT NULL,
		reason TEXT NOT NULL
	)`, w.table("run_trades"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("equity_curves"))); err != nil && w.log != nil {
		w.log.Warn("timescale equity_curves hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("run_trades"))); err != nil && w.log != nil {
		w.log.Warn("timescale run_trades hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeEquity(ctx context.Context, sample EquitySample) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, run_id, equity)
		VALUES ($1, $2, $3)
		ON CONFLICT (ts, run_id) DO UPDATE SET equity = EXCLUDED.equity`,
		w.table("equity_curves"))
	if _, err := w.db.ExecContext(ctx, query, sample.Time, sample.RunID, sample.Equity); err != nil && w.log != nil {
		w.log.Warn("timescale equity insert failed", zap.Error(err))
	}
}

func (w *Writer) writeTrade(ctx context.Context, row TradeRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, run_id, symbol, side, entry_time, entry_price, exit_price, quantity, pnl, reason
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
	)`, w.table("run_trades"))
	if _, err := w.db.ExecContext(ctx, query,
		row.ExitTime,
		row.RunID,
		row.Symbol,
		row.Side,
		row.EntryTime,
		row.EntryPrice,
		row.ExitPrice,
		row.Quantity,
		row.PnL,
		row.Reason,
	); err != nil && w.log != nil {
		w.log.Warn("timescale trade insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
