package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"quant-sim/internal/engine"
	"quant-sim/internal/store"
)

type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path. WAL mode plus a busy timeout
// lets readers coexist with the single writer, and capping the pool at one
// connection keeps writes serialized.
func New(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			mode TEXT NOT NULL,
			config TEXT NOT NULL,
			total_return_pct REAL NOT NULL,
			sharpe_ratio REAL NOT NULL,
			max_drawdown_pct REAL NOT NULL,
			win_rate_pct REAL NOT NULL,
			total_trades INTEGER NOT NULL,
			final_equity REAL NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			run_id TEXT NOT NULL REFERENCES runs(id),
			seq INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			asset_index INTEGER NOT NULL,
			side TEXT NOT NULL,
			entry_time TEXT NOT NULL,
			exit_time TEXT NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			quantity REAL NOT NULL,
			pnl REAL NOT NULL,
			reason TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SaveRun(ctx context.Context, rec store.RunRecord) error {
	if rec.ID == "" {
		return errors.New("run id is required")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, label, mode, config, total_return_pct, sharpe_ratio,
			max_drawdown_pct, win_rate_pct, total_trades, final_equity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Label, rec.Mode, rec.Config,
		rec.Summary.TotalReturnPct, rec.Summary.SharpeRatio,
		rec.Summary.MaxDrawdownPct, rec.Summary.WinRatePct,
		rec.Summary.TotalTrades, rec.FinalEquity,
		created.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) SaveTrades(ctx context.Context, runID string, trades []engine.Trade) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	if len(trades) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i, t := range trades {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO trades (run_id, seq, symbol, asset_index, side, entry_time,
				exit_time, entry_price, exit_price, quantity, pnl, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, i, t.Symbol, t.AssetIndex, string(t.Side),
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			t.EntryPrice, t.ExitPrice, t.Quantity, t.PnL, string(t.Reason))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, mode, config, total_return_pct, sharpe_ratio,
			max_drawdown_pct, win_rate_pct, total_trades, final_equity, created_at
		FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []store.RunRecord
	for rows.Next() {
		var rec store.RunRecord
		var created string
		if err := rows.Scan(&rec.ID, &rec.Label, &rec.Mode, &rec.Config,
			&rec.Summary.TotalReturnPct, &rec.Summary.SharpeRatio,
			&rec.Summary.MaxDrawdownPct, &rec.Summary.WinRatePct,
			&rec.Summary.TotalTrades, &rec.FinalEquity, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt, err = time.Parse(time.RFC3339, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", created, err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Store) TradesForRun(ctx context.Context, runID string) ([]engine.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, asset_index, side, entry_time, exit_time, entry_price,
			exit_price, quantity, pnl, reason
		FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []engine.Trade
	for rows.Next() {
		var t engine.Trade
		var side, entry, exit, reason string
		if err := rows.Scan(&t.Symbol, &t.AssetIndex, &side, &entry, &exit,
			&t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.PnL, &reason); err != nil {
			return nil, err
		}
		t.Side = engine.Side(side)
		t.Reason = engine.ExitReason(reason)
		if t.EntryTime, err = time.Parse(time.RFC3339, entry); err != nil {
			return nil, fmt.Errorf("parse entry_time %q: %w", entry, err)
		}
		if t.ExitTime, err = time.Parse(time.RFC3339, exit); err != nil {
			return nil, fmt.Errorf("parse exit_time %q: %w", exit, err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
