// Package store persists finished runs so single runs and sweep winners can
// be compared after the fact.
package store

import (
	"context"
	"encoding/json"
	"time"

	"quant-sim/internal/config"
	"quant-sim/internal/engine"
	"quant-sim/internal/report"
)

// RunRecord is one persisted simulation run. Config carries the JSON-encoded
// run parameters so old rows stay readable as fields come and go.
type RunRecord struct {
	ID          string
	Label       string
	Mode        string
	Config      string
	Summary     report.Summary
	FinalEquity float64
	CreatedAt   time.Time
}

type Store interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	SaveTrades(ctx context.Context, runID string, trades []engine.Trade) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	TradesForRun(ctx context.Context, runID string) ([]engine.Trade, error)
	Close() error
}

// EncodeRunConfig renders the run parameters for RunRecord.Config.
func EncodeRunConfig(cfg config.RunConfig) (string, error) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
