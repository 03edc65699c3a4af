package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoData  = errors.New("no usable market data")
	ErrBadData = errors.New("malformed market data")
)

// columns maps the fields the engine needs onto CSV column indexes. Files
// from different capture pipelines name things differently, so each field
// accepts a small set of aliases. ATR is optional and recomputed from OHLC
// when the column is absent.
type columns struct {
	time  int
	open  int
	high  int
	low   int
	close int
	atr   int
	htf   int
	ltf   int
}

func resolveColumns(header []string) (columns, error) {
	cols := columns{time: -1, open: -1, high: -1, low: -1, close: -1, atr: -1, htf: -1, ltf: -1}
	for i, name := range header {
		switch normalizeColumn(name) {
		case "timestamp", "time", "date", "datetime":
			cols.time = i
		case "open", "o":
			cols.open = i
		case "high", "h":
			cols.high = i
		case "low", "l":
			cols.low = i
		case "close", "c":
			cols.close = i
		case "atr":
			cols.atr = i
		case "htf_metric", "htf", "hurst":
			cols.htf = i
		case "ltf_metric", "ltf", "chop", "choppiness":
			cols.ltf = i
		}
	}
	var missing []string
	if cols.time < 0 {
		missing = append(missing, "timestamp")
	}
	if cols.open < 0 {
		missing = append(missing, "open")
	}
	if cols.high < 0 {
		missing = append(missing, "high")
	}
	if cols.low < 0 {
		missing = append(missing, "low")
	}
	if cols.close < 0 {
		missing = append(missing, "close")
	}
	if cols.htf < 0 {
		missing = append(missing, "htf_metric")
	}
	if cols.ltf < 0 {
		missing = append(missing, "ltf_metric")
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("missing columns %s: %w", strings.Join(missing, ", "), ErrBadData)
	}
	return cols, nil
}

func normalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\uFEFF")
	return strings.ToLower(strings.TrimSpace(name))
}

// parseTimestamp accepts unix seconds, unix milliseconds and the common
// ISO-ish layouts. Everything is normalized to UTC.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		const millisFloor = int64(1e12)
		if n >= millisFloor {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN(), false
	}
	return f, true
}

type rawRow struct {
	t     time.Time
	open  float64
	high  float64
	low   float64
	close float64
	atr   float64
	htf   float64
	ltf   float64
	volz  float64
}

type rawSeries struct {
	symbol string
	rows   []rawRow
	hasATR bool
}

// readSeries parses one CSV file into a raw series. OHLC and the regime
// metrics are mandatory per row; a present-but-blank ATR cell is read as NaN
// and triggers recomputation of the whole column later.
func readSeries(path, symbol string) (rawSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return rawSeries{}, err
	}
	defer f.Close()

	base := filepath.Base(path)
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return rawSeries{}, fmt.Errorf("%s: read header: %w", base, err)
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return rawSeries{}, fmt.Errorf("%s: %w", base, err)
	}

	rs := rawSeries{symbol: symbol, hasATR: cols.atr >= 0}
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rawSeries{}, fmt.Errorf("%s: %w", base, err)
		}
		line++

		ts, err := parseTimestamp(rec[cols.time])
		if err != nil {
			return rawSeries{}, fmt.Errorf("%s row %d: %v: %w", base, line, err, ErrBadData)
		}
		row := rawRow{t: ts}
		var ok bool
		if row.open, ok = parseFloat(rec[cols.open]); !ok {
			return rawSeries{}, badCell(base, line, "open", rec[cols.open])
		}
		if row.high, ok = parseFloat(rec[cols.high]); !ok {
			return rawSeries{}, badCell(base, line, "high", rec[cols.high])
		}
		if row.low, ok = parseFloat(rec[cols.low]); !ok {
			return rawSeries{}, badCell(base, line, "low", rec[cols.low])
		}
		if row.close, ok = parseFloat(rec[cols.close]); !ok {
			return rawSeries{}, badCell(base, line, "close", rec[cols.close])
		}
		if row.htf, ok = parseFloat(rec[cols.htf]); !ok {
			return rawSeries{}, badCell(base, line, "htf_metric", rec[cols.htf])
		}
		if row.ltf, ok = parseFloat(rec[cols.ltf]); !ok {
			return rawSeries{}, badCell(base, line, "ltf_metric", rec[cols.ltf])
		}
		if cols.atr >= 0 {
			row.atr, _ = parseFloat(rec[cols.atr])
		} else {
			row.atr = math.NaN()
		}
		rs.rows = append(rs.rows, row)
	}
	return rs, nil
}

func badCell(file string, line int, field, value string) error {
	return fmt.Errorf("%s row %d: bad %s %q: %w", file, line, field, value, ErrBadData)
}
