package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// LeaderboardRow pairs a parameter-combination label with its run summary.
type LeaderboardRow struct {
	Label   string
	Summary Summary
}

// WriteLeaderboard renders rows as a console table, preserving their order.
func WriteLeaderboard(w io.Writer, rows []LeaderboardRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Combination", "Return %", "Sharpe", "Max DD %", "Win %", "Trades"})
	for i, r := range rows {
		t.AppendRow(table.Row{
			i + 1,
			r.Label,
			fmt.Sprintf("%.2f", r.Summary.TotalReturnPct),
			fmt.Sprintf("%.2f", r.Summary.SharpeRatio),
			fmt.Sprintf("%.2f", r.Summary.MaxDrawdownPct),
			fmt.Sprintf("%.1f", r.Summary.WinRatePct),
			r.Summary.TotalTrades,
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
