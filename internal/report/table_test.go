package report

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteLeaderboard(t *testing.T) {
	var buf bytes.Buffer
	rows := []LeaderboardRow{
		{Label: "trail=3.0 be=2.0", Summary: Summary{TotalReturnPct: 12.3456, SharpeRatio: 1.234, MaxDrawdownPct: 4.5, WinRatePct: 60, TotalTrades: 10}},
		{Label: "trail=4.0 be=2.5", Summary: Summary{TotalReturnPct: -3.2, SharpeRatio: -0.5, MaxDrawdownPct: 9.9, WinRatePct: 40, TotalTrades: 8}},
	}
	WriteLeaderboard(&buf, rows)

	out := buf.String()
	for _, want := range []string{"trail=3.0 be=2.0", "12.35", "1.23", "trail=4.0 be=2.5", "-3.20", "8"} {
		if !strings.Contains(out, want) {
			t.Fatalf("leaderboard missing %q in:\n%s", want, out)
		}
	}
	if !strings.Contains(strings.ToUpper(out), "COMBINATION") {
		t.Fatalf("leaderboard missing header in:\n%s", out)
	}
}

func TestWriteLeaderboardEmpty(t *testing.T) {
	var buf bytes.Buffer
	WriteLeaderboard(&buf, nil)
	if buf.Len() == 0 {
		t.Fatal("expected header-only table output")
	}
}
