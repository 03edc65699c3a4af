package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"quant-sim/internal/engine"
)

// WriteEquityChart renders the equity curve and its running drawdown as a
// standalone HTML page at path.
func WriteEquityChart(path, title string, equity []engine.EquityPoint) error {
	if len(equity) == 0 {
		return fmt.Errorf("write equity chart: empty curve")
	}
	x := make([]string, len(equity))
	eq := make([]opts.LineData, len(equity))
	dd := make([]opts.LineData, len(equity))
	peak := equity[0].Equity
	for i, p := range equity {
		x[i] = p.Time.UTC().Format("2006-01-02 15:04")
		eq[i] = opts.LineData{Value: p.Equity}
		if p.Equity > peak {
			peak = p.Equity
		}
		pct := 0.0
		if peak > 0 {
			pct = (p.Equity - peak) / peak * 100
		}
		dd[i] = opts.LineData{Value: pct}
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(equityLine(title, x, eq), drawdownLine(x, dd))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create equity chart: %w", err)
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("render equity chart: %w", err)
	}
	return f.Close()
}

func equityLine(title string, x []string, data []opts.LineData) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  "1200px",
			Height: "480px",
		}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "portfolio equity"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetXAxis(x)
	line.AddSeries("Equity", data,
		charts.WithLineStyleOpts(opts.LineStyle{Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	return line
}

func drawdownLine(x []string, data []opts.LineData) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  "1200px",
			Height: "260px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "Drawdown %"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetXAxis(x)
	line.AddSeries("Drawdown", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.25)}),
	)
	return line
}
