package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/biomirror/biomirror/pkg/types"
)

const chartTimeLayout = "15:04:05.000"

// charts renders GET /charts: one line chart per signal over the recent
// output series, with the tolerance drawn on the stability chart.
func (h *Handler) charts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	points := h.deps.Series.Points()
	x := make([]string, len(points))
	for i, p := range points {
		x[i] = p.Timestamp.Format(chartTimeLayout)
	}

	eda := lineChart("EDA variation", x)
	eda.AddSeries("eda", lineData(points, func(o types.Output) float64 { return o.EDAVariation }))

	resp := lineChart("Respiration variation", x)
	resp.AddSeries("pzt", lineData(points, func(o types.Output) float64 { return o.RespVariation }))

	ppg := lineChart("PPG", x)
	ppg.AddSeries("ppg", lineData(points, func(o types.Output) float64 { return o.PPG }))

	score := lineChart("Stability score", x)
	score.AddSeries("score", lineData(points, func(o types.Output) float64 { return o.StabilityScore }))
	if h.deps.Tolerance > 0 {
		tol := h.deps.Tolerance
		score.AddSeries("tolerance", lineData(points, func(types.Output) float64 { return tol }))
	}

	page := components.NewPage()
	page.PageTitle = "biomirror"
	page.AddCharts(eda, resp, ppg, score)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		jsonErr(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func lineChart(title string, x []string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "300px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x)
	return line
}

func lineData(points []types.Output, field func(types.Output) float64) []opts.LineData {
	data := make([]opts.LineData, len(points))
	for i, p := range points {
		data[i] = opts.LineData{Value: field(p)}
	}
	return data
}
