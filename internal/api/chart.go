package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/velosense/bikefit/internal/httputil"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// getChart renders a per-cycle line chart (HTML) of cadence and the knee and
// hip extremes using go-echarts. Debugging aid for reviewing a ride after
// the fact without the capture UI.
func (s *Server) getChart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := s.db.GetSession(id); err != nil {
		httputil.NotFound(w, fmt.Sprintf("unknown session %s", id))
		return
	}

	list, err := s.db.SessionCycles(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load cycles: %v", err))
		return
	}
	if len(list) == 0 {
		httputil.NotFound(w, fmt.Sprintf("session %s has no recorded cycles", id))
		return
	}

	xAxis := make([]string, 0, len(list))
	cadence := make([]opts.LineData, 0, len(list))
	kneeMax := make([]opts.LineData, 0, len(list))
	hipMin := make([]opts.LineData, 0, len(list))
	for _, c := range list {
		xAxis = append(xAxis, fmt.Sprintf("%d", c.Cycle))
		cadence = append(cadence, opts.LineData{Value: c.CadenceRPM})
		kneeMax = append(kneeMax, opts.LineData{Value: c.KneeMax})
		hipMin = append(hipMin, opts.LineData{Value: c.HipMin})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session Cycles", Theme: "dark", Width: "1100px", Height: "600px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Pedal Stroke Trends", Subtitle: fmt.Sprintf("session=%s cycles=%d", id, len(list))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "cycle"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "deg / rpm"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	line.SetXAxis(xAxis).
		AddSeries("cadence (rpm)", cadence).
		AddSeries("knee max (deg)", kneeMax).
		AddSeries("hip min (deg)", hipMin).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
