package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/emberwatch/fireline/internal/httputil"
)

// handleSpreadGridDebug renders a quick HTML scatter of the latest
// simulation's burned cells using go-echarts. This is a debugging-only view
// to eyeball the perimeter without the operations UI.
func (s *Server) handleSpreadGridDebug(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.latestSimulation()
	if !ok {
		httputil.NotFound(w, "no simulation has run yet")
		return
	}

	result := sim.result
	data := make([]opts.ScatterData, 0, len(result.Perimeter)+len(sim.ignition))
	for _, p := range result.Perimeter {
		data = append(data, opts.ScatterData{Value: []interface{}{p.Longitude, p.Latitude}})
	}
	ignitionData := make([]opts.ScatterData, 0, len(sim.ignition))
	for _, p := range sim.ignition {
		ignitionData = append(ignitionData, opts.ScatterData{Value: []interface{}{p.Longitude, p.Latitude}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Fireline Spread Grid",
			Theme:     "dark",
			Width:     "900px",
			Height:    "900px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Projected Fire Spread",
			Subtitle: fmt.Sprintf("%s  area=%.1f ha  duration=%.0f h  runs=%d",
				result.SimulationID, result.TotalAreaHectares,
				result.SimulationDurationHours, result.Statistics.RunsCompleted),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Longitude", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Latitude", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("burned", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	scatter.AddSeries("ignition", ignitionData, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
