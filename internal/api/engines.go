package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/emberwatch/fireline/internal/httputil"
	"github.com/emberwatch/fireline/internal/monitoring"
	"github.com/emberwatch/fireline/internal/risk"
	"github.com/emberwatch/fireline/internal/spread"
	"github.com/emberwatch/fireline/internal/store"
	"github.com/emberwatch/fireline/internal/triangulate"
)

// triangulationRequest is the wire shape accepted by
// POST /triangulation/triangulate.
type triangulationRequest struct {
	Observations    []triangulate.Observation `json:"observations"`
	MaxDistanceKm   *float64                  `json:"max_distance_km,omitempty"`
	MinConfidence   *float64                  `json:"min_confidence,omitempty"`
	PreferredMethod string                    `json:"preferred_method,omitempty"`
}

// triangulationResponse reports the fused estimates plus request accounting.
type triangulationResponse struct {
	Results          []triangulate.Result `json:"results"`
	Success          bool                 `json:"success"`
	ErrorMessage     string               `json:"error_message,omitempty"`
	ObservationCount int                  `json:"observation_count"`
	ProcessingTimeMS float64              `json:"processing_time_ms"`
}

func (s *Server) handleTriangulate(w http.ResponseWriter, r *http.Request) {
	var req triangulationRequest
	if err := httputil.ReadJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}

	engine := s.triangulator
	if req.MaxDistanceKm != nil || req.MinConfidence != nil {
		var opts []triangulate.Option
		if req.MaxDistanceKm != nil {
			opts = append(opts, triangulate.WithMaxDistanceKm(*req.MaxDistanceKm))
		}
		if req.MinConfidence != nil {
			opts = append(opts, triangulate.WithMinConfidence(*req.MinConfidence))
		}
		engine = triangulate.NewEngine(opts...)
	}

	start := time.Now()
	result, err := engine.Triangulate(req.Observations)
	elapsed := float64(time.Since(start).Nanoseconds()) / 1e6
	if err != nil {
		s.writeError(w, err)
		return
	}

	httputil.WriteJSONOK(w, triangulationResponse{
		Results:          []triangulate.Result{*result},
		Success:          true,
		ObservationCount: len(req.Observations),
		ProcessingTimeMS: elapsed,
	})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var params spread.Parameters
	if err := httputil.ReadJSON(w, r, &params); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	if err := params.Validate(); err != nil {
		httputil.UnprocessableEntity(w, err.Error())
		return
	}

	result, err := s.spreadEngine.Simulate(r.Context(), params)
	if err != nil {
		monitoring.Logf("api: spread simulation failed: %v", err)
		httputil.InternalServerError(w, "EngineUnavailable")
		return
	}
	if s.metrics != nil {
		s.metrics.SpreadRuns.Add(float64(result.Statistics.RunsCompleted))
	}

	s.rememberSimulation(result, params.IgnitionPoints)
	s.persistScenario(result, params)

	httputil.WriteJSONOK(w, result)
}

// persistScenario records the finished run in the scenarios table. Failures
// log and do not fail the request: the result was already computed.
func (s *Server) persistScenario(result *spread.Result, params spread.Parameters) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return
	}
	var asMap map[string]any
	if err := json.Unmarshal(encoded, &asMap); err != nil {
		return
	}
	sc := store.Scenario{
		Name:       result.SimulationID,
		Parameters: asMap,
		Status:     "completed",
	}
	if err := s.store.InsertScenario(&sc); err != nil {
		monitoring.Logf("api: persist scenario %s: %v", result.SimulationID, err)
	}
}

func (s *Server) handleSimulationPlot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "simulation_id")
	sim, ok := s.simulation(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("simulation %s not found", id))
		return
	}

	png, err := spread.RenderPerimeterPNG(sim.result, sim.ignition)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// cellIndexFor derives the stable env_cells index from the rounded
// coordinates.
func cellIndexFor(lat, lon float64) string {
	return fmt.Sprintf("%.4f_%.4f", lat, lon)
}

func (s *Server) handleRiskScore(w http.ResponseWriter, r *http.Request) {
	var conditions risk.Conditions
	if err := httputil.ReadJSON(w, r, &conditions); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	if conditions.Timestamp.IsZero() {
		conditions.Timestamp = time.Now().UTC()
	}

	score := s.riskEngine.Score(conditions)

	cell := store.EnvCell{
		CellIndex:        cellIndexFor(conditions.Latitude, conditions.Longitude),
		Timestamp:        conditions.Timestamp,
		FuelModel:        conditions.FuelModel,
		SlopeDeg:         conditions.SlopeDeg,
		AspectDeg:        conditions.AspectDeg,
		CanopyCover:      conditions.CanopyCover,
		SoilMoisture:     conditions.SoilMoisture,
		FuelMoisture:     conditions.FuelMoisture,
		TemperatureC:     conditions.TemperatureC,
		RelativeHumidity: conditions.RelativeHumidity,
		WindSpeedMPS:     conditions.WindSpeedMPS,
		WindDirectionDeg: conditions.WindDirectionDeg,
		ElevationM:       conditions.ElevationM,
		RiskScore:        &score.RiskScore,
	}
	if err := s.store.UpsertEnvCell(&cell); err != nil {
		monitoring.Logf("api: upsert env cell %s: %v", cell.CellIndex, err)
	}

	httputil.WriteJSONOK(w, score)
}

type riskTrainRequest struct {
	Samples []risk.Sample `json:"samples"`
}

func (s *Server) handleRiskTrain(w http.ResponseWriter, r *http.Request) {
	var req riskTrainRequest
	if err := httputil.ReadJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	if err := s.riskEngine.Train(req.Samples); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"trained": true, "samples": len(req.Samples)})
}

func (s *Server) handleRiskCells(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 100, 1000)
	if err != nil {
		httputil.UnprocessableEntity(w, err.Error())
		return
	}
	cells, err := s.store.ListEnvCells(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if cells == nil {
		cells = []store.EnvCell{}
	}
	httputil.WriteJSONOK(w, cells)
}
