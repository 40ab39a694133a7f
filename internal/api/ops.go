package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/emberwatch/fireline/internal/dispatch"
	"github.com/emberwatch/fireline/internal/httputil"
	"github.com/emberwatch/fireline/internal/store"
)

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var in dispatch.TaskInput
	if err := httputil.ReadJSON(w, r, &in); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	task, err := s.coordinator.CreateTask(in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 100, 1000)
	if err != nil {
		httputil.UnprocessableEntity(w, err.Error())
		return
	}
	tasks, err := s.store.ListTasks(r.URL.Query().Get("device_id"), r.URL.Query().Get("status"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	httputil.WriteJSONOK(w, tasks)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 100, 1000)
	if err != nil {
		httputil.UnprocessableEntity(w, err.Error())
		return
	}
	alerts, err := s.store.ListAlerts(r.URL.Query().Get("status"), r.URL.Query().Get("severity"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if alerts == nil {
		alerts = []store.Alert{}
	}
	httputil.WriteJSONOK(w, alerts)
}

type acknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req acknowledgeRequest
	if err := httputil.ReadJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	if req.AcknowledgedBy == "" {
		httputil.UnprocessableEntity(w, "acknowledged_by must not be empty")
		return
	}
	if err := s.store.AcknowledgeAlert(id, req.AcknowledgedBy, time.Now().UTC()); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"id":              id,
		"status":          "acknowledged",
		"acknowledged_by": req.AcknowledgedBy,
	})
}

func (s *Server) handleAdminSettings(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]any{
		"require_confirm": s.coordinator.RequireConfirm(),
	})
}

type requireConfirmRequest struct {
	Value *bool `json:"value"`
}

func (s *Server) handleRequireConfirm(w http.ResponseWriter, r *http.Request) {
	var req requireConfirmRequest
	if err := httputil.ReadJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		httputil.UnprocessableEntity(w, "value must be a boolean")
		return
	}
	s.coordinator.SetRequireConfirm(*req.Value)
	httputil.WriteJSONOK(w, map[string]any{"require_confirm": *req.Value})
}

// handleSituationReport assembles a JSON snapshot of the operation: recent
// detections, active alerts, missions in flight, live tracks and reporting
// devices.
func (s *Server) handleSituationReport(w http.ResponseWriter, r *http.Request) {
	detections, err := s.store.ListDetections(store.DetectionFilter{Limit: 50})
	if err != nil {
		s.writeError(w, err)
		return
	}
	alerts, err := s.store.ListAlerts("active", "", 50)
	if err != nil {
		s.writeError(w, err)
		return
	}
	missions, err := s.store.ListMissions("", 100)
	if err != nil {
		s.writeError(w, err)
		return
	}
	devices, err := s.store.TelemetryDevices()
	if err != nil {
		s.writeError(w, err)
		return
	}

	active := 0
	for _, m := range missions {
		if m.Status == "active" || m.Status == "pending" {
			active++
		}
	}

	httputil.WriteJSONOK(w, map[string]any{
		"generated_at":      time.Now().UTC().Format(time.RFC3339Nano),
		"detection_count":   len(detections),
		"recent_detections": detections,
		"active_alerts":     alerts,
		"missions_total":    len(missions),
		"missions_open":     active,
		"track_count":       s.correlator.Len(),
		"devices":           devices,
	})
}

func (s *Server) handleTwinTracks(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.correlator.Snapshot())
}

func (s *Server) handleTwinMissions(w http.ResponseWriter, r *http.Request) {
	views, err := s.coordinator.ListMissions(500)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if views == nil {
		views = []dispatch.MissionView{}
	}
	httputil.WriteJSONOK(w, views)
}

func (s *Server) handleTwinTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks("", "", 500)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	httputil.WriteJSONOK(w, tasks)
}
