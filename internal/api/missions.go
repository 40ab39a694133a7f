package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/emberwatch/fireline/internal/dispatch"
	"github.com/emberwatch/fireline/internal/httputil"
)

func (s *Server) handleCreateMission(w http.ResponseWriter, r *http.Request) {
	var in dispatch.MissionInput
	if err := httputil.ReadJSON(w, r, &in); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	view, err := s.coordinator.CreateMission(in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, view)
}

func (s *Server) handleListMissions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 100, 500)
	if err != nil {
		httputil.UnprocessableEntity(w, err.Error())
		return
	}
	views, err := s.coordinator.ListMissions(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if views == nil {
		views = []dispatch.MissionView{}
	}
	httputil.WriteJSONOK(w, views)
}

func (s *Server) handleUpdateMission(w http.ResponseWriter, r *http.Request) {
	missionID := chi.URLParam(r, "mission_id")
	var patch dispatch.MissionPatch
	// An absent body is a valid empty patch and echoes the current row.
	if err := httputil.ReadJSON(w, r, &patch); err != nil && !errors.Is(err, io.EOF) {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	view, err := s.coordinator.UpdateMission(missionID, patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, view)
}
