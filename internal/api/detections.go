package api

import (
	"net/http"
	"strconv"

	"github.com/emberwatch/fireline/internal/dispatch"
	"github.com/emberwatch/fireline/internal/httputil"
	"github.com/emberwatch/fireline/internal/store"
	"github.com/emberwatch/fireline/internal/tracks"
)

// handleCreateDetection runs the full coordinator hot path: persist,
// correlate, broadcast, and auto-dispatch above the confidence threshold.
func (s *Server) handleCreateDetection(w http.ResponseWriter, r *http.Request) {
	var in dispatch.DetectionInput
	if err := httputil.ReadJSON(w, r, &in); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	rec, err := s.coordinator.HandleDetection(in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, rec)
}

func (s *Server) handleListDetections(w http.ResponseWriter, r *http.Request) {
	filter := store.DetectionFilter{
		DeviceID: r.URL.Query().Get("device_id"),
		Type:     r.URL.Query().Get("type"),
	}
	if v := r.URL.Query().Get("min_confidence"); v != "" {
		conf, err := strconv.ParseFloat(v, 64)
		if err != nil || conf < 0 || conf > 1 {
			httputil.UnprocessableEntity(w, "min_confidence must be in [0,1]")
			return
		}
		filter.MinConfidence = conf
	}
	limit, err := parseLimit(r, 100, 1000)
	if err != nil {
		httputil.UnprocessableEntity(w, err.Error())
		return
	}
	filter.Limit = limit

	records, err := s.store.ListDetections(filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []store.Detection{}
	}
	httputil.WriteJSONOK(w, records)
}

// trackOut is the wire shape of one correlated track.
type trackOut struct {
	TrackID        string            `json:"track_id"`
	Positions      []tracks.Position `json:"positions"`
	Classification string            `json:"classification"`
	Confidence     float64           `json:"confidence"`
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	snapshot := s.correlator.Snapshot()
	out := make([]trackOut, 0, len(snapshot))
	for _, track := range snapshot {
		out = append(out, trackOut{
			TrackID:        track.TrackID,
			Positions:      track.Positions,
			Classification: track.Classification,
			Confidence:     track.Confidence,
		})
	}
	httputil.WriteJSONOK(w, out)
}
