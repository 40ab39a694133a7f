package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/emberwatch/fireline/internal/dispatch"
	"github.com/emberwatch/fireline/internal/httputil"
	"github.com/emberwatch/fireline/internal/store"
)

// telemetryInput is the wire shape accepted by POST /telemetry.
type telemetryInput struct {
	DeviceID     string                `json:"device_id"`
	Timestamp    time.Time             `json:"timestamp"`
	Latitude     float64               `json:"latitude"`
	Longitude    float64               `json:"longitude"`
	Altitude     float64               `json:"altitude"`
	Yaw          float64               `json:"yaw"`
	Pitch        float64               `json:"pitch"`
	Roll         float64               `json:"roll"`
	Speed        float64               `json:"speed"`
	BatteryLevel float64               `json:"battery_level"`
	Status       string                `json:"status"`
	CommsRSSI    *float64              `json:"comms_rssi,omitempty"`
	Temperature  *float64              `json:"temperature,omitempty"`
	Sensors      []store.SensorReading `json:"sensors,omitempty"`
}

func (in *telemetryInput) validate() error {
	if in.DeviceID == "" {
		return fmt.Errorf("%w: device_id must not be empty", dispatch.ErrValidation)
	}
	if in.Latitude < -90 || in.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90,90]", dispatch.ErrValidation, in.Latitude)
	}
	if in.Longitude < -180 || in.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180,180]", dispatch.ErrValidation, in.Longitude)
	}
	if in.BatteryLevel < 0 || in.BatteryLevel > 100 {
		return fmt.Errorf("%w: battery_level %v outside [0,100]", dispatch.ErrValidation, in.BatteryLevel)
	}
	return nil
}

func (s *Server) handleCreateTelemetry(w http.ResponseWriter, r *http.Request) {
	var in telemetryInput
	if err := httputil.ReadJSON(w, r, &in); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	if err := in.validate(); err != nil {
		s.writeError(w, err)
		return
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}

	rec := store.Telemetry{
		DeviceID:     in.DeviceID,
		Timestamp:    in.Timestamp,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		Altitude:     in.Altitude,
		Yaw:          in.Yaw,
		Pitch:        in.Pitch,
		Roll:         in.Roll,
		Speed:        in.Speed,
		BatteryLevel: in.BatteryLevel,
		Status:       in.Status,
		CommsRSSI:    in.CommsRSSI,
		Temperature:  in.Temperature,
		Sensors:      in.Sensors,
	}
	if err := s.store.InsertTelemetry(&rec); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, rec)
}

func (s *Server) handleListTelemetry(w http.ResponseWriter, r *http.Request) {
	filter := store.TelemetryFilter{DeviceID: r.URL.Query().Get("device_id")}

	if v := r.URL.Query().Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.UnprocessableEntity(w, "start_time must be RFC 3339")
			return
		}
		filter.Start = &t
	}
	if v := r.URL.Query().Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.UnprocessableEntity(w, "end_time must be RFC 3339")
			return
		}
		filter.End = &t
	}
	limit, err := parseLimit(r, 100, 1000)
	if err != nil {
		httputil.UnprocessableEntity(w, err.Error())
		return
	}
	filter.Limit = limit

	records, err := s.store.ListTelemetry(filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []store.Telemetry{}
	}
	httputil.WriteJSONOK(w, records)
}

func (s *Server) handleTelemetryDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.TelemetryDevices()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if devices == nil {
		devices = []string{}
	}
	httputil.WriteJSONOK(w, map[string]any{"devices": devices})
}

func (s *Server) handleLatestTelemetry(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "device_id")
	records, err := s.store.ListTelemetry(store.TelemetryFilter{DeviceID: deviceID, Limit: 1})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(records) == 0 {
		httputil.NotFound(w, "Device not found")
		return
	}
	httputil.WriteJSONOK(w, records[0])
}

func (s *Server) handleDeleteTelemetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteTelemetry(id); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"message": fmt.Sprintf("Telemetry %s deleted", id)})
}

// parseLimit reads the limit query parameter, applying the default and
// rejecting values outside [1, max].
func parseLimit(r *http.Request, def, max int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer")
	}
	if n < 1 || n > max {
		return 0, fmt.Errorf("limit must be in [1, %d]", max)
	}
	return n, nil
}
