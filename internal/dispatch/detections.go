package dispatch

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/emberwatch/fireline/internal/bus"
	"github.com/emberwatch/fireline/internal/monitoring"
	"github.com/emberwatch/fireline/internal/store"
	"github.com/emberwatch/fireline/internal/tracks"
)

var detectionTypeRE = regexp.MustCompile(`^[a-zA-Z_]+$`)

// autoMissionTypes trigger an automatic response mission when confidence
// clears the threshold.
var autoMissionTypes = map[string]bool{
	"fire":    true,
	"hotspot": true,
	"smoke":   true,
}

// WindVector is an optional wind estimate attached to a detection.
type WindVector struct {
	SpeedMPS     float64 `json:"speed_mps"`
	DirectionDeg float64 `json:"direction_deg"`
}

// DetectionInput is the wire shape accepted by POST /detections.
type DetectionInput struct {
	ID         string      `json:"id,omitempty"`
	Type       string      `json:"type"`
	Confidence float64     `json:"confidence"`
	Lat        float64     `json:"lat"`
	Lon        float64     `json:"lon"`
	Alt        *float64    `json:"alt,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	SourceID   string      `json:"source_id"`
	ImageRefs  []string    `json:"image_refs,omitempty"`
	HeatIndex  *float64    `json:"heat_index,omitempty"`
	WindVector *WindVector `json:"wind_vector,omitempty"`
}

// Validate rejects malformed detections before anything is persisted.
func (in *DetectionInput) Validate() error {
	if !detectionTypeRE.MatchString(in.Type) {
		return fmt.Errorf("%w: type %q must match ^[a-zA-Z_]+$", ErrValidation, in.Type)
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrValidation, in.Confidence)
	}
	if in.Lat < -90 || in.Lat > 90 {
		return fmt.Errorf("%w: lat %v outside [-90,90]", ErrValidation, in.Lat)
	}
	if in.Lon < -180 || in.Lon > 180 {
		return fmt.Errorf("%w: lon %v outside [-180,180]", ErrValidation, in.Lon)
	}
	if in.SourceID == "" {
		return fmt.Errorf("%w: source_id must not be empty", ErrValidation)
	}
	if in.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp must be set", ErrValidation)
	}
	if wv := in.WindVector; wv != nil {
		if wv.SpeedMPS < 0 {
			return fmt.Errorf("%w: wind speed %v must be >= 0", ErrValidation, wv.SpeedMPS)
		}
		if wv.DirectionDeg < 0 || wv.DirectionDeg > 360 {
			return fmt.Errorf("%w: wind direction %v outside [0,360]", ErrValidation, wv.DirectionDeg)
		}
	}
	return nil
}

// HandleDetection runs the hot path: validate, persist, correlate, publish,
// broadcast, and auto-dispatch a mission for confident wildfire signatures.
// Everything after the insert is best-effort.
func (c *Coordinator) HandleDetection(in DetectionInput) (store.Detection, error) {
	if err := in.Validate(); err != nil {
		return store.Detection{}, err
	}

	rec := store.Detection{
		ID:         in.ID,
		DeviceID:   in.SourceID,
		Timestamp:  in.Timestamp,
		Type:       in.Type,
		Latitude:   in.Lat,
		Longitude:  in.Lon,
		Altitude:   in.Alt,
		Confidence: in.Confidence,
		Source:     "edge",
	}
	if len(in.ImageRefs) > 0 {
		rec.MediaRef = in.ImageRefs[0]
	}
	if in.HeatIndex != nil || in.WindVector != nil {
		rec.Metadata = map[string]any{}
		if in.HeatIndex != nil {
			rec.Metadata["heat_index"] = *in.HeatIndex
		}
		if in.WindVector != nil {
			rec.Metadata["wind_vector"] = map[string]any{
				"speed_mps":     in.WindVector.SpeedMPS,
				"direction_deg": in.WindVector.DirectionDeg,
			}
		}
	}
	if err := c.store.InsertDetection(&rec); err != nil {
		return store.Detection{}, err
	}

	pos := tracks.Position{
		Latitude:  in.Lat,
		Longitude: in.Lon,
		Timestamp: in.Timestamp,
	}
	if in.Alt != nil {
		pos.Altitude = *in.Alt
	}
	c.correlator.Observe(in.SourceID, "fire", 0.8, pos)

	event := map[string]any{
		"type": "detection_created",
		"detection": map[string]any{
			"id":         rec.ID,
			"type":       in.Type,
			"lat":        in.Lat,
			"lon":        in.Lon,
			"confidence": in.Confidence,
			"timestamp":  in.Timestamp.UTC().Format(time.RFC3339Nano),
			"source_id":  in.SourceID,
		},
	}
	c.hub.Broadcast(event)
	c.publishBus(bus.TopicDetections, event)

	if autoMissionTypes[in.Type] && in.Confidence >= c.autoThreshold {
		c.autoDispatch(in, rec.ID)
	}

	return rec, nil
}

// autoDispatch records an alert and synthesizes a response mission for a
// confident detection.
func (c *Coordinator) autoDispatch(in DetectionInput, detectionID string) {
	now := c.clock.Now().UTC()

	alert := store.Alert{
		Timestamp:   now,
		Type:        in.Type + "_detected",
		Severity:    "high",
		Message:     fmt.Sprintf("AUTO: %s detected by %s (confidence %.2f)", in.Type, in.SourceID, in.Confidence),
		Latitude:    in.Lat,
		Longitude:   in.Lon,
		DeviceID:    in.SourceID,
		DetectionID: detectionID,
	}
	if err := c.store.InsertAlert(&alert); err != nil {
		monitoring.Logf("dispatch: failed to record alert for detection %s: %v", detectionID, err)
	} else {
		c.publishBus(bus.TopicAlerts, alert)
	}

	status := "pending"
	if c.RequireConfirm() {
		status = "proposed"
	}
	mission := store.Mission{
		MissionID:   fmt.Sprintf("auto-%d-%s", now.UnixMilli(), uuid.NewString()[:6]),
		Type:        "ember_damp",
		Priority:    "high",
		Description: "AUTO: respond to detection",
		Status:      status,
		Lat:         in.Lat,
		Lng:         in.Lon,
		Radius:      c.autoRadius,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.store.InsertMission(&mission); err != nil {
		monitoring.Logf("dispatch: failed to create auto mission for detection %s: %v", detectionID, err)
		return
	}
	if c.metrics != nil {
		c.metrics.MissionsCreated.WithLabelValues("auto").Inc()
	}

	view := viewFromRecord(mission)
	c.hub.Broadcast(map[string]any{
		"type": "mission_created",
		"id":   mission.MissionID,
		"lat":  in.Lat,
		"lon":  in.Lon,
	})
	c.mirrorMission(view)
	c.publishBus(bus.TopicMissions, view)

	// Proposed missions wait for operator confirmation via PATCH.
	if status == "pending" {
		c.scheduleLifecycle(mission.MissionID)
	}
}
