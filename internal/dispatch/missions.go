package dispatch

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emberwatch/fireline/internal/bus"
	"github.com/emberwatch/fireline/internal/monitoring"
	"github.com/emberwatch/fireline/internal/store"
)

// statusRank orders the mission state machine. Transitions may only move to
// an equal or higher rank; completed and failed are terminal.
var statusRank = map[string]int{
	"proposed":  0,
	"pending":   1,
	"active":    2,
	"completed": 3,
	"failed":    3,
}

func isTerminal(status string) bool {
	return status == "completed" || status == "failed"
}

// MissionLocation is the camelCase location block of the UI mission contract.
type MissionLocation struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Radius float64 `json:"radius"`
}

// MissionInput is the wire shape accepted by POST /missions.
type MissionInput struct {
	MissionID   string           `json:"mission_id,omitempty"`
	Type        string           `json:"type"`
	Priority    string           `json:"priority"`
	Description *string          `json:"description,omitempty"`
	Location    *MissionLocation `json:"location"`
	Waypoints   []map[string]any `json:"waypoints,omitempty"`
	Assets      []string         `json:"assets,omitempty"`
}

// MissionView is the camelCase mission object returned to UIs, mirrored to
// MQTT and broadcast on the stream.
type MissionView struct {
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	Status            string          `json:"status"`
	Priority          string          `json:"priority"`
	Location          MissionLocation `json:"location"`
	Description       string          `json:"description"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	Progress          int             `json:"progress"`
	EstimatedDuration *int            `json:"estimatedDuration,omitempty"`
}

// MissionPatch is the partial update accepted by PATCH /missions/{id}.
// An empty patch returns the current row unchanged.
type MissionPatch struct {
	Status            *string `json:"status,omitempty"`
	Progress          *int    `json:"progress,omitempty"`
	Description       *string `json:"description,omitempty"`
	EstimatedDuration *int    `json:"estimatedDuration,omitempty"`
}

func viewFromRecord(m store.Mission) MissionView {
	return MissionView{
		ID:       m.MissionID,
		Type:     m.Type,
		Status:   m.Status,
		Priority: m.Priority,
		Location: MissionLocation{
			Lat:    m.Lat,
			Lng:    m.Lng,
			Radius: m.Radius,
		},
		Description:       m.Description,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		Progress:          m.Progress,
		EstimatedDuration: m.EstimatedDuration,
	}
}

// CreateMission persists a manual mission, mirrors it, broadcasts it and
// schedules the standard lifecycle. A reused mission_id surfaces
// store.ErrDuplicateMission.
func (c *Coordinator) CreateMission(in MissionInput) (MissionView, error) {
	if in.Location == nil {
		return MissionView{}, fmt.Errorf("%w: location is required", ErrValidation)
	}
	now := c.clock.Now().UTC()

	missionID := in.MissionID
	if missionID == "" {
		missionID = fmt.Sprintf("recon-%d-%s", now.UnixMilli(), uuid.NewString()[:6])
	}
	missionType := in.Type
	if missionType == "" {
		missionType = "surveillance"
	}
	priority := in.Priority
	if priority == "" {
		priority = "medium"
	}
	description := "AUTOMATED RECON DISPATCH"
	if in.Description != nil {
		description = *in.Description
	}
	radius := in.Location.Radius
	if radius == 0 {
		radius = c.autoRadius
	}

	mission := store.Mission{
		MissionID:   missionID,
		Type:        missionType,
		Priority:    priority,
		Description: description,
		Status:      "pending",
		Lat:         in.Location.Lat,
		Lng:         in.Location.Lng,
		Radius:      radius,
		Waypoints:   in.Waypoints,
		Assets:      in.Assets,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.store.InsertMission(&mission); err != nil {
		return MissionView{}, err
	}
	if c.metrics != nil {
		c.metrics.MissionsCreated.WithLabelValues("manual").Inc()
	}

	view := viewFromRecord(mission)
	c.mirrorMission(view)
	c.hub.Broadcast(map[string]any{"type": "mission_created", "mission": view})
	c.publishBus(bus.TopicMissions, view)
	c.scheduleLifecycle(missionID)

	return view, nil
}

// GetMission returns the UI view of one mission.
func (c *Coordinator) GetMission(missionID string) (MissionView, error) {
	row, err := c.store.GetMission(missionID)
	if err != nil {
		return MissionView{}, err
	}
	return viewFromRecord(row), nil
}

// ListMissions returns recent missions newest-first.
func (c *Coordinator) ListMissions(limit int) ([]MissionView, error) {
	rows, err := c.store.ListMissions("", limit)
	if err != nil {
		return nil, err
	}
	views := make([]MissionView, len(rows))
	for i, row := range rows {
		views[i] = viewFromRecord(row)
	}
	return views, nil
}

// UpdateMission applies a partial update with forward-only status
// enforcement, then mirrors and broadcasts the new state.
func (c *Coordinator) UpdateMission(missionID string, patch MissionPatch) (MissionView, error) {
	row, err := c.store.GetMission(missionID)
	if err != nil {
		return MissionView{}, err
	}

	if patch.Status == nil && patch.Progress == nil && patch.Description == nil && patch.EstimatedDuration == nil {
		return viewFromRecord(row), nil
	}

	if patch.Status != nil {
		newRank, ok := statusRank[*patch.Status]
		if !ok {
			return MissionView{}, fmt.Errorf("%w: unknown status %q", ErrValidation, *patch.Status)
		}
		if *patch.Status != row.Status {
			if isTerminal(row.Status) {
				return MissionView{}, fmt.Errorf("%w: mission %s is already %s", ErrValidation, missionID, row.Status)
			}
			if newRank < statusRank[row.Status] {
				return MissionView{}, fmt.Errorf("%w: status cannot move from %s back to %s", ErrValidation, row.Status, *patch.Status)
			}
		}
		row.Status = *patch.Status
	}
	if patch.Progress != nil {
		if *patch.Progress < 0 {
			return MissionView{}, fmt.Errorf("%w: progress must not be negative, got %d", ErrValidation, *patch.Progress)
		}
		row.Progress = *patch.Progress
	}
	if patch.Description != nil {
		row.Description = *patch.Description
	}
	if patch.EstimatedDuration != nil {
		row.EstimatedDuration = patch.EstimatedDuration
	}

	// Full progress implies completion.
	if row.Progress >= 100 {
		row.Progress = 100
		if !isTerminal(row.Status) {
			row.Status = "completed"
		}
	}
	row.UpdatedAt = c.clock.Now().UTC()

	if err := c.store.UpdateMissionFields(&row); err != nil {
		return MissionView{}, err
	}

	view := viewFromRecord(row)
	c.mirrorMission(view)
	c.hub.Broadcast(map[string]any{"type": "mission_updated", "mission": view})
	c.publishBus(bus.TopicMissions, view)

	return view, nil
}

// scheduleLifecycle walks a fresh mission through pending→active→completed
// on fixed delays. Transitions only apply while the mission is still in the
// expected state, so operator updates always win.
func (c *Coordinator) scheduleLifecycle(missionID string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		t1 := c.clock.NewTimer(c.activateDelay)
		select {
		case <-c.ctx.Done():
			t1.Stop()
			return
		case <-t1.C():
		}
		t2 := c.clock.NewTimer(c.completeDelay)
		c.advanceMission(missionID, "pending", "active", -1)

		select {
		case <-c.ctx.Done():
			t2.Stop()
			return
		case <-t2.C():
		}
		c.advanceMission(missionID, "active", "completed", 100)
	}()
}

// advanceMission moves a mission from one lifecycle state to the next.
// progress < 0 leaves the stored progress alone.
func (c *Coordinator) advanceMission(missionID, from, to string, progress int) {
	row, err := c.store.GetMission(missionID)
	if err != nil {
		monitoring.Logf("dispatch: lifecycle lookup for %s failed: %v", missionID, err)
		return
	}
	if row.Status != from {
		return
	}

	p := row.Progress
	if progress >= 0 {
		p = progress
	}
	if err := c.store.UpdateMissionState(missionID, to, p, c.clock.Now().UTC()); err != nil {
		monitoring.Logf("dispatch: lifecycle update for %s failed: %v", missionID, err)
		return
	}

	event := map[string]any{"type": "mission_updated", "id": missionID, "status": to}
	if progress >= 0 {
		event["progress"] = progress
	}
	c.hub.Broadcast(event)
}
