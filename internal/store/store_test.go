package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fireline_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRunsMigrations(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
	assert.NoError(t, s.Ready())
}

func TestMigrateDownAndBackUp(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	require.NoError(t, s.MigrateDown())
	version, _, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	// env tables are gone, pipeline tables remain.
	_, err = s.Exec(`SELECT 1 FROM env_cells`)
	assert.Error(t, err)
	_, err = s.Exec(`SELECT 1 FROM telemetry`)
	assert.NoError(t, err)

	require.NoError(t, s.MigrateUp())
	version, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestTelemetryInsertAndList(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	base := time.Date(2025, 8, 14, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertTelemetry(&Telemetry{
			DeviceID:     "drone-07",
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			Latitude:     39.5 + float64(i)*0.001,
			Longitude:    -120.3,
			BatteryLevel: 88,
			Sensors: []SensorReading{
				{Name: "thermal", Unit: "c", Value: 41.5, Timestamp: base},
			},
		}))
	}
	require.NoError(t, s.InsertTelemetry(&Telemetry{
		DeviceID:  "tower-02",
		Timestamp: base,
		Latitude:  39.6,
		Longitude: -120.1,
	}))

	all, err := s.ListTelemetry(TelemetryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	// Newest first.
	assert.Equal(t, base.Add(2*time.Minute), all[0].Timestamp)

	byDevice, err := s.ListTelemetry(TelemetryFilter{DeviceID: "drone-07"})
	require.NoError(t, err)
	require.Len(t, byDevice, 3)
	assert.Equal(t, "online", byDevice[0].Status)
	require.Len(t, byDevice[0].Sensors, 1)
	assert.Equal(t, "thermal", byDevice[0].Sensors[0].Name)
	assert.InDelta(t, 41.5, byDevice[0].Sensors[0].Value, 1e-9)

	start := base.Add(90 * time.Second)
	windowed, err := s.ListTelemetry(TelemetryFilter{DeviceID: "drone-07", Start: &start})
	require.NoError(t, err)
	assert.Len(t, windowed, 1)

	limited, err := s.ListTelemetry(TelemetryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	devices, err := s.TelemetryDevices()
	require.NoError(t, err)
	assert.Equal(t, []string{"drone-07", "tower-02"}, devices)
}

func TestDeleteTelemetry(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	rec := &Telemetry{
		DeviceID:  "drone-07",
		Timestamp: time.Date(2025, 8, 14, 10, 0, 0, 0, time.UTC),
		Latitude:  39.5,
		Longitude: -120.3,
	}
	require.NoError(t, s.InsertTelemetry(rec))

	require.NoError(t, s.DeleteTelemetry(rec.ID))

	all, err := s.ListTelemetry(TelemetryFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.ErrorIs(t, s.DeleteTelemetry(rec.ID), ErrNotFound)
}

func TestDetectionRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	bearing := 142.5
	d := &Detection{
		DeviceID:   "drone-07",
		Timestamp:  time.Date(2025, 8, 14, 10, 15, 0, 0, time.UTC),
		Type:       "smoke",
		Latitude:   39.52,
		Longitude:  -120.31,
		Bearing:    &bearing,
		Confidence: 0.83,
		Metadata:   map[string]any{"frame": "f-1290"},
	}
	require.NoError(t, s.InsertDetection(d))
	require.NotEmpty(t, d.ID)

	got, err := s.GetDetection(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "smoke", got.Type)
	assert.Equal(t, "edge", got.Source)
	require.NotNil(t, got.Bearing)
	assert.InDelta(t, 142.5, *got.Bearing, 1e-9)
	assert.Equal(t, map[string]any{"frame": "f-1290"}, got.Metadata)

	_, err = s.GetDetection("no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDetectionsFilters(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ts := time.Now().UTC()
	insert := func(device, kind string, conf float64) {
		t.Helper()
		require.NoError(t, s.InsertDetection(&Detection{
			DeviceID: device, Timestamp: ts, Type: kind,
			Latitude: 39.5, Longitude: -120.3, Confidence: conf,
		}))
	}
	insert("drone-07", "smoke", 0.9)
	insert("drone-07", "fire", 0.6)
	insert("tower-02", "smoke", 0.4)

	smoke, err := s.ListDetections(DetectionFilter{Type: "smoke"})
	require.NoError(t, err)
	assert.Len(t, smoke, 2)

	confident, err := s.ListDetections(DetectionFilter{MinConfidence: 0.5})
	require.NoError(t, err)
	assert.Len(t, confident, 2)

	drone, err := s.ListDetections(DetectionFilter{DeviceID: "drone-07", Type: "fire"})
	require.NoError(t, err)
	require.Len(t, drone, 1)
	assert.InDelta(t, 0.6, drone[0].Confidence, 1e-9)
}

func TestAlertAcknowledge(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	a := &Alert{
		Timestamp: time.Now().UTC(),
		Type:      "fire_detected",
		Severity:  "high",
		Message:   "AUTO: fire detected by drone-07",
		Latitude:  39.52,
		Longitude: -120.31,
		DeviceID:  "drone-07",
	}
	require.NoError(t, s.InsertAlert(a))

	active, err := s.ListAlerts("active", "", 0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "active", active[0].Status)
	assert.Nil(t, active[0].AcknowledgedAt)

	ackAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.AcknowledgeAlert(a.ID, "ops-lead", ackAt))

	acked, err := s.ListAlerts("acknowledged", "high", 0)
	require.NoError(t, err)
	require.Len(t, acked, 1)
	assert.Equal(t, "ops-lead", acked[0].AcknowledgedBy)
	require.NotNil(t, acked[0].AcknowledgedAt)
	assert.True(t, acked[0].AcknowledgedAt.Equal(ackAt))

	assert.ErrorIs(t, s.AcknowledgeAlert("missing", "ops-lead", ackAt), ErrNotFound)
}

func TestMissionLifecycle(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	m := &Mission{
		MissionID:   "auto-1755165300000-a1b2c3",
		Type:        "ember_damp",
		Priority:    "high",
		Description: "AUTO: respond to fire detection",
		Lat:         39.52,
		Lng:         -120.31,
		Waypoints:   []map[string]any{{"lat": 39.52, "lng": -120.31}},
		Assets:      []string{"drone-07"},
	}
	require.NoError(t, s.InsertMission(m))
	assert.Equal(t, float64(200), m.Radius)
	assert.Equal(t, "pending", m.Status)

	// Same mission_id again is rejected.
	assert.ErrorIs(t, s.InsertMission(&Mission{
		MissionID: m.MissionID, Type: "survey", Lat: 1, Lng: 1,
	}), ErrDuplicateMission)

	got, err := s.GetMission(m.MissionID)
	require.NoError(t, err)
	assert.Equal(t, "ember_damp", got.Type)
	assert.Equal(t, []string{"drone-07"}, got.Assets)
	require.Len(t, got.Waypoints, 1)
	assert.InDelta(t, 39.52, got.Waypoints[0]["lat"].(float64), 1e-9)

	later := time.Now().UTC().Add(5 * time.Second)
	require.NoError(t, s.UpdateMissionState(m.MissionID, "active", 50, later))
	got, err = s.GetMission(m.MissionID)
	require.NoError(t, err)
	assert.Equal(t, "active", got.Status)
	assert.Equal(t, 50, got.Progress)

	_, err = s.GetMission("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateMissionState("missing", "active", 0, later), ErrNotFound)

	active, err := s.ListMissions("active", 0)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	pending, err := s.ListMissions("pending", 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	duration := 45
	got.Status = "completed"
	got.Progress = 100
	got.Description = "ember line holding"
	got.EstimatedDuration = &duration
	got.UpdatedAt = later.Add(10 * time.Second)
	require.NoError(t, s.UpdateMissionFields(&got))

	final, err := s.GetMission(m.MissionID)
	require.NoError(t, err)
	assert.Equal(t, "completed", final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, "ember line holding", final.Description)
	require.NotNil(t, final.EstimatedDuration)
	assert.Equal(t, 45, *final.EstimatedDuration)
}

func TestTaskDuplicateID(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	task := &Task{
		TaskID:   "task-9f8e7d6c",
		DeviceID: "drone-07",
		Kind:     "patrol",
		Parameters: map[string]any{
			"altitude_m": 120.0,
		},
	}
	require.NoError(t, s.InsertTask(task))
	assert.ErrorIs(t, s.InsertTask(&Task{
		TaskID: task.TaskID, DeviceID: "drone-08", Kind: "patrol",
	}), ErrDuplicateTask)

	list, err := s.ListTasks("drone-07", "pending", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, map[string]any{"altitude_m": 120.0}, list[0].Parameters)
}

func TestEnvCellUpsert(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	cell := &EnvCell{
		CellIndex:    "r12c34",
		Timestamp:    time.Now().UTC(),
		FuelModel:    5,
		TemperatureC: 25,
		WindSpeedMPS: 4,
	}
	require.NoError(t, s.UpsertEnvCell(cell))

	risk := 0.72
	require.NoError(t, s.UpsertEnvCell(&EnvCell{
		CellIndex:    "r12c34",
		Timestamp:    time.Now().UTC(),
		FuelModel:    9,
		TemperatureC: 31,
		RiskScore:    &risk,
	}))

	got, err := s.GetEnvCell("r12c34")
	require.NoError(t, err)
	assert.Equal(t, 9, got.FuelModel)
	require.NotNil(t, got.RiskScore)
	assert.InDelta(t, 0.72, *got.RiskScore, 1e-9)

	cells, err := s.ListEnvCells(0)
	require.NoError(t, err)
	assert.Len(t, cells, 1)

	_, err = s.GetEnvCell("r0c0")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScenarioInsertAndList(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	require.NoError(t, s.InsertScenario(&Scenario{
		Name:             "sim_4821",
		BaseSimulationID: "sim_4821",
		Parameters:       map[string]any{"monte_carlo_runs": 100.0},
		Status:           "completed",
	}))

	list, err := s.ListScenarios(0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "sim_4821", list[0].Name)
	assert.Equal(t, "completed", list[0].Status)
	assert.Equal(t, map[string]any{"monte_carlo_runs": 100.0}, list[0].Parameters)
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100, clampLimit(0))
	assert.Equal(t, 100, clampLimit(-5))
	assert.Equal(t, 1, clampLimit(1))
	assert.Equal(t, 1000, clampLimit(5000))
}
