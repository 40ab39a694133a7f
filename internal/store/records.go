package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Timestamps are persisted as RFC 3339 UTC strings so they sort lexically
// and survive any sqlite driver's type affinity rules.
const timeLayout = time.RFC3339Nano

func encodeTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func decodeTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := decodeTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeJSON(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return string(raw), nil
}

func decodeJSON(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil, fmt.Errorf("decode json column: %w", err)
	}
	return out, nil
}

func encodeJSONList[T any](v []T) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return string(raw), nil
}

func decodeJSONList[T any](s sql.NullString) ([]T, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil, fmt.Errorf("decode json column: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error, column string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+column)
}

// SensorReading is one auxiliary sensor sample attached to a telemetry
// report.
type SensorReading struct {
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Telemetry is one reported device state.
type Telemetry struct {
	ID           string          `json:"id"`
	DeviceID     string          `json:"device_id"`
	Timestamp    time.Time       `json:"timestamp"`
	Latitude     float64         `json:"latitude"`
	Longitude    float64         `json:"longitude"`
	Altitude     float64         `json:"altitude"`
	Yaw          float64         `json:"yaw"`
	Pitch        float64         `json:"pitch"`
	Roll         float64         `json:"roll"`
	Speed        float64         `json:"speed"`
	BatteryLevel float64         `json:"battery_level"`
	Status       string          `json:"status"`
	CommsRSSI    *float64        `json:"comms_rssi,omitempty"`
	Temperature  *float64        `json:"temperature,omitempty"`
	Sensors      []SensorReading `json:"sensors,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// InsertTelemetry persists one telemetry record, assigning ID and CreatedAt
// when unset.
func (s *Store) InsertTelemetry(t *Telemetry) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = "online"
	}
	sensors, err := encodeJSONList(t.Sensors)
	if err != nil {
		return err
	}
	_, err = s.Exec(`INSERT INTO telemetry (
			id, device_id, timestamp, latitude, longitude, altitude,
			yaw, pitch, roll, speed, battery_level, status,
			comms_rssi, temperature, sensors, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.DeviceID, encodeTime(t.Timestamp), t.Latitude, t.Longitude, t.Altitude,
		t.Yaw, t.Pitch, t.Roll, t.Speed, t.BatteryLevel, t.Status,
		t.CommsRSSI, t.Temperature, sensors, encodeTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}
	return nil
}

// TelemetryFilter narrows a telemetry listing.
type TelemetryFilter struct {
	DeviceID string
	Start    *time.Time
	End      *time.Time
	Limit    int
}

// ListTelemetry returns matching records newest-first. Limit defaults to 100
// and caps at 1000.
func (s *Store) ListTelemetry(f TelemetryFilter) ([]Telemetry, error) {
	query := `SELECT id, device_id, timestamp, latitude, longitude, altitude,
			yaw, pitch, roll, speed, battery_level, status,
			comms_rssi, temperature, sensors, created_at
		FROM telemetry WHERE 1=1`
	var args []any
	if f.DeviceID != "" {
		query += " AND device_id = ?"
		args = append(args, f.DeviceID)
	}
	if f.Start != nil {
		query += " AND timestamp >= ?"
		args = append(args, encodeTime(*f.Start))
	}
	if f.End != nil {
		query += " AND timestamp <= ?"
		args = append(args, encodeTime(*f.End))
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, clampLimit(f.Limit))

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list telemetry: %w", err)
	}
	defer rows.Close()

	var out []Telemetry
	for rows.Next() {
		var t Telemetry
		var ts, created string
		var sensors sql.NullString
		if err := rows.Scan(&t.ID, &t.DeviceID, &ts, &t.Latitude, &t.Longitude, &t.Altitude,
			&t.Yaw, &t.Pitch, &t.Roll, &t.Speed, &t.BatteryLevel, &t.Status,
			&t.CommsRSSI, &t.Temperature, &sensors, &created); err != nil {
			return nil, err
		}
		if t.Timestamp, err = decodeTime(ts); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = decodeTime(created); err != nil {
			return nil, err
		}
		if t.Sensors, err = decodeJSONList[SensorReading](sensors); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTelemetry removes one record by ID.
func (s *Store) DeleteTelemetry(id string) error {
	res, err := s.Exec(`DELETE FROM telemetry WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete telemetry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TelemetryDevices returns the distinct reporting device IDs.
func (s *Store) TelemetryDevices() ([]string, error) {
	rows, err := s.Query(`SELECT DISTINCT device_id FROM telemetry ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("list telemetry devices: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Detection is one classified observation from edge or cloud processing.
type Detection struct {
	ID         string         `json:"id"`
	DeviceID   string         `json:"device_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Type       string         `json:"type"`
	Latitude   float64        `json:"latitude"`
	Longitude  float64        `json:"longitude"`
	Altitude   *float64       `json:"altitude,omitempty"`
	Bearing    *float64       `json:"bearing,omitempty"`
	Confidence float64        `json:"confidence"`
	MediaRef   string         `json:"media_ref,omitempty"`
	Source     string         `json:"source"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// InsertDetection persists one detection, assigning ID and CreatedAt when
// unset.
func (s *Store) InsertDetection(d *Detection) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Source == "" {
		d.Source = "edge"
	}
	metadata, err := encodeJSON(d.Metadata)
	if err != nil {
		return err
	}
	_, err = s.Exec(`INSERT INTO detections (
			id, device_id, timestamp, type, latitude, longitude, altitude,
			bearing, confidence, media_ref, source, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.DeviceID, encodeTime(d.Timestamp), d.Type, d.Latitude, d.Longitude, d.Altitude,
		d.Bearing, d.Confidence, d.MediaRef, d.Source, metadata, encodeTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert detection: %w", err)
	}
	return nil
}

// DetectionFilter narrows a detection listing.
type DetectionFilter struct {
	DeviceID      string
	Type          string
	MinConfidence float64
	Limit         int
}

// ListDetections returns matching detections newest-first.
func (s *Store) ListDetections(f DetectionFilter) ([]Detection, error) {
	query := `SELECT id, device_id, timestamp, type, latitude, longitude, altitude,
			bearing, confidence, media_ref, source, metadata, created_at
		FROM detections WHERE confidence >= ?`
	args := []any{f.MinConfidence}
	if f.DeviceID != "" {
		query += " AND device_id = ?"
		args = append(args, f.DeviceID)
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, f.Type)
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, clampLimit(f.Limit))

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	var out []Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDetection looks one detection up by ID.
func (s *Store) GetDetection(id string) (Detection, error) {
	row := s.QueryRow(`SELECT id, device_id, timestamp, type, latitude, longitude, altitude,
			bearing, confidence, media_ref, source, metadata, created_at
		FROM detections WHERE id = ?`, id)
	d, err := scanDetection(row)
	if err == sql.ErrNoRows {
		return Detection{}, ErrNotFound
	}
	return d, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDetection(row rowScanner) (Detection, error) {
	var d Detection
	var ts, created string
	var lat, lon sql.NullFloat64
	var mediaRef sql.NullString
	var metadata sql.NullString
	err := row.Scan(&d.ID, &d.DeviceID, &ts, &d.Type, &lat, &lon, &d.Altitude,
		&d.Bearing, &d.Confidence, &mediaRef, &d.Source, &metadata, &created)
	if err != nil {
		return Detection{}, err
	}
	d.Latitude = lat.Float64
	d.Longitude = lon.Float64
	d.MediaRef = mediaRef.String
	if d.Timestamp, err = decodeTime(ts); err != nil {
		return Detection{}, err
	}
	if d.CreatedAt, err = decodeTime(created); err != nil {
		return Detection{}, err
	}
	if d.Metadata, err = decodeJSON(metadata); err != nil {
		return Detection{}, err
	}
	return d, nil
}

// Alert is one operator notification.
type Alert struct {
	ID             string     `json:"id"`
	Timestamp      time.Time  `json:"timestamp"`
	Type           string     `json:"type"`
	Severity       string     `json:"severity"`
	Message        string     `json:"message"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	DeviceID       string     `json:"device_id,omitempty"`
	DetectionID    string     `json:"detection_id,omitempty"`
	Status         string     `json:"status"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// InsertAlert persists one alert, assigning ID and CreatedAt when unset.
func (s *Store) InsertAlert(a *Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = "active"
	}
	var detectionID any
	if a.DetectionID != "" {
		detectionID = a.DetectionID
	}
	_, err := s.Exec(`INSERT INTO alerts (
			id, timestamp, type, severity, message, latitude, longitude,
			device_id, detection_id, status, acknowledged_by, acknowledged_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, encodeTime(a.Timestamp), a.Type, a.Severity, a.Message, a.Latitude, a.Longitude,
		a.DeviceID, detectionID, a.Status, a.AcknowledgedBy, encodeTimePtr(a.AcknowledgedAt),
		encodeTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns alerts newest-first, optionally filtered by status and
// severity.
func (s *Store) ListAlerts(status, severity string, limit int) ([]Alert, error) {
	query := `SELECT id, timestamp, type, severity, message, latitude, longitude,
			device_id, detection_id, status, acknowledged_by, acknowledged_at, created_at
		FROM alerts WHERE 1=1`
	var args []any
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if severity != "" {
		query += " AND severity = ?"
		args = append(args, severity)
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, clampLimit(limit))

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		var ts, created string
		var deviceID, detectionID, ackBy, ackAt sql.NullString
		if err := rows.Scan(&a.ID, &ts, &a.Type, &a.Severity, &a.Message, &a.Latitude, &a.Longitude,
			&deviceID, &detectionID, &a.Status, &ackBy, &ackAt, &created); err != nil {
			return nil, err
		}
		a.DeviceID = deviceID.String
		a.DetectionID = detectionID.String
		a.AcknowledgedBy = ackBy.String
		if a.Timestamp, err = decodeTime(ts); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = decodeTime(created); err != nil {
			return nil, err
		}
		if a.AcknowledgedAt, err = decodeTimePtr(ackAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AcknowledgeAlert marks an active alert acknowledged.
func (s *Store) AcknowledgeAlert(id, by string, at time.Time) error {
	res, err := s.Exec(`UPDATE alerts
		SET status = 'acknowledged', acknowledged_by = ?, acknowledged_at = ?
		WHERE id = ?`, by, encodeTime(at), id)
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Mission is one coordinated response operation.
type Mission struct {
	ID                string           `json:"id"`
	MissionID         string           `json:"mission_id"`
	Type              string           `json:"type"`
	Priority          string           `json:"priority"`
	Description       string           `json:"description"`
	Status            string           `json:"status"`
	Lat               float64          `json:"lat"`
	Lng               float64          `json:"lng"`
	Radius            float64          `json:"radius"`
	Waypoints         []map[string]any `json:"waypoints,omitempty"`
	Assets            []string         `json:"assets,omitempty"`
	Progress          int              `json:"progress"`
	EstimatedDuration *int             `json:"estimated_duration,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// InsertMission persists a mission. Reusing a mission_id returns
// ErrDuplicateMission.
func (s *Store) InsertMission(m *Mission) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	if m.Priority == "" {
		m.Priority = "medium"
	}
	if m.Status == "" {
		m.Status = "pending"
	}
	if m.Radius == 0 {
		m.Radius = 200
	}
	waypoints, err := encodeJSONList(m.Waypoints)
	if err != nil {
		return err
	}
	assets, err := encodeJSONList(m.Assets)
	if err != nil {
		return err
	}
	_, err = s.Exec(`INSERT INTO missions (
			id, mission_id, type, priority, description, status, lat, lng, radius,
			waypoints, assets, progress, estimated_duration, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.MissionID, m.Type, m.Priority, m.Description, m.Status, m.Lat, m.Lng, m.Radius,
		waypoints, assets, m.Progress, m.EstimatedDuration, encodeTime(m.CreatedAt), encodeTime(m.UpdatedAt))
	if isUniqueViolation(err, "missions.mission_id") {
		return ErrDuplicateMission
	}
	if err != nil {
		return fmt.Errorf("insert mission: %w", err)
	}
	return nil
}

// GetMission looks a mission up by its external mission_id.
func (s *Store) GetMission(missionID string) (Mission, error) {
	row := s.QueryRow(`SELECT id, mission_id, type, priority, description, status, lat, lng, radius,
			waypoints, assets, progress, estimated_duration, created_at, updated_at
		FROM missions WHERE mission_id = ?`, missionID)
	m, err := scanMission(row)
	if err == sql.ErrNoRows {
		return Mission{}, ErrNotFound
	}
	return m, err
}

// ListMissions returns missions newest-first, optionally filtered by status.
func (s *Store) ListMissions(status string, limit int) ([]Mission, error) {
	query := `SELECT id, mission_id, type, priority, description, status, lat, lng, radius,
			waypoints, assets, progress, estimated_duration, created_at, updated_at
		FROM missions WHERE 1=1`
	var args []any
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, clampLimit(limit))

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	var out []Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMissionState writes a mission's status and progress. The caller is
// responsible for the forward-only transition rule; the store records what
// it is told.
func (s *Store) UpdateMissionState(missionID, status string, progress int, updatedAt time.Time) error {
	res, err := s.Exec(`UPDATE missions SET status = ?, progress = ?, updated_at = ? WHERE mission_id = ?`,
		status, progress, encodeTime(updatedAt), missionID)
	if err != nil {
		return fmt.Errorf("update mission %s: %w", missionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateMissionFields rewrites the mutable mission columns (status, progress,
// description, estimated duration) from m, keyed by mission_id.
func (s *Store) UpdateMissionFields(m *Mission) error {
	res, err := s.Exec(`UPDATE missions
		SET status = ?, progress = ?, description = ?, estimated_duration = ?, updated_at = ?
		WHERE mission_id = ?`,
		m.Status, m.Progress, m.Description, m.EstimatedDuration, encodeTime(m.UpdatedAt), m.MissionID)
	if err != nil {
		return fmt.Errorf("update mission %s: %w", m.MissionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMission(row rowScanner) (Mission, error) {
	var m Mission
	var created, updated string
	var description sql.NullString
	var waypoints, assets sql.NullString
	err := row.Scan(&m.ID, &m.MissionID, &m.Type, &m.Priority, &description, &m.Status,
		&m.Lat, &m.Lng, &m.Radius, &waypoints, &assets, &m.Progress, &m.EstimatedDuration,
		&created, &updated)
	if err != nil {
		return Mission{}, err
	}
	m.Description = description.String
	if m.CreatedAt, err = decodeTime(created); err != nil {
		return Mission{}, err
	}
	if m.UpdatedAt, err = decodeTime(updated); err != nil {
		return Mission{}, err
	}
	if m.Waypoints, err = decodeJSONList[map[string]any](waypoints); err != nil {
		return Mission{}, err
	}
	if m.Assets, err = decodeJSONList[string](assets); err != nil {
		return Mission{}, err
	}
	return m, nil
}

// Task is one assignment to a field device.
type Task struct {
	ID          string           `json:"id"`
	TaskID      string           `json:"task_id"`
	DeviceID    string           `json:"device_id"`
	Kind        string           `json:"kind"`
	Waypoints   []map[string]any `json:"waypoints,omitempty"`
	Parameters  map[string]any   `json:"parameters,omitempty"`
	Status      string           `json:"status"`
	AssignedBy  string           `json:"assigned_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	Deadline    *time.Time       `json:"deadline,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// InsertTask persists a task. Reusing a task_id returns ErrDuplicateTask.
func (s *Store) InsertTask(t *Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = "pending"
	}
	waypoints, err := encodeJSONList(t.Waypoints)
	if err != nil {
		return err
	}
	parameters, err := encodeJSON(t.Parameters)
	if err != nil {
		return err
	}
	_, err = s.Exec(`INSERT INTO tasks (
			id, task_id, device_id, kind, waypoints, parameters, status,
			assigned_by, created_at, deadline, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TaskID, t.DeviceID, t.Kind, waypoints, parameters, t.Status,
		t.AssignedBy, encodeTime(t.CreatedAt), encodeTimePtr(t.Deadline), encodeTimePtr(t.CompletedAt))
	if isUniqueViolation(err, "tasks.task_id") {
		return ErrDuplicateTask
	}
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// ListTasks returns tasks newest-first, optionally filtered by device and
// status.
func (s *Store) ListTasks(deviceID, status string, limit int) ([]Task, error) {
	query := `SELECT id, task_id, device_id, kind, waypoints, parameters, status,
			assigned_by, created_at, deadline, completed_at
		FROM tasks WHERE 1=1`
	var args []any
	if deviceID != "" {
		query += " AND device_id = ?"
		args = append(args, deviceID)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, clampLimit(limit))

	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		var created string
		var assignedBy, deadline, completedAt sql.NullString
		var waypoints, parameters sql.NullString
		if err := rows.Scan(&t.ID, &t.TaskID, &t.DeviceID, &t.Kind, &waypoints, &parameters,
			&t.Status, &assignedBy, &created, &deadline, &completedAt); err != nil {
			return nil, err
		}
		t.AssignedBy = assignedBy.String
		if t.CreatedAt, err = decodeTime(created); err != nil {
			return nil, err
		}
		if t.Deadline, err = decodeTimePtr(deadline); err != nil {
			return nil, err
		}
		if t.CompletedAt, err = decodeTimePtr(completedAt); err != nil {
			return nil, err
		}
		if t.Waypoints, err = decodeJSONList[map[string]any](waypoints); err != nil {
			return nil, err
		}
		if t.Parameters, err = decodeJSON(parameters); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// EnvCell is one grid cell's environmental state.
type EnvCell struct {
	ID               string    `json:"id"`
	CellIndex        string    `json:"cell_index"`
	Timestamp        time.Time `json:"timestamp"`
	FuelModel        int       `json:"fuel_model"`
	SlopeDeg         float64   `json:"slope_deg"`
	AspectDeg        float64   `json:"aspect_deg"`
	CanopyCover      float64   `json:"canopy_cover"`
	SoilMoisture     float64   `json:"soil_moisture"`
	FuelMoisture     float64   `json:"fuel_moisture"`
	TemperatureC     float64   `json:"temperature_c"`
	RelativeHumidity float64   `json:"relative_humidity"`
	WindSpeedMPS     float64   `json:"wind_speed_mps"`
	WindDirectionDeg float64   `json:"wind_direction_deg"`
	ElevationM       float64   `json:"elevation_m"`
	RiskScore        *float64  `json:"risk_score,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// UpsertEnvCell inserts a cell or refreshes it in place when the cell index
// already exists.
func (s *Store) UpsertEnvCell(c *EnvCell) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.Exec(`INSERT INTO env_cells (
			id, cell_index, timestamp, fuel_model, slope_deg, aspect_deg, canopy_cover,
			soil_moisture, fuel_moisture, temperature_c, relative_humidity,
			wind_speed_mps, wind_direction_deg, elevation_m, risk_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cell_index) DO UPDATE SET
			timestamp = excluded.timestamp,
			fuel_model = excluded.fuel_model,
			slope_deg = excluded.slope_deg,
			aspect_deg = excluded.aspect_deg,
			canopy_cover = excluded.canopy_cover,
			soil_moisture = excluded.soil_moisture,
			fuel_moisture = excluded.fuel_moisture,
			temperature_c = excluded.temperature_c,
			relative_humidity = excluded.relative_humidity,
			wind_speed_mps = excluded.wind_speed_mps,
			wind_direction_deg = excluded.wind_direction_deg,
			elevation_m = excluded.elevation_m,
			risk_score = excluded.risk_score`,
		c.ID, c.CellIndex, encodeTime(c.Timestamp), c.FuelModel, c.SlopeDeg, c.AspectDeg, c.CanopyCover,
		c.SoilMoisture, c.FuelMoisture, c.TemperatureC, c.RelativeHumidity,
		c.WindSpeedMPS, c.WindDirectionDeg, c.ElevationM, c.RiskScore, encodeTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert env cell: %w", err)
	}
	return nil
}

// GetEnvCell looks a cell up by its index.
func (s *Store) GetEnvCell(cellIndex string) (EnvCell, error) {
	row := s.QueryRow(`SELECT id, cell_index, timestamp, fuel_model, slope_deg, aspect_deg,
			canopy_cover, soil_moisture, fuel_moisture, temperature_c, relative_humidity,
			wind_speed_mps, wind_direction_deg, elevation_m, risk_score, created_at
		FROM env_cells WHERE cell_index = ?`, cellIndex)
	c, err := scanEnvCell(row)
	if err == sql.ErrNoRows {
		return EnvCell{}, ErrNotFound
	}
	return c, err
}

// ListEnvCells returns cells newest-first.
func (s *Store) ListEnvCells(limit int) ([]EnvCell, error) {
	rows, err := s.Query(`SELECT id, cell_index, timestamp, fuel_model, slope_deg, aspect_deg,
			canopy_cover, soil_moisture, fuel_moisture, temperature_c, relative_humidity,
			wind_speed_mps, wind_direction_deg, elevation_m, risk_score, created_at
		FROM env_cells ORDER BY timestamp DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list env cells: %w", err)
	}
	defer rows.Close()

	var out []EnvCell
	for rows.Next() {
		c, err := scanEnvCell(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanEnvCell(row rowScanner) (EnvCell, error) {
	var c EnvCell
	var ts, created string
	err := row.Scan(&c.ID, &c.CellIndex, &ts, &c.FuelModel, &c.SlopeDeg, &c.AspectDeg,
		&c.CanopyCover, &c.SoilMoisture, &c.FuelMoisture, &c.TemperatureC, &c.RelativeHumidity,
		&c.WindSpeedMPS, &c.WindDirectionDeg, &c.ElevationM, &c.RiskScore, &created)
	if err != nil {
		return EnvCell{}, err
	}
	if c.Timestamp, err = decodeTime(ts); err != nil {
		return EnvCell{}, err
	}
	if c.CreatedAt, err = decodeTime(created); err != nil {
		return EnvCell{}, err
	}
	return c, nil
}

// Scenario records one executed spread simulation.
type Scenario struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	BaseSimulationID string         `json:"base_simulation_id,omitempty"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	ResultsRef       string         `json:"results_ref,omitempty"`
	CreatedBy        string         `json:"created_by,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	Status           string         `json:"status"`
}

// InsertScenario persists a scenario, assigning ID and CreatedAt when unset.
func (s *Store) InsertScenario(sc *Scenario) error {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
	}
	if sc.Status == "" {
		sc.Status = "pending"
	}
	parameters, err := encodeJSON(sc.Parameters)
	if err != nil {
		return err
	}
	_, err = s.Exec(`INSERT INTO scenarios (
			id, name, description, base_simulation_id, parameters, results_ref,
			created_by, created_at, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.Name, sc.Description, sc.BaseSimulationID, parameters, sc.ResultsRef,
		sc.CreatedBy, encodeTime(sc.CreatedAt), sc.Status)
	if err != nil {
		return fmt.Errorf("insert scenario: %w", err)
	}
	return nil
}

// ListScenarios returns scenarios newest-first.
func (s *Store) ListScenarios(limit int) ([]Scenario, error) {
	rows, err := s.Query(`SELECT id, name, description, base_simulation_id, parameters,
			results_ref, created_by, created_at, status
		FROM scenarios ORDER BY created_at DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	var out []Scenario
	for rows.Next() {
		var sc Scenario
		var created string
		var description, baseID, resultsRef, createdBy sql.NullString
		var parameters sql.NullString
		if err := rows.Scan(&sc.ID, &sc.Name, &description, &baseID, &parameters,
			&resultsRef, &createdBy, &created, &sc.Status); err != nil {
			return nil, err
		}
		sc.Description = description.String
		sc.BaseSimulationID = baseID.String
		sc.ResultsRef = resultsRef.String
		sc.CreatedBy = createdBy.String
		if sc.CreatedAt, err = decodeTime(created); err != nil {
			return nil, err
		}
		if sc.Parameters, err = decodeJSON(parameters); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// clampLimit applies the shared listing bounds: default 100, cap 1000.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
