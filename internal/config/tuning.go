package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig carries optional dispatch and engine knobs loaded from a JSON
// file. Pointer fields distinguish "unset" from zero values, so partial
// configs only override what they name. Every getter falls back to the
// built-in default the engines were validated with.
type TuningConfig struct {
	// Dispatch params
	DetectionConfidenceThreshold *float64 `json:"detection_confidence_threshold,omitempty"`
	AutoMissionRadiusMeters      *float64 `json:"auto_mission_radius_meters,omitempty"`
	MissionActivateDelay         *string  `json:"mission_activate_delay,omitempty"` // duration string like "5s"
	MissionCompleteDelay         *string  `json:"mission_complete_delay,omitempty"` // duration string like "10s"

	// Fusion params
	TrackHistoryLimit *int `json:"track_history_limit,omitempty"`

	// Stream and bus params
	StreamHeartbeat *string `json:"stream_heartbeat,omitempty"` // duration string like "10s"
	BusBufferSize   *int    `json:"bus_buffer_size,omitempty"`

	// API params
	RateLimitPerMinute *int `json:"rate_limit_per_minute,omitempty"`

	// Triangulation params
	MinObservationConfidence      *float64 `json:"min_observation_confidence,omitempty"`
	MaxIntersectionGapMeters      *float64 `json:"max_intersection_gap_meters,omitempty"`
	RansacBearingToleranceDegrees *float64 `json:"ransac_bearing_tolerance_degrees,omitempty"`

	// Spread params
	SpreadWorkers *int `json:"spread_workers,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and stay under 1MB. Fields omitted from the JSON keep
// their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *TuningConfig) Validate() error {
	if c.DetectionConfidenceThreshold != nil {
		if *c.DetectionConfidenceThreshold < 0 || *c.DetectionConfidenceThreshold > 1 {
			return fmt.Errorf("detection_confidence_threshold must be between 0 and 1, got %f", *c.DetectionConfidenceThreshold)
		}
	}
	if c.MinObservationConfidence != nil {
		if *c.MinObservationConfidence < 0 || *c.MinObservationConfidence > 1 {
			return fmt.Errorf("min_observation_confidence must be between 0 and 1, got %f", *c.MinObservationConfidence)
		}
	}
	if c.AutoMissionRadiusMeters != nil && *c.AutoMissionRadiusMeters <= 0 {
		return fmt.Errorf("auto_mission_radius_meters must be positive, got %f", *c.AutoMissionRadiusMeters)
	}
	if c.MaxIntersectionGapMeters != nil && *c.MaxIntersectionGapMeters <= 0 {
		return fmt.Errorf("max_intersection_gap_meters must be positive, got %f", *c.MaxIntersectionGapMeters)
	}
	if c.RansacBearingToleranceDegrees != nil && *c.RansacBearingToleranceDegrees <= 0 {
		return fmt.Errorf("ransac_bearing_tolerance_degrees must be positive, got %f", *c.RansacBearingToleranceDegrees)
	}
	if c.TrackHistoryLimit != nil && *c.TrackHistoryLimit < 1 {
		return fmt.Errorf("track_history_limit must be at least 1, got %d", *c.TrackHistoryLimit)
	}
	if c.BusBufferSize != nil && *c.BusBufferSize < 1 {
		return fmt.Errorf("bus_buffer_size must be at least 1, got %d", *c.BusBufferSize)
	}
	if c.RateLimitPerMinute != nil && *c.RateLimitPerMinute < 1 {
		return fmt.Errorf("rate_limit_per_minute must be at least 1, got %d", *c.RateLimitPerMinute)
	}
	if c.SpreadWorkers != nil && *c.SpreadWorkers < 0 {
		return fmt.Errorf("spread_workers must be non-negative, got %d", *c.SpreadWorkers)
	}
	for name, v := range map[string]*string{
		"mission_activate_delay": c.MissionActivateDelay,
		"mission_complete_delay": c.MissionCompleteDelay,
		"stream_heartbeat":       c.StreamHeartbeat,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	return nil
}

// GetDetectionConfidenceThreshold returns the auto-mission confidence gate.
func (c *TuningConfig) GetDetectionConfidenceThreshold() float64 {
	if c.DetectionConfidenceThreshold == nil {
		return 0.7
	}
	return *c.DetectionConfidenceThreshold
}

// GetAutoMissionRadiusMeters returns the containment radius for
// auto-synthesized missions.
func (c *TuningConfig) GetAutoMissionRadiusMeters() float64 {
	if c.AutoMissionRadiusMeters == nil {
		return 200
	}
	return *c.AutoMissionRadiusMeters
}

// GetMissionActivateDelay returns how long an auto mission stays pending
// before activating.
func (c *TuningConfig) GetMissionActivateDelay() time.Duration {
	return parseDurationOr(c.MissionActivateDelay, 5*time.Second)
}

// GetMissionCompleteDelay returns how long an active auto mission runs
// before completing.
func (c *TuningConfig) GetMissionCompleteDelay() time.Duration {
	return parseDurationOr(c.MissionCompleteDelay, 10*time.Second)
}

// GetTrackHistoryLimit returns the per-source track position cap.
func (c *TuningConfig) GetTrackHistoryLimit() int {
	if c.TrackHistoryLimit == nil {
		return 1000
	}
	return *c.TrackHistoryLimit
}

// GetStreamHeartbeat returns the live stream heartbeat interval.
func (c *TuningConfig) GetStreamHeartbeat() time.Duration {
	return parseDurationOr(c.StreamHeartbeat, 10*time.Second)
}

// GetBusBufferSize returns the subscriber channel depth on the event bus.
func (c *TuningConfig) GetBusBufferSize() int {
	if c.BusBufferSize == nil {
		return 64
	}
	return *c.BusBufferSize
}

// GetRateLimitPerMinute returns the per-client request budget.
func (c *TuningConfig) GetRateLimitPerMinute() int {
	if c.RateLimitPerMinute == nil {
		return 120
	}
	return *c.RateLimitPerMinute
}

// GetMinObservationConfidence returns the confidence floor below which
// triangulation observations are discarded.
func (c *TuningConfig) GetMinObservationConfidence() float64 {
	if c.MinObservationConfidence == nil {
		return 0.3
	}
	return *c.MinObservationConfidence
}

// GetMaxIntersectionGapMeters returns the maximum closest-approach gap for a
// valid ray intersection.
func (c *TuningConfig) GetMaxIntersectionGapMeters() float64 {
	if c.MaxIntersectionGapMeters == nil {
		return 1000
	}
	return *c.MaxIntersectionGapMeters
}

// GetRansacBearingToleranceDegrees returns the inlier bearing tolerance.
func (c *TuningConfig) GetRansacBearingToleranceDegrees() float64 {
	if c.RansacBearingToleranceDegrees == nil {
		return 5
	}
	return *c.RansacBearingToleranceDegrees
}

// GetSpreadWorkers returns the Monte Carlo worker count; zero means one per
// CPU.
func (c *TuningConfig) GetSpreadWorkers() int {
	if c.SpreadWorkers == nil {
		return 0
	}
	return *c.SpreadWorkers
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}
