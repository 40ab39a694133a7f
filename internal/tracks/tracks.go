// Package tracks keeps a rolling position history per detection source. The
// correlator owns the track table exclusively; everything else reads through
// deep-copied snapshots.
package tracks

import (
	"sync"
	"time"
)

// MaxPositions caps a track's position history. The oldest position drops
// when a new one arrives at the cap.
const MaxPositions = 1000

// Position is one observed location of a source.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Track is the rolling history of one source.
type Track struct {
	TrackID        string     `json:"track_id"`
	SourceID       string     `json:"source_id"`
	Positions      []Position `json:"positions"`
	Classification string     `json:"classification,omitempty"`
	Confidence     float64    `json:"confidence"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Correlator maintains one track per source. Safe for concurrent use.
type Correlator struct {
	mu           sync.RWMutex
	tracks       map[string]*Track
	historyLimit int
}

// Option adjusts correlator behavior.
type Option func(*Correlator)

// WithHistoryLimit overrides the per-track position cap. Values below 1 are
// ignored.
func WithHistoryLimit(n int) Option {
	return func(c *Correlator) {
		if n >= 1 {
			c.historyLimit = n
		}
	}
}

// NewCorrelator returns an empty correlator.
func NewCorrelator(opts ...Option) *Correlator {
	c := &Correlator{
		tracks:       make(map[string]*Track),
		historyLimit: MaxPositions,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Observe appends a position to the source's track, creating the track on
// first contact. Classification and confidence always reflect the latest
// observation.
func (c *Correlator) Observe(sourceID, classification string, confidence float64, pos Position) {
	c.mu.Lock()
	defer c.mu.Unlock()

	track, ok := c.tracks[sourceID]
	if !ok {
		track = &Track{
			TrackID:  "track-" + sourceID,
			SourceID: sourceID,
		}
		c.tracks[sourceID] = track
	}

	track.Positions = append(track.Positions, pos)
	if len(track.Positions) > c.historyLimit {
		track.Positions = track.Positions[len(track.Positions)-c.historyLimit:]
	}
	track.Classification = classification
	track.Confidence = confidence
	track.UpdatedAt = pos.Timestamp
}

// Get returns a deep copy of one source's track.
func (c *Correlator) Get(sourceID string) (Track, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	track, ok := c.tracks[sourceID]
	if !ok {
		return Track{}, false
	}
	return copyTrack(track), true
}

// Snapshot returns a deep copy of every track, keyed by source.
func (c *Correlator) Snapshot() map[string]Track {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Track, len(c.tracks))
	for id, track := range c.tracks {
		out[id] = copyTrack(track)
	}
	return out
}

// Len reports the number of active tracks.
func (c *Correlator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tracks)
}

// Drop removes a source's track, if present.
func (c *Correlator) Drop(sourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracks, sourceID)
}

func copyTrack(t *Track) Track {
	out := *t
	out.Positions = make([]Position, len(t.Positions))
	copy(out.Positions, t.Positions)
	return out
}
