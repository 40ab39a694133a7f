package tracks

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func position(i int) Position {
	return Position{
		Latitude:  40.0 + float64(i)*0.001,
		Longitude: -120.0,
		Timestamp: time.Date(2024, 6, 1, 12, 0, i, 0, time.UTC),
	}
}

func TestObserveCreatesTrackLazily(t *testing.T) {
	t.Parallel()

	c := NewCorrelator()
	assert.Equal(t, 0, c.Len())

	c.Observe("tower-7", "smoke", 0.8, position(0))
	require.Equal(t, 1, c.Len())

	track, ok := c.Get("tower-7")
	require.True(t, ok)
	assert.Equal(t, "track-tower-7", track.TrackID)
	assert.Equal(t, "tower-7", track.SourceID)
	assert.Equal(t, "smoke", track.Classification)
	assert.Equal(t, 0.8, track.Confidence)
	require.Len(t, track.Positions, 1)
	assert.Equal(t, position(0), track.Positions[0])
}

func TestObserveAppendsAndUpdatesLatest(t *testing.T) {
	t.Parallel()

	c := NewCorrelator()
	c.Observe("drone-1", "smoke", 0.6, position(0))
	c.Observe("drone-1", "fire", 0.9, position(1))

	track, ok := c.Get("drone-1")
	require.True(t, ok)
	require.Len(t, track.Positions, 2)
	assert.Equal(t, "fire", track.Classification)
	assert.Equal(t, 0.9, track.Confidence)
	assert.Equal(t, position(1).Timestamp, track.UpdatedAt)
	assert.Equal(t, 1, c.Len())
}

func TestPositionCapDropsOldest(t *testing.T) {
	t.Parallel()

	c := NewCorrelator()
	for i := 0; i < MaxPositions+5; i++ {
		c.Observe("tower-1", "heat", 0.5, position(i))
	}

	track, ok := c.Get("tower-1")
	require.True(t, ok)
	require.Len(t, track.Positions, MaxPositions)
	assert.Equal(t, position(5), track.Positions[0])
	assert.Equal(t, position(MaxPositions+4), track.Positions[MaxPositions-1])
}

func TestHistoryLimitOption(t *testing.T) {
	t.Parallel()

	c := NewCorrelator(WithHistoryLimit(3))
	for i := 0; i < 5; i++ {
		c.Observe("tower-1", "heat", 0.5, position(i))
	}

	track, ok := c.Get("tower-1")
	require.True(t, ok)
	want := []Position{position(2), position(3), position(4)}
	if diff := cmp.Diff(want, track.Positions); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}

	// Limits below 1 are ignored and keep the default cap.
	c2 := NewCorrelator(WithHistoryLimit(0))
	assert.Equal(t, MaxPositions, c2.historyLimit)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	t.Parallel()

	c := NewCorrelator()
	c.Observe("tower-1", "smoke", 0.7, position(0))

	snap := c.Snapshot()
	require.Contains(t, snap, "tower-1")

	// Mutating the snapshot must not leak back into the correlator.
	snap["tower-1"].Positions[0] = Position{Latitude: 99}

	track, ok := c.Get("tower-1")
	require.True(t, ok)
	assert.Equal(t, position(0), track.Positions[0])
}

func TestDropRemovesTrack(t *testing.T) {
	t.Parallel()

	c := NewCorrelator()
	c.Observe("tower-1", "smoke", 0.7, position(0))
	c.Drop("tower-1")

	_, ok := c.Get("tower-1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentObserve(t *testing.T) {
	t.Parallel()

	c := NewCorrelator()
	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		sourceID := fmt.Sprintf("tower-%d", s)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Observe(sourceID, "smoke", 0.5, position(i))
				c.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, c.Len())
	for s := 0; s < 4; s++ {
		track, ok := c.Get(fmt.Sprintf("tower-%d", s))
		require.True(t, ok)
		assert.Len(t, track.Positions, 100)
	}
}
