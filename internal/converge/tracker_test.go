package converge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerReachesConvergence(t *testing.T) {
	tracker := NewTracker(3)

	assert.Equal(t, 1, tracker.Observe(true))
	assert.False(t, tracker.Converged())

	assert.Equal(t, 2, tracker.Observe(true))
	assert.False(t, tracker.Converged())

	// Converges exactly at the call where the count first reaches threshold.
	assert.Equal(t, 3, tracker.Observe(true))
	assert.True(t, tracker.Converged())
}

func TestTrackerResetOnFailure(t *testing.T) {
	tracker := NewTracker(3)

	tracker.Observe(true)
	tracker.Observe(true)
	assert.Equal(t, 0, tracker.Observe(false))
	assert.False(t, tracker.Converged())
	assert.Equal(t, 0, tracker.Count())

	// Counting starts over from scratch.
	assert.Equal(t, 1, tracker.Observe(true))
}

func TestTrackerFailureAfterConvergence(t *testing.T) {
	tracker := NewTracker(2)

	tracker.Observe(true)
	tracker.Observe(true)
	assert.True(t, tracker.Converged())

	// A failing observation returns the tracker to accumulating.
	tracker.Observe(false)
	assert.False(t, tracker.Converged())
	assert.Equal(t, 0, tracker.Count())
}

func TestTrackerDefaultThreshold(t *testing.T) {
	assert.Equal(t, DefaultThreshold, NewTracker(0).Threshold())
	assert.Equal(t, DefaultThreshold, NewTracker(-5).Threshold())
	assert.Equal(t, 7, NewTracker(7).Threshold())
}

func TestTrackerThresholdOne(t *testing.T) {
	tracker := NewTracker(1)
	assert.Equal(t, 1, tracker.Observe(true))
	assert.True(t, tracker.Converged())
}
