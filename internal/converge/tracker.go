// Package converge detects when the pipeline has settled into a stable
// passing state.
package converge

// State is the tracker's position in its two-state machine.
type State string

const (
	// StateAccumulating means the tracker is still counting consecutive
	// all-passing observations.
	StateAccumulating State = "accumulating"

	// StateConverged means the threshold was reached. The control loop
	// treats this as terminal for the session.
	StateConverged State = "converged"
)

// DefaultThreshold is the consecutive all-passing count required for
// convergence when none is configured.
const DefaultThreshold = 3

// Tracker counts consecutive all-passing observations and reports when the
// configured threshold is reached.
type Tracker struct {
	threshold int
	count     int
	state     State
}

// NewTracker creates a tracker. A non-positive threshold falls back to
// DefaultThreshold.
func NewTracker(threshold int) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{
		threshold: threshold,
		state:     StateAccumulating,
	}
}

// Observe records one cycle's result and returns the current consecutive
// all-passing count. A passing observation increments the count and
// transitions to converged when it first reaches the threshold; a failing
// observation resets the count to zero and returns to accumulating.
func (t *Tracker) Observe(allPassing bool) int {
	if !allPassing {
		t.count = 0
		t.state = StateAccumulating
		return t.count
	}

	t.count++
	if t.count >= t.threshold {
		t.state = StateConverged
	}
	return t.count
}

// Converged reports whether the threshold has been reached.
func (t *Tracker) Converged() bool {
	return t.state == StateConverged
}

// Count returns the current consecutive all-passing count.
func (t *Tracker) Count() int {
	return t.count
}

// Threshold returns the configured convergence threshold.
func (t *Tracker) Threshold() int {
	return t.threshold
}
