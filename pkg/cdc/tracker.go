package cdc

import (
	"time"

	"github.com/benbjohnson/clock"
)

type TrackerOption func(t *PositionTracker)

func WithTrackerClock(clk clock.Clock) TrackerOption {
	return func(t *PositionTracker) {
		t.clock = clk
	}
}

// WithNotProgressingTimeout sets how long positions may stay unchanged before
// a heartbeat reports a stall. Zero reports on the first non-advancing heartbeat.
func WithNotProgressingTimeout(timeout time.Duration) TrackerOption {
	return func(t *PositionTracker) {
		t.notProgressingTimeout = timeout
	}
}

// PositionTracker decides whether replication reached its target or stalled.
// It is not safe for concurrent use; the reader calls it in delivery order.
type PositionTracker struct {
	target                Position
	clock                 clock.Clock
	notProgressingTimeout time.Duration

	lastPosition Position
	lastAdvance  time.Time
}

// NewPositionTracker creates a tracker; a nil target disables target detection
func NewPositionTracker(target Position, opts ...TrackerOption) *PositionTracker {
	tracker := &PositionTracker{
		target: target,
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(tracker)
	}

	return tracker
}

func (t *PositionTracker) Target() Position {
	return t.target
}

// Evaluate inspects one event and reports whether the reader should stop
func (t *PositionTracker) Evaluate(event ChangeEvent) (StopReason, bool) {
	position := event.Position
	if position == nil {
		return "", false
	}

	advanced := t.observe(position)
	if t.target != nil && position.Compare(t.target) >= 0 {
		if event.IsHeartbeat() {
			return HeartbeatReachedTargetPosition, true
		}
		return ChangeEventReachedTargetPosition, true
	}

	if event.IsHeartbeat() && !advanced && t.clock.Since(t.lastAdvance) >= t.notProgressingTimeout {
		return HeartbeatNotProgressing, true
	}

	return "", false
}

// observe records the position and reports whether it moved forward; the first
// observation counts as an advance
func (t *PositionTracker) observe(position Position) bool {
	if t.lastPosition != nil && position.Compare(t.lastPosition) <= 0 {
		return false
	}

	t.lastPosition = position
	t.lastAdvance = t.clock.Now()
	return true
}
