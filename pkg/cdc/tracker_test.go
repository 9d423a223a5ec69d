package cdc

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

type otherPosition struct{}

func (otherPosition) Compare(Position) int { return -1 }
func (otherPosition) String() string       { return "other" }

func TestPositionTrackerEvaluate(t *testing.T) {
	testCases := []struct {
		name     string
		target   Position
		timeout  time.Duration
		events   []ChangeEvent
		advance  time.Duration
		expected StopReason
		stop     bool
	}{
		{
			name:     "heartbeat equal to target",
			target:   testPosition(10),
			timeout:  time.Hour,
			events:   []ChangeEvent{heartbeat(10)},
			expected: HeartbeatReachedTargetPosition,
			stop:     true,
		},
		{
			name:     "heartbeat beyond target",
			target:   testPosition(10),
			timeout:  time.Hour,
			events:   []ChangeEvent{heartbeat(11)},
			expected: HeartbeatReachedTargetPosition,
			stop:     true,
		},
		{
			name:     "data event equal to target",
			target:   testPosition(10),
			timeout:  time.Hour,
			events:   []ChangeEvent{insert(10, 1)},
			expected: ChangeEventReachedTargetPosition,
			stop:     true,
		},
		{
			name:    "before target",
			target:  testPosition(10),
			timeout: time.Hour,
			events:  []ChangeEvent{insert(3, 1), heartbeat(4)},
		},
		{
			name:    "no target",
			timeout: time.Hour,
			events:  []ChangeEvent{heartbeat(1000)},
		},
		{
			name:    "event without position",
			target:  testPosition(1),
			events:  []ChangeEvent{{Kind: Heartbeat, Payload: []byte("x")}},
			timeout: 0,
		},
		{
			name:     "stalled heartbeat with zero timeout",
			target:   testPosition(10),
			events:   []ChangeEvent{heartbeat(4), heartbeat(4)},
			expected: HeartbeatNotProgressing,
			stop:     true,
		},
		{
			name:    "stalled heartbeat within timeout",
			target:  testPosition(10),
			timeout: time.Minute,
			events:  []ChangeEvent{heartbeat(4), heartbeat(4)},
			advance: 30 * time.Second,
		},
		{
			name:     "stalled heartbeat past timeout",
			target:   testPosition(10),
			timeout:  time.Minute,
			events:   []ChangeEvent{heartbeat(4), heartbeat(4)},
			advance:  time.Minute,
			expected: HeartbeatNotProgressing,
			stop:     true,
		},
		{
			name:    "stalled data event is not a stall",
			target:  testPosition(10),
			events:  []ChangeEvent{insert(4, 1), insert(4, 2)},
			advance: time.Hour,
		},
		{
			name:     "heartbeat going backwards",
			target:   testPosition(10),
			events:   []ChangeEvent{heartbeat(5), heartbeat(2)},
			expected: HeartbeatNotProgressing,
			stop:     true,
		},
		{
			name:    "mismatched position type",
			target:  testPosition(10),
			timeout: time.Hour,
			events:  []ChangeEvent{NewHeartbeat(otherPosition{}, []byte("x"))},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mock := clock.NewMock()
			tracker := NewPositionTracker(tc.target, WithTrackerClock(mock), WithNotProgressingTimeout(tc.timeout))

			var (
				reason StopReason
				stop   bool
			)
			for i, event := range tc.events {
				if i > 0 {
					mock.Add(tc.advance)
				}
				reason, stop = tracker.Evaluate(event)
				if stop {
					break
				}
			}

			assert.Equal(t, tc.stop, stop)
			assert.Equal(t, tc.expected, reason)
		})
	}
}
