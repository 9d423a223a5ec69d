package cdc

import (
	"time"

	"github.com/datazip-inc/olake-cdc/types"
)

// Position is a point in a source's replication log. Positions of different
// concrete types never compare as greater or equal.
type Position interface {
	// Compare returns -1, 0 or 1 when the receiver is before, at or after other
	Compare(other Position) int
	String() string
}

type EventKind string

const (
	Heartbeat EventKind = "heartbeat"
	Insert    EventKind = "c"
	Update    EventKind = "u"
	Delete    EventKind = "d"
)

// OperationType maps the kind to the _op_type column value
func (k EventKind) OperationType() string {
	switch k {
	case Insert, Update, Delete:
		return string(k)
	default:
		return ""
	}
}

// ChangeEvent is one unit emitted by an engine. Payload holds the raw transport
// bytes; an event without payload is malformed and dropped by the reader.
type ChangeEvent struct {
	Stream      types.StreamDescriptor
	Kind        EventKind
	Position    Position
	Timestamp   time.Time
	PrimaryKeys []string
	Data        map[string]any
	Payload     []byte
}

func (e ChangeEvent) IsHeartbeat() bool {
	return e.Kind == Heartbeat
}

func NewHeartbeat(position Position, payload []byte) ChangeEvent {
	return ChangeEvent{
		Kind:      Heartbeat,
		Position:  position,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

type StopReason string

const (
	HeartbeatReachedTargetPosition   StopReason = "HEARTBEAT_REACHED_TARGET_POSITION"
	ChangeEventReachedTargetPosition StopReason = "CHANGE_EVENT_REACHED_TARGET_POSITION"
	HeartbeatNotProgressing          StopReason = "HEARTBEAT_NOT_PROGRESSING"
	Timeout                          StopReason = "TIMEOUT"
)
