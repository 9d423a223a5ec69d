package types

import (
	"github.com/goccy/go-json"
)

// OpaqueStateValue is a resume offset understood only by the engine that produced it
type OpaqueStateValue = json.RawMessage

type AcquireStatus string

const (
	ReadyToRun AcquireStatus = "READY_TO_RUN"
	RetryLater AcquireStatus = "RETRY_LATER"
)

// PartitionReadCheckpoint is produced once a partition reader stopped
type PartitionReadCheckpoint struct {
	ResumeState OpaqueStateValue `json:"resume_state"`
	RecordCount int64            `json:"record_count"`
}
