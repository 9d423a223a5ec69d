package types

import (
	"sync"

	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/goccy/go-json"
)

type StateType string

const (
	// Global Type indicates that the connector acts on a single resume position shared by all streams
	GlobalType StateType = "GLOBAL"
)

// State is the persisted sync state. Global carries the engine offset of the
// last completed partition read.
type State struct {
	*sync.RWMutex `json:"-"`
	Type          StateType        `json:"type"`
	Global        OpaqueStateValue `json:"global,omitempty"`
	RecordCount   int64            `json:"record_count,omitempty"`
}

func NewState() *State {
	return &State{RWMutex: &sync.RWMutex{}, Type: GlobalType}
}

func (s *State) GlobalValue() OpaqueStateValue {
	s.RLock()
	defer s.RUnlock()
	if len(s.Global) == 0 {
		return nil
	}

	return append(OpaqueStateValue(nil), s.Global...)
}

// Commit stores a checkpoint and writes the state file
func (s *State) Commit(checkpoint PartitionReadCheckpoint) {
	s.Lock()
	defer s.Unlock()
	s.Type = GlobalType
	s.Global = checkpoint.ResumeState
	s.RecordCount += checkpoint.RecordCount
	s.LogState()
}

func (s *State) isZero() bool {
	return len(s.Global) == 0
}

func (s *State) MarshalJSON() ([]byte, error) {
	if s.isZero() {
		return json.Marshal(nil)
	}

	type Alias State
	p := Alias(*s)
	return json.Marshal(p)
}

func (s *State) UnmarshalJSON(data []byte) error {
	type Alias State
	aux := Alias{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	mutex := s.RWMutex
	if mutex == nil {
		mutex = &sync.RWMutex{}
	}
	*s = State(aux)
	s.RWMutex = mutex
	return nil
}

// LogState must be called while holding the state lock
func (s *State) LogState() {
	if s.isZero() {
		logger.Info("state is empty")
		return
	}

	if err := logger.FileLogger(s, "state", ".json"); err != nil {
		logger.Fatalf("failed to create state file: %s", err)
	}
}
