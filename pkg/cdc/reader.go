package cdc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/types"
)

var ErrIllegalState = errors.New("illegal partition reader state")

type readerState int

const (
	unacquired readerState = iota
	readyToRun
	running
	stopRequested
	stopped
)

func (s readerState) String() string {
	switch s {
	case unacquired:
		return "UNACQUIRED"
	case readyToRun:
		return "READY_TO_RUN"
	case running:
		return "RUNNING"
	case stopRequested:
		return "STOP_REQUESTED"
	case stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

type ReaderConfig struct {
	ID     string
	Engine Engine
	// Gate is the shared capture slot
	Gate ResourceGate
	// Ready is the capture readiness predicate; nil means always ready
	Ready     func() bool
	Tracker   *PositionTracker
	Converter Converter
	Sink      Sink
	// Filter drops data events of unselected streams before they reach the sink
	Filter *types.StreamFilter
	// State is the offset the engine was built with, reported when the engine has none
	State types.OpaqueStateValue
	// MaxDuration stops the run with reason TIMEOUT; zero disables it
	MaxDuration time.Duration
}

// PartitionReader runs a change-capture engine for one partition of work and
// produces a checkpoint once the engine stopped.
type PartitionReader struct {
	config ReaderConfig

	mu         sync.Mutex
	state      readerState
	resources  AcquiredResources
	stopReason StopReason
	checkpoint types.PartitionReadCheckpoint

	recordCount  atomic.Int64
	stopRequests chan StopReason
}

func NewPartitionReader(config ReaderConfig) (*PartitionReader, error) {
	if config.Engine == nil {
		return nil, fmt.Errorf("partition reader[%s] requires an engine", config.ID)
	}
	if config.Gate == nil {
		return nil, fmt.Errorf("partition reader[%s] requires a resource gate", config.ID)
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("partition reader[%s] requires a sink", config.ID)
	}
	if config.Converter == nil {
		config.Converter = NewRecordConverter(false)
	}
	if config.Tracker == nil {
		config.Tracker = NewPositionTracker(nil)
	}

	return &PartitionReader{
		config:       config,
		state:        unacquired,
		stopRequests: make(chan StopReason, 1),
	}, nil
}

func (r *PartitionReader) ID() string {
	return r.config.ID
}

// TryAcquireResources acquires the capture slot when the reader is ready.
// RetryLater leaves nothing held; repeating a successful call is a no-op.
func (r *PartitionReader) TryAcquireResources() types.AcquireStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case unacquired:
	case readyToRun:
		return types.ReadyToRun
	default:
		return types.RetryLater
	}

	if r.config.Ready != nil && !r.config.Ready() {
		return types.RetryLater
	}
	resources, acquired := r.config.Gate.TryAcquire()
	if !acquired {
		return types.RetryLater
	}

	r.resources = resources
	r.state = readyToRun
	return types.ReadyToRun
}

// Run blocks until the engine stopped
func (r *PartitionReader) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.state != readyToRun {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("cannot run partition reader[%s] in state %s: %w", r.config.ID, state, ErrIllegalState)
	}
	r.state = running
	r.mu.Unlock()

	if r.config.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.MaxDuration)
		defer cancel()
	}

	engineDone := make(chan struct{})
	var stopper sync.WaitGroup
	stopper.Add(1)
	go func() {
		defer stopper.Done()
		r.stopEngineOnRequest(ctx, engineDone)
	}()

	logger.Infof("partition reader[%s] starting engine", r.config.ID)
	// the engine only stops through Close so that ctx expiry becomes a graceful stop
	completion := r.config.Engine.Run(context.WithoutCancel(ctx), &eventHandler{reader: r})
	close(engineDone)
	stopper.Wait()

	r.logCompletion(completion)

	offset, offsetErr := r.config.Engine.Offset()
	if offsetErr != nil {
		logger.Errorf("partition reader[%s] failed to read engine offset: %s", r.config.ID, offsetErr)
	}
	if len(offset) == 0 {
		offset = r.config.State
	}

	r.mu.Lock()
	r.state = stopped
	r.checkpoint = types.PartitionReadCheckpoint{
		ResumeState: offset,
		RecordCount: r.recordCount.Load(),
	}
	r.mu.Unlock()

	if err := completion.AsError(); err != nil {
		return err
	}
	if offsetErr != nil {
		return fmt.Errorf("failed to read engine offset: %s", offsetErr)
	}
	return nil
}

// stopEngineOnRequest closes the engine on a stop request or when ctx ends.
// It runs on its own goroutine since Close waits for event delivery to finish.
func (r *PartitionReader) stopEngineOnRequest(ctx context.Context, engineDone <-chan struct{}) {
	select {
	case <-engineDone:
		return
	case reason := <-r.stopRequests:
		logger.Infof("partition reader[%s] stopping engine: %s", r.config.ID, reason)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r.RequestStop(Timeout)
			logger.Infof("partition reader[%s] stopping engine: %s", r.config.ID, Timeout)
		} else {
			logger.Infof("partition reader[%s] stopping engine: context cancelled", r.config.ID)
		}
	}

	if err := r.config.Engine.Close(); err != nil {
		logger.Errorf("partition reader[%s] failed to close engine: %s", r.config.ID, err)
	}
}

// RequestStop asks the engine to stop. Only the first request while running is
// honoured; it returns whether this call initiated the stop.
func (r *PartitionReader) RequestStop(reason StopReason) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != running {
		return false
	}

	r.state = stopRequested
	r.stopReason = reason
	stopsTotal.WithLabelValues(string(reason)).Inc()
	select {
	case r.stopRequests <- reason:
	default:
	}
	return true
}

// StopReason returns the reason of the honoured stop request, if any
func (r *PartitionReader) StopReason() (StopReason, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopReason, r.stopReason != ""
}

// Checkpoint is only available once Run returned
func (r *PartitionReader) Checkpoint() (types.PartitionReadCheckpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stopped {
		return types.PartitionReadCheckpoint{}, fmt.Errorf("checkpoint of partition reader[%s] requested in state %s: %w", r.config.ID, r.state, ErrIllegalState)
	}

	return r.checkpoint, nil
}

// ReleaseResources releases the capture slot; safe to call repeatedly or without acquisition
func (r *PartitionReader) ReleaseResources() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resources != nil {
		r.resources.Release()
		r.resources = nil
	}
	r.state = unacquired
}

func (r *PartitionReader) handle(event ChangeEvent) error {
	if len(event.Payload) == 0 {
		return nil
	}

	var sinkErr error
	if event.IsHeartbeat() {
		heartbeatsTotal.Inc()
	} else {
		r.recordCount.Add(1)
		recordsTotal.Inc()
		if r.config.Filter.Selected(event.Stream) {
			sinkErr = r.forward(event)
		}
	}

	if reason, stop := r.config.Tracker.Evaluate(event); stop {
		if r.RequestStop(reason) {
			logger.Infof("partition reader[%s] reached %s at position %s (target %v)", r.config.ID, reason, event.Position, r.config.Tracker.Target())
		}
	}

	return sinkErr
}

func (r *PartitionReader) forward(event ChangeEvent) error {
	record, err := r.config.Converter(event)
	if err != nil {
		return fmt.Errorf("failed to convert change event: %s", err)
	}

	if err := r.config.Sink.Insert(event.Stream, record); err != nil {
		return fmt.Errorf("failed to insert record into stream[%s]: %s", event.Stream, err)
	}

	return nil
}

func (r *PartitionReader) logCompletion(completion Completion) {
	switch {
	case completion.Success:
		logger.Infof("partition reader[%s] engine completed: %s", r.config.ID, completion.Message)
	case completion.Err != nil:
		logger.Errorf("partition reader[%s] engine failed with error: %s", r.config.ID, completion.Err)
	default:
		logger.Errorf("partition reader[%s] engine failed with message: %s", r.config.ID, completion.Message)
	}
}

type eventHandler struct {
	reader *PartitionReader
}

func (h *eventHandler) HandleEvent(event ChangeEvent) error {
	return h.reader.handle(event)
}

func (h *eventHandler) ConnectorStarted() {
	logger.Infof("partition reader[%s] connector started", h.reader.config.ID)
}

func (h *eventHandler) ConnectorStopped() {
	logger.Infof("partition reader[%s] connector stopped", h.reader.config.ID)
}

func (h *eventHandler) TaskStarted() {
	logger.Debugf("partition reader[%s] task started", h.reader.config.ID)
}

func (h *eventHandler) TaskStopped() {
	logger.Debugf("partition reader[%s] task stopped", h.reader.config.ID)
}
