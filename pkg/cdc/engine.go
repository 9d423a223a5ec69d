package cdc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/datazip-inc/olake-cdc/types"
)

type CommitPolicy string

// CommitAlways commits the offset after every handled event
const CommitAlways CommitPolicy = "ALWAYS"

type EngineConfig struct {
	// State is the offset to resume from; empty starts at the source's current position
	State        types.OpaqueStateValue
	CommitPolicy CommitPolicy
}

// Handler receives events and lifecycle notifications from an engine.
// All calls happen on the engine's goroutine in delivery order.
type Handler interface {
	// HandleEvent returning an error aborts the engine with a failed completion
	HandleEvent(event ChangeEvent) error
	ConnectorStarted()
	ConnectorStopped()
	TaskStarted()
	TaskStopped()
}

// Completion is the terminal outcome of an engine run
type Completion struct {
	Success bool
	Message string
	Err     error
}

func Succeeded(message string) Completion {
	return Completion{Success: true, Message: message}
}

func Failed(err error) Completion {
	return Completion{Success: false, Message: err.Error(), Err: err}
}

// AsError returns nil for a successful completion. A failure that only carries
// a message still yields an error.
func (c Completion) AsError() error {
	switch {
	case c.Success:
		return nil
	case c.Err != nil:
		return c.Err
	case c.Message != "":
		return errors.New(c.Message)
	default:
		return errors.New("engine stopped unsuccessfully")
	}
}

// Engine is a long running change-capture engine
type Engine interface {
	// Run blocks until the engine stops and returns its completion
	Run(ctx context.Context, handler Handler) Completion
	// Close requests termination and waits for Run to return. It must not be
	// called from Handler callbacks.
	Close() error
	// Offset returns the last committed offset
	Offset() (types.OpaqueStateValue, error)
}

var ErrEngineStarted = errors.New("engine already started")

// Runtime holds the run/close plumbing shared by engine implementations
type Runtime struct {
	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	offset  types.OpaqueStateValue
}

func NewRuntime(config EngineConfig) *Runtime {
	return &Runtime{
		done:   make(chan struct{}),
		offset: config.State,
	}
}

// Start returns the context a run must observe; it is already cancelled when
// Close was called before Start
func (r *Runtime) Start(parent context.Context) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil, ErrEngineStarted
	}

	r.started = true
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	if r.closed {
		cancel()
	}

	return ctx, nil
}

// Finish marks the run as returned
func (r *Runtime) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

func (r *Runtime) Close() error {
	r.mu.Lock()
	r.closed = true
	started := r.started
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	if started {
		<-r.done
	}
	return nil
}

// Closed reports whether termination was requested through Close
func (r *Runtime) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Runtime) Commit(offset types.OpaqueStateValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offset = offset
}

func (r *Runtime) Offset() (types.OpaqueStateValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.offset) == 0 {
		return nil, nil
	}

	return append(types.OpaqueStateValue(nil), r.offset...), nil
}

// Completion maps the error a run loop returned to its terminal outcome.
// Cancellation caused by Close is a successful stop.
func (r *Runtime) Completion(ctx context.Context, err error) Completion {
	if err == nil || (r.Closed() && ctx.Err() != nil) {
		return Succeeded("engine stopped")
	}

	return Failed(fmt.Errorf("engine failed: %w", err))
}
