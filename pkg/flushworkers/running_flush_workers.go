package flushworkers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const DefaultReportInterval = 500 * time.Millisecond

var (
	// ErrWorkerNotTracked is returned when a flush worker is used before TrackFlushWorker.
	// It signals a caller bug and must not be retried.
	ErrWorkerNotTracked = errors.New("flush worker is not tracked")
	// ErrBatchSizeRegistered is returned when a worker registers a second, different batch size
	ErrBatchSizeRegistered = errors.New("flush worker batch size already registered")
)

type Option func(r *RunningFlushWorkers)

func WithClock(clk clock.Clock) Option {
	return func(r *RunningFlushWorkers) {
		r.clock = clk
	}
}

func WithReportInterval(interval time.Duration) Option {
	return func(r *RunningFlushWorkers) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// StreamSummary aggregates the running workers of one stream
type StreamSummary struct {
	Workers      int
	KnownBytes   int64
	UnknownSizes int
}

// RunningFlushWorkers tracks in-flight flush workers per stream and the size of
// the batch each one holds. It is shared by all flush workers of a sync and is
// safe for concurrent use.
type RunningFlushWorkers struct {
	mu      sync.RWMutex
	workers map[types.StreamDescriptor]map[uuid.UUID]BatchSize

	clock     clock.Clock
	interval  time.Duration
	startOnce sync.Once
	closeOnce sync.Once
	closeBg   chan struct{}
	wg        sync.WaitGroup
}

func NewRunningFlushWorkers(opts ...Option) *RunningFlushWorkers {
	r := &RunningFlushWorkers{
		workers:  make(map[types.StreamDescriptor]map[uuid.UUID]BatchSize),
		clock:    clock.New(),
		interval: DefaultReportInterval,
		closeBg:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// TrackFlushWorker registers a started worker with an unknown batch size.
// Tracking an already tracked worker is a no-op.
func (r *RunningFlushWorkers) TrackFlushWorker(stream types.StreamDescriptor, workerID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	running, found := r.workers[stream]
	if !found {
		running = make(map[uuid.UUID]BatchSize)
		r.workers[stream] = running
	}
	if _, tracked := running[workerID]; !tracked {
		running[workerID] = UnknownBatchSize()
	}
}

// RegisterBatchSize records the size of the batch a tracked worker pulled
func (r *RunningFlushWorkers) RegisterBatchSize(stream types.StreamDescriptor, workerID uuid.UUID, size int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, tracked := r.workers[stream][workerID]
	if !tracked {
		return fmt.Errorf("cannot register a batch size for flush worker[%s] of stream[%s] that has not been initialized: %w", workerID, stream, ErrWorkerNotTracked)
	}
	if known, isKnown := current.Get(); isKnown && known != size {
		return fmt.Errorf("flush worker[%s] of stream[%s] holds %d bytes, cannot change to %d: %w", workerID, stream, known, size, ErrBatchSizeRegistered)
	}

	r.workers[stream][workerID] = KnownBatchSize(size)
	return nil
}

// CompleteFlushWorker removes a tracked worker; the stream entry goes away with its last worker
func (r *RunningFlushWorkers) CompleteFlushWorker(stream types.StreamDescriptor, workerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	running := r.workers[stream]
	if _, tracked := running[workerID]; !tracked {
		return fmt.Errorf("cannot complete flush worker[%s] for stream[%s] that has not started: %w", workerID, stream, ErrWorkerNotTracked)
	}

	delete(running, workerID)
	if len(running) == 0 {
		delete(r.workers, stream)
	}
	return nil
}

// GetSizesOfRunningWorkerBatches returns a copy of the batch sizes of the stream's
// running workers. Unknown streams yield an empty slice.
func (r *RunningFlushWorkers) GetSizesOfRunningWorkerBatches(stream types.StreamDescriptor) []BatchSize {
	r.mu.RLock()
	defer r.mu.RUnlock()

	running := r.workers[stream]
	sizes := make([]BatchSize, 0, len(running))
	for _, size := range running {
		sizes = append(sizes, size)
	}

	return sizes
}

// Snapshot summarizes every stream with running workers
func (r *RunningFlushWorkers) Snapshot() map[types.StreamDescriptor]StreamSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[types.StreamDescriptor]StreamSummary, len(r.workers))
	for stream, running := range r.workers {
		summary := StreamSummary{Workers: len(running)}
		for _, size := range running {
			if bytes, known := size.Get(); known {
				summary.KnownBytes += bytes
			} else {
				summary.UnknownSizes++
			}
		}
		snapshot[stream] = summary
	}

	return snapshot
}

// Totals returns the number of running workers and their known bytes across all streams
func (r *RunningFlushWorkers) Totals() (workers int64, knownBytes int64) {
	for _, summary := range r.Snapshot() {
		workers += int64(summary.Workers)
		knownBytes += summary.KnownBytes
	}

	return workers, knownBytes
}

// Start launches the periodic diagnostics reporter. Calling it more than once has no effect.
func (r *RunningFlushWorkers) Start() {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.reportLoop()
	})
}

// Close stops the reporter and waits for it to exit
func (r *RunningFlushWorkers) Close() {
	r.closeOnce.Do(func() {
		close(r.closeBg)
	})
	r.wg.Wait()
}

func (r *RunningFlushWorkers) reportLoop() {
	defer r.wg.Done()

	ticker := r.clock.Ticker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.closeBg:
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *RunningFlushWorkers) report() {
	snapshot := r.Snapshot()
	updateMetrics(snapshot)
	if len(snapshot) == 0 {
		return
	}

	streams := make([]types.StreamDescriptor, 0, len(snapshot))
	for stream := range snapshot {
		streams = append(streams, stream)
	}
	sort.Slice(streams, func(i, j int) bool {
		return streams[i].ID() < streams[j].ID()
	})

	var message strings.Builder
	message.WriteString("FLUSH WORKER INFO")
	for _, stream := range streams {
		summary := snapshot[stream]
		message.WriteString(fmt.Sprintf("\n  Stream name: %s, num of in-flight workers: %d, num bytes: %s",
			stream, summary.Workers, humanize.Bytes(uint64(summary.KnownBytes))))
	}
	logger.Info(message.String())
}
