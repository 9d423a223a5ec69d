package protocol

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/pkg/flushworkers"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/datazip-inc/olake-cdc/utils"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultFlushBatchBytes = 10 * 1024 * 1024
	DefaultFlushWorkers    = 4
)

type NewFunc func() Writer

var RegisteredWriters = map[types.AdapterType]NewFunc{}

type Options struct {
	BatchBytes int64
	MaxWorkers int
}

type PoolOption func(opt *Options)

// WithBatchBytes sets the buffered size at which a stream's records are flushed
func WithBatchBytes(bytes int64) PoolOption {
	return func(opt *Options) {
		if bytes > 0 {
			opt.BatchBytes = bytes
		}
	}
}

// WithMaxWorkers bounds the number of concurrent flush workers
func WithMaxWorkers(workers int) PoolOption {
	return func(opt *Options) {
		if workers > 0 {
			opt.MaxWorkers = workers
		}
	}
}

type streamBuffer struct {
	records []types.RawRecord
	bytes   int64
}

// WriterPool buffers records per stream and hands full batches to flush
// workers. Every worker is tracked in the shared flush worker registry.
type WriterPool struct {
	writer   Writer
	registry *flushworkers.RunningFlushWorkers
	options  Options

	mu      sync.Mutex
	buffers map[types.StreamDescriptor]*streamBuffer

	recordCount atomic.Int64
	inFlight    sync.WaitGroup
	group       *errgroup.Group
	groupCtx    context.Context
	closeOnce   sync.Once
	closeErr    error
}

// NewWriterPool initializes the registered writer of config and checks it
func NewWriterPool(ctx context.Context, config *types.WriterConfig, registry *flushworkers.RunningFlushWorkers, opts ...PoolOption) (*WriterPool, error) {
	newfunc, found := RegisteredWriters[config.Type]
	if !found {
		return nil, fmt.Errorf("invalid destination type has been passed [%s]", config.Type)
	}

	writer := newfunc()
	configRef := writer.GetConfigRef()
	if err := utils.Unmarshal(config.WriterConfig, configRef); err != nil {
		return nil, err
	}
	if err := configRef.Validate(); err != nil {
		return nil, fmt.Errorf("invalid destination config: %s", err)
	}
	if err := writer.Check(ctx); err != nil {
		return nil, fmt.Errorf("failed to test destination: %s", err)
	}

	return NewWriterPoolWithWriter(ctx, writer, registry, opts...), nil
}

func NewWriterPoolWithWriter(ctx context.Context, writer Writer, registry *flushworkers.RunningFlushWorkers, opts ...PoolOption) *WriterPool {
	options := Options{
		BatchBytes: DefaultFlushBatchBytes,
		MaxWorkers: DefaultFlushWorkers,
	}
	for _, one := range opts {
		one(&options)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(options.MaxWorkers)
	return &WriterPool{
		writer:   writer,
		registry: registry,
		options:  options,
		buffers:  make(map[types.StreamDescriptor]*streamBuffer),
		group:    group,
		groupCtx: groupCtx,
	}
}

// Setup prepares the destination
func (w *WriterPool) Setup(ctx context.Context) error {
	return w.writer.Setup(ctx)
}

// Insert buffers a record; a full buffer is flushed by a new worker. Insert
// blocks while all flush workers are busy.
func (w *WriterPool) Insert(stream types.StreamDescriptor, record types.RawRecord) error {
	if err := w.failure(); err != nil {
		return err
	}

	record.OlakeTimestamp = time.Now().UTC()

	w.mu.Lock()
	buffer, found := w.buffers[stream]
	if !found {
		buffer = &streamBuffer{}
		w.buffers[stream] = buffer
	}
	buffer.records = append(buffer.records, record)
	buffer.bytes += record.Size()
	var batch []types.RawRecord
	if buffer.bytes >= w.options.BatchBytes {
		batch = buffer.records
		delete(w.buffers, stream)
	}
	w.mu.Unlock()

	if batch != nil {
		w.dispatch(stream, batch)
	}
	return nil
}

// Drain flushes every buffered record and waits for running workers
func (w *WriterPool) Drain() error {
	w.mu.Lock()
	pending := w.buffers
	w.buffers = make(map[types.StreamDescriptor]*streamBuffer)
	w.mu.Unlock()

	for stream, buffer := range pending {
		w.dispatch(stream, buffer.records)
	}
	w.inFlight.Wait()

	return w.failure()
}

func (w *WriterPool) dispatch(stream types.StreamDescriptor, batch []types.RawRecord) {
	w.inFlight.Add(1)
	w.group.Go(func() error {
		defer w.inFlight.Done()
		return w.flush(stream, batch)
	})
}

func (w *WriterPool) flush(stream types.StreamDescriptor, batch []types.RawRecord) error {
	workerID := uuid.New()
	w.registry.TrackFlushWorker(stream, workerID)

	var batchBytes int64
	for i := range batch {
		batchBytes += batch[i].Size()
	}
	if err := w.registry.RegisterBatchSize(stream, workerID, batchBytes); err != nil {
		return err
	}

	flushErr := w.writer.Flush(w.groupCtx, stream, batch)
	if err := w.registry.CompleteFlushWorker(stream, workerID); err != nil {
		return err
	}
	if flushErr != nil {
		logger.Errorf("flush worker[%s] failed for stream[%s]: %s", workerID, stream, flushErr)
		return fmt.Errorf("failed to flush %d records of stream[%s]: %s", len(batch), stream, flushErr)
	}

	w.recordCount.Add(int64(len(batch)))
	logger.Debugf("flush worker[%s] wrote %d records of stream[%s]", workerID, len(batch), stream)
	return nil
}

func (w *WriterPool) failure() error {
	if w.groupCtx.Err() == nil {
		return nil
	}

	return fmt.Errorf("writer pool stopped: %w", context.Cause(w.groupCtx))
}

// SyncedRecords returns the number of flushed records
func (w *WriterPool) SyncedRecords() int64 {
	return w.recordCount.Load()
}

// InFlightBytes sums the known batch sizes held by the stream's running workers
func (w *WriterPool) InFlightBytes(stream types.StreamDescriptor) int64 {
	var total int64
	for _, size := range w.registry.GetSizesOfRunningWorkerBatches(stream) {
		if bytes, known := size.Get(); known {
			total += bytes
		}
	}

	return total
}

// Stats reports pool progress for the stats logger
func (w *WriterPool) Stats() logger.SyncStats {
	workers, bytes := w.registry.Totals()
	return logger.SyncStats{
		SyncedRecords:       w.SyncedRecords(),
		RunningFlushWorkers: workers,
		InFlightBytes:       bytes,
	}
}

// Close drains the pool, waits for workers and closes the writer
func (w *WriterPool) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = utils.ErrExecSequential(
			utils.ErrExecFormat("failed to drain writer pool: %s", w.Drain),
			utils.ErrExecFormat("error occurred in writer pool: %s", w.group.Wait),
			utils.ErrExecFormat("failed to close writer: %s", w.writer.Close),
		)
	})

	return w.closeErr
}
