package protocol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/datazip-inc/olake-cdc/pkg/flushworkers"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriterConfig struct{}

func (c *fakeWriterConfig) Validate() error { return nil }

type fakeWriter struct {
	mu      sync.Mutex
	flushed map[types.StreamDescriptor][][]types.RawRecord
	err     error
	block   chan struct{}
	started chan struct{}
	closed  bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{flushed: make(map[types.StreamDescriptor][][]types.RawRecord)}
}

func (w *fakeWriter) GetConfigRef() Config          { return &fakeWriterConfig{} }
func (w *fakeWriter) Check(_ context.Context) error { return nil }
func (w *fakeWriter) Type() string                  { return "fake" }
func (w *fakeWriter) Setup(_ context.Context) error { return nil }

func (w *fakeWriter) Flush(_ context.Context, stream types.StreamDescriptor, records []types.RawRecord) error {
	if w.started != nil {
		w.started <- struct{}{}
	}
	if w.block != nil {
		<-w.block
	}
	if w.err != nil {
		return w.err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushed[stream] = append(w.flushed[stream], records)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) batches(stream types.StreamDescriptor) [][]types.RawRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushed[stream]
}

var (
	ordersStream = types.NewStreamDescriptor("public", "orders")
	usersStream  = types.NewStreamDescriptor("public", "users")
)

func rawRecord(id string) types.RawRecord {
	return types.CreateRawRecord(id, map[string]any{"id": id}, "c", time.Unix(0, 0).UTC())
}

func TestWriterPoolBuffersUntilDrain(t *testing.T) {
	writer := newFakeWriter()
	pool := NewWriterPoolWithWriter(context.Background(), writer, flushworkers.NewRunningFlushWorkers())

	require.NoError(t, pool.Insert(ordersStream, rawRecord("1")))
	require.NoError(t, pool.Insert(ordersStream, rawRecord("2")))
	require.NoError(t, pool.Insert(usersStream, rawRecord("3")))
	assert.Empty(t, writer.batches(ordersStream))

	require.NoError(t, pool.Drain())
	require.Len(t, writer.batches(ordersStream), 1)
	assert.Len(t, writer.batches(ordersStream)[0], 2)
	require.Len(t, writer.batches(usersStream), 1)
	assert.Equal(t, int64(3), pool.SyncedRecords())

	require.NoError(t, pool.Close())
	assert.True(t, writer.closed)
}

func TestWriterPoolFlushesFullBatches(t *testing.T) {
	writer := newFakeWriter()
	pool := NewWriterPoolWithWriter(context.Background(), writer, flushworkers.NewRunningFlushWorkers(), WithBatchBytes(1))

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, pool.Insert(ordersStream, rawRecord(id)))
	}
	require.NoError(t, pool.Close())

	batches := writer.batches(ordersStream)
	require.Len(t, batches, 3)
	for _, batch := range batches {
		assert.Len(t, batch, 1)
		assert.False(t, batch[0].OlakeTimestamp.IsZero())
	}
	assert.Equal(t, int64(3), pool.SyncedRecords())
}

func TestWriterPoolTracksRunningWorkers(t *testing.T) {
	registry := flushworkers.NewRunningFlushWorkers()
	writer := newFakeWriter()
	writer.block = make(chan struct{})
	writer.started = make(chan struct{}, 1)
	pool := NewWriterPoolWithWriter(context.Background(), writer, registry, WithBatchBytes(1))

	record := rawRecord("1")
	require.NoError(t, pool.Insert(ordersStream, record))
	<-writer.started

	sizes := registry.GetSizesOfRunningWorkerBatches(ordersStream)
	require.Len(t, sizes, 1)
	assert.Equal(t, flushworkers.KnownBatchSize(record.Size()), sizes[0])
	assert.Equal(t, record.Size(), pool.InFlightBytes(ordersStream))
	assert.Equal(t, int64(1), pool.Stats().RunningFlushWorkers)

	close(writer.block)
	require.NoError(t, pool.Drain())
	assert.Empty(t, registry.GetSizesOfRunningWorkerBatches(ordersStream))
	assert.Empty(t, registry.Snapshot())
	require.NoError(t, pool.Close())
}

func TestWriterPoolFlushFailure(t *testing.T) {
	registry := flushworkers.NewRunningFlushWorkers()
	writer := newFakeWriter()
	writer.err = errors.New("access denied")
	pool := NewWriterPoolWithWriter(context.Background(), writer, registry)

	require.NoError(t, pool.Insert(ordersStream, rawRecord("1")))
	err := pool.Drain()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	assert.Error(t, pool.Insert(ordersStream, rawRecord("2")))
	assert.Empty(t, registry.Snapshot())
	assert.Zero(t, pool.SyncedRecords())

	assert.Error(t, pool.Close())
	assert.True(t, writer.closed)
}

func TestNewWriterPoolUnknownType(t *testing.T) {
	_, err := NewWriterPool(context.Background(), &types.WriterConfig{Type: "UNKNOWN"}, flushworkers.NewRunningFlushWorkers())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid destination type")
}
