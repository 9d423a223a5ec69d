package protocol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePartitionReader struct {
	mu         sync.Mutex
	retryFirst int
	attempts   int
	runErr     error
	ran        bool
	released   int
	checkpoint types.PartitionReadCheckpoint
	attempted  chan struct{}
}

func (r *fakePartitionReader) TryAcquireResources() types.AcquireStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.attempted != nil {
		r.attempted <- struct{}{}
	}
	if r.attempts <= r.retryFirst {
		return types.RetryLater
	}
	return types.ReadyToRun
}

func (r *fakePartitionReader) Run(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = true
	return r.runErr
}

func (r *fakePartitionReader) hasRun() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ran
}

func (r *fakePartitionReader) Checkpoint() (types.PartitionReadCheckpoint, error) {
	return r.checkpoint, nil
}

func (r *fakePartitionReader) ReleaseResources() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released++
}

func TestLauncherRunPartition(t *testing.T) {
	checkpoint := types.PartitionReadCheckpoint{ResumeState: types.OpaqueStateValue(`{"lsn":"0/16B3748"}`), RecordCount: 3}

	tests := []struct {
		name          string
		reader        *fakePartitionReader
		commitErr     error
		wantErr       bool
		wantCommitted bool
		wantAttempts  int
	}{
		{
			name:          "acquires immediately",
			reader:        &fakePartitionReader{checkpoint: checkpoint},
			wantCommitted: true,
			wantAttempts:  1,
		},
		{
			name:         "failed read is not committed",
			reader:       &fakePartitionReader{runErr: errors.New("slot dropped"), checkpoint: checkpoint},
			wantErr:      true,
			wantAttempts: 1,
		},
		{
			name:          "commit failure is reported",
			reader:        &fakePartitionReader{checkpoint: checkpoint},
			commitErr:     errors.New("disk full"),
			wantErr:       true,
			wantCommitted: true,
			wantAttempts:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var committed []types.PartitionReadCheckpoint
			launcher := NewLauncher(time.Millisecond)

			got, err := launcher.RunPartition(context.Background(), tt.reader, func(cp types.PartitionReadCheckpoint) error {
				committed = append(committed, cp)
				return tt.commitErr
			})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, checkpoint, got)
			}

			assert.Equal(t, tt.wantAttempts, tt.reader.attempts)
			assert.Equal(t, 1, tt.reader.released)
			if tt.wantCommitted {
				require.Len(t, committed, 1)
				assert.Equal(t, checkpoint, committed[0])
			} else {
				assert.Empty(t, committed)
			}
		})
	}
}

func TestLauncherRetriesOnEveryTick(t *testing.T) {
	mock := clock.NewMock()
	reader := &fakePartitionReader{retryFirst: 2, attempted: make(chan struct{}, 3)}
	launcher := NewLauncher(time.Second, WithLauncherClock(mock))

	done := make(chan error, 1)
	go func() {
		_, err := launcher.RunPartition(context.Background(), reader, nil)
		done <- err
	}()

	for i := 0; i < 2; i++ {
		<-reader.attempted
		assert.False(t, reader.hasRun())
		mock.Add(time.Second)
	}
	<-reader.attempted

	require.NoError(t, <-done)
	assert.Equal(t, 3, reader.attempts)
	assert.True(t, reader.hasRun())
	assert.Equal(t, 1, reader.released)
}

func TestLauncherStopsWaitingOnCancel(t *testing.T) {
	reader := &fakePartitionReader{retryFirst: 1 << 30}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewLauncher(time.Millisecond).RunPartition(ctx, reader, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, reader.ran)
	assert.Zero(t, reader.released)
}
