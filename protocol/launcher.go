package protocol

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/types"
)

const DefaultAcquireRetryInterval = time.Second

// CommitFunc persists a checkpoint; the partition is only done once it returns nil
type CommitFunc func(checkpoint types.PartitionReadCheckpoint) error

type LauncherOption func(l *Launcher)

func WithLauncherClock(clk clock.Clock) LauncherOption {
	return func(l *Launcher) {
		l.clock = clk
	}
}

// Launcher sequences partition reads after destination setup
type Launcher struct {
	setupComplete atomic.Bool
	retryInterval time.Duration
	clock         clock.Clock
}

func NewLauncher(retryInterval time.Duration, opts ...LauncherOption) *Launcher {
	if retryInterval <= 0 {
		retryInterval = DefaultAcquireRetryInterval
	}

	l := &Launcher{retryInterval: retryInterval, clock: clock.New()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Launcher) HandleSetupComplete() {
	l.setupComplete.Store(true)
	logger.Info("Destination setup completed")
}

// SetupComplete is the readiness predicate for capture readers
func (l *Launcher) SetupComplete() bool {
	return l.setupComplete.Load()
}

// RunPartition acquires the reader's resources (retrying on RetryLater), runs it
// and commits its checkpoint. Resources are always released.
func (l *Launcher) RunPartition(ctx context.Context, reader PartitionReader, commit CommitFunc) (types.PartitionReadCheckpoint, error) {
	if err := l.acquire(ctx, reader); err != nil {
		return types.PartitionReadCheckpoint{}, err
	}
	defer reader.ReleaseResources()

	startTime := l.clock.Now()
	if err := reader.Run(ctx); err != nil {
		return types.PartitionReadCheckpoint{}, fmt.Errorf("partition read failed: %s", err)
	}

	checkpoint, err := reader.Checkpoint()
	if err != nil {
		return types.PartitionReadCheckpoint{}, err
	}
	logger.Infof("Partition read %d records in %s", checkpoint.RecordCount, l.clock.Since(startTime))

	if commit != nil {
		if err := commit(checkpoint); err != nil {
			return checkpoint, fmt.Errorf("failed to commit checkpoint: %s", err)
		}
	}

	return checkpoint, nil
}

func (l *Launcher) acquire(ctx context.Context, reader PartitionReader) error {
	ticker := l.clock.Ticker(l.retryInterval)
	defer ticker.Stop()
	for reader.TryAcquireResources() != types.ReadyToRun {
		select {
		case <-ctx.Done():
			return fmt.Errorf("stopped waiting for partition resources: %w", ctx.Err())
		case <-ticker.C:
		}
	}

	return nil
}
