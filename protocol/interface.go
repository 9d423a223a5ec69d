package protocol

import (
	"context"

	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/datazip-inc/olake-cdc/types"
)

type Config interface {
	Validate() error
}

type Connector interface {
	// Setting up config reference in connector i.e. must be pointer
	GetConfigRef() Config
	// Check verifies connectivity and permissions
	Check(ctx context.Context) error
	Type() string
}

// Source is a change-capture capable database
type Source interface {
	Connector
	// Setup opens connections; doesn't perform checks
	Setup(ctx context.Context) error
	// CurrentPosition returns the latest position of the replication log, used as
	// the target of a partition read
	CurrentPosition(ctx context.Context) (cdc.Position, error)
	// NewEngine builds an engine resuming from config.State
	NewEngine(config cdc.EngineConfig) (cdc.Engine, error)
	Close() error
}

// Writer is a destination. Flush may be called concurrently by flush workers.
type Writer interface {
	Connector
	// Setup prepares the destination once per sync
	Setup(ctx context.Context) error
	// Flush durably writes one batch of records of a stream
	Flush(ctx context.Context, stream types.StreamDescriptor, records []types.RawRecord) error
	Close() error
}

// PartitionReader reads one bounded unit of replication work
type PartitionReader interface {
	// TryAcquireResources never blocks; RetryLater leaves nothing held
	TryAcquireResources() types.AcquireStatus
	// Run blocks until the partition is read
	Run(ctx context.Context) error
	// Checkpoint is valid once Run returned
	Checkpoint() (types.PartitionReadCheckpoint, error)
	// ReleaseResources is safe to call more than once or without acquisition
	ReleaseResources()
}

// TaskLauncher schedules follow-up work once the destination is set up
type TaskLauncher interface {
	HandleSetupComplete()
}

// Destination is the setup capability of a write path
type Destination interface {
	Setup(ctx context.Context) error
}
