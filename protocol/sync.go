package protocol

import (
	"fmt"
	"time"

	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/datazip-inc/olake-cdc/pkg/flushworkers"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/datazip-inc/olake-cdc/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	selectedStreams []string
	normalization   bool
)

// syncCmd runs one partition read from the persisted offset up to the source's current position
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Olake CDC sync command",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		if configPath == "" {
			return fmt.Errorf("--config not passed")
		} else if destinationConfigPath == "" {
			return fmt.Errorf("--destination not passed")
		}

		if err := loadSourceConfig(); err != nil {
			return err
		}

		destinationConfig = &types.WriterConfig{}
		if err := utils.UnmarshalFile(destinationConfigPath, destinationConfig); err != nil {
			return err
		}
		if err := utils.Validate(destinationConfig); err != nil {
			return fmt.Errorf("invalid destination config: %s", err)
		}

		state = types.NewState()
		if statePath != "" {
			if err := utils.UnmarshalFile(statePath, state); err != nil {
				return err
			}
		}

		logger.Infof("Running sync with state: %s", stateSummary(state))
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		source, err := NewSource(sourceConfig)
		if err != nil {
			return err
		}
		if err := source.Setup(ctx); err != nil {
			return fmt.Errorf("failed to setup source: %s", err)
		}
		defer func() {
			if err := source.Close(); err != nil {
				logger.Warnf("failed to close source: %s", err)
			}
		}()

		registry := flushworkers.NewRunningFlushWorkers(flushworkers.WithReportInterval(viper.GetDuration("flush-report-interval")))
		registry.Start()
		defer registry.Close()

		pool, err := NewWriterPool(ctx, destinationConfig, registry,
			WithBatchBytes(viper.GetInt64("flush-batch-bytes")),
			WithMaxWorkers(viper.GetInt("flush-workers")))
		if err != nil {
			return err
		}

		target, err := source.CurrentPosition(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch current source position: %s", err)
		}
		logger.Infof("Reading changes up to position %s", target)

		resumeState := state.GlobalValue()
		engine, err := source.NewEngine(cdc.EngineConfig{State: resumeState, CommitPolicy: cdc.CommitAlways})
		if err != nil {
			return fmt.Errorf("failed to create %s engine: %s", source.Type(), err)
		}

		filter, err := types.NewStreamFilter(selectedStreams...)
		if err != nil {
			return err
		}

		launcher := NewLauncher(viper.GetDuration("acquire-retry-interval"))
		reader, err := cdc.NewPartitionReader(cdc.ReaderConfig{
			ID:          utils.ULID(),
			Engine:      engine,
			Gate:        captureGate,
			Ready:       launcher.SetupComplete,
			Tracker:     cdc.NewPositionTracker(target, cdc.WithNotProgressingTimeout(viper.GetDuration("heartbeat-progress-timeout"))),
			Converter:   cdc.NewRecordConverter(normalization),
			Sink:        pool,
			Filter:      filter,
			State:       resumeState,
			MaxDuration: viper.GetDuration("max-duration"),
		})
		if err != nil {
			return err
		}

		logger.StatsLogger(ctx, pool.Stats)

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			return NewSetupTask(pool, launcher).Execute(groupCtx)
		})
		group.Go(func() error {
			_, err := launcher.RunPartition(groupCtx, reader, func(checkpoint types.PartitionReadCheckpoint) error {
				// records up to the checkpoint must be durable before the offset moves
				if err := pool.Drain(); err != nil {
					return err
				}
				state.Commit(checkpoint)
				return nil
			})
			return err
		})

		syncErr := group.Wait()
		if err := pool.Close(); err != nil && syncErr == nil {
			syncErr = err
		}
		if syncErr != nil {
			return syncErr
		}

		logger.Infof("Total records synced: %d", pool.SyncedRecords())
		return nil
	},
}

// stateSummary renders state for logs, warning when it cannot be encoded
func stateSummary(state *types.State) string {
	stateBytes, err := state.MarshalJSON()
	if err != nil {
		logger.Warnf("failed to encode sync state: %s", err)
		return "<unencodable>"
	}

	return string(stateBytes)
}

func loadSourceConfig() error {
	sourceConfig = &types.SourceConfig{}
	if err := utils.UnmarshalFile(configPath, sourceConfig); err != nil {
		return err
	}

	return utils.Validate(sourceConfig)
}

func bindFlags(flags ...*pflag.Flag) {
	for _, flag := range flags {
		if err := viper.BindPFlag(flag.Name, flag); err != nil {
			logger.Fatalf("failed to bind flag[%s]: %s", flag.Name, err)
		}
	}
}

func init() {
	flags := syncCmd.Flags()
	flags.StringSliceVarP(&selectedStreams, "streams", "", nil, "(Optional) Streams to sync as namespace.name; all when empty")
	flags.BoolVarP(&normalization, "normalization", "", false, "(Optional) Normalize record keys into column names and nested values into JSON")
	flags.Int64("flush-batch-bytes", DefaultFlushBatchBytes, "(Optional) Buffered bytes per stream that trigger a flush")
	flags.Int("flush-workers", DefaultFlushWorkers, "(Optional) Maximum concurrent flush workers")
	flags.Duration("flush-report-interval", flushworkers.DefaultReportInterval, "(Optional) Interval of flush worker diagnostics")
	flags.Duration("max-duration", 0, "(Optional) Stop the read after this duration")
	flags.Duration("heartbeat-progress-timeout", 5*time.Minute, "(Optional) Stop when heartbeats do not progress for this long")
	flags.Duration("acquire-retry-interval", DefaultAcquireRetryInterval, "(Optional) Interval between resource acquisition attempts")
	bindFlags(
		flags.Lookup("flush-batch-bytes"),
		flags.Lookup("flush-workers"),
		flags.Lookup("flush-report-interval"),
		flags.Lookup("max-duration"),
		flags.Lookup("heartbeat-progress-timeout"),
		flags.Lookup("acquire-retry-interval"),
	)
}
