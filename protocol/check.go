package protocol

import (
	"fmt"

	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/datazip-inc/olake-cdc/utils"
	"github.com/spf13/cobra"
)

type ConnectionStatus string

const (
	ConnectionSucceed ConnectionStatus = "SUCCEEDED"
	ConnectionFailed  ConnectionStatus = "FAILED"
)

type StatusRow struct {
	Status  ConnectionStatus `json:"status"`
	Message string           `json:"message,omitempty"`
}

// checkCmd verifies the source and, when passed, the destination
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "check command",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		if configPath == "" {
			return fmt.Errorf("--config not passed")
		}

		if err := loadSourceConfig(); err != nil {
			return err
		}

		if destinationConfigPath != "" {
			destinationConfig = &types.WriterConfig{}
			if err := utils.UnmarshalFile(destinationConfigPath, destinationConfig); err != nil {
				return err
			}
		}

		return nil
	},
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		checks := []func() error{
			func() error {
				source, err := NewSource(sourceConfig)
				if err != nil {
					return err
				}
				defer source.Close()

				if err := source.Setup(ctx); err != nil {
					return err
				}
				return source.Check(ctx)
			},
		}
		if destinationConfig != nil {
			checks = append(checks, func() error {
				newfunc, found := RegisteredWriters[destinationConfig.Type]
				if !found {
					return fmt.Errorf("invalid destination type has been passed [%s]", destinationConfig.Type)
				}
				writer := newfunc()
				configRef := writer.GetConfigRef()
				if err := utils.Unmarshal(destinationConfig.WriterConfig, configRef); err != nil {
					return err
				}
				if err := configRef.Validate(); err != nil {
					return err
				}
				return writer.Check(ctx)
			})
		}

		status := StatusRow{Status: ConnectionSucceed}
		if err := utils.ErrExecSequential(checks...); err != nil {
			status.Status = ConnectionFailed
			status.Message = err.Error()
		}
		logger.Info(map[string]any{
			"type":             "CONNECTION_STATUS",
			"connectionStatus": status,
		})
	},
}
