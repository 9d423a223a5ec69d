package protocol

import (
	"context"
	"fmt"

	"github.com/datazip-inc/olake-cdc/logger"
)

// SetupTask prepares the destination and then tells the launcher so that
// readers waiting on setup may start
type SetupTask struct {
	destination Destination
	launcher    TaskLauncher
}

func NewSetupTask(destination Destination, launcher TaskLauncher) *SetupTask {
	return &SetupTask{
		destination: destination,
		launcher:    launcher,
	}
}

// Execute notifies the launcher only after a successful setup
func (t *SetupTask) Execute(ctx context.Context) error {
	logger.Info("Setting up destination")
	if err := t.destination.Setup(ctx); err != nil {
		return fmt.Errorf("failed to setup destination: %s", err)
	}

	t.launcher.HandleSetupComplete()
	return nil
}
