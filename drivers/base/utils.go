package base

import (
	"context"
	"time"

	"github.com/datazip-inc/olake-cdc/logger"
)

const (
	DefaultRetryCount   = 3
	DefaultRetryBackoff = time.Second
)

// RetryOnBackoff calls f up to attempts times, doubling sleep between failures.
// It gives up early once ctx is done.
func RetryOnBackoff(ctx context.Context, attempts int, sleep time.Duration, f func() error) (err error) {
	for cur := 0; cur < attempts; cur++ {
		if err = f(); err == nil {
			return nil
		}
		if cur == attempts-1 {
			break
		}

		logger.Infof("retry attempt[%d], retrying after %.2f seconds due to err: %s", cur+1, sleep.Seconds(), err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(sleep):
		}
		sleep = sleep * 2
	}

	return err
}
