package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDestination struct {
	err   error
	calls int
}

func (d *fakeDestination) Setup(_ context.Context) error {
	d.calls++
	return d.err
}

type fakeTaskLauncher struct {
	notified int
}

func (l *fakeTaskLauncher) HandleSetupComplete() {
	l.notified++
}

func TestSetupTaskExecute(t *testing.T) {
	tests := []struct {
		name         string
		setupErr     error
		wantErr      bool
		wantNotified int
	}{
		{name: "successful setup notifies launcher", wantNotified: 1},
		{name: "failed setup does not notify launcher", setupErr: errors.New("bucket missing"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			destination := &fakeDestination{err: tt.setupErr}
			launcher := &fakeTaskLauncher{}

			err := NewSetupTask(destination, launcher).Execute(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "bucket missing")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, 1, destination.calls)
			assert.Equal(t, tt.wantNotified, launcher.notified)
		})
	}
}

func TestSetupTaskReleasesLauncher(t *testing.T) {
	launcher := NewLauncher(0)
	require.False(t, launcher.SetupComplete())

	require.NoError(t, NewSetupTask(&fakeDestination{}, launcher).Execute(context.Background()))
	assert.True(t, launcher.SetupComplete())
}
