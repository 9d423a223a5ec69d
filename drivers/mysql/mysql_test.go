package mysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid", config: Config{Host: "db", Username: "root", Password: "secret"}},
		{name: "missing host", config: Config{Username: "root", Password: "secret"}, wantErr: true},
		{name: "http host", config: Config{Host: "https://db", Username: "root", Password: "secret"}, wantErr: true},
		{name: "missing password", config: Config{Host: "db", Username: "root"}, wantErr: true},
		{name: "invalid port", config: Config{Host: "db", Username: "root", Password: "secret", Port: 70000}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	config := Config{Host: "db", Username: "root", Password: "secret"}
	require.NoError(t, config.Validate())

	assert.Equal(t, "db:3306", config.Address())
	assert.Equal(t, "mysql", config.Database)

	syncer := config.binlogConfig()
	assert.Equal(t, uint16(3306), syncer.Port)
	assert.Equal(t, 10*time.Second, syncer.HeartbeatPeriod)
	assert.Equal(t, "mysql", syncer.Flavor)
}

func TestValidateBinlogSettings(t *testing.T) {
	assert.NoError(t, validateBinlogSettings("ROW", "FULL"))
	assert.Error(t, validateBinlogSettings("MIXED", "FULL"))
	assert.Error(t, validateBinlogSettings("ROW", "MINIMAL"))
}
