package mysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/datazip-inc/olake-cdc/pkg/binlog"
	"github.com/datazip-inc/olake-cdc/utils"
)

const (
	defaultPort              = 3306
	defaultHeartbeatInterval = 10
)

// Config represents the configuration for connecting to a MySQL database
type Config struct {
	Host          string `json:"hosts" validate:"required"`
	Username      string `json:"username" validate:"required"`
	Password      string `json:"password" validate:"required"`
	Database      string `json:"database"`
	Port          int    `json:"port" validate:"gte=0,lte=65535"`
	TLSSkipVerify bool   `json:"tls_skip_verify"`
	// HeartbeatInterval in seconds; the server sends a heartbeat when the binlog is idle
	HeartbeatInterval int `json:"heartbeat_interval" validate:"gte=0"`
}

// Address returns host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the configuration for any missing or invalid fields
func (c *Config) Validate() error {
	if strings.Contains(c.Host, "https") || strings.Contains(c.Host, "http") {
		return fmt.Errorf("host should not contain http or https: %s", c.Host)
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Database == "" {
		c.Database = "mysql"
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}

	return utils.Validate(c)
}

func (c *Config) binlogConfig() binlog.Config {
	return binlog.Config{
		Flavor:          "mysql",
		Host:            c.Host,
		Port:            uint16(c.Port),
		User:            c.Username,
		Password:        c.Password,
		Charset:         "utf8mb4",
		VerifyChecksum:  true,
		HeartbeatPeriod: time.Duration(c.HeartbeatInterval) * time.Second,
	}
}
