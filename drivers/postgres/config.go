package postgres

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/datazip-inc/olake-cdc/pkg/waljs"
	"github.com/datazip-inc/olake-cdc/utils"
)

type Config struct {
	Connection       *url.URL          `json:"-"`
	Host             string            `json:"host" validate:"required"`
	Port             int               `json:"port" validate:"required,min=1,max=65535"`
	Database         string            `json:"database" validate:"required"`
	Username         string            `json:"username" validate:"required"`
	Password         string            `json:"password"`
	JDBCURLParams    map[string]string `json:"jdbc_url_params"`
	SSLConfiguration *SSLConfig        `json:"ssl"`
	ReplicationSlot  string            `json:"replication_slot" validate:"required"`
	// StandbyInterval in seconds between status updates while the slot is idle
	StandbyInterval int `json:"standby_interval" validate:"gte=0"`
}

type SSLConfig struct {
	Mode       string `json:"mode" validate:"omitempty,oneof=disable require verify-ca verify-full"`
	ServerCA   string `json:"server_ca,omitempty"`
	ClientCert string `json:"client_cert,omitempty"`
	ClientKey  string `json:"client_key,omitempty"`
}

func (c *Config) Validate() error {
	if strings.Contains(c.Host, "https") || strings.Contains(c.Host, "http") {
		return fmt.Errorf("host should not contain http or https")
	}
	if err := utils.Validate(c); err != nil {
		return err
	}

	if c.SSLConfiguration == nil {
		c.SSLConfiguration = &SSLConfig{Mode: "disable"}
	}
	if c.SSLConfiguration.Mode == "verify-ca" || c.SSLConfiguration.Mode == "verify-full" {
		if c.SSLConfiguration.ServerCA == "" {
			return fmt.Errorf("ssl mode %s requires server_ca", c.SSLConfiguration.Mode)
		}
	}

	// construct the connection string
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", url.QueryEscape(c.Username), url.QueryEscape(c.Password), c.Host, c.Port, url.QueryEscape(c.Database))
	parsed, err := url.Parse(connStr)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %s", err)
	}

	query := parsed.Query()
	for k, v := range c.JDBCURLParams {
		query.Add(k, v)
	}
	if c.SSLConfiguration.Mode != "" {
		query.Add("sslmode", c.SSLConfiguration.Mode)
	}
	if c.SSLConfiguration.ServerCA != "" {
		query.Add("sslrootcert", c.SSLConfiguration.ServerCA)
	}
	if c.SSLConfiguration.ClientCert != "" {
		query.Add("sslcert", c.SSLConfiguration.ClientCert)
	}
	if c.SSLConfiguration.ClientKey != "" {
		query.Add("sslkey", c.SSLConfiguration.ClientKey)
	}

	parsed.RawQuery = query.Encode()
	c.Connection = parsed

	return nil
}

func (c *Config) walConfig() *waljs.Config {
	return &waljs.Config{
		Connection:          *c.Connection,
		ReplicationSlotName: c.ReplicationSlot,
		StandbyInterval:     time.Duration(c.StandbyInterval) * time.Second,
	}
}
