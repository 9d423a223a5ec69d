package mysql

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/datazip-inc/olake-cdc/drivers/base"
	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/pkg/binlog"
	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/datazip-inc/olake-cdc/pkg/jdbc"
	"github.com/datazip-inc/olake-cdc/protocol"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/go-mysql-org/go-mysql/client"
	"github.com/go-mysql-org/go-mysql/mysql"
)

const connectTimeout = 10 * time.Second

// MySQL captures row changes from the binlog
type MySQL struct {
	config *Config

	// client is not safe for concurrent use
	mu     sync.Mutex
	client *client.Conn
}

func init() {
	protocol.RegisteredSources[types.MySQL] = func() protocol.Source {
		return &MySQL{}
	}
}

// GetConfigRef returns a reference to the configuration
func (m *MySQL) GetConfigRef() protocol.Config {
	m.config = &Config{}
	return m.config
}

// Type returns the database type
func (m *MySQL) Type() string {
	return "MySQL"
}

// Setup establishes the database connection
func (m *MySQL) Setup(ctx context.Context) error {
	var options []client.Option
	if m.config.TLSSkipVerify {
		options = append(options, func(conn *client.Conn) error {
			//nolint:gosec,G402
			conn.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
			return nil
		})
	}

	var conn *client.Conn
	err := base.RetryOnBackoff(ctx, base.DefaultRetryCount, base.DefaultRetryBackoff, func() error {
		c, err := client.ConnectWithContext(ctx, m.config.Address(), m.config.Username, m.config.Password, m.config.Database, connectTimeout, options...)
		if err != nil {
			return fmt.Errorf("failed to open database connection: %w", err)
		}
		if err := c.Ping(); err != nil {
			_ = c.Close()
			return fmt.Errorf("failed to ping database: %w", err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return err
	}

	m.client = conn
	return nil
}

// Check verifies the binlog carries full row images
func (m *MySQL) Check(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, err := m.client.Execute(jdbc.MySQLBinlogSettingsQuery())
	if err != nil {
		return fmt.Errorf("failed to fetch binlog settings: %s", err)
	}
	if result.RowNumber() == 0 {
		return fmt.Errorf("binlog settings not available")
	}

	format, err := result.GetString(0, 0)
	if err != nil {
		return err
	}
	rowImage, err := result.GetString(0, 1)
	if err != nil {
		return err
	}

	return validateBinlogSettings(format, rowImage)
}

func validateBinlogSettings(format, rowImage string) error {
	if !strings.EqualFold(format, "ROW") {
		return fmt.Errorf("binlog_format must be ROW, found %s", format)
	}
	if !strings.EqualFold(rowImage, "FULL") {
		return fmt.Errorf("binlog_row_image must be FULL, found %s", rowImage)
	}

	return nil
}

// CurrentPosition returns the end of the current binlog file
func (m *MySQL) CurrentPosition(ctx context.Context) (cdc.Position, error) {
	pos, err := m.currentBinlogPosition(ctx)
	if err != nil {
		return nil, err
	}

	return binlog.Position(pos), nil
}

func (m *MySQL) currentBinlogPosition(_ context.Context) (mysql.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, err := m.client.Execute(jdbc.MySQLMasterStatusQuery())
	if err != nil {
		logger.Debugf("falling back to binary log status: %s", err)
		result, err = m.client.Execute(jdbc.MySQLBinaryLogStatusQuery())
		if err != nil {
			return mysql.Position{}, fmt.Errorf("failed to get master status: %s", err)
		}
	}
	if result.RowNumber() == 0 {
		return mysql.Position{}, fmt.Errorf("no binlog position available")
	}

	file, err := result.GetString(0, 0)
	if err != nil {
		return mysql.Position{}, fmt.Errorf("failed to read binlog file: %s", err)
	}
	position, err := result.GetUint(0, 1)
	if err != nil {
		return mysql.Position{}, fmt.Errorf("failed to read binlog position: %s", err)
	}

	return mysql.Position{Name: file, Pos: uint32(position)}, nil
}

func (m *MySQL) NewEngine(config cdc.EngineConfig) (cdc.Engine, error) {
	return binlog.NewEngine(m.config.binlogConfig(), m.currentBinlogPosition, config)
}

// Close ensures proper cleanup
func (m *MySQL) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
