package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/datazip-inc/olake-cdc/drivers/base"
	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/datazip-inc/olake-cdc/pkg/jdbc"
	"github.com/datazip-inc/olake-cdc/pkg/waljs"
	"github.com/datazip-inc/olake-cdc/protocol"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/jmoiron/sqlx"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

const pingTimeout = 2 * time.Minute

// Postgres captures changes through a wal2json logical replication slot
type Postgres struct {
	config *Config
	client *sqlx.DB
}

func init() {
	protocol.RegisteredSources[types.Postgres] = func() protocol.Source {
		return &Postgres{}
	}
}

func (p *Postgres) GetConfigRef() protocol.Config {
	p.config = &Config{}

	return p.config
}

func (p *Postgres) Type() string {
	return "Postgres"
}

func (p *Postgres) Setup(ctx context.Context) error {
	sqlxDB, err := sqlx.Open("pgx", p.config.Connection.String())
	if err != nil {
		return fmt.Errorf("failed to connect database: %s", err)
	}

	err = base.RetryOnBackoff(ctx, base.DefaultRetryCount, base.DefaultRetryBackoff, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return sqlxDB.PingContext(pingCtx)
	})
	if err != nil {
		_ = sqlxDB.Close()
		return fmt.Errorf("failed to ping database: %s", err)
	}

	p.client = sqlxDB.Unsafe()
	return nil
}

// Check verifies logical decoding is enabled and the slot uses wal2json
func (p *Postgres) Check(ctx context.Context) error {
	var walLevel string
	if err := p.client.GetContext(ctx, &walLevel, jdbc.PostgresWalLevelQuery()); err != nil {
		return fmt.Errorf("failed to fetch wal_level: %s", err)
	}
	if !strings.EqualFold(walLevel, "logical") {
		return fmt.Errorf("wal_level must be logical, found %s", walLevel)
	}

	var exists bool
	if err := p.client.GetContext(ctx, &exists, jdbc.PostgresReplicationSlotExistsQuery(), p.config.ReplicationSlot); err != nil {
		return fmt.Errorf("failed to check replication slot: %s", err)
	}
	if !exists {
		return fmt.Errorf("replication slot %s does not exist", p.config.ReplicationSlot)
	}

	slot := waljs.ReplicationSlot{}
	if err := p.client.GetContext(ctx, &slot, fmt.Sprintf(waljs.ReplicationSlotTempl, p.config.ReplicationSlot)); err != nil {
		return fmt.Errorf("failed to get replication slot: %s", err)
	}

	return validateReplicationSlot(slot)
}

func validateReplicationSlot(slot waljs.ReplicationSlot) error {
	if slot.Plugin != "wal2json" {
		return fmt.Errorf("plugin not supported[%s]: driver only supports wal2json", slot.Plugin)
	}
	if slot.SlotType != "logical" {
		return fmt.Errorf("only logical slots are supported: %s", slot.SlotType)
	}

	return nil
}

// CurrentPosition returns the current WAL insert location
func (p *Postgres) CurrentPosition(ctx context.Context) (cdc.Position, error) {
	var lsn string
	if err := p.client.GetContext(ctx, &lsn, jdbc.PostgresWalLSNQuery()); err != nil {
		return nil, fmt.Errorf("failed to fetch current wal lsn: %s", err)
	}

	return waljs.ParseLSN(lsn)
}

func (p *Postgres) NewEngine(config cdc.EngineConfig) (cdc.Engine, error) {
	return waljs.NewEngine(p.client, p.config.walConfig(), dataTypeConverter, config)
}

func (p *Postgres) Close() error {
	if p.client == nil {
		return nil
	}

	if err := p.client.Close(); err != nil {
		logger.Errorf("failed to close connection with postgres: %s", err)
		return err
	}
	return nil
}
