package binlog

import (
	"context"
	"fmt"
	"math"

	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
)

// Connection manages the binlog syncer and streamer.
type Connection struct {
	syncer     *replication.BinlogSyncer
	streamer   *replication.BinlogStreamer
	currentPos mysql.Position
	filter     ChangeFilter
}

// NewConnection creates a new binlog connection starting from the given position.
func NewConnection(_ context.Context, config *Config, pos mysql.Position) (*Connection, error) {
	syncerConfig := replication.BinlogSyncerConfig{
		ServerID:        config.ServerID,
		Flavor:          config.Flavor,
		Host:            config.Host,
		Port:            config.Port,
		User:            config.User,
		Password:        config.Password,
		Charset:         config.Charset,
		VerifyChecksum:  config.VerifyChecksum,
		HeartbeatPeriod: config.HeartbeatPeriod,
	}
	syncer := replication.NewBinlogSyncer(syncerConfig)
	streamer, err := syncer.StartSync(pos)
	if err != nil {
		syncer.Close()
		return nil, fmt.Errorf("failed to start binlog sync: %w", err)
	}
	return &Connection{
		syncer:     syncer,
		streamer:   streamer,
		currentPos: pos,
		filter:     NewChangeFilter(),
	}, nil
}

// StreamMessages delivers row changes and server heartbeats until ctx is done
func (c *Connection) StreamMessages(ctx context.Context, callback OnChange) error {
	for {
		ev, err := c.streamer.GetEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to get binlog event: %w", err)
		}
		if ev.Header.LogPos > 0 {
			c.currentPos.Pos = ev.Header.LogPos
		}

		switch e := ev.Event.(type) {
		case *replication.RotateEvent:
			c.currentPos.Name = string(e.NextLogName)
			if e.Position > math.MaxUint32 {
				return fmt.Errorf("binlog position overflow: %d exceeds uint32 max value", e.Position)
			}
			c.currentPos.Pos = uint32(e.Position)
			logger.Infof("Binlog rotated to %s:%d", c.currentPos.Name, c.currentPos.Pos)

		case *replication.RowsEvent:
			if err := c.filter.FilterRowsEvent(e, ev, Position(c.currentPos), callback); err != nil {
				return err
			}

		default:
			if ev.Header.EventType == replication.HEARTBEAT_EVENT {
				if err := callback(cdc.NewHeartbeat(Position(c.currentPos), ev.RawData)); err != nil {
					return err
				}
			}
		}
	}
}

// Close terminates the binlog syncer.
func (c *Connection) Close() {
	c.syncer.Close()
}
