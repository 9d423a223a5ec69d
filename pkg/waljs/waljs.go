package waljs

import (
	"context"
	"fmt"
	"time"

	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/jmoiron/sqlx"
)

const (
	ReplicationSlotTempl = "SELECT plugin, slot_type, confirmed_flush_lsn FROM pg_replication_slots WHERE slot_name = '%s'"
)

var pluginArguments = []string{
	"\"include-lsn\" 'on'",
	"\"include-pk\" 'on'",
	"\"pretty-print\" 'off'",
	"\"include-timestamp\" 'on'",
}

// Socket represents a connection to PostgreSQL's logical replication stream
type Socket struct {
	pgConn *pgconn.PgConn
	// ClientXLogPos is the furthest position received from the server
	ClientXLogPos pglogrepl.LSN
	// ConfirmedFlushLSN is the slot position at connect time
	ConfirmedFlushLSN pglogrepl.LSN
	// acknowledged is the position reported back to the server as flushed
	acknowledged    pglogrepl.LSN
	changeFilter    ChangeFilter
	replicationSlot string
	standbyInterval time.Duration
}

func NewConnection(ctx context.Context, db *sqlx.DB, config *Config, typeConverter TypeConverter) (*Socket, error) {
	connURL := config.Connection
	q := connURL.Query()
	q.Set("replication", "database")
	connURL.RawQuery = q.Encode()

	cfg, err := pgconn.ParseConfig(connURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection url: %s", err)
	}
	if config.TLSConfig != nil {
		cfg.TLSConfig = config.TLSConfig
	}

	pgConn, err := pgconn.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres connection: %s", err)
	}

	sysident, err := pglogrepl.IdentifySystem(ctx, pgConn)
	if err != nil {
		_ = pgConn.Close(ctx)
		return nil, fmt.Errorf("failed to indentify system: %s", err)
	}
	logger.Infof("SystemID:%s Timeline:%d XLogPos:%s Database:%s",
		sysident.SystemID, sysident.Timeline, sysident.XLogPos, sysident.DBName)

	var slot ReplicationSlot
	if err := db.GetContext(ctx, &slot, fmt.Sprintf(ReplicationSlotTempl, config.ReplicationSlotName)); err != nil {
		_ = pgConn.Close(ctx)
		return nil, fmt.Errorf("failed to get replication slot: %s", err)
	}

	standbyInterval := config.StandbyInterval
	if standbyInterval <= 0 {
		standbyInterval = DefaultStandbyInterval
	}

	return &Socket{
		pgConn:            pgConn,
		changeFilter:      NewChangeFilter(typeConverter),
		ConfirmedFlushLSN: slot.LSN,
		ClientXLogPos:     slot.LSN,
		acknowledged:      slot.LSN,
		replicationSlot:   config.ReplicationSlotName,
		standbyInterval:   standbyInterval,
	}, nil
}

// AcknowledgeLSN reports lsn as flushed so the server may recycle older WAL
func (s *Socket) AcknowledgeLSN(ctx context.Context, lsn pglogrepl.LSN) error {
	err := pglogrepl.SendStandbyStatusUpdate(ctx, s.pgConn, pglogrepl.StandbyStatusUpdate{
		WALWritePosition: lsn,
		WALFlushPosition: lsn,
	})
	if err != nil {
		return fmt.Errorf("failed to send standby status message: %s", err)
	}

	s.acknowledged = lsn
	logger.Debugf("sent standby status message at LSN#%s", lsn)
	return nil
}

// StreamMessages replicates from start until ctx is done. Keepalives are
// delivered as heartbeats positioned at the server's WAL end.
func (s *Socket) StreamMessages(ctx context.Context, start pglogrepl.LSN, callback OnMessage) error {
	if err := pglogrepl.StartReplication(
		ctx,
		s.pgConn,
		s.replicationSlot,
		start,
		pglogrepl.StartReplicationOptions{PluginArgs: pluginArguments},
	); err != nil {
		return fmt.Errorf("starting replication slot failed: %s", err)
	}
	logger.Infof("Started logical replication on slot[%s] from LSN#%s", s.replicationSlot, start)
	if start > s.ClientXLogPos {
		s.ClientXLogPos = start
	}
	// start is a committed offset; WAL before it is no longer needed
	if err := s.AcknowledgeLSN(ctx, start); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		recvCtx, cancel := context.WithTimeout(ctx, s.standbyInterval)
		msg, err := s.pgConn.ReceiveMessage(recvCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if pgconn.Timeout(err) {
				if err := s.AcknowledgeLSN(ctx, s.acknowledged); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("failed to receive message from wal: %s", err)
		}

		if errMsg, ok := msg.(*pgproto3.ErrorResponse); ok {
			return fmt.Errorf("received error from wal: %s (%s)", errMsg.Message, errMsg.Code)
		}

		copyData, ok := msg.(*pgproto3.CopyData)
		if !ok {
			return fmt.Errorf("unexpected message type: %T", msg)
		}
		// the message buffer is reused by the next receive
		data := append([]byte(nil), copyData.Data...)

		switch data[0] {
		case pglogrepl.PrimaryKeepaliveMessageByteID:
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(data[1:])
			if err != nil {
				return fmt.Errorf("failed to parse primary keepalive message: %s", err)
			}
			if pkm.ServerWALEnd > s.ClientXLogPos {
				s.ClientXLogPos = pkm.ServerWALEnd
			}
			if pkm.ReplyRequested {
				if err := s.AcknowledgeLSN(ctx, s.acknowledged); err != nil {
					return err
				}
			}
			if err := callback(cdc.NewHeartbeat(LSN(s.ClientXLogPos), data)); err != nil {
				return err
			}

		case pglogrepl.XLogDataByteID:
			xld, err := pglogrepl.ParseXLogData(data[1:])
			if err != nil {
				return fmt.Errorf("failed to parse XLogData: %s", err)
			}
			newLSN, err := s.changeFilter.FilterChange(LSN(xld.WALStart), xld.WALData, callback)
			if err != nil {
				return fmt.Errorf("failed to filter change: %s", err)
			}
			if pglogrepl.LSN(newLSN) > s.ClientXLogPos {
				s.ClientXLogPos = pglogrepl.LSN(newLSN)
			}

		default:
			logger.Debugf("received unhandled message type: %v", data[0])
		}
	}
}

func (s *Socket) Cleanup(ctx context.Context) {
	_ = s.pgConn.Close(ctx)
}
