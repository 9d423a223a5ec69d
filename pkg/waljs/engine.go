package waljs

import (
	"context"
	"fmt"

	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/goccy/go-json"
	"github.com/jackc/pglogrepl"
	"github.com/jmoiron/sqlx"
)

// Engine streams wal2json changes of a replication slot
type Engine struct {
	*cdc.Runtime
	db        *sqlx.DB
	config    *Config
	converter TypeConverter
	state     WALState
}

func NewEngine(db *sqlx.DB, config *Config, converter TypeConverter, engineConfig cdc.EngineConfig) (*Engine, error) {
	state, err := ParseState(engineConfig.State)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Runtime:   cdc.NewRuntime(engineConfig),
		db:        db,
		config:    config,
		converter: converter,
		state:     state,
	}, nil
}

// ParseState reads a persisted offset; an empty offset gives an empty state
func ParseState(offset types.OpaqueStateValue) (WALState, error) {
	state := WALState{}
	if len(offset) == 0 || string(offset) == "null" {
		return state, nil
	}
	if err := json.Unmarshal(offset, &state); err != nil {
		return state, fmt.Errorf("failed to unmarshal wal state: %s", err)
	}
	if !state.IsEmpty() {
		if _, err := pglogrepl.ParseLSN(state.LSN); err != nil {
			return state, fmt.Errorf("failed to parse stored lsn[%s]: %s", state.LSN, err)
		}
	}

	return state, nil
}

func (e *Engine) Run(ctx context.Context, handler cdc.Handler) cdc.Completion {
	ctx, err := e.Start(ctx)
	if err != nil {
		return cdc.Failed(err)
	}
	defer e.Finish()

	socket, err := NewConnection(ctx, e.db, e.config, e.converter)
	if err != nil {
		return e.Completion(ctx, fmt.Errorf("failed to create wal connection: %s", err))
	}
	defer socket.Cleanup(context.WithoutCancel(ctx))

	start := socket.ConfirmedFlushLSN
	if !e.state.IsEmpty() {
		// validated by ParseState
		stored, _ := pglogrepl.ParseLSN(e.state.LSN)
		if stored < socket.ConfirmedFlushLSN {
			logger.Warnf("stored lsn[%s] is behind the slot's confirmed lsn[%s]", stored, socket.ConfirmedFlushLSN)
		} else {
			start = stored
		}
	}

	handler.ConnectorStarted()
	defer handler.ConnectorStopped()
	handler.TaskStarted()
	defer handler.TaskStopped()

	err = socket.StreamMessages(ctx, start, func(event cdc.ChangeEvent) error {
		if err := handler.HandleEvent(event); err != nil {
			return err
		}
		return e.commit(event.Position)
	})
	return e.Completion(ctx, err)
}

func (e *Engine) commit(position cdc.Position) error {
	offset, err := json.Marshal(WALState{LSN: position.String()})
	if err != nil {
		return fmt.Errorf("failed to marshal wal state: %s", err)
	}

	e.Commit(offset)
	return nil
}
