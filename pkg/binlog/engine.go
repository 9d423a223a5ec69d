package binlog

import (
	"context"
	"fmt"
	"time"

	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/goccy/go-json"
)

// Engine streams row changes of the mysql binlog
type Engine struct {
	*cdc.Runtime
	config          Config
	state           Binlog
	currentPosition PositionFunc
}

// NewEngine resumes from engineConfig.State; without one the stream starts at
// the end of the binlog as reported by currentPosition
func NewEngine(config Config, currentPosition PositionFunc, engineConfig cdc.EngineConfig) (*Engine, error) {
	state, err := ParseState(engineConfig.State)
	if err != nil {
		return nil, err
	}
	if state.ServerID == 0 {
		state.ServerID = uint32(1000 + time.Now().UnixNano()%9000)
	}
	config.ServerID = state.ServerID

	return &Engine{
		Runtime:         cdc.NewRuntime(engineConfig),
		config:          config,
		state:           state,
		currentPosition: currentPosition,
	}, nil
}

func ParseState(offset types.OpaqueStateValue) (Binlog, error) {
	state := Binlog{}
	if len(offset) == 0 || string(offset) == "null" {
		return state, nil
	}
	if err := json.Unmarshal(offset, &state); err != nil {
		return state, fmt.Errorf("failed to unmarshal binlog state: %s", err)
	}

	return state, nil
}

func (e *Engine) Run(ctx context.Context, handler cdc.Handler) cdc.Completion {
	ctx, err := e.Start(ctx)
	if err != nil {
		return cdc.Failed(err)
	}
	defer e.Finish()

	start := e.state.Position
	if e.state.IsEmpty() {
		start, err = e.currentPosition(ctx)
		if err != nil {
			return e.Completion(ctx, fmt.Errorf("failed to get current binlog position: %s", err))
		}
	}

	conn, err := NewConnection(ctx, &e.config, start)
	if err != nil {
		return e.Completion(ctx, fmt.Errorf("failed to create binlog connection: %s", err))
	}
	defer conn.Close()

	handler.ConnectorStarted()
	defer handler.ConnectorStopped()
	handler.TaskStarted()
	defer handler.TaskStopped()

	logger.Infof("Starting MySQL CDC from binlog position %s:%d", start.Name, start.Pos)
	err = conn.StreamMessages(ctx, func(event cdc.ChangeEvent) error {
		if err := handler.HandleEvent(event); err != nil {
			return err
		}
		return e.commit(event.Position)
	})
	return e.Completion(ctx, err)
}

func (e *Engine) commit(position cdc.Position) error {
	pos, ok := position.(Position)
	if !ok {
		return fmt.Errorf("unexpected position type %T", position)
	}

	offset, err := json.Marshal(Binlog{ServerID: e.config.ServerID, Position: mysql.Position(pos)})
	if err != nil {
		return fmt.Errorf("failed to marshal binlog state: %s", err)
	}

	e.Commit(offset)
	return nil
}
