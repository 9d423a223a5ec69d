package binlog

import (
	"testing"

	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionCompare(t *testing.T) {
	tests := []struct {
		name  string
		left  Position
		right cdc.Position
		want  int
	}{
		{name: "same file earlier offset", left: Position{Name: "mysql-bin.000003", Pos: 120}, right: Position{Name: "mysql-bin.000003", Pos: 4000}, want: -1},
		{name: "equal", left: Position{Name: "mysql-bin.000003", Pos: 120}, right: Position{Name: "mysql-bin.000003", Pos: 120}, want: 0},
		{name: "later file wins over offset", left: Position{Name: "mysql-bin.000004", Pos: 4}, right: Position{Name: "mysql-bin.000003", Pos: 4000}, want: 1},
		{name: "foreign position", left: Position{Name: "mysql-bin.000004", Pos: 4}, right: cdc.Position(nil), want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.left.Compare(tt.right))
		})
	}
}

func TestParseState(t *testing.T) {
	state, err := ParseState(nil)
	require.NoError(t, err)
	assert.True(t, state.IsEmpty())

	state, err = ParseState(types.OpaqueStateValue(`{"server_id":1234,"position":{"Name":"mysql-bin.000003","Pos":120}}`))
	require.NoError(t, err)
	assert.Equal(t, Binlog{ServerID: 1234, Position: mysql.Position{Name: "mysql-bin.000003", Pos: 120}}, state)

	_, err = ParseState(types.OpaqueStateValue(`{"position":`))
	assert.Error(t, err)
}

func TestEngineKeepsServerID(t *testing.T) {
	engine, err := NewEngine(Config{}, nil, cdc.EngineConfig{State: types.OpaqueStateValue(`{"server_id":1234,"position":{"Name":"mysql-bin.000003","Pos":120}}`)})
	require.NoError(t, err)
	assert.Equal(t, uint32(1234), engine.config.ServerID)

	require.NoError(t, engine.commit(Position{Name: "mysql-bin.000003", Pos: 512}))
	offset, err := engine.Offset()
	require.NoError(t, err)

	resumed, err := ParseState(offset)
	require.NoError(t, err)
	assert.Equal(t, Binlog{ServerID: 1234, Position: mysql.Position{Name: "mysql-bin.000003", Pos: 512}}, resumed)
}

func TestFilterRowsEvent(t *testing.T) {
	table := &replication.TableMapEvent{
		Schema:     []byte("shop"),
		Table:      []byte("orders"),
		ColumnName: [][]byte{[]byte("id"), []byte("note")},
		PrimaryKey: []uint64{0},
	}

	tests := []struct {
		name      string
		eventType replication.EventType
		rows      [][]interface{}
		wantKind  cdc.EventKind
		wantData  []map[string]any
	}{
		{
			name:      "insert",
			eventType: replication.WRITE_ROWS_EVENTv2,
			rows:      [][]interface{}{{int32(1), []byte("first")}, {int32(2), "second"}},
			wantKind:  cdc.Insert,
			wantData:  []map[string]any{{"id": int32(1), "note": "first"}, {"id": int32(2), "note": "second"}},
		},
		{
			name:      "update emits after images",
			eventType: replication.UPDATE_ROWS_EVENTv2,
			rows:      [][]interface{}{{int32(1), "before"}, {int32(1), "after"}},
			wantKind:  cdc.Update,
			wantData:  []map[string]any{{"id": int32(1), "note": "after"}},
		},
		{
			name:      "delete",
			eventType: replication.DELETE_ROWS_EVENTv1,
			rows:      [][]interface{}{{int32(3), nil}},
			wantKind:  cdc.Delete,
			wantData:  []map[string]any{{"id": int32(3), "note": nil}},
		},
		{
			name:      "other event types are skipped",
			eventType: replication.QUERY_EVENT,
			rows:      [][]interface{}{{int32(3), nil}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			position := Position{Name: "mysql-bin.000001", Pos: 900}
			ev := &replication.BinlogEvent{
				RawData: []byte{0x01},
				Header:  &replication.EventHeader{EventType: tt.eventType, Timestamp: 1700000000, LogPos: 900},
			}
			rows := &replication.RowsEvent{Table: table, Rows: tt.rows}

			var events []cdc.ChangeEvent
			err := NewChangeFilter().FilterRowsEvent(rows, ev, position, func(event cdc.ChangeEvent) error {
				events = append(events, event)
				return nil
			})
			require.NoError(t, err)
			require.Len(t, events, len(tt.wantData))
			for i, event := range events {
				assert.Equal(t, types.NewStreamDescriptor("shop", "orders"), event.Stream)
				assert.Equal(t, tt.wantKind, event.Kind)
				assert.Equal(t, tt.wantData[i], event.Data)
				assert.Equal(t, []string{"id"}, event.PrimaryKeys)
				assert.Equal(t, position, event.Position)
				assert.Equal(t, int64(1700000000), event.Timestamp.Unix())
			}
		})
	}
}
