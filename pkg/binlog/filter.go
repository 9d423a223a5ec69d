package binlog

import (
	"fmt"
	"time"

	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/datazip-inc/olake-cdc/typeutils"
	"github.com/go-mysql-org/go-mysql/replication"
)

// ChangeFilter turns row events into change events
type ChangeFilter struct{}

func NewChangeFilter() ChangeFilter {
	return ChangeFilter{}
}

// FilterRowsEvent calls the callback once per changed row
func (f ChangeFilter) FilterRowsEvent(e *replication.RowsEvent, ev *replication.BinlogEvent, position Position, callback OnChange) error {
	var kind cdc.EventKind
	switch ev.Header.EventType {
	case replication.WRITE_ROWS_EVENTv1, replication.WRITE_ROWS_EVENTv2:
		kind = cdc.Insert
	case replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
		kind = cdc.Update
	case replication.DELETE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv2:
		kind = cdc.Delete
	default:
		return nil
	}

	var rowsToProcess [][]interface{}
	if kind == cdc.Update {
		// rows are (before, after) pairs; only after images are emitted
		for i := 1; i < len(e.Rows); i += 2 {
			rowsToProcess = append(rowsToProcess, e.Rows[i])
		}
	} else {
		rowsToProcess = e.Rows
	}

	columns := e.Table.ColumnNameString()
	stream := types.NewStreamDescriptor(string(e.Table.Schema), string(e.Table.Table))
	primaryKeys := primaryKeyNames(e.Table, columns)
	for _, row := range rowsToProcess {
		record, err := convertRowToMap(row, columns)
		if err != nil {
			return fmt.Errorf("failed to convert row of stream[%s]: %s", stream, err)
		}

		if err := callback(cdc.ChangeEvent{
			Stream:      stream,
			Kind:        kind,
			Position:    position,
			Timestamp:   time.Unix(int64(ev.Header.Timestamp), 0).UTC(),
			PrimaryKeys: primaryKeys,
			Data:        record,
			Payload:     ev.RawData,
		}); err != nil {
			return err
		}
	}
	return nil
}

func primaryKeyNames(table *replication.TableMapEvent, columns []string) []string {
	names := make([]string, 0, len(table.PrimaryKey))
	for _, index := range table.PrimaryKey {
		if int(index) < len(columns) {
			names = append(names, columns[index])
		}
	}

	return names
}

// convertRowToMap converts a binlog row to a map.
func convertRowToMap(row []interface{}, columns []string) (map[string]interface{}, error) {
	if len(columns) != len(row) {
		return nil, fmt.Errorf("column count mismatch: expected %d, got %d", len(columns), len(row))
	}
	record := make(map[string]interface{})
	for i, val := range row {
		record[columns[i]] = val
	}
	return typeutils.ReformatByteArraysToString(record), nil
}
