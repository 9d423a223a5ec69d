package waljs

import (
	"bytes"
	"fmt"

	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/datazip-inc/olake-cdc/typeutils"
	"github.com/goccy/go-json"
)

var walKinds = map[string]cdc.EventKind{
	"insert": cdc.Insert,
	"update": cdc.Update,
	"delete": cdc.Delete,
}

// ChangeFilter turns wal2json transactions into change events, skipping
// empty transactions and non row-level changes
type ChangeFilter struct {
	converter TypeConverter
}

func NewChangeFilter(typeConverter TypeConverter) ChangeFilter {
	return ChangeFilter{converter: typeConverter}
}

// FilterChange emits the row changes of one transaction. Events are positioned
// at the transaction's nextlsn, or at walStart when the message carries none.
// The returned LSN is the position of the transaction.
func (c ChangeFilter) FilterChange(walStart LSN, change []byte, onFiltered OnMessage) (LSN, error) {
	var changes WALMessage
	if err := json.NewDecoder(bytes.NewReader(change)).Decode(&changes); err != nil {
		return walStart, fmt.Errorf("failed to parse change received from wal logs: %s", err)
	}

	lsn := walStart
	if changes.NextLSN != "" {
		nextLSN, err := ParseLSN(changes.NextLSN)
		if err != nil {
			return walStart, fmt.Errorf("failed to parse nextlsn[%s]: %s", changes.NextLSN, err)
		}
		lsn = nextLSN
	}
	if len(changes.Change) == 0 {
		return lsn, nil
	}

	buildChangesMap := func(values []interface{}, columnTypes []string, names []string) (map[string]any, error) {
		if len(values) != len(names) || len(columnTypes) != len(names) {
			return nil, fmt.Errorf("mismatched column names[%d], types[%d] and values[%d]", len(names), len(columnTypes), len(values))
		}

		data := make(map[string]any)
		for i, val := range values {
			conv, err := c.converter(val, columnTypes[i])
			if err != nil && err != typeutils.ErrNullValue {
				return nil, err
			}
			data[names[i]] = conv
		}
		return data, nil
	}

	for _, ch := range changes.Change {
		kind, known := walKinds[ch.Kind]
		if !known {
			continue
		}

		var changesMap map[string]any
		var err error
		if kind == cdc.Delete {
			changesMap, err = buildChangesMap(ch.Oldkeys.Keyvalues, ch.Oldkeys.Keytypes, ch.Oldkeys.Keynames)
		} else {
			changesMap, err = buildChangesMap(ch.Columnvalues, ch.Columntypes, ch.Columnnames)
		}
		if err != nil {
			return lsn, fmt.Errorf("failed to convert change data of %s.%s: %s", ch.Schema, ch.Table, err)
		}

		primaryKeys := ch.PK.PKNames
		if len(primaryKeys) == 0 {
			primaryKeys = ch.Oldkeys.Keynames
		}

		if err := onFiltered(cdc.ChangeEvent{
			Stream:      types.NewStreamDescriptor(ch.Schema, ch.Table),
			Kind:        kind,
			Position:    lsn,
			Timestamp:   changes.Timestamp.Time,
			PrimaryKeys: primaryKeys,
			Data:        changesMap,
			Payload:     change,
		}); err != nil {
			return lsn, fmt.Errorf("failed to write filtered change: %s", err)
		}
	}
	return lsn, nil
}
