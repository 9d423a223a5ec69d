package cdc

import (
	"fmt"

	"github.com/datazip-inc/olake-cdc/types"
	"github.com/datazip-inc/olake-cdc/typeutils"
	"github.com/datazip-inc/olake-cdc/utils"
)

// Converter turns a data event into an output record
type Converter func(event ChangeEvent) (types.RawRecord, error)

// Sink accepts converted records
type Sink interface {
	Insert(stream types.StreamDescriptor, record types.RawRecord) error
}

// NewRecordConverter builds records keyed by the hash of the event's primary
// keys. With normalize set, keys become column-safe names and nested values
// are stored as JSON strings.
func NewRecordConverter(normalize bool) Converter {
	normalizer := typeutils.NewNormalizer()
	return func(event ChangeEvent) (types.RawRecord, error) {
		operation := event.Kind.OperationType()
		if operation == "" {
			return types.RawRecord{}, fmt.Errorf("cannot convert event of kind[%s] for stream[%s]", event.Kind, event.Stream)
		}

		data := event.Data
		if normalize {
			normalized, err := normalizer.Normalize(data)
			if err != nil {
				return types.RawRecord{}, fmt.Errorf("failed to normalize record of stream[%s]: %s", event.Stream, err)
			}
			data = normalized
		}

		olakeID := utils.GetKeysHash(event.Data, event.PrimaryKeys...)
		return types.CreateRawRecord(olakeID, data, operation, event.Timestamp), nil
	}
}
