package types

import (
	"time"

	"github.com/goccy/go-json"
)

type Record map[string]any

type RawRecord struct {
	Data           map[string]any `parquet:"data,json"`
	OlakeID        string         `parquet:"_olake_id"`
	OlakeTimestamp time.Time      `parquet:"_olake_timestamp"`
	OperationType  string         `parquet:"_op_type"` // "c" for create, "u" for update, "d" for delete
	CdcTimestamp   time.Time      `parquet:"_cdc_timestamp"`
}

func CreateRawRecord(olakeID string, data map[string]any, operationType string, cdcTimestamp time.Time) RawRecord {
	return RawRecord{
		OlakeID:       olakeID,
		Data:          data,
		OperationType: operationType,
		CdcTimestamp:  cdcTimestamp,
	}
}

// fixed overhead of the metadata columns (id, op type, two timestamps)
const rawRecordOverhead = 32 + 1 + 2*24

// Size estimates the in-memory weight of the record in bytes; used to cut flush batches
func (r *RawRecord) Size() int64 {
	size := int64(rawRecordOverhead + len(r.OlakeID))
	if len(r.Data) == 0 {
		return size
	}

	encoded, err := json.Marshal(r.Data)
	if err != nil {
		return size
	}

	return size + int64(len(encoded))
}
