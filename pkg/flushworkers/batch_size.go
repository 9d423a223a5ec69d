package flushworkers

import (
	"github.com/dustin/go-humanize"
)

// BatchSize is the number of bytes a flush worker holds. A worker that has
// started but not yet pulled its batch has an unknown size, which is distinct
// from a known zero-byte batch.
type BatchSize struct {
	bytes int64
	known bool
}

func UnknownBatchSize() BatchSize {
	return BatchSize{}
}

func KnownBatchSize(bytes int64) BatchSize {
	return BatchSize{bytes: bytes, known: true}
}

// Get returns the size and whether it is known
func (b BatchSize) Get() (int64, bool) {
	return b.bytes, b.known
}

func (b BatchSize) IsKnown() bool {
	return b.known
}

func (b BatchSize) String() string {
	if !b.known {
		return "unknown"
	}
	if b.bytes < 0 {
		return "0 B"
	}

	return humanize.Bytes(uint64(b.bytes))
}
