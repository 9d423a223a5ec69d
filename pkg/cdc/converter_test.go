package cdc

import (
	"testing"
	"time"

	"github.com/datazip-inc/olake-cdc/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordConverter(t *testing.T) {
	timestamp := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	event := ChangeEvent{
		Stream:      testStream,
		Kind:        Update,
		Timestamp:   timestamp,
		PrimaryKeys: []string{"id"},
		Data: map[string]any{
			"id":         7,
			"Profile":    map[string]any{"age": 30},
			"Deleted-At": nil,
		},
		Payload: []byte("x"),
	}

	testCases := []struct {
		name      string
		normalize bool
		expected  map[string]any
	}{
		{
			name:      "raw",
			normalize: false,
			expected:  event.Data,
		},
		{
			name:      "normalized",
			normalize: true,
			expected: map[string]any{
				"id":      7,
				"profile": `{"age":30}`,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			record, err := NewRecordConverter(tc.normalize)(event)
			require.NoError(t, err)
			assert.Equal(t, "u", record.OperationType)
			assert.Equal(t, timestamp, record.CdcTimestamp)
			assert.Equal(t, utils.GetKeysHash(event.Data, "id"), record.OlakeID)
			assert.EqualValues(t, tc.expected, record.Data)
		})
	}
}

func TestRecordConverterNormalizationConflict(t *testing.T) {
	event := ChangeEvent{
		Stream:  testStream,
		Kind:    Insert,
		Data:    map[string]any{"Total": 1, "total": 2},
		Payload: []byte("x"),
	}

	_, err := NewRecordConverter(false)(event)
	require.NoError(t, err)

	_, err = NewRecordConverter(true)(event)
	assert.ErrorContains(t, err, "failed to normalize record")
}

func TestRecordConverterRejectsHeartbeat(t *testing.T) {
	_, err := NewRecordConverter(false)(heartbeat(1))
	assert.Error(t, err)
}
