package typeutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnName(t *testing.T) {
	tests := map[string]string{
		"id":           "id",
		"CreatedAt":    "createdat",
		"order-total":  "order_total",
		"address.city": "address_city",
		"prix €":       "prix__",
		"_id":          "_id",
	}

	for key, want := range tests {
		t.Run(key, func(t *testing.T) {
			assert.Equal(t, want, ColumnName(key))
		})
	}
}

func TestNormalize(t *testing.T) {
	createdAt := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	total := 12.5

	tests := []struct {
		name  string
		opts  []NormalizerOption
		input map[string]any
		want  map[string]any
	}{
		{
			name:  "scalars pass through",
			input: map[string]any{"ID": int64(7), "Paid": true, "Total": 12.5, "Note": "gift"},
			want:  map[string]any{"id": int64(7), "paid": true, "total": 12.5, "note": "gift"},
		},
		{
			name:  "nested values become json",
			input: map[string]any{"address": map[string]any{"city": "Pune", "zip": "411001"}, "tags": []string{"a", "b"}},
			want:  map[string]any{"address": `{"city":"Pune","zip":"411001"}`, "tags": `["a","b"]`},
		},
		{
			name:  "times and bytes",
			input: map[string]any{"created_at": createdAt, "blob": []byte("raw")},
			want:  map[string]any{"created_at": createdAt, "blob": "raw"},
		},
		{
			name:  "pointers are dereferenced",
			input: map[string]any{"total": &total, "missing": (*float64)(nil)},
			want:  map[string]any{"total": 12.5},
		},
		{
			name:  "nil columns dropped",
			input: map[string]any{"id": 1, "deleted_at": nil},
			want:  map[string]any{"id": 1},
		},
		{
			name:  "nil columns kept",
			opts:  []NormalizerOption{WithNullColumns()},
			input: map[string]any{"id": 1, "deleted_at": nil},
			want:  map[string]any{"id": 1, "deleted_at": nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewNormalizer(tt.opts...).Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeColumnCollision(t *testing.T) {
	_, err := NewNormalizer().Normalize(map[string]any{"user-id": 1, "user_id": 2})
	assert.ErrorContains(t, err, "user_id")
}
