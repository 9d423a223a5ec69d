package typeutils

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

type NormalizerOption func(n *Normalizer)

// WithNullColumns keeps columns whose value is nil
func WithNullColumns() NormalizerOption {
	return func(n *Normalizer) {
		n.keepNulls = true
	}
}

// Normalizer rewrites change data into flat, column-safe records. Nested
// documents and arrays are stored as JSON strings.
type Normalizer struct {
	keepNulls bool
}

func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Normalize fails when two source keys map onto the same column name
func (n *Normalizer) Normalize(data map[string]any) (map[string]any, error) {
	normalized := make(map[string]any, len(data))
	sources := make(map[string]string, len(data))

	for key, value := range data {
		column := ColumnName(key)
		if previous, taken := sources[column]; taken {
			return nil, fmt.Errorf("keys[%s] and [%s] both normalize to column[%s]", previous, key, column)
		}
		sources[column] = key

		converted, keep, err := n.columnValue(value)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize column[%s]: %s", column, err)
		}
		if keep {
			normalized[column] = converted
		}
	}

	return normalized, nil
}

func (n *Normalizer) columnValue(value any) (any, bool, error) {
	if value == nil {
		return nil, n.keepNulls, nil
	}

	switch v := value.(type) {
	case time.Time:
		return v, true, nil
	case []byte:
		return string(v), true, nil
	}

	switch reflect.ValueOf(value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, false, err
		}
		return string(encoded), true, nil
	case reflect.Pointer:
		if reflect.ValueOf(value).IsNil() {
			return nil, n.keepNulls, nil
		}
		return n.columnValue(reflect.ValueOf(value).Elem().Interface())
	default:
		return value, true, nil
	}
}

// ColumnName lower-cases key and replaces everything but ASCII letters and
// digits with '_'
func ColumnName(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case 'a' <= r && r <= 'z', '0' <= r && r <= '9':
			return r
		case 'A' <= r && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, key)
}
