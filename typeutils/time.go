package typeutils

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Time decodes JSON timestamps written in any of DateTimeFormats; null stays zero
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}

	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %s", err)
	}
	parsed, err := parseStringTimestamp(raw)
	if err != nil {
		return err
	}

	t.Time = parsed
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}

	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
