package protocol

import (
	"testing"

	"github.com/datazip-inc/olake-cdc/types"
	"github.com/stretchr/testify/assert"
)

func TestStateSummary(t *testing.T) {
	tests := []struct {
		name   string
		global types.OpaqueStateValue
		want   string
	}{
		{
			name: "empty state",
			want: "null",
		},
		{
			name:   "committed offset",
			global: types.OpaqueStateValue(`{"lsn":"0/16B3748"}`),
			want:   `{"type":"GLOBAL","global":{"lsn":"0/16B3748"}}`,
		},
		{
			name:   "corrupt offset",
			global: types.OpaqueStateValue(`{"lsn":`),
			want:   "<unencodable>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := types.NewState()
			state.Global = tt.global

			got := stateSummary(state)
			if tt.want == "<unencodable>" || tt.want == "null" {
				assert.Equal(t, tt.want, got)
				return
			}
			assert.JSONEq(t, tt.want, got)
		})
	}
}
