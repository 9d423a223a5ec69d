package mongodb

import (
	"math"
	"testing"
	"time"

	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func mustRaw(t *testing.T, doc any) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	return raw
}

func TestResumeTokenTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		token   bson.M
		want    primitive.Timestamp
		wantErr bool
	}{
		{
			name:  "event token",
			token: bson.M{"_data": "8265E5B2B7000000012B022C0100296E5A1004"},
			want:  primitive.Timestamp{T: 0x65E5B2B7, I: 1},
		},
		{name: "missing data", token: bson.M{"other": "x"}, wantErr: true},
		{name: "non string data", token: bson.M{"_data": 12}, wantErr: true},
		{name: "unknown prefix", token: bson.M{"_data": "0165E5B2B700000001"}, wantErr: true},
		{name: "too short", token: bson.M{"_data": "8265E5"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resumeTokenTimestamp(mustRaw(t, tt.token))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToChangeEvent(t *testing.T) {
	objectID := primitive.NewObjectID()
	wallTime := time.Date(2024, 3, 4, 10, 11, 12, 0, time.UTC)

	tests := []struct {
		name     string
		document bson.M
		wantKind cdc.EventKind
		wantData map[string]any
	}{
		{
			name: "insert",
			document: bson.M{
				"operationType": "insert",
				"clusterTime":   primitive.Timestamp{T: 100, I: 2},
				"wallTime":      primitive.NewDateTimeFromTime(wallTime),
				"ns":            bson.M{"db": "shop", "coll": "orders"},
				"documentKey":   bson.M{"_id": objectID},
				"fullDocument":  bson.M{"_id": objectID, "Total-Amount": 12.5, "nested": bson.M{"At": primitive.Timestamp{T: 7}}},
			},
			wantKind: cdc.Insert,
			wantData: map[string]any{"_id": objectID.Hex(), "total_amount": 12.5, "nested": map[string]any{"at": uint32(7)}},
		},
		{
			name: "replace is an update",
			document: bson.M{
				"operationType": "replace",
				"clusterTime":   primitive.Timestamp{T: 100, I: 2},
				"wallTime":      primitive.NewDateTimeFromTime(wallTime),
				"ns":            bson.M{"db": "shop", "coll": "orders"},
				"documentKey":   bson.M{"_id": objectID},
				"fullDocument":  bson.M{"_id": objectID, "score": math.NaN()},
			},
			wantKind: cdc.Update,
			wantData: map[string]any{"_id": objectID.Hex(), "score": nil},
		},
		{
			name: "delete carries the document key",
			document: bson.M{
				"operationType": "delete",
				"clusterTime":   primitive.Timestamp{T: 100, I: 2},
				"wallTime":      primitive.NewDateTimeFromTime(wallTime),
				"ns":            bson.M{"db": "shop", "coll": "orders"},
				"documentKey":   bson.M{"_id": objectID},
			},
			wantKind: cdc.Delete,
			wantData: map[string]any{"_id": objectID.Hex()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := toChangeEvent(mustRaw(t, tt.document))
			require.NoError(t, err)

			assert.Equal(t, types.NewStreamDescriptor("shop", "orders"), event.Stream)
			assert.Equal(t, tt.wantKind, event.Kind)
			assert.Equal(t, tt.wantData, event.Data)
			assert.Equal(t, Timestamp{T: 100, I: 2}, event.Position)
			assert.True(t, wallTime.Equal(event.Timestamp))
			assert.Equal(t, []string{"_id"}, event.PrimaryKeys)
			assert.NotEmpty(t, event.Payload)
		})
	}
}

func TestToChangeEventUnknownOperation(t *testing.T) {
	_, err := toChangeEvent(mustRaw(t, bson.M{"operationType": "drop"}))
	assert.Error(t, err)
}

func TestTimestampCompare(t *testing.T) {
	assert.Equal(t, -1, Timestamp{T: 1, I: 5}.Compare(Timestamp{T: 2, I: 0}))
	assert.Equal(t, 1, Timestamp{T: 2, I: 1}.Compare(Timestamp{T: 2, I: 0}))
	assert.Equal(t, 0, Timestamp{T: 2, I: 1}.Compare(Timestamp{T: 2, I: 1}))
	assert.Equal(t, -1, Timestamp{T: 2, I: 1}.Compare(nil))
	assert.Equal(t, "2.1", Timestamp{T: 2, I: 1}.String())
}

func TestEngineCommitsResumeToken(t *testing.T) {
	engine, err := NewEngine(nil, time.Second, cdc.EngineConfig{State: types.OpaqueStateValue(`{"resume_token":"8200"}`)})
	require.NoError(t, err)
	assert.Equal(t, "8200", engine.state.ResumeToken)

	require.NoError(t, engine.commit(mustRaw(t, bson.M{"_data": "8265E5B2B700000001"})))
	offset, err := engine.Offset()
	require.NoError(t, err)
	assert.JSONEq(t, `{"resume_token":"8265E5B2B700000001"}`, string(offset))

	_, err = NewEngine(nil, time.Second, cdc.EngineConfig{State: types.OpaqueStateValue(`{"resume_token":`)})
	assert.Error(t, err)
}

func TestConfigURI(t *testing.T) {
	config := Config{Hosts: []string{"a:27017", "b:27017"}, Username: "olake", Password: "pw", ReplicaSet: "rs0", Database: "shop"}
	require.NoError(t, config.Validate())
	assert.Equal(t, "mongodb://olake:pw@a:27017,b:27017/?authSource=admin&replicaSet=rs0&readPreference=secondaryPreferred", config.URI())

	assert.Error(t, (&Config{Database: "shop"}).Validate())
}
