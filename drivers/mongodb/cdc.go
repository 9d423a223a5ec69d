package mongodb

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/datazip-inc/olake-cdc/constants"
	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/datazip-inc/olake-cdc/typeutils"
	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	cdcCursorField = "_data"
	// resume tokens of change events start with the cluster time in KeyString form
	resumeTokenTimestampPrefix = "82"
)

var changeKinds = map[string]cdc.EventKind{
	"insert":  cdc.Insert,
	"update":  cdc.Update,
	"replace": cdc.Update,
	"delete":  cdc.Delete,
}

// MongoState is the resume offset persisted for mongodb
type MongoState struct {
	ResumeToken string `json:"resume_token"`
}

type CDCDocument struct {
	OperationType string              `bson:"operationType"`
	FullDocument  bson.M              `bson:"fullDocument"`
	ClusterTime   primitive.Timestamp `bson:"clusterTime"`
	WallTime      primitive.DateTime  `bson:"wallTime"`
	DocumentKey   bson.M              `bson:"documentKey"`
	Namespace     struct {
		Database   string `bson:"db"`
		Collection string `bson:"coll"`
	} `bson:"ns"`
}

// Timestamp is an oplog cluster time
type Timestamp primitive.Timestamp

func (t Timestamp) Compare(other cdc.Position) int {
	o, ok := other.(Timestamp)
	if !ok {
		return -1
	}

	return primitive.CompareTimestamp(primitive.Timestamp(t), primitive.Timestamp(o))
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%d", t.T, t.I)
}

// Engine watches every collection of a database
type Engine struct {
	*cdc.Runtime
	database     *mongo.Database
	maxAwaitTime time.Duration
	state        MongoState
}

func NewEngine(database *mongo.Database, maxAwaitTime time.Duration, engineConfig cdc.EngineConfig) (*Engine, error) {
	state, err := ParseState(engineConfig.State)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Runtime:      cdc.NewRuntime(engineConfig),
		database:     database,
		maxAwaitTime: maxAwaitTime,
		state:        state,
	}, nil
}

func ParseState(offset types.OpaqueStateValue) (MongoState, error) {
	state := MongoState{}
	if len(offset) == 0 || string(offset) == "null" {
		return state, nil
	}
	if err := json.Unmarshal(offset, &state); err != nil {
		return state, fmt.Errorf("failed to unmarshal mongo state: %s", err)
	}

	return state, nil
}

func (e *Engine) Run(ctx context.Context, handler cdc.Handler) cdc.Completion {
	ctx, err := e.Start(ctx)
	if err != nil {
		return cdc.Failed(err)
	}
	defer e.Finish()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace", "delete"}}}},
		}}},
	}
	changeStreamOpts := options.ChangeStream().SetFullDocument(options.UpdateLookup).SetMaxAwaitTime(e.maxAwaitTime)
	if e.state.ResumeToken != "" {
		changeStreamOpts.SetResumeAfter(bson.M{cdcCursorField: e.state.ResumeToken})
	}

	cursor, err := e.database.Watch(ctx, pipeline, changeStreamOpts)
	if err != nil {
		return e.Completion(ctx, fmt.Errorf("failed to open change stream: %s", err))
	}
	defer cursor.Close(context.WithoutCancel(ctx))

	handler.ConnectorStarted()
	defer handler.ConnectorStopped()
	handler.TaskStarted()
	defer handler.TaskStopped()

	return e.Completion(ctx, e.stream(ctx, cursor, handler))
}

// stream delivers change events; an empty batch becomes a heartbeat at the
// cluster time of the post batch resume token
func (e *Engine) stream(ctx context.Context, cursor *mongo.ChangeStream, handler cdc.Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if cursor.TryNext(ctx) {
			event, err := toChangeEvent(cursor.Current)
			if err != nil {
				return err
			}
			if err := handler.HandleEvent(event); err != nil {
				return err
			}
			if err := e.commit(cursor.ResumeToken()); err != nil {
				return err
			}
			continue
		}
		if err := cursor.Err(); err != nil {
			return fmt.Errorf("failed to iterate change streams cursor: %s", err)
		}

		token := cursor.ResumeToken()
		if token == nil {
			continue
		}
		ts, err := resumeTokenTimestamp(token)
		if err != nil {
			return err
		}
		if err := handler.HandleEvent(cdc.NewHeartbeat(Timestamp(ts), append([]byte(nil), token...))); err != nil {
			return err
		}
		if err := e.commit(token); err != nil {
			return err
		}
	}
}

func (e *Engine) commit(token bson.Raw) error {
	data, err := resumeTokenData(token)
	if err != nil {
		return err
	}

	offset, err := json.Marshal(MongoState{ResumeToken: data})
	if err != nil {
		return fmt.Errorf("failed to marshal mongo state: %s", err)
	}

	e.Commit(offset)
	return nil
}

func resumeTokenData(token bson.Raw) (string, error) {
	value, err := token.LookupErr(cdcCursorField)
	if err != nil {
		return "", fmt.Errorf("resume token has no %s field: %s", cdcCursorField, err)
	}
	data, ok := value.StringValueOK()
	if !ok {
		return "", fmt.Errorf("resume token field %s is not a string", cdcCursorField)
	}

	return data, nil
}

// resumeTokenTimestamp decodes the cluster time leading a resume token
func resumeTokenTimestamp(token bson.Raw) (primitive.Timestamp, error) {
	data, err := resumeTokenData(token)
	if err != nil {
		return primitive.Timestamp{}, err
	}
	if !strings.HasPrefix(data, resumeTokenTimestampPrefix) || len(data) < 18 {
		return primitive.Timestamp{}, fmt.Errorf("unsupported resume token format: %s", data)
	}

	raw, err := hex.DecodeString(data[2:18])
	if err != nil {
		return primitive.Timestamp{}, fmt.Errorf("failed to decode resume token: %s", err)
	}

	return primitive.Timestamp{
		T: binary.BigEndian.Uint32(raw[:4]),
		I: binary.BigEndian.Uint32(raw[4:]),
	}, nil
}

func toChangeEvent(raw bson.Raw) (cdc.ChangeEvent, error) {
	var record CDCDocument
	if err := bson.Unmarshal(raw, &record); err != nil {
		return cdc.ChangeEvent{}, fmt.Errorf("error while decoding: %s", err)
	}

	kind, known := changeKinds[record.OperationType]
	if !known {
		return cdc.ChangeEvent{}, fmt.Errorf("unsupported change stream operation[%s]", record.OperationType)
	}

	document := record.FullDocument
	if kind == cdc.Delete || document == nil {
		// deleted documents only carry their key
		document = record.DocumentKey
	}

	timestamp := time.Unix(int64(record.ClusterTime.T), 0).UTC()
	if record.WallTime != 0 {
		timestamp = record.WallTime.Time().UTC()
	}

	return cdc.ChangeEvent{
		Stream:      types.NewStreamDescriptor(record.Namespace.Database, record.Namespace.Collection),
		Kind:        kind,
		Position:    Timestamp(record.ClusterTime),
		Timestamp:   timestamp,
		PrimaryKeys: []string{constants.MongoPrimaryID},
		Data:        normalizeDocument(document),
		Payload:     append([]byte(nil), raw...),
	}, nil
}

// normalizeDocument converts bson values into plain go values with reformatted keys
func normalizeDocument(doc bson.M) map[string]any {
	normalized := make(map[string]any, len(doc))
	for key, value := range doc {
		normalized[typeutils.ColumnName(key)] = normalizeValue(value)
	}

	return normalized
}

func normalizeValue(value any) any {
	switch value := value.(type) {
	case bson.M:
		return normalizeDocument(value)
	case bson.D:
		return normalizeDocument(value.Map())
	case bson.A:
		values := make([]any, len(value))
		for i, element := range value {
			values[i] = normalizeValue(element)
		}
		return values
	case primitive.Timestamp:
		return value.T
	case primitive.DateTime:
		return value.Time().UTC()
	case primitive.Null:
		return nil
	case primitive.Binary:
		return fmt.Sprintf("%x", value.Data)
	case primitive.Decimal128:
		return value.String()
	case primitive.ObjectID:
		return value.Hex()
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil
		}
		return value
	default:
		return value
	}
}
