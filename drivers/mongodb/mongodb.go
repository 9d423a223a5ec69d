package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/datazip-inc/olake-cdc/protocol"
	"github.com/datazip-inc/olake-cdc/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = time.Minute

// Mongo captures changes of a database through a change stream
type Mongo struct {
	config *Config
	client *mongo.Client
}

func init() {
	protocol.RegisteredSources[types.MongoDB] = func() protocol.Source {
		return &Mongo{}
	}
}

// config reference; must be pointer
func (m *Mongo) GetConfigRef() protocol.Config {
	m.config = &Config{}
	return m.config
}

func (m *Mongo) Type() string {
	return "Mongo"
}

func (m *Mongo) Setup(ctx context.Context) error {
	opts := options.Client()
	opts.ApplyURI(m.config.URI())
	opts.SetCompressors([]string{"snappy"})

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return err
	}

	m.client = conn
	return nil
}

// Check pings the deployment; change streams need a replica set or sharded cluster
func (m *Mongo) Check(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := m.client.Ping(pingCtx, nil); err != nil {
		return err
	}
	if _, err := m.operationTime(pingCtx); err != nil {
		return fmt.Errorf("change streams are not supported by the deployment: %s", err)
	}

	return nil
}

// CurrentPosition returns the cluster's latest operation time
func (m *Mongo) CurrentPosition(ctx context.Context) (cdc.Position, error) {
	ts, err := m.operationTime(ctx)
	if err != nil {
		return nil, err
	}

	return Timestamp(ts), nil
}

func (m *Mongo) operationTime(ctx context.Context) (primitive.Timestamp, error) {
	var reply struct {
		OperationTime *primitive.Timestamp `bson:"operationTime"`
	}
	err := m.client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&reply)
	if err != nil {
		return primitive.Timestamp{}, fmt.Errorf("failed to run hello: %s", err)
	}
	if reply.OperationTime == nil {
		return primitive.Timestamp{}, fmt.Errorf("hello reply carries no operationTime")
	}

	return *reply.OperationTime, nil
}

func (m *Mongo) NewEngine(config cdc.EngineConfig) (cdc.Engine, error) {
	return NewEngine(m.client.Database(m.config.Database), time.Duration(m.config.MaxAwaitTime)*time.Second, config)
}

func (m *Mongo) Close() error {
	if m.client == nil {
		return nil
	}
	if err := m.client.Disconnect(context.Background()); err != nil {
		logger.Errorf("failed to disconnect mongo client: %s", err)
		return err
	}
	return nil
}
