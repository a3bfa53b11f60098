// Package mongodb provides the document store connector. It runs aggregation
// pipelines against the sensor log collections and backs the transcript and
// user stores.
package mongodb

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultSocketTimeout   = 60 * time.Second
	defaultServerSelection = 30 * time.Second
	defaultMaxPoolSize     = 50
)

// Config holds the connector settings.
type Config struct {
	URI         string
	Database    string
	MaxPoolSize uint64
}

// Connector wraps a mongo client and its default database. The client
// maintains its own pool and is safe for concurrent use.
type Connector struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and verifies the connection with a ping.
func New(ctx context.Context, cfg Config) (*Connector, error) {
	maxPool := cfg.MaxPoolSize
	if maxPool == 0 {
		maxPool = defaultMaxPoolSize
	}
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(defaultConnectTimeout).
		SetSocketTimeout(defaultSocketTimeout).
		SetServerSelectionTimeout(defaultServerSelection).
		SetMaxPoolSize(maxPool).
		SetRetryWrites(true).
		SetRetryReads(true)

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mongodb")
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to ping mongodb")
	}

	slog.Info("connected to mongodb", "database", cfg.Database, "max_pool", maxPool)
	return &Connector{client: client, db: client.Database(cfg.Database)}, nil
}

// Close disconnects the client.
func (c *Connector) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Database exposes the default database for the store layer.
func (c *Connector) Database() *mongo.Database {
	return c.db
}

// Aggregate runs a pipeline and returns all result documents. The pipeline
// may be any value the driver can marshal to a stage array, including the
// []map[string]any produced by decoding generated JSON.
func (c *Connector) Aggregate(ctx context.Context, collection string, pipeline any) ([]map[string]any, error) {
	cursor, err := c.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []map[string]any
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertOne inserts a single document.
func (c *Connector) InsertOne(ctx context.Context, collection string, document any) error {
	_, err := c.db.Collection(collection).InsertOne(ctx, document)
	return errors.Wrapf(err, "failed to insert into %s", collection)
}

// NormalizeRows converts BSON-specific values into display strings so rows
// can be serialized to JSON and consumed as chart data. Object IDs become hex
// strings and timestamps become formatted date strings. Applying it twice is
// a no-op.
func NormalizeRows(rows []map[string]any) []map[string]any {
	for _, row := range rows {
		for key, value := range row {
			row[key] = normalizeValue(value)
		}
	}
	return rows
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC().Format("2006-01-02 15:04:05")
	case time.Time:
		return val.UTC().Format("2006-01-02 15:04:05")
	case primitive.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeValue(item)
		}
		return val
	case primitive.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
