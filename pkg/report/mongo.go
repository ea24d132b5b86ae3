package report

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/gemmirror/pkg/mirror"
)

const (
	// DefaultMongoDatabase is used when no database is configured.
	DefaultMongoDatabase = "gemmirror"

	// MongoCollection holds one document per cycle.
	MongoCollection = "cycles"
)

// Mongo appends reports to a MongoDB collection.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongo connects to uri and verifies the connection.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if database == "" {
		database = DefaultMongoDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &Mongo{client: client, collection: client.Database(database).Collection(MongoCollection)}, nil
}

// Write implements [Sink].
func (s *Mongo) Write(ctx context.Context, rep *mirror.Report) error {
	if _, err := s.collection.InsertOne(ctx, ToStored(rep)); err != nil {
		return fmt.Errorf("insert report %s: %w", rep.ID, err)
	}
	return nil
}

// Recent returns the latest n reports, newest first. It backs the history
// section of the server's /status endpoint.
func (s *Mongo) Recent(ctx context.Context, n int64) ([]Stored, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}).SetLimit(n)
	cur, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	var out []Stored
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	return out, nil
}

// Close disconnects the client.
func (s *Mongo) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
