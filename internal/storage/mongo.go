package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoKV stores each key as one document of a collection
type MongoKV struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

type kvDocument struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoKV connects to MongoDB and verifies the connection
func NewMongoKV(ctx context.Context, uri, database, collection, certKeyFile string, maxPoolSize int, timeout time.Duration, logger *zap.Logger) (*MongoKV, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Build connection options
	clientOpts := options.Client().ApplyURI(uri)
	if maxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(uint64(maxPoolSize))
	}

	// X.509 authentication when a certificate key file is given
	if certKeyFile != "" {
		if strings.Contains(uri, "?") {
			uri = uri + "&tlsCertificateKeyFile=" + certKeyFile
		} else {
			uri = uri + "?tlsCertificateKeyFile=" + certKeyFile
		}
		clientOpts.SetAuth(options.Credential{
			AuthMechanism: "MONGODB-X509",
		})
		clientOpts.ApplyURI(uri)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB",
		zap.String("database", database),
		zap.String("collection", collection),
		zap.Int("max_pool_size", maxPoolSize))

	return newMongoKV(client.Database(database).Collection(collection), logger), nil
}

func newMongoKV(collection *mongo.Collection, logger *zap.Logger) *MongoKV {
	return &MongoKV{
		client:     collection.Database().Client(),
		collection: collection,
		logger:     logger,
	}
}

// Get reads the value stored under key
func (m *MongoKV) Get(ctx context.Context, key string) ([]byte, error) {
	var doc kvDocument
	err := m.collection.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find %s: %w", key, err)
	}
	return doc.Value, nil
}

// Set upserts the value under key
func (m *MongoKV) Set(ctx context.Context, key string, value []byte) error {
	doc := kvDocument{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := m.collection.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: key}},
		doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", key, err)
	}
	m.logger.Debug("Stored value", zap.String("key", key), zap.Int("bytes", len(value)))
	return nil
}

// Delete removes key
func (m *MongoKV) Delete(ctx context.Context, key string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: key}}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close closes the MongoDB connection
func (m *MongoKV) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
