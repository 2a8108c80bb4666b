// Package storage provides client-local durable key/value storage for harness
// state such as the submission history and the selected theme.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/oicur0t/forwardog/internal/config"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when a key has never been written
var ErrNotFound = errors.New("storage: key not found")

// KV is a small durable key/value store
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

// Open creates the KV selected by cfg.Driver
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (KV, error) {
	switch cfg.Driver {
	case "", config.StorageDriverFile:
		return NewFileKV(cfg.Dir)

	case config.StorageDriverMongoDB:
		return NewMongoKV(ctx,
			cfg.MongoDB.URI,
			cfg.MongoDB.Database,
			cfg.MongoDB.Collection,
			cfg.MongoDB.CertificateKeyFile,
			cfg.MongoDB.MaxPoolSize,
			cfg.MongoDB.Timeout,
			logger,
		)

	case config.StorageDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr), zap.Int("db", cfg.Redis.DB))
		return NewRedisKV(client, cfg.Redis.KeyPrefix), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
