package database

import (
	"context"
	"fmt"
	"time"

	"docdb-binder/internal/shared/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig holds the connection settings for the MongoDB backend.
type MongoConfig struct {
	URI            string        `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	ConnectTimeout time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize    uint64        `env:"MONGODB_MAX_POOL_SIZE" envDefault:"100"`
	MinPoolSize    uint64        `env:"MONGODB_MIN_POOL_SIZE" envDefault:"2"`
	AppName        string        `env:"MONGODB_APP_NAME" envDefault:"docdb-binder"`
}

// ConnectMongo opens a connection and verifies it with a ping against the primary.
// The caller owns the client and must Disconnect it.
func ConnectMongo(ctx context.Context, cfg MongoConfig, log logger.Logger) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo connect: empty URI")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(cfg.AppName).
		SetConnectTimeout(timeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if cfg.MinPoolSize > 0 {
		opts.SetMinPoolSize(cfg.MinPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	if log != nil {
		log.WithFields(map[string]interface{}{
			"app_name":      cfg.AppName,
			"max_pool_size": cfg.MaxPoolSize,
		}).Info("MongoDB connection established")
	}
	return client, nil
}
