package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docdb-binder/internal/catalog"
	"docdb-binder/internal/collections"
	"docdb-binder/internal/collections/adapter/persistence/memory"
	"docdb-binder/internal/collections/adapter/persistence/mongodb"
	"docdb-binder/internal/collections/config"
	"docdb-binder/internal/collections/domain/client"
	"docdb-binder/internal/shared/database"
	"docdb-binder/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Container owns the process-wide connections and the collections module built on them.
type Container struct {
	mu sync.RWMutex

	Config *config.Config
	Logger logger.Logger

	MongoClient *mongo.Client
	RedisClient *redis.Client
	DBClient    client.DatabaseClient

	Catalog           *catalog.Catalog
	CollectionsModule *collections.CollectionsModule
}

// NewContainer creates an empty container. A nil logger gets the default logrus logger.
func NewContainer(cfg *config.Config, log logger.Logger) *Container {
	if log == nil {
		log = logger.NewLogger()
	}
	return &Container{Config: cfg, Logger: log}
}

// Initialize connects the configured backend, the optional Redis change feed and
// provisions the catalog. On error every connection opened so far is closed.
func (c *Container) Initialize(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.CollectionsModule != nil {
		return fmt.Errorf("container already initialized")
	}
	if c.Config == nil {
		if c.Config, err = config.LoadConfig(); err != nil {
			return err
		}
	}
	defer func() {
		if err != nil {
			c.closeConnections(context.Background())
		}
	}()

	if c.DBClient, err = c.connectBackend(ctx); err != nil {
		return err
	}

	if c.Config.Redis.ChangeFeedEnabled {
		c.RedisClient = config.NewRedisClient(&c.Config.Redis)
		if err := c.RedisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis at %s: %w", c.Config.Redis.GetAddr(), err)
		}
		c.Logger.WithFields(map[string]interface{}{"addr": c.Config.Redis.GetAddr()}).Info("Redis connection established")
	}

	c.Catalog = catalog.New()
	module, err := collections.NewCollectionsModule(ctx, c.Config, c.Logger, c.DBClient, c.RedisClient, c.Catalog.Schema())
	if err != nil {
		return fmt.Errorf("failed to create collections module: %w", err)
	}
	c.CollectionsModule = module
	return nil
}

func (c *Container) connectBackend(ctx context.Context) (client.DatabaseClient, error) {
	switch c.Config.Backend {
	case config.BackendMemory:
		c.Logger.Warn("Using the in-memory backend; data is lost on exit")
		return memory.NewClient(memory.WithLogger(c.Logger))
	default:
		mongoClient, err := database.ConnectMongo(ctx, c.Config.Mongo, c.Logger)
		if err != nil {
			return nil, err
		}
		c.MongoClient = mongoClient
		return mongodb.NewClient(mongoClient, c.Logger), nil
	}
}

// RegisterRoutes mounts the module and catalog routes.
func (c *Container) RegisterRoutes(router fiber.Router) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.CollectionsModule == nil {
		return fmt.Errorf("container is not initialized")
	}
	c.CollectionsModule.RegisterRoutes(router, c.Catalog.RegisterRoutes)
	return nil
}

// HealthCheck delegates to the collections module.
func (c *Container) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.CollectionsModule == nil {
		return fmt.Errorf("container is not initialized")
	}
	return c.CollectionsModule.HealthCheck(ctx)
}

// Close shuts the module down and then closes the connections, waiting at most 30s.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var firstErr error
	if c.CollectionsModule != nil {
		firstErr = c.CollectionsModule.Close()
		c.CollectionsModule = nil
	}
	if err := c.closeConnections(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (c *Container) closeConnections(ctx context.Context) error {
	var firstErr error
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close Redis: %w", err)
		}
		c.RedisClient = nil
	}
	if c.MongoClient != nil {
		if err := c.MongoClient.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to disconnect MongoDB: %w", err)
		}
		c.MongoClient = nil
	}
	return firstErr
}
