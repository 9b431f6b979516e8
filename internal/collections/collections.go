package collections

import (
	"context"
	stderrors "errors"
	"fmt"

	httpadapter "docdb-binder/internal/collections/adapter/http"
	"docdb-binder/internal/collections/adapter/observability"
	"docdb-binder/internal/collections/adapter/persistence"
	"docdb-binder/internal/collections/config"
	"docdb-binder/internal/collections/domain/client"
	"docdb-binder/internal/collections/usecase"
	"docdb-binder/internal/shared/eventbus"
	"docdb-binder/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// RouteRegistrar mounts typed slot routes, usually via httpadapter.RegisterSlot.
type RouteRegistrar func(router fiber.Router, h *httpadapter.Handler)

// CollectionsModule wires one schema to a database client and exposes it over HTTP.
type CollectionsModule struct {
	Config  *config.Config
	Logger  logger.Logger
	Client  client.DatabaseClient
	Manager *usecase.CollectionManager
	Handler *httpadapter.Handler

	EventBus    *eventbus.EventBus
	ChangeStore *persistence.RedisChangeStore
	RedisClient *redis.Client

	Registry   *prometheus.Registry
	httpMetric *httpadapter.PrometheusMiddleware

	// ProvisioningErr is set when some slots could not be bound; the others are usable.
	ProvisioningErr *usecase.ProvisioningError
}

// NewCollectionsModule provisions schema in cfg.DatabaseID. redisClient may be nil;
// the change feed is recorded only when it is set and CHANGE_FEED_ENABLED is true.
// A partial provisioning failure is logged and kept in ProvisioningErr; any other
// error aborts.
func NewCollectionsModule(
	ctx context.Context,
	cfg *config.Config,
	log logger.Logger,
	dbClient client.DatabaseClient,
	redisClient *redis.Client,
	schema *usecase.Schema,
) (*CollectionsModule, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.WithComponent("collections")
	log.Info("Initializing Collections Module...")

	module := &CollectionsModule{
		Config:      cfg,
		Logger:      log,
		RedisClient: redisClient,
		Registry:    prometheus.NewRegistry(),
	}

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		module.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		var err error
		if metrics, err = observability.NewMetrics(module.Registry); err != nil {
			return nil, fmt.Errorf("failed to register client metrics: %w", err)
		}
		if module.httpMetric, err = httpadapter.NewPrometheusMiddleware(module.Registry); err != nil {
			return nil, fmt.Errorf("failed to register http metrics: %w", err)
		}
	}
	module.Client = observability.Instrument(dbClient, metrics)

	module.EventBus = eventbus.NewEventBus(log)
	var changes httpadapter.ChangeFeed
	if redisClient != nil && cfg.Redis.ChangeFeedEnabled {
		module.ChangeStore = persistence.NewRedisChangeStore(redisClient, log, persistence.ChangeStoreConfig{
			StreamPrefix: cfg.Redis.StreamPrefix,
			MaxLen:       cfg.Redis.StreamMaxLength,
		})
		module.ChangeStore.Subscribe(module.EventBus)
		changes = module.ChangeStore
		log.Info("Redis change feed enabled")
	}

	manager, err := usecase.NewCollectionManager(ctx, module.Client, cfg.DatabaseID, schema,
		usecase.WithCreateIfMissing(cfg.AutoCreateDatabase),
		usecase.WithProvisioningConcurrency(cfg.ProvisioningConcurrency),
		usecase.WithLogger(log),
		usecase.WithEventBus(module.EventBus),
	)
	var perr *usecase.ProvisioningError
	switch {
	case err == nil:
	case manager != nil && stderrors.As(err, &perr):
		module.ProvisioningErr = perr
		log.WithFields(map[string]interface{}{
			"database_id":  cfg.DatabaseID,
			"failed_slots": perr.FailedSlots(),
		}).Warn("some collection slots could not be provisioned")
	default:
		return nil, err
	}
	module.Manager = manager

	module.Handler = httpadapter.NewHandler(manager, changes, module.HealthCheck, log)
	log.WithFields(map[string]interface{}{
		"database_id": cfg.DatabaseID,
		"bound":       manager.Bound(),
	}).Info("Collections Module initialized")
	return module, nil
}

// RegisterRoutes mounts the metrics middleware, the module endpoints and the typed
// slot routes.
func (m *CollectionsModule) RegisterRoutes(router fiber.Router, slots ...RouteRegistrar) {
	if m.httpMetric != nil {
		router.Use(m.httpMetric.Handler())
		httpadapter.RegisterMetrics(router, m.Registry)
	}
	m.Handler.RegisterRoutes(router)
	for _, register := range slots {
		register(router, m.Handler)
	}
}

// HealthCheck resolves the bound database and pings Redis when the change feed is on.
func (m *CollectionsModule) HealthCheck(ctx context.Context) error {
	db, err := m.Client.ResolveDatabase(ctx, m.Config.DatabaseID)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if db == nil {
		return fmt.Errorf("database %q no longer exists", m.Config.DatabaseID)
	}
	if m.ChangeStore != nil {
		if err := m.RedisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis health check failed: %w", err)
		}
	}
	return nil
}

// Close waits for pending change events and releases the manager. Clients passed
// in are owned by the caller.
func (m *CollectionsModule) Close() error {
	m.EventBus.Drain()
	return m.Manager.Close()
}
