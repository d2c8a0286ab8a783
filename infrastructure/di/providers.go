package di

import (
	"context"
	"fmt"
	"time"

	"github.com/google/wire"
	"go.uber.org/zap"

	"flowstudio/application/commands/bus"
	cmdhandlers "flowstudio/application/commands/handlers"
	"flowstudio/application/ports"
	querybus "flowstudio/application/queries/bus"
	queryhandlers "flowstudio/application/queries/handlers"
	"flowstudio/application/services"
	domainconfig "flowstudio/domain/config"
	"flowstudio/domain/core/aggregates"
	"flowstudio/infrastructure/assets"
	"flowstudio/infrastructure/concurrency"
	"flowstudio/infrastructure/config"
	"flowstudio/infrastructure/generation"
	"flowstudio/infrastructure/messaging"
	"flowstudio/infrastructure/rendering"
	"flowstudio/pkg/observability"
)

const slowQueryThreshold = 250 * time.Millisecond

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *observability.Collector
	Watcher    *config.ConfigWatcher
	Pool       *concurrency.WorkerPool
	AssetStore *assets.SQLiteStore
	EventBus   *messaging.LocalEventBus
	Dispatcher *services.Dispatcher
	CommandBus *bus.CommandBus
	QueryBus   *querybus.QueryBus
}

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideConfigWatcher,
	ProvideDomainConfig,
	ProvideWorkerPool,
	ProvideRenderer,
	ProvideGenerationService,
	ProvideAssetStore,
	ProvideAssetService,
	ProvideEventBus,
	ProvideEventPublisher,
	ProvideGraph,
	ProvideDispatcher,
	ProvideCommandBus,
	ProvideQueryBus,
	wire.Struct(new(Container), "*"),
)

// ProvideLogger creates the process logger. Production logs JSON, every
// other environment the console encoder.
func ProvideLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		zapCfg.Level = level
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, err
	}
	logger = logger.With(zap.String("service", "flowstudio"), zap.String("environment", cfg.Environment))
	return logger, func() { _ = logger.Sync() }, nil
}

// ProvideMetrics creates the metrics collector
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector("flowstudio")
}

// ProvideConfigWatcher watches the configuration file for changes
func ProvideConfigWatcher(cfg *config.Config, logger *zap.Logger) (*config.ConfigWatcher, func(), error) {
	watcher, err := config.NewConfigWatcher(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return watcher, watcher.Stop, nil
}

// ProvideDomainConfig resolves the graph rules for the environment
func ProvideDomainConfig(cfg *config.Config) *domainconfig.DomainConfig {
	return cfg.DomainConfig()
}

// ProvideWorkerPool starts the pool that runs generation and export work.
// Cleanup drains it within the shutdown timeout.
func ProvideWorkerPool(
	ctx context.Context,
	cfg *config.Config,
	metrics *observability.Collector,
	logger *zap.Logger,
) (*concurrency.WorkerPool, func()) {
	pool := concurrency.NewWorkerPool(ctx, concurrency.PoolConfig{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	}, metrics, logger)

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Worker pool did not drain", zap.Error(err))
		}
	}
	return pool, cleanup
}

// ProvideRenderer creates the raster renderer used for crop sessions
func ProvideRenderer(cfg *config.Config, logger *zap.Logger) ports.Renderer {
	return rendering.NewRenderer(rendering.Options{
		Enabled:      cfg.EnableRendering,
		FetchTimeout: cfg.ImageFetchTimeout,
	}, logger)
}

// ProvideGenerationService creates the generation client. Without a
// configured URL generation is disabled and nodes report it as unavailable.
func ProvideGenerationService(
	cfg *config.Config,
	metrics *observability.Collector,
	logger *zap.Logger,
) (ports.GenerationService, error) {
	if cfg.GenerationURL == "" {
		logger.Warn("Generation service not configured")
		return nil, nil
	}
	client, err := generation.NewClient(generation.Config{
		BaseURL:        cfg.GenerationURL,
		APIKey:         cfg.GenerationAPIKey,
		RequestTimeout: cfg.GenerationTimeout,
		MaxFailures:    cfg.BreakerMaxFailures,
		OpenTimeout:    cfg.BreakerOpenTimeout,
	}, metrics, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ProvideAssetStore opens the asset database, or returns nil when none is
// configured.
func ProvideAssetStore(
	cfg *config.Config,
	metrics *observability.Collector,
	logger *zap.Logger,
) (*assets.SQLiteStore, func(), error) {
	if cfg.AssetDatabase == "" {
		logger.Warn("Asset storage not configured")
		return nil, func() {}, nil
	}
	store, err := assets.Open(cfg.AssetDatabase, metrics, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close asset store", zap.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideAssetService exposes the store through its port. A nil store
// stays a nil interface.
func ProvideAssetService(store *assets.SQLiteStore) ports.AssetService {
	if store == nil {
		return nil
	}
	return store
}

// ProvideEventBus creates the in-process event bus with the metrics and
// logging listeners attached.
func ProvideEventBus(metrics *observability.Collector, logger *zap.Logger) (*messaging.LocalEventBus, error) {
	eventBus := messaging.NewLocalEventBus(logger)
	if err := eventBus.Subscribe(messaging.AllEvents, messaging.MetricsListener(metrics)); err != nil {
		return nil, err
	}
	if err := eventBus.Subscribe(messaging.AllEvents, messaging.LoggingListener(logger)); err != nil {
		return nil, err
	}
	return eventBus, nil
}

// ProvideEventPublisher exposes the bus to publishers
func ProvideEventPublisher(eventBus *messaging.LocalEventBus) ports.EventPublisher {
	return eventBus
}

// ProvideGraph creates the workflow graph
func ProvideGraph(domainCfg *domainconfig.DomainConfig) *aggregates.Graph {
	return aggregates.NewGraph(nil, domainCfg)
}

// ProvideDispatcher creates the dispatcher and keeps its crop history
// depth in step with configuration reloads.
func ProvideDispatcher(
	graph *aggregates.Graph,
	generator ports.GenerationService,
	assetService ports.AssetService,
	renderer ports.Renderer,
	pool *concurrency.WorkerPool,
	publisher ports.EventPublisher,
	metrics *observability.Collector,
	domainCfg *domainconfig.DomainConfig,
	watcher *config.ConfigWatcher,
	logger *zap.Logger,
) (*services.Dispatcher, func()) {
	dispatcher := services.NewDispatcher(services.DispatcherDeps{
		Graph:     graph,
		Generator: generator,
		Assets:    assetService,
		Renderer:  renderer,
		Runner:    pool,
		Events:    publisher,
		Metrics:   metrics,
		Config:    domainCfg,
	}, logger)

	watcher.OnChange(func(next *config.Config) {
		dispatcher.SetMaxHistorySteps(next.DomainConfig().MaxHistorySteps)
	})
	return dispatcher, dispatcher.Close
}

// ProvideCommandBus creates the command bus with node and asset handlers
// registered
func ProvideCommandBus(
	dispatcher *services.Dispatcher,
	assetService ports.AssetService,
	logger *zap.Logger,
) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(
		bus.RecoveryMiddleware(logger),
		bus.LoggingMiddleware(logger),
	)
	if err := cmdhandlers.NewNodeCommandHandler(dispatcher, logger).Register(commandBus); err != nil {
		return nil, fmt.Errorf("register command handlers: %w", err)
	}
	if err := cmdhandlers.NewAssetCommandHandler(assetService, logger).Register(commandBus); err != nil {
		return nil, fmt.Errorf("register asset command handlers: %w", err)
	}
	return commandBus, nil
}

// ProvideQueryBus creates the query bus with editor queries registered
func ProvideQueryBus(
	dispatcher *services.Dispatcher,
	assetService ports.AssetService,
	logger *zap.Logger,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus(querybus.LoggingMiddleware(logger, slowQueryThreshold))
	if err := queryhandlers.NewEditorQueryHandler(dispatcher, assetService, logger).Register(queryBus); err != nil {
		return nil, fmt.Errorf("register query handlers: %w", err)
	}
	return queryBus, nil
}
