// Package di assembles the application. The manual initializer below is
// the one main() uses; wire.go keeps the generated-injector variant
// behind the wireinject tag.
package di

import (
	"fmt"

	"github.com/google/wire"
	"go.uber.org/zap"

	"agora-backend/application/ports"
	"agora-backend/application/services"
	"agora-backend/infrastructure/collaborators"
	"agora-backend/infrastructure/config"
	infraevents "agora-backend/infrastructure/events"
	"agora-backend/infrastructure/persistence/badgerstore"
	"agora-backend/pkg/observability"
)

// Container holds the application's wired components
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Collector
	Bus      *infraevents.Bus
	Store    ports.SnapshotStore
	Registry *services.SessionRegistry
}

// ProviderSet is the wire provider set for the container
var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	ProvideMetrics,
	ProvideBus,
	ProvideStore,
	ProvideRegistry,
	wire.Struct(new(Container), "*"),
)

// ProvideConfig loads and validates process configuration
func ProvideConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ProvideLogger builds the process logger for the environment
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideMetrics builds the Prometheus collector
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(cfg.Metrics.Namespace)
}

// ProvideBus builds the in-memory session event bus
func ProvideBus(cfg *config.Config, logger *zap.Logger, metrics *observability.Collector) *infraevents.Bus {
	bufferSize := 256
	if defaults, err := cfg.SessionDefaults(); err == nil {
		bufferSize = defaults.EventBufferSize
	}
	return infraevents.NewBus(bufferSize, logger, metrics)
}

// ProvideStore opens the snapshot journal, or returns nil when
// persistence is disabled
func ProvideStore(cfg *config.Config, logger *zap.Logger) (ports.SnapshotStore, error) {
	if !cfg.Persistence.Enabled {
		return nil, nil
	}
	return badgerstore.NewStore(cfg.Persistence.Path, cfg.Persistence.FlushInterval, logger)
}

// ProvideRegistry builds the session registry with all collaborators
func ProvideRegistry(
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Collector,
	bus *infraevents.Bus,
	store ports.SnapshotStore,
) (*services.SessionRegistry, error) {
	defaults, err := cfg.SessionDefaults()
	if err != nil {
		return nil, err
	}

	deps := services.CoordinatorDeps{
		Store:     store,
		Publisher: bus,
		Logger:    logger,
		Metrics:   metrics,
	}
	if cfg.Collaborators.OpenAIAPIKey != "" {
		oa := collaborators.NewOpenAIClient(cfg.Collaborators.OpenAIAPIKey, logger)
		deps.Embedder = oa
		deps.Synthesizer = oa
	}
	if cfg.Collaborators.EntropyBaseURL != "" {
		deps.Estimator = collaborators.NewEntropyClient(
			cfg.Collaborators.EntropyBaseURL, cfg.Collaborators.RequestTimeout, logger)
	}

	return services.NewSessionRegistry(defaults, deps), nil
}

// InitializeContainer wires the application by hand. Returns the
// container and a cleanup function for shutdown.
func InitializeContainer() (*Container, func(), error) {
	cfg, err := ProvideConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	metrics := ProvideMetrics(cfg)
	bus := ProvideBus(cfg, logger, metrics)

	store, err := ProvideStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	registry, err := ProvideRegistry(cfg, logger, metrics, bus, store)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, nil, err
	}

	container := &Container{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Bus:      bus,
		Store:    store,
		Registry: registry,
	}

	cleanup := func() {
		registry.CloseAll()
		if store != nil {
			if err := store.Close(); err != nil {
				logger.Warn("snapshot store close failed", zap.Error(err))
			}
		}
		_ = logger.Sync()
	}
	return container, cleanup, nil
}
