package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/aggregator"
	"github.com/saiset-co/sai-aggregator/cache"
	"github.com/saiset-co/sai-aggregator/client"
	"github.com/saiset-co/sai-aggregator/cron"
	"github.com/saiset-co/sai-aggregator/engine"
	"github.com/saiset-co/sai-aggregator/health"
	"github.com/saiset-co/sai-aggregator/metrics"
	"github.com/saiset-co/sai-aggregator/providers"
	"github.com/saiset-co/sai-aggregator/types"
	"github.com/saiset-co/sai-aggregator/utils"
)

// App owns every long-lived component built from one ServiceConfig.
type App struct {
	config     *types.ServiceConfig
	logger     types.Logger
	metrics    types.MetricsManager
	store      types.CacheStore
	httpClient *client.HTTPClient
	engine     *engine.Engine
	cron       *cron.Manager
	health     *health.Manager
}

func NewApp(ctx context.Context, config *types.ServiceConfig, logger types.Logger) (*App, error) {
	metricsManager, err := metrics.New(config.Metrics, logger)
	if err != nil {
		return nil, err
	}

	store, err := cache.NewStore(ctx, config.Cache, utils.SystemClock{}, cache.JSONCodec[types.AggregateResult]{}, logger, metricsManager)
	if err != nil {
		return nil, types.WrapError(err, "failed to create cache store")
	}

	httpClient := client.NewHTTPClient(config.Client, logger)

	app := &App{
		config:     config,
		logger:     logger,
		metrics:    metricsManager,
		store:      store,
		httpClient: httpClient,
	}

	registry := aggregator.NewRegistry()
	if err = providers.RegisterAll(registry, config.Providers, httpClient, logger); err != nil {
		app.Close()
		return nil, err
	}

	executor := client.NewExecutor(client.PolicyFromConfig(config.Retry), logger)
	agg := aggregator.New(registry, executor, config.Aggregator, logger, metricsManager,
		aggregator.WithCircuitBreaker(config.CircuitBreaker))

	app.engine, err = engine.New(store, agg, registry, config.Engine, config.Cache.TTL, logger, metricsManager)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.health = health.NewManager(types.ServiceInfo{Name: config.Name, Version: config.Version})
	app.health.RegisterChecker("cache", health.CacheChecker(store))
	app.health.RegisterChecker("providers", health.BreakerChecker(agg.BreakerStates))

	app.cron, err = cron.ScheduleCacheStats(config.Cron, store, logger, metricsManager)
	if err != nil {
		app.Close()
		return nil, err
	}
	if app.cron != nil {
		if err = app.cron.Start(); err != nil {
			app.Close()
			return nil, err
		}
	}

	logger.Info("Aggregator ready",
		zap.String("name", config.Name),
		zap.String("version", config.Version),
		zap.Int("providers", len(config.Providers)),
		zap.String("cache", config.Cache.Type))

	return app, nil
}

func (a *App) Search(ctx context.Context, category types.Category, query string, opts types.SearchOptions) (*types.SearchResponse, error) {
	return a.engine.Run(ctx, category, query, opts)
}

func (a *App) Health(ctx context.Context) types.HealthReport {
	return a.health.Check(ctx)
}

func (a *App) Metrics() types.MetricsManager {
	return a.metrics
}

func (a *App) Close() {
	if a.cron != nil && a.cron.IsRunning() {
		if err := a.cron.Stop(); err != nil {
			a.logger.Warn("Failed to stop cron", zap.Error(err))
		}
	}

	a.httpClient.Close()

	if err := cache.Close(a.store); err != nil {
		a.logger.Warn("Failed to close cache store", zap.Error(err))
	}
}
