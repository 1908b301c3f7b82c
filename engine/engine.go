package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-aggregator/aggregator"
	"github.com/saiset-co/sai-aggregator/cache"
	"github.com/saiset-co/sai-aggregator/types"
)

// DefaultCategories maps each category to how quickly its results go stale.
func DefaultCategories() map[types.Category]types.TTLClass {
	return map[types.Category]types.TTLClass{
		types.CategoryWeather: types.TTLShort,
		types.CategoryNews:    types.TTLShort,
		types.CategoryWeb:     types.TTLMedium,
		types.CategoryVideos:  types.TTLMedium,
		types.CategoryImages:  types.TTLLong,
	}
}

// Collector is the part of the aggregator the engine depends on.
type Collector interface {
	Collect(ctx context.Context, category types.Category, query string, opts types.SearchOptions) *types.AggregateResult
}

type Engine struct {
	logger     types.Logger
	metrics    types.MetricsManager
	store      types.CacheStore
	collector  Collector
	ttl        types.TTLConfig
	categories map[types.Category]types.TTLClass
	coalesce   bool
	group      singleflight.Group
}

// New fails when a configured category has no providers; that is a startup
// fault, never a request-time one.
func New(store types.CacheStore, collector Collector, registry *aggregator.Registry, config *types.EngineConfig, ttl types.TTLConfig, logger types.Logger, metrics types.MetricsManager) (*Engine, error) {
	categories := DefaultCategories()
	coalesce := false

	if config != nil {
		if len(config.Categories) > 0 {
			categories = make(map[types.Category]types.TTLClass, len(config.Categories))
			for category, class := range config.Categories {
				categories[category] = class
			}
		}
		coalesce = config.Coalesce
	}

	if ttl.Short <= 0 {
		ttl.Short = cache.DefaultShortTTL
	}
	if ttl.Medium <= 0 {
		ttl.Medium = cache.DefaultTTL
	}
	if ttl.Long <= 0 {
		ttl.Long = cache.DefaultLongTTL
	}

	configured := make([]types.Category, 0, len(categories))
	for _, category := range types.Categories {
		if _, exists := categories[category]; exists {
			configured = append(configured, category)
		}
	}
	for category := range categories {
		if !category.Valid() {
			return nil, types.Errorf(types.ErrCategoryUnknown, "category: %s", category)
		}
	}

	if err := registry.Validate(configured...); err != nil {
		return nil, err
	}

	logger.Info("Aggregation engine initialized",
		zap.Int("categories", len(configured)),
		zap.Bool("coalesce", coalesce))

	return &Engine{
		logger:     logger,
		metrics:    metrics,
		store:      store,
		collector:  collector,
		ttl:        ttl,
		categories: categories,
		coalesce:   coalesce,
	}, nil
}

// Run answers one request from cache or by aggregating. Only an unknown
// category or an empty query is an error; provider failures come back as
// ProviderErrors on a successful response.
func (e *Engine) Run(ctx context.Context, category types.Category, query string, opts types.SearchOptions) (*types.SearchResponse, error) {
	class, exists := e.categories[category]
	if !exists {
		return nil, types.Errorf(types.ErrCategoryUnknown, "category: %s", category)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, types.ErrQueryEmpty
	}

	opts = opts.Normalized()
	key := cache.BuildKey(category, query, opts)

	requestID := types.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = types.WithRequestID(ctx, requestID)
	}

	if result, found := e.lookup(key); found {
		e.logger.Debug("Cache hit",
			zap.String("request_id", requestID),
			zap.String("category", string(category)),
			zap.String("key", key))
		e.recordRequest(category, "hit")
		return e.response(category, query, opts, result, true), nil
	}

	e.logger.Debug("Cache miss",
		zap.String("request_id", requestID),
		zap.String("category", string(category)),
		zap.String("key", key))

	var result *types.AggregateResult
	if e.coalesce {
		value, _, _ := e.group.Do(key, func() (interface{}, error) {
			return e.fetch(ctx, key, category, class, query, opts), nil
		})
		result = value.(*types.AggregateResult)
	} else {
		result = e.fetch(ctx, key, category, class, query, opts)
	}

	e.recordRequest(category, "miss")
	return e.response(category, query, opts, result, false), nil
}

func (e *Engine) fetch(ctx context.Context, key string, category types.Category, class types.TTLClass, query string, opts types.SearchOptions) *types.AggregateResult {
	result := e.collector.Collect(ctx, category, query, opts)

	ttl := e.ttl.For(class)
	if result.Total == 0 && len(result.ProviderErrors) > 0 {
		// total exhaustion is only cached briefly
		ttl = e.ttl.Short
	}

	e.store.Put(key, result, ttl)
	return result
}

func (e *Engine) lookup(key string) (*types.AggregateResult, bool) {
	value, found := e.store.Get(key)
	if !found {
		return nil, false
	}

	switch result := value.(type) {
	case *types.AggregateResult:
		if result != nil {
			return result, true
		}
	case types.AggregateResult:
		return &result, true
	}

	e.logger.Error("Unexpected cache payload, treating as miss",
		zap.String("key", key),
		zap.String("type", fmt.Sprintf("%T", value)),
		zap.Error(types.ErrCacheEntryCorrupt))
	return nil, false
}

func (e *Engine) response(category types.Category, query string, opts types.SearchOptions, result *types.AggregateResult, fromCache bool) *types.SearchResponse {
	items := make([]types.ResultItem, len(result.Items))
	copy(items, result.Items)
	for i := range items {
		items[i].Extras = copyExtras(items[i].Extras)
	}

	providerErrors := make([]types.ProviderError, len(result.ProviderErrors))
	copy(providerErrors, result.ProviderErrors)

	return &types.SearchResponse{
		Category:       category,
		Query:          query,
		Page:           opts.Page,
		Items:          items,
		Total:          result.Total,
		FromCache:      fromCache,
		ProviderErrors: providerErrors,
	}
}

func copyExtras(extras map[string]interface{}) map[string]interface{} {
	if extras == nil {
		return nil
	}
	copied := make(map[string]interface{}, len(extras))
	for k, v := range extras {
		copied[k] = v
	}
	return copied
}

func (e *Engine) CacheStats() types.CacheStats {
	return e.store.Stats()
}

func (e *Engine) ClearCache() {
	e.store.Clear()
}

func (e *Engine) Categories() map[types.Category]types.TTLClass {
	categories := make(map[types.Category]types.TTLClass, len(e.categories))
	for category, class := range e.categories {
		categories[category] = class
	}
	return categories
}

func (e *Engine) recordRequest(category types.Category, result string) {
	e.metrics.Counter("engine_requests_total", map[string]string{
		"category": string(category),
		"result":   result,
	}).Inc()
}
