package cache

import (
	"context"
	"time"

	"github.com/saiset-co/sai-aggregator/types"
)

func NewStore(ctx context.Context, config *types.CacheConfig, clock types.Clock, codec types.CacheCodec, logger types.Logger, metrics types.MetricsManager) (types.CacheStore, error) {
	if config == nil {
		config = &types.CacheConfig{Type: "memory"}
	}

	var impl types.CacheStore
	var err error

	switch config.Type {
	case "", "memory":
		impl = NewMemoryStore(config, clock, logger)
	case "redis":
		impl, err = NewRedisStore(ctx, config, clock, codec, logger)
	default:
		return nil, types.Errorf(types.ErrCacheTypeUnknown, "type: %s", config.Type)
	}

	if err != nil {
		return nil, err
	}

	return NewInstrumentedStore(impl, metrics), nil
}

type instrumentedStore struct {
	impl    types.CacheStore
	metrics types.MetricsManager
}

func NewInstrumentedStore(impl types.CacheStore, metrics types.MetricsManager) types.CacheStore {
	return &instrumentedStore{
		impl:    impl,
		metrics: metrics,
	}
}

func (is *instrumentedStore) Get(key string) (interface{}, bool) {
	start := time.Now()
	value, exists := is.impl.Get(key)
	duration := time.Since(start)

	result := "miss"
	if exists {
		result = "hit"
	}

	is.recordMetric("get", result, duration)
	return value, exists
}

func (is *instrumentedStore) Put(key string, value interface{}, ttl time.Duration) {
	start := time.Now()
	is.impl.Put(key, value, ttl)
	is.recordMetric("put", "success", time.Since(start))
}

func (is *instrumentedStore) Clear() {
	start := time.Now()
	is.impl.Clear()
	is.recordMetric("clear", "success", time.Since(start))
}

func (is *instrumentedStore) Stats() types.CacheStats {
	stats := is.impl.Stats()

	is.metrics.Gauge("cache_entries", nil).Set(float64(stats.Size))
	is.metrics.Gauge("cache_expired_entries", nil).Set(float64(stats.ExpiredEntries))
	is.metrics.Gauge("cache_hit_rate", nil).Set(stats.HitRate)

	return stats
}

// Unwrap exposes the backing store, mainly for Close on redis.
func (is *instrumentedStore) Unwrap() types.CacheStore {
	return is.impl
}

func (is *instrumentedStore) recordMetric(operation, result string, duration time.Duration) {
	opCounter := is.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := is.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}

// Close releases backend resources if the store holds any.
func Close(store types.CacheStore) error {
	if unwrapper, ok := store.(interface{ Unwrap() types.CacheStore }); ok {
		store = unwrapper.Unwrap()
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
