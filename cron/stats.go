package cron

import (
	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/types"
)

const StatsJobName = "cache_stats"

// CacheStatsJob reads store statistics on each tick. An instrumented store
// publishes them as gauges as a side effect; the job also logs them.
func CacheStatsJob(store types.CacheStore, logger types.Logger) func() {
	return func() {
		stats := store.Stats()
		logger.Info("Cache statistics",
			zap.Int("size", stats.Size),
			zap.Int("max_size", stats.MaxSize),
			zap.Int("expired_entries", stats.ExpiredEntries),
			zap.Uint64("hits", stats.Hits),
			zap.Uint64("misses", stats.Misses),
			zap.Float64("hit_rate", stats.HitRate))
	}
}

// ScheduleCacheStats registers CacheStatsJob when the config enables cron.
// It returns nil, nil when there is nothing to run.
func ScheduleCacheStats(config *types.CronConfig, store types.CacheStore, logger types.Logger, metrics types.MetricsManager) (*Manager, error) {
	if config == nil || !config.Enabled {
		return nil, nil
	}

	manager, err := NewManager(config, logger, metrics)
	if err != nil {
		return nil, err
	}

	if err = manager.Add(StatsJobName, config.StatsSpec, CacheStatsJob(store, logger)); err != nil {
		return nil, err
	}

	return manager, nil
}
