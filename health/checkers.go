package health

import (
	"context"

	"github.com/saiset-co/sai-aggregator/types"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// CacheChecker pings stores that live outside the process and reports
// occupancy for all of them.
func CacheChecker(store types.CacheStore) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		if p, ok := unwrap(store).(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return types.HealthCheck{Status: types.StatusUnhealthy, Message: err.Error()}
			}
		}

		stats := store.Stats()
		return types.HealthCheck{
			Status: types.StatusHealthy,
			Details: map[string]interface{}{
				"size":     stats.Size,
				"max_size": stats.MaxSize,
				"hit_rate": stats.HitRate,
			},
		}
	}
}

// BreakerChecker turns unhealthy while any provider circuit is open. With
// breakers disabled it is always healthy.
func BreakerChecker(states func() map[string]string) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		current := states()

		details := make(map[string]interface{}, len(current))
		open := 0
		for provider, state := range current {
			details[provider] = state
			if state == "open" {
				open++
			}
		}

		if open > 0 {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: "provider circuits open",
				Details: details,
			}
		}
		return types.HealthCheck{Status: types.StatusHealthy, Details: details}
	}
}

func unwrap(store types.CacheStore) types.CacheStore {
	if u, ok := store.(interface{ Unwrap() types.CacheStore }); ok {
		return u.Unwrap()
	}
	return store
}
