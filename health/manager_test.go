package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-aggregator/cache"
	"github.com/saiset-co/sai-aggregator/logger"
	"github.com/saiset-co/sai-aggregator/metrics"
	"github.com/saiset-co/sai-aggregator/types"
	"github.com/saiset-co/sai-aggregator/utils"
)

func healthy(context.Context) types.HealthCheck {
	return types.HealthCheck{Status: types.StatusHealthy}
}

func TestCheckAllHealthy(t *testing.T) {
	hm := NewManager(types.ServiceInfo{Name: "agg", Version: "1"})
	hm.RegisterChecker("a", healthy)
	hm.RegisterChecker("b", healthy)

	report := hm.Check(context.Background())

	assert.Equal(t, types.StatusHealthy, report.Status)
	assert.Equal(t, 2, report.Summary.Healthy)
	assert.Equal(t, "agg", report.Service.Name)
	assert.Equal(t, "a", report.Checks["a"].Name)
}

func TestCheckUnhealthyWins(t *testing.T) {
	hm := NewManager(types.ServiceInfo{})
	hm.RegisterChecker("ok", healthy)
	hm.RegisterChecker("unknown", func(context.Context) types.HealthCheck {
		return types.HealthCheck{Status: types.StatusUnknown}
	})
	hm.RegisterChecker("down", func(context.Context) types.HealthCheck {
		return types.HealthCheck{Status: types.StatusUnhealthy}
	})

	report := hm.Check(context.Background())

	assert.Equal(t, types.StatusUnhealthy, report.Status)
	assert.Equal(t, types.HealthSummary{Total: 3, Healthy: 1, Unhealthy: 1, Unknown: 1}, report.Summary)
}

func TestCheckPanicAndTimeout(t *testing.T) {
	hm := NewManager(types.ServiceInfo{})
	hm.checkTimeout = 20 * time.Millisecond
	hm.RegisterChecker("panics", func(context.Context) types.HealthCheck {
		panic("boom")
	})
	hm.RegisterChecker("slow", func(ctx context.Context) types.HealthCheck {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return types.HealthCheck{Status: types.StatusHealthy}
	})

	report := hm.Check(context.Background())

	assert.Equal(t, types.StatusUnhealthy, report.Checks["panics"].Status)
	assert.Contains(t, report.Checks["panics"].Message, "boom")
	assert.Equal(t, types.StatusUnhealthy, report.Checks["slow"].Status)
	assert.Equal(t, "health check timeout", report.Checks["slow"].Message)
}

type pingStore struct {
	types.CacheStore
	err error
}

func (p pingStore) Ping(context.Context) error { return p.err }

func TestCacheChecker(t *testing.T) {
	memory := cache.NewMemoryStore(&types.CacheConfig{MaxEntries: 5}, utils.SystemClock{}, logger.NewNop())
	memory.Put("k", 1, time.Minute)

	check := CacheChecker(cache.NewInstrumentedStore(memory, metrics.NewNoop()))(context.Background())
	require.Equal(t, types.StatusHealthy, check.Status)
	assert.Equal(t, 1, check.Details["size"])
	assert.Equal(t, 5, check.Details["max_size"])

	check = CacheChecker(pingStore{CacheStore: memory, err: errors.New("connection refused")})(context.Background())
	assert.Equal(t, types.StatusUnhealthy, check.Status)
	assert.Equal(t, "connection refused", check.Message)
}

func TestBreakerChecker(t *testing.T) {
	states := map[string]string{"a": "closed", "b": "half-open"}
	checker := BreakerChecker(func() map[string]string { return states })

	assert.Equal(t, types.StatusHealthy, checker(context.Background()).Status)

	states["b"] = "open"
	check := checker(context.Background())
	assert.Equal(t, types.StatusUnhealthy, check.Status)
	assert.Equal(t, "open", check.Details["b"])
}
