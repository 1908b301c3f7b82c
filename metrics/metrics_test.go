package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-aggregator/logger"
	"github.com/saiset-co/sai-aggregator/types"
)

func TestMemoryMetricsInstruments(t *testing.T) {
	m := NewMemoryMetrics()

	labels := map[string]string{"provider": "a", "outcome": "success"}
	m.Counter("provider_calls_total", labels).Inc()
	m.Counter("provider_calls_total", map[string]string{"outcome": "success", "provider": "a"}).Add(2)
	assert.Equal(t, 3.0, m.Counter("provider_calls_total", labels).Get())

	gauge := m.Gauge("cache_entries", nil)
	gauge.Set(10)
	gauge.Dec()
	gauge.Add(0.5)
	assert.Equal(t, 9.5, m.Gauge("cache_entries", nil).Get())

	histogram := m.Histogram("latency", []float64{0.1, 1}, nil)
	histogram.Observe(0.05)
	histogram.Observe(2)
	assert.Equal(t, uint64(2), histogram.GetCount())
	assert.InDelta(t, 2.05, histogram.GetSum(), 1e-9)
}

func TestMemoryMetricsConcurrent(t *testing.T) {
	m := NewMemoryMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Counter("hits", map[string]string{"result": "hit"}).Inc()
			m.Gauge("inflight", nil).Inc()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50.0, m.Counter("hits", map[string]string{"result": "hit"}).Get())
	assert.Equal(t, 50.0, m.Gauge("inflight", nil).Get())
}

func TestMemoryMetricsSnapshotOrder(t *testing.T) {
	m := NewMemoryMetrics()
	m.Counter("b_total", nil).Inc()
	m.Counter("a_total", map[string]string{"k": "2"}).Inc()
	m.Counter("a_total", map[string]string{"k": "1"}).Inc()

	snapshot := m.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "a_total", snapshot[0].Name)
	assert.Equal(t, "1", snapshot[0].Labels["k"])
	assert.Equal(t, "2", snapshot[1].Labels["k"])
	assert.Equal(t, "b_total", snapshot[2].Name)
}

func TestNewSelectsBackend(t *testing.T) {
	log := logger.NewNop()

	m, err := New(nil, log)
	require.NoError(t, err)
	assert.IsType(t, noopMetrics{}, m)

	m, err = New(&types.MetricsConfig{Enabled: true, Type: "memory"}, log)
	require.NoError(t, err)
	assert.IsType(t, &MemoryMetrics{}, m)

	m, err = New(&types.MetricsConfig{Enabled: true}, log)
	require.NoError(t, err)
	assert.IsType(t, &PrometheusMetrics{}, m)

	_, err = New(&types.MetricsConfig{Enabled: true, Type: "statsd"}, log)
	assert.ErrorIs(t, err, types.ErrMetricsTypeUnknown)

	RegisterMetricsManager("custom", func(*types.MetricsConfig) (types.MetricsManager, error) {
		return NewNoop(), nil
	})
	m, err = New(&types.MetricsConfig{Enabled: true, Type: "custom"}, log)
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestPrometheusCounterGet(t *testing.T) {
	p := NewPrometheusMetrics(nil, logger.NewNop())

	p.Counter("engine_requests_total", map[string]string{"category": "web", "result": "hit"}).Inc()
	p.Counter("engine_requests_total", map[string]string{"category": "web", "result": "hit"}).Inc()

	assert.Equal(t, 2.0, p.Counter("engine_requests_total", map[string]string{"category": "web", "result": "hit"}).Get())
}

func serve(t *testing.T, s *Server, path string) *fasthttp.RequestCtx {
	t.Helper()
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI(path)
	s.Handle(ctx)
	return ctx
}

func TestServerPrometheusHandler(t *testing.T) {
	p := NewPrometheusMetrics(nil, logger.NewNop())
	p.Counter("cache_operations_total", map[string]string{"operation": "get", "result": "hit"}).Inc()

	s, err := NewServer(&types.MetricsConfig{HTTP: types.MetricsHTTPConfig{Port: 9090}}, p, logger.NewNop())
	require.NoError(t, err)

	ctx := serve(t, s, "/metrics")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.True(t, strings.Contains(string(ctx.Response.Body()), "sai_aggregator_cache_operations_total"))

	ctx = serve(t, s, "/other")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestServerMemoryHandler(t *testing.T) {
	m := NewMemoryMetrics()
	m.Counter("engine_requests_total", map[string]string{"result": "miss"}).Inc()

	s, err := NewServer(nil, m, logger.NewNop())
	require.NoError(t, err)

	ctx := serve(t, s, "/metrics")
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), `"name":"engine_requests_total"`)
}

func TestServerRejectsNoop(t *testing.T) {
	_, err := NewServer(nil, NewNoop(), logger.NewNop())
	assert.ErrorIs(t, err, types.ErrMetricsTypeUnknown)
}

func TestServerUnknownPathIsJSON(t *testing.T) {
	s, err := NewServer(nil, NewMemoryMetrics(), logger.NewNop())
	require.NoError(t, err)

	ctx := serve(t, s, "/nope")
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"Not Found","message":"unknown path"}`, string(ctx.Response.Body()))
}
