package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-aggregator/client"
	"github.com/saiset-co/sai-aggregator/logger"
	"github.com/saiset-co/sai-aggregator/metrics"
	"github.com/saiset-co/sai-aggregator/types"
)

// fakeProvider serves fixed pages and counts calls per page.
type fakeProvider struct {
	pages map[int][]types.ResultItem
	err   error
	panic bool
	mu    sync.Mutex
	calls map[int]int
}

func newFakeProvider(pages map[int][]types.ResultItem) *fakeProvider {
	return &fakeProvider{pages: pages, calls: make(map[int]int)}
}

func failingProvider(err error) *fakeProvider {
	return &fakeProvider{err: err, calls: make(map[int]int)}
}

func (f *fakeProvider) Fetch(ctx context.Context, query string, opts types.SearchOptions) ([]types.ResultItem, error) {
	f.mu.Lock()
	f.calls[opts.Page]++
	f.mu.Unlock()

	if f.panic {
		panic("adapter bug")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[opts.Page], nil
}

func (f *fakeProvider) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeProvider) pageCalls(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[page]
}

func itemsFor(prefix string, from, to int) []types.ResultItem {
	items := make([]types.ResultItem, 0, to-from)
	for i := from; i < to; i++ {
		items = append(items, types.ResultItem{Title: fmt.Sprintf("%s %d", prefix, i), URL: fmt.Sprintf("https://%s.com/%d", prefix, i)})
	}
	return items
}

func noWait(ctx context.Context, d time.Duration) error {
	return nil
}

func newTestAggregator(t *testing.T, config *types.AggregatorConfig, providers ...Provider) (*Aggregator, *Registry) {
	t.Helper()

	registry := NewRegistry()
	for _, provider := range providers {
		require.NoError(t, registry.Register(types.CategoryWeb, provider))
	}

	executor := client.NewExecutor(client.Policy{MaxAttempts: 3, Timeout: 5 * time.Second, BaseDelay: time.Millisecond}, logger.NewNop()).WithWait(noWait)

	return New(registry, executor, config, logger.NewNop(), metrics.NewNoop()), registry
}

func noBackfill() *types.AggregatorConfig {
	return &types.AggregatorConfig{PageSize: 10}
}

func TestCollect_PartialFailureIsolation(t *testing.T) {
	a := newFakeProvider(map[int][]types.ResultItem{1: itemsFor("a", 0, 3)})
	b := failingProvider(errors.New("upstream exploded"))
	c := newFakeProvider(map[int][]types.ResultItem{1: itemsFor("c", 0, 2)})

	agg, _ := newTestAggregator(t, noBackfill(),
		Provider{Name: "A", Weight: 1, Fetcher: a},
		Provider{Name: "B", Weight: 1, Fetcher: b},
		Provider{Name: "C", Weight: 1, Fetcher: c},
	)

	result := agg.Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{Page: 1})

	assert.Equal(t, 5, result.Total)
	assert.Len(t, result.Items, 5)
	require.Len(t, result.ProviderErrors, 1)
	assert.Equal(t, "B", result.ProviderErrors[0].Provider)
	assert.Contains(t, result.ProviderErrors[0].Message, "upstream exploded")

	for _, it := range result.Items {
		assert.NotEqual(t, "B", it.Provider)
	}
}

func TestCollect_RetriesTransientFailures(t *testing.T) {
	flaky := failingProvider(&types.StatusError{StatusCode: 503})

	agg, _ := newTestAggregator(t, noBackfill(), Provider{Name: "flaky", Weight: 1, Fetcher: flaky})

	result := agg.Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{})

	assert.Equal(t, 3, flaky.totalCalls())
	assert.Empty(t, result.Items)
	require.Len(t, result.ProviderErrors, 1)
	assert.Contains(t, result.ProviderErrors[0].Message, "HTTP 503")
}

func TestCollect_AllProvidersFail(t *testing.T) {
	agg, _ := newTestAggregator(t, DefaultConfig(),
		Provider{Name: "x", Weight: 2, Fetcher: failingProvider(&types.StatusError{StatusCode: 404})},
		Provider{Name: "y", Weight: 1, Fetcher: failingProvider(types.NewParseError("y", errors.New("bad json")))},
	)

	result := agg.Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{})

	assert.NotNil(t, result.Items)
	assert.Empty(t, result.Items)
	assert.Equal(t, 0, result.Total)
	require.Len(t, result.ProviderErrors, 2)
	assert.Equal(t, "x", result.ProviderErrors[0].Provider)
	assert.Equal(t, "y", result.ProviderErrors[1].Provider)
}

func TestCollect_PanickingProviderIsIsolated(t *testing.T) {
	broken := &fakeProvider{panic: true, calls: make(map[int]int)}
	healthy := newFakeProvider(map[int][]types.ResultItem{1: itemsFor("h", 0, 2)})

	agg, _ := newTestAggregator(t, noBackfill(),
		Provider{Name: "broken", Weight: 1, Fetcher: broken},
		Provider{Name: "healthy", Weight: 1, Fetcher: healthy},
	)

	result := agg.Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{})

	assert.Equal(t, 2, result.Total)
	require.Len(t, result.ProviderErrors, 1)
	assert.Equal(t, "broken", result.ProviderErrors[0].Provider)
	assert.Equal(t, 1, broken.totalCalls(), "panics are terminal")
}

func TestCollect_ProvidersAlwaysAskedForFirstPage(t *testing.T) {
	p := newFakeProvider(map[int][]types.ResultItem{1: itemsFor("p", 0, 25)})

	agg, _ := newTestAggregator(t, noBackfill(), Provider{Name: "p", Weight: 1, Fetcher: p})

	result := agg.Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{Page: 3})

	assert.Equal(t, 1, p.pageCalls(1))
	assert.Equal(t, 25, result.Total)
	require.Len(t, result.Items, 5)
	assert.Equal(t, "https://p.com/20", result.Items[0].URL)
}

func TestCollect_Pagination(t *testing.T) {
	p := newFakeProvider(map[int][]types.ResultItem{1: itemsFor("p", 0, 250)})

	agg, _ := newTestAggregator(t, &types.AggregatorConfig{PageSize: 100}, Provider{Name: "p", Weight: 1, Fetcher: p})

	page3 := agg.Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{Page: 3})
	require.Len(t, page3.Items, 50)
	assert.Equal(t, "https://p.com/200", page3.Items[0].URL)
	assert.Equal(t, "https://p.com/249", page3.Items[49].URL)

	page4 := agg.Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{Page: 4})
	assert.NotNil(t, page4.Items)
	assert.Empty(t, page4.Items)
	assert.Equal(t, 250, page4.Total)
}

func TestCollect_BackfillReachesTarget(t *testing.T) {
	heavy := newFakeProvider(map[int][]types.ResultItem{
		1: itemsFor("heavy", 0, 10),
		2: itemsFor("heavy", 10, 20),
		3: itemsFor("heavy", 20, 30),
	})
	medium := newFakeProvider(map[int][]types.ResultItem{
		1: itemsFor("medium", 0, 10),
		2: itemsFor("medium", 10, 20),
	})
	light := newFakeProvider(map[int][]types.ResultItem{
		1: itemsFor("light", 0, 10),
		2: itemsFor("light", 10, 20),
	})

	config := &types.AggregatorConfig{PageSize: 10, TargetResults: 50, BackfillProviders: 2, BackfillBudget: 4}
	agg, _ := newTestAggregator(t, config,
		Provider{Name: "light", Weight: 1, Fetcher: light},
		Provider{Name: "heavy", Weight: 3, Fetcher: heavy},
		Provider{Name: "medium", Weight: 2, Fetcher: medium},
	)

	result := agg.Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{})

	assert.Equal(t, 50, result.Total)
	assert.Equal(t, 1, heavy.pageCalls(2))
	assert.Equal(t, 1, medium.pageCalls(2))
	assert.Equal(t, 0, light.pageCalls(2), "only the heaviest providers are backfilled")
	assert.Equal(t, 0, heavy.pageCalls(3), "target reached after one round")
}

func TestCollect_BackfillRespectsBudget(t *testing.T) {
	pages := make(map[int][]types.ResultItem)
	for page := 1; page <= 10; page++ {
		pages[page] = itemsFor("deep", (page-1)*5, page*5)
	}
	deep := newFakeProvider(pages)

	config := &types.AggregatorConfig{PageSize: 10, TargetResults: 100, BackfillProviders: 2, BackfillBudget: 3}
	agg, _ := newTestAggregator(t, config, Provider{Name: "deep", Weight: 1, Fetcher: deep})

	result := agg.Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{})

	assert.Equal(t, 4, deep.totalCalls())
	assert.Equal(t, 20, result.Total)
}

func TestCollect_BackfillStopsWhenNothingNew(t *testing.T) {
	repeating := newFakeProvider(map[int][]types.ResultItem{
		1: itemsFor("same", 0, 5),
		2: itemsFor("same", 0, 5),
		3: itemsFor("same", 5, 10),
	})

	agg, _ := newTestAggregator(t, DefaultConfig(), Provider{Name: "same", Weight: 1, Fetcher: repeating})

	result := agg.Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{})

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 0, repeating.pageCalls(3))
}

func TestCollect_BackfillSkipsFailedProviders(t *testing.T) {
	broken := failingProvider(&types.StatusError{StatusCode: 400})
	ok := newFakeProvider(map[int][]types.ResultItem{1: itemsFor("ok", 0, 3)})

	config := &types.AggregatorConfig{PageSize: 10, TargetResults: 100, BackfillProviders: 1, BackfillBudget: 4}
	agg, _ := newTestAggregator(t, config,
		Provider{Name: "broken", Weight: 5, Fetcher: broken},
		Provider{Name: "ok", Weight: 1, Fetcher: ok},
	)

	result := agg.Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{})

	assert.Equal(t, 1, broken.totalCalls())
	assert.Equal(t, 1, ok.pageCalls(2))
	assert.Len(t, result.ProviderErrors, 1)
}

func TestCollect_DeterministicOrdering(t *testing.T) {
	build := func() *Aggregator {
		agg, _ := newTestAggregator(t, noBackfill(),
			Provider{Name: "a", Weight: 1, Fetcher: newFakeProvider(map[int][]types.ResultItem{1: itemsFor("shared", 0, 6)})},
			Provider{Name: "b", Weight: 1, Fetcher: newFakeProvider(map[int][]types.ResultItem{1: itemsFor("shared", 3, 9)})},
			Provider{Name: "c", Weight: 1, Fetcher: newFakeProvider(map[int][]types.ResultItem{1: itemsFor("other", 0, 4)})},
		)
		return agg
	}

	first := build().Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{})
	for i := 0; i < 10; i++ {
		again := build().Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{})
		assert.Equal(t, urls(first.Items), urls(again.Items))
	}

	assert.Equal(t, "a", first.Items[0].Provider)
}

func TestCollect_SeededJitterIsReproducible(t *testing.T) {
	build := func() *Aggregator {
		registry := NewRegistry()
		for i := 0; i < 3; i++ {
			name := fmt.Sprintf("p%d", i)
			require.NoError(t, registry.Register(types.CategoryNews, Provider{
				Name:    name,
				Weight:  1,
				Fetcher: newFakeProvider(map[int][]types.ResultItem{1: itemsFor(name, 0, 3)}),
			}))
		}
		executor := client.NewExecutor(client.DefaultPolicy(), logger.NewNop())
		return New(registry, executor, noBackfill(), logger.NewNop(), metrics.NewNoop(),
			WithJitter(types.CategoryNews, NewSeededJitter(7, 0.5)))
	}

	first := build().Collect(context.Background(), types.CategoryNews, "go", types.SearchOptions{})
	second := build().Collect(context.Background(), types.CategoryNews, "go", types.SearchOptions{})

	assert.Equal(t, urls(first.Items), urls(second.Items))
}

func TestCollect_CircuitBreakerFailsFast(t *testing.T) {
	broken := failingProvider(&types.StatusError{StatusCode: 400})

	registry := NewRegistry()
	require.NoError(t, registry.Register(types.CategoryWeb, Provider{Name: "broken", Weight: 1, Fetcher: broken}))

	executor := client.NewExecutor(client.DefaultPolicy(), logger.NewNop())
	agg := New(registry, executor, noBackfill(), logger.NewNop(), metrics.NewNoop(),
		WithCircuitBreaker(&types.CircuitBreakerConfig{Enabled: true, MaxFailures: 2, Timeout: time.Minute}))

	for i := 0; i < 2; i++ {
		agg.Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{})
	}
	result := agg.Collect(context.Background(), types.CategoryWeb, "go", types.SearchOptions{})

	assert.Equal(t, 2, broken.totalCalls())
	require.Len(t, result.ProviderErrors, 1)
	assert.Equal(t, types.ErrCircuitOpen.Error(), result.ProviderErrors[0].Message)
	assert.Equal(t, map[string]string{"broken": "open"}, agg.BreakerStates())
}

func TestCollect_UnknownCategoryIsEmpty(t *testing.T) {
	agg, _ := newTestAggregator(t, noBackfill())

	result := agg.Collect(context.Background(), types.CategoryVideos, "go", types.SearchOptions{})

	assert.Empty(t, result.Items)
	assert.Empty(t, result.ProviderErrors)
}
