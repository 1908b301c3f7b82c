package aggregator

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-aggregator/client"
	"github.com/saiset-co/sai-aggregator/types"
)

const (
	DefaultPageSize          = 10
	DefaultTargetResults     = 100
	DefaultBackfillProviders = 2
	DefaultBackfillBudget    = 4
)

const (
	outcomeSuccess     = "success"
	outcomeEmpty       = "empty"
	outcomeFailure     = "failure"
	outcomeCircuitOpen = "circuit_open"
)

func DefaultConfig() *types.AggregatorConfig {
	return &types.AggregatorConfig{
		PageSize:          DefaultPageSize,
		TargetResults:     DefaultTargetResults,
		BackfillProviders: DefaultBackfillProviders,
		BackfillBudget:    DefaultBackfillBudget,
	}
}

type Option func(*Aggregator)

// WithJitter applies j to the weights of one category.
func WithJitter(category types.Category, j Jitter) Option {
	return func(a *Aggregator) {
		a.jitter[category] = j
	}
}

// WithCircuitBreaker puts a breaker in front of every provider.
func WithCircuitBreaker(config *types.CircuitBreakerConfig) Option {
	return func(a *Aggregator) {
		a.breakerConfig = config
	}
}

// Aggregator fans a query out to every provider of a category and merges
// what comes back. It never fails a request: provider failures are reported
// alongside whatever the other providers produced.
type Aggregator struct {
	logger        types.Logger
	metrics       types.MetricsManager
	registry      *Registry
	executor      *client.Executor
	config        *types.AggregatorConfig
	jitter        map[types.Category]Jitter
	breakerConfig *types.CircuitBreakerConfig
	breakers      map[string]*client.Breaker[[]types.ResultItem]
	breakersMu    sync.Mutex
}

func New(registry *Registry, executor *client.Executor, config *types.AggregatorConfig, logger types.Logger, metrics types.MetricsManager, opts ...Option) *Aggregator {
	if config == nil {
		config = DefaultConfig()
	}

	a := &Aggregator{
		logger:   logger,
		metrics:  metrics,
		registry: registry,
		executor: executor,
		config:   config,
		jitter:   make(map[types.Category]Jitter),
		breakers: make(map[string]*client.Breaker[[]types.ResultItem]),
	}

	if config.Jitter.Enabled {
		j := NewSeededJitter(config.Jitter.Seed, config.Jitter.Amplitude)
		for _, category := range config.Jitter.Categories {
			a.jitter[category] = j
		}
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Collect runs every provider of category concurrently, merges, backfills if
// short of the target and returns the requested page.
func (a *Aggregator) Collect(ctx context.Context, category types.Category, query string, opts types.SearchOptions) *types.AggregateResult {
	opts = opts.Normalized()

	requestID := types.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = types.WithRequestID(ctx, requestID)
	}

	providers := a.registry.Providers(category)
	if len(providers) == 0 {
		a.logger.Warn("No providers registered for category",
			zap.String("request_id", requestID),
			zap.String("category", string(category)))
		return &types.AggregateResult{Items: []types.ResultItem{}, ProviderErrors: []types.ProviderError{}}
	}

	jitter := a.jitterFor(category)
	factors := make([]float64, len(providers))
	for i, provider := range providers {
		factors[i] = jitter.Factor(provider.Name)
	}

	firstPage := opts
	firstPage.Page = 1

	indexes := make([]int, len(providers))
	for i := range providers {
		indexes[i] = i
	}

	outcomes := a.fetchAll(ctx, providers, indexes, query, firstPage)

	set := newMergeSet(category)
	positions := make([]int, len(providers))
	providerErrors := make([]types.ProviderError, 0)
	failed := make(map[int]bool)

	for i, outcome := range outcomes {
		if outcome.Failed() {
			failed[i] = true
			providerErrors = append(providerErrors, types.ProviderError{
				Provider: outcome.Provider,
				Message:  outcome.Err.Error(),
			})
			a.logger.Warn("Provider failed",
				zap.String("request_id", requestID),
				zap.String("category", string(category)),
				zap.String("provider", outcome.Provider),
				zap.Int("attempts", outcome.Attempts),
				zap.Duration("duration", outcome.Duration),
				zap.Error(outcome.Err))
			continue
		}

		if len(outcome.Items) == 0 {
			a.logger.Debug("Provider returned no results",
				zap.String("request_id", requestID),
				zap.String("provider", outcome.Provider))
		}

		set.add(i, providers[i], factors[i], outcome.Items, positions[i])
		positions[i] += len(outcome.Items)
	}

	if len(failed) == len(providers) {
		a.logger.Warn("All providers failed",
			zap.String("request_id", requestID),
			zap.String("category", string(category)),
			zap.Int("providers", len(providers)))
	} else {
		a.backfill(ctx, set, providers, factors, failed, positions, query, opts)
	}

	items := set.sorted()

	a.logger.Debug("Aggregation completed",
		zap.String("request_id", requestID),
		zap.String("category", string(category)),
		zap.Int("total", len(items)),
		zap.Int("failed_providers", len(providerErrors)))

	return &types.AggregateResult{
		Items:          Paginate(items, opts.Page, a.config.PageSize),
		Total:          len(items),
		ProviderErrors: providerErrors,
	}
}

func (a *Aggregator) backfill(ctx context.Context, set *mergeSet, providers []Provider, factors []float64, failed map[int]bool, positions []int, query string, opts types.SearchOptions) {
	target := a.config.TargetResults
	budget := a.config.BackfillBudget
	if target <= 0 || budget <= 0 || a.config.BackfillProviders <= 0 || set.len() >= target {
		return
	}

	candidates := make([]int, 0, len(providers))
	for i := range providers {
		if !failed[i] {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return providers[candidates[i]].Weight > providers[candidates[j]].Weight
	})
	if len(candidates) > a.config.BackfillProviders {
		candidates = candidates[:a.config.BackfillProviders]
	}

	requestID := types.RequestID(ctx)

	for page := 2; budget > 0 && len(candidates) > 0 && set.len() < target; page++ {
		round := candidates
		if len(round) > budget {
			round = round[:budget]
		}
		budget -= len(round)

		pageOpts := opts
		pageOpts.Page = page

		outcomes := a.fetchAll(ctx, providers, round, query, pageOpts)

		added := 0
		survivors := make([]int, 0, len(round))
		for i, outcome := range outcomes {
			index := round[i]
			if outcome.Failed() {
				a.logger.Warn("Backfill call failed",
					zap.String("request_id", requestID),
					zap.String("provider", outcome.Provider),
					zap.Int("page", page),
					zap.Error(outcome.Err))
				continue
			}
			added += set.add(index, providers[index], factors[index], outcome.Items, positions[index])
			positions[index] += len(outcome.Items)
			survivors = append(survivors, index)
		}

		a.logger.Debug("Backfill round completed",
			zap.String("request_id", requestID),
			zap.Int("page", page),
			zap.Int("calls", len(round)),
			zap.Int("added", added),
			zap.Int("total", set.len()),
			zap.Int("budget_left", budget))

		if added == 0 {
			return
		}
		candidates = survivors
	}
}

// fetchAll calls providers[indexes...] concurrently. A failing provider never
// cancels its siblings, so the group is not bound to a shared context.
func (a *Aggregator) fetchAll(ctx context.Context, providers []Provider, indexes []int, query string, opts types.SearchOptions) []types.ProviderOutcome {
	outcomes := make([]types.ProviderOutcome, len(indexes))

	var g errgroup.Group
	for i, index := range indexes {
		i, provider := i, providers[index]
		g.Go(func() error {
			outcomes[i] = a.call(ctx, provider, query, opts)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (a *Aggregator) call(ctx context.Context, provider Provider, query string, opts types.SearchOptions) types.ProviderOutcome {
	start := time.Now()
	attempts := 0

	items, err := a.breakerFor(provider.Name).Execute(func() ([]types.ResultItem, error) {
		return client.Do(ctx, a.executor, provider.Name, func(ctx context.Context) ([]types.ResultItem, error) {
			attempts++
			return safeFetch(ctx, provider, query, opts)
		})
	})

	outcome := types.ProviderOutcome{
		Provider: provider.Name,
		Weight:   provider.Weight,
		Items:    items,
		Err:      err,
		Attempts: attempts,
		Duration: time.Since(start),
	}

	a.recordCall(outcome)
	return outcome
}

func safeFetch(ctx context.Context, provider Provider, query string, opts types.SearchOptions) (items []types.ResultItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = types.Errorf(types.ErrProviderPanic, "%s: %v\n%s", provider.Name, r, debug.Stack())
		}
	}()

	return provider.Fetcher.Fetch(ctx, query, opts)
}

func (a *Aggregator) breakerFor(name string) *client.Breaker[[]types.ResultItem] {
	if a.breakerConfig == nil || !a.breakerConfig.Enabled {
		return nil
	}

	a.breakersMu.Lock()
	defer a.breakersMu.Unlock()

	breaker, exists := a.breakers[name]
	if !exists {
		breaker = client.NewBreaker[[]types.ResultItem](name, a.breakerConfig, a.logger)
		a.breakers[name] = breaker
	}
	return breaker
}

// BreakerStates reports the circuit state of every provider called so far.
func (a *Aggregator) BreakerStates() map[string]string {
	a.breakersMu.Lock()
	defer a.breakersMu.Unlock()

	states := make(map[string]string, len(a.breakers))
	for name, breaker := range a.breakers {
		states[name] = breaker.State()
	}
	return states
}

func (a *Aggregator) jitterFor(category types.Category) Jitter {
	if j, exists := a.jitter[category]; exists && j != nil {
		return j
	}
	return NoJitter{}
}

func (a *Aggregator) recordCall(outcome types.ProviderOutcome) {
	result := outcomeSuccess
	switch {
	case types.IsError(outcome.Err, types.ErrCircuitOpen):
		result = outcomeCircuitOpen
	case outcome.Failed():
		result = outcomeFailure
	case len(outcome.Items) == 0:
		result = outcomeEmpty
	}

	a.metrics.Counter("provider_calls_total", map[string]string{
		"provider": outcome.Provider,
		"outcome":  result,
	}).Inc()

	a.metrics.Histogram("provider_call_duration_seconds",
		[]float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		map[string]string{"provider": outcome.Provider},
	).Observe(outcome.Duration.Seconds())
}
