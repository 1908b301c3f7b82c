package aggregator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-aggregator/types"
)

func noopFetcher() types.Fetcher {
	return types.FetcherFunc(func(ctx context.Context, query string, opts types.SearchOptions) ([]types.ResultItem, error) {
		return nil, nil
	})
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(types.CategoryWeb, Provider{Name: "a", Weight: 1.5, Fetcher: noopFetcher()}))
	require.NoError(t, registry.Register(types.CategoryWeb, Provider{Name: "b", Weight: 1, Fetcher: noopFetcher()}))
	require.NoError(t, registry.Register(types.CategoryNews, Provider{Name: "a", Weight: 1, Fetcher: noopFetcher()}))

	providers := registry.Providers(types.CategoryWeb)
	require.Len(t, providers, 2)
	assert.Equal(t, "a", providers[0].Name)
	assert.Equal(t, "b", providers[1].Name)
}

func TestRegistry_RejectsInvalidProviders(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(types.CategoryWeb, Provider{Name: "a", Weight: 1, Fetcher: noopFetcher()}))

	tests := []struct {
		name     string
		category types.Category
		provider Provider
		want     error
	}{
		{name: "empty name", category: types.CategoryWeb, provider: Provider{Weight: 1, Fetcher: noopFetcher()}, want: types.ErrProviderNameEmpty},
		{name: "zero weight", category: types.CategoryWeb, provider: Provider{Name: "z", Fetcher: noopFetcher()}, want: types.ErrProviderWeightInvalid},
		{name: "negative weight", category: types.CategoryWeb, provider: Provider{Name: "n", Weight: -1, Fetcher: noopFetcher()}, want: types.ErrProviderWeightInvalid},
		{name: "nil fetcher", category: types.CategoryWeb, provider: Provider{Name: "f", Weight: 1}, want: types.ErrProviderFetcherNil},
		{name: "duplicate", category: types.CategoryWeb, provider: Provider{Name: "a", Weight: 2, Fetcher: noopFetcher()}, want: types.ErrProviderDuplicate},
		{name: "unknown category", category: types.Category("music"), provider: Provider{Name: "m", Weight: 1, Fetcher: noopFetcher()}, want: types.ErrCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.Register(tt.category, tt.provider)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Len(t, registry.Providers(types.CategoryWeb), 1)
}

func TestRegistry_Validate(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(types.CategoryWeb, Provider{Name: "a", Weight: 1, Fetcher: noopFetcher()}))

	assert.NoError(t, registry.Validate(types.CategoryWeb))
	assert.ErrorIs(t, registry.Validate(types.CategoryWeb, types.CategoryImages), types.ErrNoProviders)
}

func TestSeededJitter(t *testing.T) {
	a := NewSeededJitter(42, 0.2)
	b := NewSeededJitter(42, 0.2)

	for i := 0; i < 100; i++ {
		fa := a.Factor("p")
		assert.Equal(t, fa, b.Factor("p"))
		assert.GreaterOrEqual(t, fa, 0.8)
		assert.LessOrEqual(t, fa, 1.2)
	}

	assert.Equal(t, 1.0, NoJitter{}.Factor("p"))
}
