package aggregator

import (
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/saiset-co/sai-aggregator/types"
)

// Provider is one registered source. Weight is fixed at registration.
type Provider struct {
	Name    string        `validate:"required"`
	Weight  float64       `validate:"gt=0"`
	Fetcher types.Fetcher `validate:"required"`
}

// Registry holds the providers of every category in registration order.
type Registry struct {
	validate  *validator.Validate
	providers map[types.Category][]Provider
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		validate:  validator.New(),
		providers: make(map[types.Category][]Provider),
	}
}

func (r *Registry) Register(category types.Category, provider Provider) error {
	if !category.Valid() {
		return types.Errorf(types.ErrCategoryUnknown, "category: %s", category)
	}

	if err := r.validateProvider(provider); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.providers[category] {
		if existing.Name == provider.Name {
			return types.Errorf(types.ErrProviderDuplicate, "provider %s in category %s", provider.Name, category)
		}
	}

	r.providers[category] = append(r.providers[category], provider)
	return nil
}

// Providers returns a copy; callers may not reorder the registry.
func (r *Registry) Providers(category types.Category) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, len(r.providers[category]))
	copy(providers, r.providers[category])
	return providers
}

func (r *Registry) Has(category types.Category) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers[category]) > 0
}

// Validate fails for the first category that has nothing registered.
func (r *Registry) Validate(categories ...types.Category) error {
	for _, category := range categories {
		if !r.Has(category) {
			return types.Errorf(types.ErrNoProviders, "category: %s", category)
		}
	}
	return nil
}

func (r *Registry) validateProvider(provider Provider) error {
	err := r.validate.Struct(provider)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return types.WrapError(err, "invalid provider")
	}

	switch validationErrors[0].Field() {
	case "Name":
		return types.ErrProviderNameEmpty
	case "Weight":
		return types.Errorf(types.ErrProviderWeightInvalid, "provider %s weight %v", provider.Name, provider.Weight)
	case "Fetcher":
		return types.Errorf(types.ErrProviderFetcherNil, "provider %s", provider.Name)
	default:
		return types.WrapError(err, "invalid provider")
	}
}
