package types

import (
	"context"
	"time"
)

type Category string

const (
	CategoryWeb     Category = "web"
	CategoryImages  Category = "images"
	CategoryVideos  Category = "videos"
	CategoryNews    Category = "news"
	CategoryWeather Category = "weather"
)

var Categories = []Category{CategoryWeb, CategoryImages, CategoryVideos, CategoryNews, CategoryWeather}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

const (
	SafeSearchOff      = 0
	SafeSearchModerate = 1
	SafeSearchStrict   = 2
)

// SearchOptions carries the per-request knobs handed to every provider.
// Extra holds category-specific options (e.g. image size, news region).
type SearchOptions struct {
	Page       int               `json:"page"`
	SafeSearch int               `json:"safe_search"`
	Extra      map[string]string `json:"extra,omitempty"`
}

func (o SearchOptions) Normalized() SearchOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.SafeSearch < SafeSearchOff {
		o.SafeSearch = SafeSearchOff
	}
	if o.SafeSearch > SafeSearchStrict {
		o.SafeSearch = SafeSearchStrict
	}
	return o
}

// ResultItem is the common shape every provider result is reduced to.
// Category-specific attributes live in Extras and are carried through untouched.
type ResultItem struct {
	Title         string                 `json:"title"`
	URL           string                 `json:"url"`
	Snippet       string                 `json:"snippet"`
	DisplayDomain string                 `json:"display_domain"`
	Provider      string                 `json:"provider"`
	Weight        float64                `json:"weight"`
	RawScore      float64                `json:"raw_score,omitempty"`
	Score         float64                `json:"score"`
	Category      Category               `json:"category"`
	Extras        map[string]interface{} `json:"extras,omitempty"`
}

type ProviderError struct {
	Provider string `json:"provider"`
	Message  string `json:"message"`
}

// ProviderOutcome is the result of one provider call, consumed by the merge step.
type ProviderOutcome struct {
	Provider string
	Weight   float64
	Items    []ResultItem
	Err      error
	Attempts int
	Duration time.Duration
}

func (o ProviderOutcome) Failed() bool {
	return o.Err != nil
}

// AggregateResult is the payload stored in the cache for one key.
type AggregateResult struct {
	Items          []ResultItem    `json:"items"`
	Total          int             `json:"total"`
	ProviderErrors []ProviderError `json:"provider_errors"`
}

type SearchResponse struct {
	Category       Category        `json:"category"`
	Query          string          `json:"query"`
	Page           int             `json:"page"`
	Items          []ResultItem    `json:"items"`
	Total          int             `json:"total"`
	FromCache      bool            `json:"from_cache"`
	ProviderErrors []ProviderError `json:"provider_errors"`
}

// Fetcher is the provider adapter contract. Returning zero items with a nil
// error is a successful, empty answer.
type Fetcher interface {
	Fetch(ctx context.Context, query string, opts SearchOptions) ([]ResultItem, error)
}

type FetcherFunc func(ctx context.Context, query string, opts SearchOptions) ([]ResultItem, error)

func (f FetcherFunc) Fetch(ctx context.Context, query string, opts SearchOptions) ([]ResultItem, error) {
	return f(ctx, query, opts)
}

type Clock interface {
	Now() time.Time
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
