package providers

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/aggregator"
	"github.com/saiset-co/sai-aggregator/client"
	"github.com/saiset-co/sai-aggregator/types"
)

const (
	TypeJSON = "json"
	TypeHTML = "html"
	TypeRSS  = "rss"
)

const (
	queryPlaceholder = "{query}"
	pagePlaceholder  = "{page}"
)

// Transport is the outbound GET the adapters share; *client.HTTPClient satisfies it.
type Transport interface {
	Get(ctx context.Context, uri string, headers map[string]string) (*client.Response, error)
}

func New(config types.ProviderConfig, transport Transport, logger types.Logger) (types.Fetcher, error) {
	switch config.Type {
	case TypeJSON:
		return NewJSONSearch(config, transport, logger), nil
	case TypeHTML:
		return NewHTMLScraper(config, transport, logger), nil
	case TypeRSS:
		return NewRSSFeed(config, transport, logger), nil
	default:
		return nil, types.Errorf(types.ErrProviderTypeUnknown, "provider %s type %q", config.Name, config.Type)
	}
}

// RegisterAll builds every enabled adapter and registers it under its category.
func RegisterAll(registry *aggregator.Registry, configs []types.ProviderConfig, transport Transport, logger types.Logger) error {
	for _, config := range configs {
		if config.Disabled {
			logger.Info("Provider disabled, skipping", zap.String("provider", config.Name))
			continue
		}

		fetcher, err := New(config, transport, logger)
		if err != nil {
			return err
		}

		provider := aggregator.Provider{
			Name:    config.Name,
			Weight:  config.Weight,
			Fetcher: fetcher,
		}
		if err := registry.Register(config.Category, provider); err != nil {
			return types.WrapError(err, "failed to register provider "+config.Name)
		}

		logger.Debug("Provider registered",
			zap.String("provider", config.Name),
			zap.String("type", config.Type),
			zap.String("category", string(config.Category)),
			zap.Float64("weight", config.Weight))
	}

	return nil
}

type base struct {
	logger    types.Logger
	config    types.ProviderConfig
	transport Transport
}

func (b *base) get(ctx context.Context, uri string) (*client.Response, error) {
	resp, err := b.transport.Get(ctx, uri, b.config.Headers)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", b.config.Name)
	}
	return resp, nil
}

// buildURL fills {query} and {page} placeholders in the configured base URL
// and merges params into its query string. When the template has no {query}
// placeholder the query goes into queryParam.
func buildURL(baseURL, queryParam, query string, page int, params url.Values) (string, error) {
	templated := strings.Contains(baseURL, queryPlaceholder)

	raw := strings.ReplaceAll(baseURL, queryPlaceholder, url.QueryEscape(query))
	raw = strings.ReplaceAll(raw, pagePlaceholder, strconv.Itoa(page))

	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, "invalid provider url")
	}

	values := u.Query()
	for key, list := range params {
		for _, value := range list {
			values.Set(key, value)
		}
	}
	if !templated && queryParam != "" {
		values.Set(queryParam, query)
	}

	u.RawQuery = values.Encode()
	return u.String(), nil
}

// positionScore ranks the i-th of n results in (1, 2]; earlier is higher.
func positionScore(i, n int) float64 {
	if n <= 0 {
		return 1
	}
	return 1 + float64(n-i)/float64(n)
}

func configParams(params map[string]string) url.Values {
	values := url.Values{}
	for key, value := range params {
		values.Set(key, value)
	}
	return values
}
