package providers

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/types"
	"github.com/saiset-co/sai-aggregator/utils"
)

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	Engine        string  `json:"engine"`
	ImgSrc        string  `json:"img_src"`
	Thumbnail     string  `json:"thumbnail"`
	PublishedDate string  `json:"publishedDate"`
	Duration      string  `json:"duration"`
}

// JSONSearch talks to a SearXNG-compatible JSON search API.
type JSONSearch struct {
	base
}

func NewJSONSearch(config types.ProviderConfig, transport Transport, logger types.Logger) *JSONSearch {
	return &JSONSearch{base: base{logger: logger, config: config, transport: transport}}
}

func (j *JSONSearch) Fetch(ctx context.Context, query string, opts types.SearchOptions) ([]types.ResultItem, error) {
	params := configParams(j.config.Params)
	params.Set("format", "json")
	params.Set("pageno", strconv.Itoa(opts.Page))
	params.Set("safesearch", strconv.Itoa(opts.SafeSearch))
	if params.Get("categories") == "" {
		params.Set("categories", searchCategory(j.config.Category))
	}
	for key, value := range opts.Extra {
		params.Set(key, value)
	}

	uri, err := buildURL(j.config.BaseURL, "q", query, opts.Page, params)
	if err != nil {
		return nil, err
	}

	resp, err := j.get(ctx, uri)
	if err != nil {
		return nil, err
	}

	var decoded searchResponse
	if err := utils.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, types.NewParseError(j.config.Name, err)
	}

	items := make([]types.ResultItem, 0, len(decoded.Results))
	for _, result := range decoded.Results {
		if strings.TrimSpace(result.URL) == "" {
			continue
		}

		items = append(items, types.ResultItem{
			Title:    strings.TrimSpace(result.Title),
			URL:      result.URL,
			Snippet:  strings.TrimSpace(result.Content),
			RawScore: result.Score,
			Extras:   searchExtras(result),
		})
	}

	j.logger.Debug("JSON search fetched",
		zap.String("provider", j.config.Name),
		zap.Int("page", opts.Page),
		zap.Int("results", len(items)))

	return items, nil
}

func searchExtras(result searchResult) map[string]interface{} {
	extras := make(map[string]interface{})
	if result.Engine != "" {
		extras["engine"] = result.Engine
	}
	if result.ImgSrc != "" {
		extras["img_src"] = result.ImgSrc
	}
	if result.Thumbnail != "" {
		extras["thumbnail"] = result.Thumbnail
	}
	if result.PublishedDate != "" {
		extras["published"] = result.PublishedDate
	}
	if result.Duration != "" {
		extras["duration"] = result.Duration
	}
	if len(extras) == 0 {
		return nil
	}
	return extras
}

func searchCategory(category types.Category) string {
	switch category {
	case types.CategoryWeb:
		return "general"
	default:
		return string(category)
	}
}
