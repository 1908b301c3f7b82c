package providers

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/types"
	"github.com/saiset-co/sai-aggregator/utils"
)

// RSSFeed turns a search feed (RSS or Atom) into news results. Feeds have no
// pages, so anything past the first page is empty.
type RSSFeed struct {
	base
}

func NewRSSFeed(config types.ProviderConfig, transport Transport, logger types.Logger) *RSSFeed {
	return &RSSFeed{base: base{logger: logger, config: config, transport: transport}}
}

func (r *RSSFeed) Fetch(ctx context.Context, query string, opts types.SearchOptions) ([]types.ResultItem, error) {
	if opts.Page > 1 {
		return nil, nil
	}

	uri, err := buildURL(r.config.BaseURL, "q", query, opts.Page, configParams(r.config.Params))
	if err != nil {
		return nil, err
	}

	resp, err := r.get(ctx, uri)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, types.NewParseError(r.config.Name, err)
	}

	n := len(feed.Items)
	items := make([]types.ResultItem, 0, n)
	for i, entry := range feed.Items {
		link := strings.TrimSpace(entry.Link)
		if link == "" {
			continue
		}

		extras := map[string]interface{}{}
		if published := entryTime(entry); !published.IsZero() {
			extras["published"] = published.UTC().Format(time.RFC3339)
		}
		if feed.Title != "" {
			extras["source"] = strings.TrimSpace(feed.Title)
		}
		if entry.Author != nil && entry.Author.Name != "" {
			extras["author"] = entry.Author.Name
		}
		if entry.Image != nil && entry.Image.URL != "" {
			extras["thumbnail"] = entry.Image.URL
		}

		items = append(items, types.ResultItem{
			Title:         collapse(entry.Title),
			URL:           link,
			Snippet:       utils.Truncate(plainText(entry.Description), 300),
			DisplayDomain: utils.Hostname(link),
			RawScore:      positionScore(i, n),
			Extras:        extras,
		})
	}

	r.logger.Debug("RSS feed fetched",
		zap.String("provider", r.config.Name),
		zap.String("feed", feed.Title),
		zap.Int("results", len(items)))

	return items, nil
}

func entryTime(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed
	}
	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed
	}
	return time.Time{}
}
