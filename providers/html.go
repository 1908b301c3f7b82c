package providers

import (
	"bytes"
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/types"
)

var defaultSelectors = map[string]string{
	"result":  ".result",
	"title":   "h3",
	"link":    "a[href]",
	"snippet": "p",
}

// HTMLScraper reads a results page with configurable CSS selectors.
type HTMLScraper struct {
	base
	selectors map[string]string
}

func NewHTMLScraper(config types.ProviderConfig, transport Transport, logger types.Logger) *HTMLScraper {
	selectors := make(map[string]string, len(defaultSelectors))
	for name, selector := range defaultSelectors {
		selectors[name] = selector
	}
	for name, selector := range config.Selectors {
		if strings.TrimSpace(selector) != "" {
			selectors[name] = selector
		}
	}

	return &HTMLScraper{
		base:      base{logger: logger, config: config, transport: transport},
		selectors: selectors,
	}
}

func (h *HTMLScraper) Fetch(ctx context.Context, query string, opts types.SearchOptions) ([]types.ResultItem, error) {
	params := configParams(h.config.Params)
	if !strings.Contains(h.config.BaseURL, pagePlaceholder) && opts.Page > 1 {
		params.Set("page", strconv.Itoa(opts.Page))
	}

	uri, err := buildURL(h.config.BaseURL, "q", query, opts.Page, params)
	if err != nil {
		return nil, err
	}

	resp, err := h.get(ctx, uri)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, types.NewParseError(h.config.Name, err)
	}

	pageURL, _ := url.Parse(uri)
	results := doc.Find(h.selectors["result"])
	n := results.Length()

	items := make([]types.ResultItem, 0, n)
	results.Each(func(i int, s *goquery.Selection) {
		link := s.Find(h.selectors["link"]).First()
		href, exists := link.Attr("href")
		if !exists {
			return
		}

		target := resolveURL(pageURL, href)
		if target == "" {
			return
		}

		title := collapse(s.Find(h.selectors["title"]).First().Text())
		if title == "" {
			title = collapse(link.Text())
		}

		items = append(items, types.ResultItem{
			Title:    title,
			URL:      target,
			Snippet:  collapse(s.Find(h.selectors["snippet"]).First().Text()),
			RawScore: positionScore(i, n),
		})
	})

	h.logger.Debug("HTML results scraped",
		zap.String("provider", h.config.Name),
		zap.Int("page", opts.Page),
		zap.Int("matched", n),
		zap.Int("results", len(items)))

	return items, nil
}

func resolveURL(pageURL *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if pageURL != nil {
		ref = pageURL.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// plainText strips markup from an HTML fragment.
func plainText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return collapse(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	return collapse(doc.Text())
}
