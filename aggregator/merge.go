package aggregator

import (
	"sort"
	"strings"

	"github.com/saiset-co/sai-aggregator/types"
	"github.com/saiset-co/sai-aggregator/utils"
)

type rankedItem struct {
	item          types.ResultItem
	providerIndex int
	position      int
}

// precedes reports whether a ranks ahead of b: higher score, then earlier
// provider registration, then earlier position within the provider.
func (a *rankedItem) precedes(b *rankedItem) bool {
	if a.item.Score != b.item.Score {
		return a.item.Score > b.item.Score
	}
	if a.providerIndex != b.providerIndex {
		return a.providerIndex < b.providerIndex
	}
	return a.position < b.position
}

// mergeSet accumulates provider output deduplicated by URL. The surviving
// occurrence of a URL is always the one that ranks first, so the result does
// not depend on the order outcomes are added in.
type mergeSet struct {
	category types.Category
	byURL    map[string]*rankedItem
}

func newMergeSet(category types.Category) *mergeSet {
	return &mergeSet{
		category: category,
		byURL:    make(map[string]*rankedItem),
	}
}

// add merges one provider's items, numbering them from startPosition. It
// returns how many previously unseen URLs were admitted.
func (m *mergeSet) add(providerIndex int, provider Provider, factor float64, items []types.ResultItem, startPosition int) int {
	added := 0

	for i, item := range items {
		key := strings.TrimSpace(item.URL)
		if key == "" {
			continue
		}

		candidate := &rankedItem{
			item:          m.decorate(item, key, provider, factor),
			providerIndex: providerIndex,
			position:      startPosition + i,
		}

		existing, seen := m.byURL[key]
		if !seen {
			m.byURL[key] = candidate
			added++
			continue
		}

		if candidate.precedes(existing) {
			m.byURL[key] = candidate
		}
	}

	return added
}

func (m *mergeSet) decorate(item types.ResultItem, url string, provider Provider, factor float64) types.ResultItem {
	item.URL = url
	item.Provider = provider.Name
	item.Weight = provider.Weight
	item.Category = m.category
	item.Score = weightScore(provider.Weight, factor, item.RawScore)
	if item.DisplayDomain == "" {
		item.DisplayDomain = utils.Hostname(url)
	}
	return item
}

func (m *mergeSet) len() int {
	return len(m.byURL)
}

func (m *mergeSet) sorted() []types.ResultItem {
	ranked := make([]*rankedItem, 0, len(m.byURL))
	for _, entry := range m.byURL {
		ranked = append(ranked, entry)
	}

	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].precedes(ranked[j])
	})

	items := make([]types.ResultItem, len(ranked))
	for i, entry := range ranked {
		items[i] = entry.item
	}
	return items
}

func weightScore(weight, factor, rawScore float64) float64 {
	if rawScore < 1 {
		rawScore = 1
	}
	return weight * factor * rawScore
}

// Merge ranks a fixed set of outcomes, given in registration order, exactly as
// Collect does for its primary round. factors may be nil for no jitter.
func Merge(category types.Category, outcomes []types.ProviderOutcome, factors []float64) []types.ResultItem {
	set := newMergeSet(category)

	for i, outcome := range outcomes {
		if outcome.Failed() {
			continue
		}

		factor := 1.0
		if i < len(factors) {
			factor = factors[i]
		}

		set.add(i, Provider{Name: outcome.Provider, Weight: outcome.Weight}, factor, outcome.Items, 0)
	}

	return set.sorted()
}

// Paginate returns the 1-based page of items. Pages past the end are empty, never nil.
func Paginate(items []types.ResultItem, page, pageSize int) []types.ResultItem {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	// compare in pages so a huge page number cannot overflow the offset
	pages := len(items) / pageSize
	if len(items)%pageSize != 0 {
		pages++
	}
	if page-1 >= pages {
		return []types.ResultItem{}
	}

	start := (page - 1) * pageSize
	end := len(items)
	if pageSize < end-start {
		end = start + pageSize
	}

	result := make([]types.ResultItem, end-start)
	copy(result, items[start:end])
	return result
}
