package cache

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/saiset-co/sai-aggregator/types"
	"github.com/saiset-co/sai-aggregator/utils"
)

const extraPrefix = "x."

// BuildKey derives the cache key for one aggregation request. Equivalent
// requests (case, spacing, option order, empty extras) collapse to the same
// key; any option that can change the result set is part of it.
func BuildKey(category types.Category, query string, opts types.SearchOptions) string {
	opts = opts.Normalized()

	values := url.Values{}
	values.Set("q", utils.NormalizeQuery(query))
	values.Set("page", strconv.Itoa(opts.Page))
	values.Set("safe", strconv.Itoa(opts.SafeSearch))

	for name, value := range opts.Extra {
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		values.Set(extraPrefix+name, value)
	}

	return string(category) + ":" + values.Encode()
}
