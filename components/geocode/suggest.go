package geocode

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/goliatone/go-rentreport/pkg/cache"
	"github.com/goliatone/go-rentreport/pkg/client"
)

// Suggester is the geocoding service. *client.Geocoder satisfies it.
type Suggester interface {
	Suggest(ctx context.Context, query string, limit int) ([]client.Suggestion, error)
}

// SuggesterFunc adapts a function into a Suggester.
type SuggesterFunc func(ctx context.Context, query string, limit int) ([]client.Suggestion, error)

func (fn SuggesterFunc) Suggest(ctx context.Context, query string, limit int) ([]client.Suggestion, error) {
	return fn(ctx, query, limit)
}

var _ Suggester = (*client.Geocoder)(nil)

// Lookup answers autocomplete queries through a result cache.
type Lookup struct {
	opts  Options
	cache *cache.Cache[[]client.Suggestion]
}

// NewLookup builds a Lookup from pre-built options.
func NewLookup(opts Options) *Lookup {
	return &Lookup{
		opts: opts,
		cache: cache.New[[]client.Suggestion]("geocode",
			cache.WithTTL(opts.CacheTTL),
			cache.WithClock(opts.Clock),
			cache.WithLogger(opts.Logger),
		),
	}
}

// Suggest returns up to limit suggestions for query. Short queries and a
// zero limit return nil without calling the source.
func (l *Lookup) Suggest(ctx context.Context, query string, limit int) ([]client.Suggestion, error) {
	limit = clampLimit(limit, l.opts)
	query = NormalizeQuery(query)
	if limit == 0 || query == "" || utf8.RuneCountInString(query) < l.opts.MinQueryLength {
		return nil, nil
	}
	if l.opts.Source == nil {
		return nil, ErrNoSource
	}

	results, err := l.cache.GetOrLoad(ctx, cacheKey(query, limit), func(ctx context.Context) ([]client.Suggestion, error) {
		return l.opts.Source.Suggest(ctx, query, limit)
	})
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Invalidate drops every cached query.
func (l *Lookup) Invalidate() { l.cache.Purge() }

// NormalizeQuery lowercases query and collapses its whitespace.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func cacheKey(query string, limit int) string {
	return strconv.Itoa(limit) + ":" + query
}
