package geocode

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/pkg/clock"
)

type GuardFunc func(r *http.Request) error

type Options struct {
	RoutePath      string
	SearchParam    string
	LimitParam     string
	DefaultLimit   int
	MaxLimit       int
	MinQueryLength int
	CacheTTL       time.Duration
	Guard          GuardFunc

	Source Suggester
	Clock  clock.Clock
	Logger *zap.Logger
}

type OptionFn func(*Options)

func DefaultOptions() Options {
	return Options{
		RoutePath:      "/api/geocode",
		SearchParam:    "q",
		LimitParam:     "limit",
		DefaultLimit:   5,
		MaxLimit:       10,
		MinQueryLength: 3,
		CacheTTL:       10 * time.Minute,
	}
}

func NewOptions(fns ...OptionFn) Options {
	opts := DefaultOptions()
	for _, fn := range fns {
		if fn == nil {
			continue
		}
		fn(&opts)
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 5
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 10
	}
	if opts.MinQueryLength < 0 {
		opts.MinQueryLength = 0
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.RoutePath == "" {
		opts.RoutePath = "/api/geocode"
	}
	if opts.SearchParam == "" {
		opts.SearchParam = "q"
	}
	if opts.LimitParam == "" {
		opts.LimitParam = "limit"
	}
	opts.Clock = clock.OrSystem(opts.Clock)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return opts
}

func WithRoutePath(path string) OptionFn {
	return func(o *Options) { o.RoutePath = path }
}

func WithSearchParam(name string) OptionFn {
	return func(o *Options) { o.SearchParam = name }
}

func WithLimitParam(name string) OptionFn {
	return func(o *Options) { o.LimitParam = name }
}

func WithDefaultLimit(limit int) OptionFn {
	return func(o *Options) { o.DefaultLimit = limit }
}

func WithMaxLimit(limit int) OptionFn {
	return func(o *Options) { o.MaxLimit = limit }
}

func WithMinQueryLength(n int) OptionFn {
	return func(o *Options) { o.MinQueryLength = n }
}

func WithCacheTTL(ttl time.Duration) OptionFn {
	return func(o *Options) { o.CacheTTL = ttl }
}

func WithGuard(guard GuardFunc) OptionFn {
	return func(o *Options) { o.Guard = guard }
}

// WithSource sets the geocoding service queried on cache misses.
func WithSource(source Suggester) OptionFn {
	return func(o *Options) { o.Source = source }
}

func WithClock(c clock.Clock) OptionFn {
	return func(o *Options) { o.Clock = c }
}

func WithLogger(l *zap.Logger) OptionFn {
	return func(o *Options) { o.Logger = l }
}

func clampLimit(limit int, opts Options) int {
	if limit < 0 {
		return 0
	}
	if limit == 0 {
		limit = opts.DefaultLimit
	}
	if opts.MaxLimit > 0 && limit > opts.MaxLimit {
		return opts.MaxLimit
	}
	return limit
}
