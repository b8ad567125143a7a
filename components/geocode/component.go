package geocode

import "net/http"

// Component bundles the autocomplete handler, its configuration and its
// cache so routes share one result cache.
type Component struct {
	opts   Options
	lookup *Lookup
}

// New constructs a component with default options plus any overrides.
func New(fns ...OptionFn) *Component {
	opts := NewOptions(fns...)
	return &Component{opts: opts, lookup: NewLookup(opts)}
}

// Options returns a copy of the component configuration.
func (c *Component) Options() Options {
	return c.opts
}

// Lookup exposes the cached lookup for non-HTTP callers.
func (c *Component) Lookup() *Lookup {
	return c.lookup
}

// Handler returns a net/http handler for autocomplete queries.
func (c *Component) Handler() http.Handler {
	return handlerFor(c.lookup, c.opts)
}

// RegisterRoutes registers the component handler under basePath on mux.
func (c *Component) RegisterRoutes(mux Mux, basePath string) (string, error) {
	if mux == nil {
		return "", errMissingMux
	}
	pattern := mountPath(basePath, c.opts.RoutePath)
	mux.Handle(pattern, c.Handler())
	return pattern, nil
}
