// Package rules holds the cross-field refinements that run once every
// individual field rule has passed: password confirmation, minimum age,
// relative month windows, rental periods and the overall history span.
package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-rentreport/pkg/model"
)

// Refiner checks a whole form and reports messages keyed by field path.
type Refiner interface {
	Refine(values model.Values, now time.Time) model.Errors
}

// RefinerFunc adapts a function into a Refiner.
type RefinerFunc func(values model.Values, now time.Time) model.Errors

// Refine calls the underlying function.
func (fn RefinerFunc) Refine(values model.Values, now time.Time) model.Errors {
	return fn(values, now)
}

// Factory builds a Refiner from the params declared on a form refinement.
type Factory func(params map[string]string) (Refiner, error)

// Registry maps refinement names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Defaults returns a registry with the built-in refinements.
func Defaults() *Registry {
	reg := NewRegistry()
	reg.MustRegister(PasswordMatch, newPasswordMatch)
	reg.MustRegister(MinAge, newMinAge)
	reg.MustRegister(DateWindow, newDateWindow)
	reg.MustRegister(RentalPeriod, newRentalPeriod)
	reg.MustRegister(HistorySpan, newHistorySpan)
	return reg
}

// Register adds a factory. Duplicate names return an error.
func (r *Registry) Register(name string, factory Factory) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("rules: refinement name is required")
	}
	if factory == nil {
		return fmt.Errorf("rules: factory for %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("rules: refinement %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister panics on registration failure.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Build instantiates the refinement declared on a form.
func (r *Registry) Build(ref model.Refinement) (Refiner, error) {
	r.mu.RLock()
	factory, ok := r.factories[ref.Rule]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("rules: refinement %q not registered", ref.Rule)
	}
	refiner, err := factory(ref.Params)
	if err != nil {
		return nil, fmt.Errorf("rules: %s: %w", ref.Rule, err)
	}
	return refiner, nil
}

// Names lists registered refinements in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type params map[string]string

func (p params) str(name, fallback string) string {
	if value := strings.TrimSpace(p[name]); value != "" {
		return value
	}
	return fallback
}

func (p params) int(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(p[name])
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("param %s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}
