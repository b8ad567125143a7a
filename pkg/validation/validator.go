// Package validation evaluates form values against a FormModel: per-field
// rules first (incrementally or for the whole form), then the form's
// cross-field refinements once every field passes.
package validation

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/pkg/clock"
	"github.com/goliatone/go-rentreport/pkg/condition"
	"github.com/goliatone/go-rentreport/pkg/condition/expr"
	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/rules"
)

// Stage reports where validation stopped.
type Stage string

const (
	StageNone        Stage = ""
	StageFields      Stage = "fields"
	StageRefinements Stage = "refinements"
)

// Result captures a holistic validation outcome.
type Result struct {
	Valid  bool         `json:"valid"`
	Stage  Stage        `json:"stage,omitempty"`
	Errors model.Errors `json:"errors,omitempty"`
}

// Validator evaluates field rules and refinements.
type Validator struct {
	clock     clock.Clock
	evaluator condition.Evaluator
	rules     *rules.Registry
	logger    *zap.Logger

	mu       sync.Mutex
	patterns map[string]patternEntry
}

// Option customises a Validator.
type Option func(*Validator)

// WithClock sets the time source for now-relative rules.
func WithClock(c clock.Clock) Option {
	return func(v *Validator) {
		if c != nil {
			v.clock = c
		}
	}
}

// WithEvaluator sets the requiredWhen condition evaluator.
func WithEvaluator(e condition.Evaluator) Option {
	return func(v *Validator) {
		if e != nil {
			v.evaluator = e
		}
	}
}

// WithRules sets the refinement registry.
func WithRules(r *rules.Registry) Option {
	return func(v *Validator) {
		if r != nil {
			v.rules = r
		}
	}
}

// WithLogger sets the logger used for configuration problems.
func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// New builds a Validator with the system clock, the expression evaluator and
// the default refinements.
func New(opts ...Option) *Validator {
	v := &Validator{
		clock:     clock.System(),
		evaluator: expr.New(),
		rules:     rules.Defaults(),
		logger:    zap.NewNop(),
		patterns:  make(map[string]patternEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Validate runs every field rule and, when they all pass, the form's
// refinements. Refinement configuration errors are returned as errors.
func (v *Validator) Validate(form model.FormModel, values model.Values) (Result, error) {
	if errs := v.ValidateFields(form, values); len(errs) > 0 {
		return Result{Stage: StageFields, Errors: errs}, nil
	}
	errs, err := v.Refine(form, values)
	if err != nil {
		return Result{}, err
	}
	if len(errs) > 0 {
		return Result{Stage: StageRefinements, Errors: errs}, nil
	}
	return Result{Valid: true}, nil
}

// ValidateRaw normalizes loosely typed input and validates it. Conversion
// errors are reported at the fields stage alongside rule violations.
func (v *Validator) ValidateRaw(form model.FormModel, raw map[string]any) (model.Values, Result, error) {
	values, coerceErrs := model.Normalize(form, raw)
	if len(coerceErrs) > 0 {
		errs := model.Errors{}.Merge(coerceErrs).Merge(v.ValidateFields(form, values))
		return values, Result{Stage: StageFields, Errors: errs}, nil
	}
	result, err := v.Validate(form, values)
	return values, result, err
}

// ValidateFields evaluates every field rule, including each section entry.
func (v *Validator) ValidateFields(form model.FormModel, values model.Values) model.Errors {
	errs := model.Errors{}
	now := v.clock.Now()
	for _, field := range form.Fields {
		v.checkTree(field, field.Name, condition.FormScope(values), now, errs)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateField evaluates the rules of a single field path, for example
// "email" or "history.1.endDate". It returns the message for the first
// violated rule, or the empty string.
func (v *Validator) ValidateField(form model.FormModel, values model.Values, path string) (string, error) {
	field, ok := form.Lookup(path)
	if !ok {
		return "", fmt.Errorf("validation: field %q not found in form %q", path, form.ID)
	}
	scope := condition.FormScope(values)
	segments := model.SplitPath(path)
	if len(segments) >= 3 {
		if idx, ok := model.ParseIndex(segments[len(segments)-2]); ok {
			entries := values.Entries(model.JoinPath(segments[:len(segments)-2]...))
			if idx < len(entries) {
				scope = condition.EntryScope(values, entries[idx])
			}
		}
	}

	errs := model.Errors{}
	v.checkTree(field, model.JoinPath(segments...), scope, v.clock.Now(), errs)
	return errs[model.JoinPath(segments...)], nil
}

// Refine runs the form's cross-field refinements.
func (v *Validator) Refine(form model.FormModel, values model.Values) (model.Errors, error) {
	now := v.clock.Now()
	var errs model.Errors
	for _, ref := range form.Refinements {
		refiner, err := v.rules.Build(ref)
		if err != nil {
			v.logger.Error("refinement misconfigured",
				zap.String("form", form.ID),
				zap.String("rule", ref.Rule),
				zap.Error(err),
			)
			return nil, fmt.Errorf("validation: form %q: %w", form.ID, err)
		}
		errs = errs.Merge(refiner.Refine(values, now))
	}
	return errs, nil
}

// checkTree validates field and, for sections, every entry beneath it.
func (v *Validator) checkTree(field model.Field, path string, scope condition.Scope, now time.Time, errs model.Errors) {
	value, _ := scope.Local.Get(field.Name)
	if message := v.checkField(field, value, scope, now); message != "" {
		errs[path] = message
		return
	}
	if field.Kind != model.KindSection {
		return
	}
	entries, _ := value.([]model.Values)
	for idx, entry := range entries {
		entryScope := condition.EntryScope(scope.Form, entry)
		for _, child := range field.Fields {
			v.checkTree(child, model.EntryPath(path, idx, child.Name), entryScope, now, errs)
		}
	}
}
