// Package formstate holds the state of one form being filled in: current
// values, dirty and touched flags, and the validation messages derived from
// the values on every change. A State is not safe for concurrent use.
package formstate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/validation"
)

// State is the Form State Container for a single form.
type State struct {
	form      model.FormModel
	validator *validation.Validator

	values    model.Values
	dirty     map[string]bool
	touched   map[string]bool
	errors    model.Errors
	submitted bool
}

// New creates a State seeded with the form's default values.
func New(form model.FormModel, validator *validation.Validator) *State {
	if validator == nil {
		validator = validation.New()
	}
	s := &State{form: form, validator: validator}
	s.Reset()
	return s
}

// Form returns the form definition backing the state.
func (s *State) Form() model.FormModel { return s.form }

// Reset discards every change and restores defaults.
func (s *State) Reset() {
	s.values = Defaults(s.form)
	s.dirty = map[string]bool{}
	s.touched = map[string]bool{}
	s.submitted = false
	s.recompute()
}

// Load replaces the values wholesale, for example with a restored draft.
func (s *State) Load(raw map[string]any) {
	values, _ := model.Normalize(s.form, raw)
	s.values = Defaults(s.form)
	for key, value := range values {
		s.values[key] = value
	}
	s.recompute()
}

// Set converts value to the field's kind and stores it. Values that cannot
// be converted are kept as entered and surface as field errors.
func (s *State) Set(path string, value any) error {
	field, ok := s.form.Lookup(path)
	if !ok {
		return fmt.Errorf("formstate: unknown field %q", path)
	}
	coerced, err := model.Coerce(field.Kind, value)
	if err != nil {
		coerced = value
	}
	if err := s.values.Set(path, coerced); err != nil {
		return fmt.Errorf("formstate: set %q: %w", path, err)
	}
	s.dirty[canonical(path)] = true
	s.recompute()
	return nil
}

// Touch marks a field as visited so its errors become visible.
func (s *State) Touch(path string) {
	s.touched[canonical(path)] = true
}

// Append adds an entry to a section, seeded with the section's default shape.
// It returns the index of the new entry.
func (s *State) Append(section string) (int, error) {
	field, ok := s.form.Field(section)
	if !ok || field.Kind != model.KindSection {
		return 0, fmt.Errorf("formstate: %q is not a section", section)
	}
	entries := s.values.Entries(section)
	if field.MaxItems > 0 && len(entries) >= field.MaxItems {
		return 0, fmt.Errorf("formstate: section %q allows at most %d entries", section, field.MaxItems)
	}
	entries = append(entries, entryDefaults(field))
	s.values.SetEntries(section, entries)
	s.recompute()
	return len(entries) - 1, nil
}

// Remove deletes the entry at idx. Later entries shift down one index and
// their dirty and touched flags move with them.
func (s *State) Remove(section string, idx int) error {
	field, ok := s.form.Field(section)
	if !ok || field.Kind != model.KindSection {
		return fmt.Errorf("formstate: %q is not a section", section)
	}
	entries := s.values.Entries(section)
	if idx < 0 || idx >= len(entries) {
		return fmt.Errorf("formstate: section %q has no entry %d", section, idx)
	}
	next := make([]model.Values, 0, len(entries)-1)
	next = append(next, entries[:idx]...)
	next = append(next, entries[idx+1:]...)
	s.values.SetEntries(section, next)

	s.dirty = reindex(s.dirty, section, idx)
	s.touched = reindex(s.touched, section, idx)
	s.recompute()
	return nil
}

// Values returns a copy of the current values.
func (s *State) Values() model.Values { return s.values.Clone() }

// Errors returns every current validation message.
func (s *State) Errors() model.Errors {
	out := make(model.Errors, len(s.errors))
	for path, message := range s.errors {
		out[path] = message
	}
	return out
}

// VisibleErrors returns the messages for touched fields, or all of them once
// a submit has been attempted.
func (s *State) VisibleErrors() model.Errors {
	out := model.Errors{}
	for path, message := range s.errors {
		if s.submitted || s.touched[path] {
			out[path] = message
		}
	}
	return out
}

// Dirty reports whether the field changed since the last reset.
func (s *State) Dirty(path string) bool { return s.dirty[canonical(path)] }

// Touched reports whether the field was visited.
func (s *State) Touched(path string) bool { return s.touched[canonical(path)] }

// IsDirty reports whether any field changed.
func (s *State) IsDirty() bool { return len(s.dirty) > 0 }

// Validate runs the holistic validation used before submission and marks the
// state as submitted so every error becomes visible.
func (s *State) Validate() (validation.Result, error) {
	s.submitted = true
	result, err := s.validator.Validate(s.form, s.values)
	if err != nil {
		return validation.Result{}, err
	}
	s.errors = model.Errors{}.Merge(result.Errors)
	return result, nil
}

func (s *State) recompute() {
	s.errors = model.Errors{}.Merge(s.validator.ValidateFields(s.form, s.values))
}

// Defaults builds the initial values of a form. Sections start with MinItems
// entries, or none.
func Defaults(form model.FormModel) model.Values {
	values := model.Values{}
	for _, field := range form.Fields {
		if field.Kind == model.KindSection {
			entries := make([]model.Values, 0, field.MinItems)
			for i := 0; i < field.MinItems; i++ {
				entries = append(entries, entryDefaults(field))
			}
			values.SetEntries(field.Name, entries)
			continue
		}
		if field.Default != nil {
			if coerced, err := model.Coerce(field.Kind, field.Default); err == nil && coerced != nil {
				values[field.Name] = coerced
			}
		}
	}
	return values
}

func entryDefaults(section model.Field) model.Values {
	entry := model.Values{}
	for _, child := range section.Fields {
		if child.Default == nil {
			continue
		}
		if coerced, err := model.Coerce(child.Kind, child.Default); err == nil && coerced != nil {
			entry[child.Name] = coerced
		}
	}
	return entry
}

func canonical(path string) string {
	return model.JoinPath(model.SplitPath(path)...)
}

// reindex drops flags of the removed entry and shifts later entries down.
func reindex(flags map[string]bool, section string, removed int) map[string]bool {
	out := make(map[string]bool, len(flags))
	prefix := section + "."
	for path, flag := range flags {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok {
			out[path] = flag
			continue
		}
		head, tail, _ := strings.Cut(rest, ".")
		idx, ok := model.ParseIndex(head)
		switch {
		case !ok:
			out[path] = flag
		case idx == removed:
		case idx > removed:
			out[model.JoinPath(section, strconv.Itoa(idx-1), tail)] = flag
		default:
			out[path] = flag
		}
	}
	return out
}
