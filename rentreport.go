// Package rentreport is the entry point of the rent reporting backend: form
// definitions, validation and the submission result types, re-exported from
// the packages that implement them.
package rentreport

import (
	"io/fs"

	"github.com/goliatone/go-rentreport/pkg/forms"
	"github.com/goliatone/go-rentreport/pkg/formstate"
	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/submit"
	"github.com/goliatone/go-rentreport/pkg/validation"
	"github.com/goliatone/go-rentreport/pkg/views"
)

// FormModel is a form definition.
type FormModel = model.FormModel

// Values holds the values of one form, sections as lists of entries.
type Values = model.Values

// Errors maps dotted field paths to messages.
type Errors = model.Errors

// Result is produced once per submit attempt.
type Result = submit.Result

// ValidationResult is the outcome of validating a form's values.
type ValidationResult = validation.Result

// Forms loads the bundled form definitions.
func Forms() (*forms.Registry, error) {
	return forms.Default()
}

// NewValidator builds a validator with the default rule registry.
func NewValidator(options ...validation.Option) *validation.Validator {
	return validation.New(options...)
}

// NewFormState opens a Form State Container over form.
func NewFormState(form FormModel, validator *validation.Validator) *formstate.State {
	return formstate.New(form, validator)
}

// Validate coerces raw values and validates them against the bundled form id.
func Validate(formID string, raw map[string]any, options ...validation.Option) (Values, ValidationResult, error) {
	registry, err := forms.Default()
	if err != nil {
		return nil, ValidationResult{}, err
	}
	form, err := registry.Get(formID)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	return validation.New(options...).ValidateRaw(form, raw)
}

// EmbeddedTemplates exposes the built-in view templates so callers can reuse
// or extend them.
func EmbeddedTemplates() (fs.FS, error) {
	return views.TemplatesFS()
}
