// Package prompt fills a form definition interactively on a terminal. Every
// answer is checked with the same field rules the HTTP API applies, and the
// cross-field refinements run once all fields are collected.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/upload"
	"github.com/goliatone/go-rentreport/pkg/validation"
)

// MaxAttempts bounds how often a single field is asked again after an
// invalid answer.
const MaxAttempts = 5

// ErrTooManyAttempts is returned when a field keeps failing validation.
var ErrTooManyAttempts = errors.New("prompt: too many invalid answers")

// Opener opens attachment paths typed at the prompt.
type Opener func(path string) (io.ReadCloser, error)

// Filler walks a form's fields and collects values through a Driver.
type Filler struct {
	driver    Driver
	validator *validation.Validator
	open      Opener
	logger    *zap.Logger
}

// Option configures a Filler.
type Option func(*Filler)

// WithDriver overrides the terminal driver.
func WithDriver(driver Driver) Option {
	return func(f *Filler) {
		if driver != nil {
			f.driver = driver
		}
	}
}

// WithOpener overrides how attachment paths are read.
func WithOpener(open Opener) Option {
	return func(f *Filler) {
		if open != nil {
			f.open = open
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Filler) {
		if l != nil {
			f.logger = l
		}
	}
}

// New builds a Filler using validator for field and refinement checks.
func New(validator *validation.Validator, opts ...Option) *Filler {
	f := &Filler{
		driver:    NewSurveyDriver(),
		validator: validator,
		open:      func(path string) (io.ReadCloser, error) { return os.Open(path) },
		logger:    zap.NewNop(),
	}
	if f.validator == nil {
		f.validator = validation.New()
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fill prompts for every field of form. The returned result holds any
// refinement failures; field rules are enforced while prompting.
func (f *Filler) Fill(ctx context.Context, form model.FormModel) (model.Values, validation.Result, error) {
	if form.Title != "" {
		if err := f.driver.Info(ctx, form.Title); err != nil {
			return nil, validation.Result{}, err
		}
	}

	values := model.Values{}
	for _, field := range form.Fields {
		var err error
		if field.Kind == model.KindSection {
			err = f.fillSection(ctx, form, values, field)
		} else {
			err = f.fillField(ctx, form, values, values, field, field.Name)
		}
		if err != nil {
			return values, validation.Result{}, err
		}
	}

	result, err := f.validator.Validate(form, values)
	if err != nil {
		return values, validation.Result{}, err
	}
	for _, path := range result.Errors.Paths() {
		if err := f.driver.Info(ctx, fmt.Sprintf("%s: %s", path, result.Errors[path])); err != nil {
			return values, result, err
		}
	}
	return values, result, nil
}

func (f *Filler) fillSection(ctx context.Context, form model.FormModel, values model.Values, field model.Field) error {
	label := fieldLabel(field, field.Name)
	var entries []model.Values
	for {
		if field.MaxItems > 0 && len(entries) >= field.MaxItems {
			break
		}
		if len(entries) >= field.MinItems {
			more, err := f.driver.Confirm(ctx, ConfirmConfig{
				Message: fmt.Sprintf("Add an entry to %s?", label),
				Default: len(entries) == 0 && field.Required,
			})
			if err != nil {
				return err
			}
			if !more {
				break
			}
		}

		entry := model.Values{}
		entries = append(entries, entry)
		values.SetEntries(field.Name, entries)
		for _, child := range field.Fields {
			path := model.EntryPath(field.Name, len(entries)-1, child.Name)
			if err := f.fillField(ctx, form, values, entry, child, path); err != nil {
				return err
			}
		}
	}
	if len(entries) == 0 {
		delete(values, field.Name)
	}
	return nil
}

// fillField asks for field until its rules pass. target receives the value;
// values is the whole form, used for incremental validation.
func (f *Filler) fillField(ctx context.Context, form model.FormModel, values, target model.Values, field model.Field, path string) error {
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		value, err := f.ask(ctx, field, path)
		if err != nil {
			var invalid *invalidAnswer
			if !errors.As(err, &invalid) {
				return err
			}
			if err := f.driver.Info(ctx, invalid.message); err != nil {
				return err
			}
			continue
		}

		if value == nil {
			delete(target, field.Name)
		} else {
			target[field.Name] = value
		}
		message, err := f.validator.ValidateField(form, values, path)
		if err != nil {
			return err
		}
		if message == "" {
			return nil
		}
		f.logger.Debug("prompt answer rejected", zap.String("form", form.ID), zap.String("path", path))
		if err := f.driver.Info(ctx, message); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s", ErrTooManyAttempts, path)
}

type invalidAnswer struct{ message string }

func (e *invalidAnswer) Error() string { return e.message }

func (f *Filler) ask(ctx context.Context, field model.Field, path string) (any, error) {
	label := fieldLabel(field, path)
	if field.Required {
		label += " *"
	}

	switch {
	case field.Kind == model.KindBoolean:
		def, _ := field.Default.(bool)
		return f.driver.Confirm(ctx, ConfirmConfig{Message: label, Default: def, Help: field.Description})
	case field.Kind == model.KindFile:
		return f.askFile(ctx, field, label)
	}

	if rule, ok := field.Rule(model.RuleOneOf); ok {
		options := splitList(rule.Param("values"))
		if len(options) > 0 {
			def := indexOf(options, fmt.Sprint(field.Default))
			if def < 0 {
				def = 0
			}
			idx, err := f.driver.Select(ctx, SelectConfig{Message: label, Options: options, DefaultIndex: def, Help: field.Description})
			if err != nil {
				return nil, err
			}
			if idx < 0 || idx >= len(options) {
				return nil, &invalidAnswer{message: "Choose one of the listed options"}
			}
			return options[idx], nil
		}
	}

	cfg := InputConfig{Message: label, Help: field.Description}
	if field.Default != nil {
		cfg.Default = fmt.Sprint(field.Default)
	}
	var (
		raw string
		err error
	)
	if field.Widget == "password" {
		raw, err = f.driver.Password(ctx, cfg)
	} else {
		raw, err = f.driver.Input(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}
	value, err := model.Coerce(field.Kind, raw)
	if err != nil {
		return nil, &invalidAnswer{message: err.Error()}
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return value, nil
}

func (f *Filler) askFile(ctx context.Context, field model.Field, label string) (any, error) {
	path, err := f.driver.Input(ctx, InputConfig{Message: label + " (path)", Help: field.Description})
	if err != nil {
		return nil, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	file, err := f.open(path)
	if err != nil {
		return nil, &invalidAnswer{message: fmt.Sprintf("Cannot read %s", path)}
	}
	defer file.Close()

	ref, err := upload.FromReader(path, mime.TypeByExtension(strings.ToLower(filepath.Ext(path))), file)
	if err != nil {
		return nil, &invalidAnswer{message: fmt.Sprintf("Cannot read %s", path)}
	}
	return ref, nil
}

func fieldLabel(field model.Field, path string) string {
	if field.Label != "" {
		return field.Label
	}
	segments := model.SplitPath(path)
	if len(segments) >= 3 {
		if idx, ok := model.ParseIndex(segments[len(segments)-2]); ok {
			return model.DefaultLabel(field.Name) + " #" + strconv.Itoa(idx+1)
		}
	}
	return model.DefaultLabel(field.Name)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
