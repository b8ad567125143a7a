// Package forms loads form definitions from YAML or JSON files and keeps
// them in a registry keyed by form ID. The service's own forms are embedded.
package forms

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-rentreport/pkg/condition/expr"
	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/rules"
	"github.com/goliatone/go-rentreport/pkg/upload"
)

// Form IDs of the embedded definitions.
const (
	Registration   = "registration"
	ConfirmSignUp  = "confirm-sign-up"
	SignIn         = "sign-in"
	MFACode        = "mfa-code"
	NewPassword    = "new-password"
	ForgotPassword = "forgot-password"
	PasswordReset  = "password-reset"
	AdminLogin     = "admin-login"
	RentReport     = "rent-report"
	BackRentMember = "back-rent-member"
	BackRentPublic = "back-rent-public"
)

//go:embed definitions/*.yaml
var definitions embed.FS

// Definitions exposes the embedded definition files.
func Definitions() fs.FS {
	sub, err := fs.Sub(definitions, "definitions")
	if err != nil {
		panic(err)
	}
	return sub
}

// Default loads the embedded definitions.
func Default() (*Registry, error) {
	return LoadFS(Definitions())
}

// Registry stores form definitions by ID.
type Registry struct {
	mu    sync.RWMutex
	forms map[string]model.FormModel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{forms: make(map[string]model.FormModel)}
}

// Register adds a form after checking it. Duplicate IDs return an error.
func (r *Registry) Register(form model.FormModel) error {
	if err := Check(form, nil); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.forms[form.ID]; exists {
		return fmt.Errorf("forms: form %q already registered", form.ID)
	}
	r.forms[form.ID] = form
	return nil
}

// Get returns the form with the given ID.
func (r *Registry) Get(id string) (model.FormModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	form, ok := r.forms[id]
	if !ok {
		return model.FormModel{}, fmt.Errorf("forms: form %q not found", id)
	}
	return form, nil
}

// MustGet panics if the form is missing.
func (r *Registry) MustGet(id string) model.FormModel {
	form, err := r.Get(id)
	if err != nil {
		panic(err)
	}
	return form
}

// List returns the registered IDs in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.forms))
	for id := range r.forms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadFS walks fsys and registers every JSON or YAML definition it finds.
func LoadFS(fsys fs.FS) (*Registry, error) {
	reg := NewRegistry()
	if fsys == nil {
		return reg, nil
	}

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isDefinitionFile(path) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("forms: read %s: %w", path, err)
		}
		form, err := Parse(data, path)
		if err != nil {
			return err
		}
		if err := reg.Register(form); err != nil {
			return fmt.Errorf("%w (file %s)", err, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// Parse decodes a single definition from JSON or YAML.
func Parse(data []byte, source string) (model.FormModel, error) {
	if strings.TrimSpace(string(data)) == "" {
		return model.FormModel{}, fmt.Errorf("forms: file %s is empty", source)
	}
	var form model.FormModel
	if strings.EqualFold(filepath.Ext(source), ".json") {
		if err := json.Unmarshal(data, &form); err != nil {
			return model.FormModel{}, fmt.Errorf("forms: parse %s: %w", source, err)
		}
		return form, nil
	}
	if err := yaml.Unmarshal(data, &form); err != nil {
		return model.FormModel{}, fmt.Errorf("forms: parse %s: %w", source, err)
	}
	return form, nil
}

// Check rejects definitions the validator could not evaluate: missing IDs,
// duplicate or unknown field kinds, malformed requiredWhen conditions, bad
// file rules and unregistered refinements. A nil registry checks against
// the default refinements.
func Check(form model.FormModel, reg *rules.Registry) error {
	if strings.TrimSpace(form.ID) == "" {
		return fmt.Errorf("forms: form id is required")
	}
	if len(form.Fields) == 0 {
		return fmt.Errorf("forms: form %q has no fields", form.ID)
	}
	switch form.Auth {
	case "", model.AuthAnonymous, model.AuthMember, model.AuthAdmin:
	default:
		return fmt.Errorf("forms: form %q has unknown auth mode %q", form.ID, form.Auth)
	}
	conditions := expr.New()
	if err := checkFields(form.ID, "", form.Fields, conditions); err != nil {
		return err
	}
	if reg == nil {
		reg = rules.Defaults()
	}
	for _, ref := range form.Refinements {
		if _, err := reg.Build(ref); err != nil {
			return fmt.Errorf("forms: form %q: %w", form.ID, err)
		}
	}
	return nil
}

func checkFields(formID, prefix string, fields []model.Field, conditions *expr.Evaluator) error {
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		path := model.JoinPath(prefix, field.Name)
		if strings.TrimSpace(field.Name) == "" {
			return fmt.Errorf("forms: form %q has a field without a name under %q", formID, prefix)
		}
		if _, dup := seen[field.Name]; dup {
			return fmt.Errorf("forms: form %q defines %q twice", formID, path)
		}
		seen[field.Name] = struct{}{}

		switch field.Kind {
		case model.KindString, model.KindEmail, model.KindNumber, model.KindBoolean, model.KindDate, model.KindFile:
		case model.KindSection:
			if len(field.Fields) == 0 {
				return fmt.Errorf("forms: form %q section %q has no fields", formID, path)
			}
			if prefix != "" {
				return fmt.Errorf("forms: form %q nests section %q inside another section", formID, path)
			}
			if err := checkFields(formID, path, field.Fields, conditions); err != nil {
				return err
			}
		default:
			return fmt.Errorf("forms: form %q field %q has unknown kind %q", formID, path, field.Kind)
		}

		if field.RequiredWhen != "" {
			if err := conditions.Check(field.RequiredWhen); err != nil {
				return fmt.Errorf("forms: form %q field %q: %w", formID, path, err)
			}
		}
		if rule, ok := field.Rule(model.RuleFile); ok {
			if _, err := upload.PolicyFromParams(rule.Params); err != nil {
				return fmt.Errorf("forms: form %q field %q: %w", formID, path, err)
			}
		}
	}
	return nil
}

func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
