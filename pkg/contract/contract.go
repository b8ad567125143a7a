// Package contract checks outgoing payloads against the OpenAPI description
// of the external API before they are sent.
package contract

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var embedded []byte

// ErrNoOperation reports a method and path the document does not describe.
var ErrNoOperation = errors.New("contract: operation not described")

// Issue is a single payload violation.
type Issue struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Error collects payload violations.
type Error struct {
	Method string
	Path   string
	Issues []Issue
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Path == "" {
			parts = append(parts, issue.Message)
			continue
		}
		parts = append(parts, issue.Path+": "+issue.Message)
	}
	return fmt.Sprintf("contract: %s %s payload does not conform: %s", e.Method, e.Path, strings.Join(parts, "; "))
}

// Contract is a loaded and validated OpenAPI document.
type Contract struct {
	doc *openapi3.T
}

// Default loads the embedded API description.
func Default(ctx context.Context) (*Contract, error) {
	return Load(ctx, embedded)
}

// Load parses and validates an OpenAPI document.
func Load(ctx context.Context, data []byte) (*Contract, error) {
	if len(data) == 0 {
		return nil, errors.New("contract: document payload is empty")
	}
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("contract: load document: %w", err)
	}
	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("contract: validate document: %w", err)
	}
	if doc.Paths == nil || doc.Paths.Len() == 0 {
		return nil, errors.New("contract: document does not contain any paths")
	}
	return &Contract{doc: doc}, nil
}

// Operations lists the described operations as "METHOD path".
func (c *Contract) Operations() []string {
	var out []string
	for path, item := range c.doc.Paths.Map() {
		for method := range item.Operations() {
			out = append(out, method+" "+path)
		}
	}
	sort.Strings(out)
	return out
}

// Check validates payload against the JSON request body schema of the
// operation. Operations without a request body accept any payload.
func (c *Contract) Check(_ context.Context, method, path string, payload any) error {
	method = strings.ToUpper(method)
	item := c.doc.Paths.Find(path)
	if item == nil {
		return fmt.Errorf("%w: %s %s", ErrNoOperation, method, path)
	}
	op := item.GetOperation(method)
	if op == nil {
		return fmt.Errorf("%w: %s %s", ErrNoOperation, method, path)
	}
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	media := op.RequestBody.Value.Content.Get("application/json")
	if media == nil || media.Schema == nil || media.Schema.Value == nil {
		return nil
	}

	// schemas validate decoded JSON, so round-trip typed payloads
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("contract: encode payload: %w", err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("contract: decode payload: %w", err)
	}

	err = media.Schema.Value.VisitJSON(value, openapi3.MultiErrors())
	if err == nil {
		return nil
	}
	return &Error{Method: method, Path: path, Issues: issues(err)}
}

func issues(err error) []Issue {
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		var out []Issue
		for _, inner := range multi {
			out = append(out, issues(inner)...)
		}
		return out
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		return []Issue{{
			Path:    strings.Join(schemaErr.JSONPointer(), "."),
			Message: schemaErr.Reason,
		}}
	}
	return []Issue{{Message: err.Error()}}
}

// Fields maps issues onto form field paths, keeping the first message per
// path.
func (e *Error) Fields() map[string]string {
	out := make(map[string]string, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Path == "" {
			continue
		}
		if _, exists := out[issue.Path]; !exists {
			out[issue.Path] = issue.Message
		}
	}
	return out
}
