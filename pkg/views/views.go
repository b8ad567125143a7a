// Package views renders the status and success pages shown after a
// submission from embedded pongo2 templates.
package views

import (
	"embed"
	"fmt"
	"io"
	"io/fs"

	"github.com/goliatone/go-rentreport/pkg/submit"
)

//go:embed templates/*.html
var templates embed.FS

// StatusView renders any result without a dedicated template.
const StatusView = "status"

// Renderer picks the template named by a result's view.
type Renderer struct {
	engine *Engine
}

// TemplatesFS exposes the embedded templates so callers can extend them.
func TemplatesFS() (fs.FS, error) {
	files, err := fs.Sub(templates, "templates")
	if err != nil {
		return nil, fmt.Errorf("views: open templates: %w", err)
	}
	return files, nil
}

// New builds a Renderer over the embedded templates.
func New() (*Renderer, error) {
	files, err := TemplatesFS()
	if err != nil {
		return nil, err
	}
	return NewFromFS(files)
}

// NewFromFS builds a Renderer over custom templates.
func NewFromFS(files fs.FS) (*Renderer, error) {
	engine, err := NewEngine(files, ".html")
	if err != nil {
		return nil, err
	}
	return &Renderer{engine: engine}, nil
}

// Engine exposes the underlying template engine.
func (r *Renderer) Engine() *Engine { return r.engine }

// View returns the template used for result.
func (r *Renderer) View(result submit.Result) string {
	if result.OK() && result.View != "" && r.engine.Has(result.View) {
		return result.View
	}
	return StatusView
}

// Render renders result with its view template, falling back to the
// generic status page.
func (r *Renderer) Render(result submit.Result, out ...io.Writer) (string, error) {
	return r.engine.RenderTemplate(r.View(result), result, out...)
}
