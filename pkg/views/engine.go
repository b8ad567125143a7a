package views

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

// Engine renders pongo2 templates loaded from an fs.FS, caching parsed
// templates by path.
type Engine struct {
	mu sync.RWMutex

	templateSet *pongo2.TemplateSet
	templates   map[string]*pongo2.Template
	ext         string
}

// NewEngine builds an Engine over files. Template names are resolved with
// ext appended when missing.
func NewEngine(files fs.FS, ext string) (*Engine, error) {
	if files == nil {
		return nil, errors.New("views: template filesystem is required")
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	registerDefaultFilters()
	return &Engine{
		templateSet: pongo2.NewSet("rentreport", pongo2.NewFSLoader(files)),
		templates:   make(map[string]*pongo2.Template),
		ext:         ext,
	}, nil
}

// Has reports whether a template exists for name.
func (e *Engine) Has(name string) bool {
	_, err := e.template(e.path(name))
	return err == nil
}

// RenderTemplate renders name with data, writing the output to out as well.
func (e *Engine) RenderTemplate(name string, data any, out ...io.Writer) (string, error) {
	path := e.path(name)
	tmpl, err := e.template(path)
	if err != nil {
		return "", err
	}
	viewContext, err := toContext(data)
	if err != nil {
		return "", fmt.Errorf("views: convert data: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteWriter(viewContext, &buf); err != nil {
		return "", fmt.Errorf("views: execute template %q: %w", path, err)
	}
	rendered := buf.String()
	for _, w := range out {
		if _, err := io.WriteString(w, rendered); err != nil {
			return "", err
		}
	}
	return rendered, nil
}

// GlobalContext seeds values available to every template.
func (e *Engine) GlobalContext(data map[string]any) error {
	globals, err := toContext(data)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.templateSet.Globals == nil {
		e.templateSet.Globals = make(pongo2.Context)
	}
	e.templateSet.Globals.Update(globals)
	return nil
}

func (e *Engine) path(name string) string {
	if e.ext != "" && !strings.HasSuffix(name, e.ext) {
		return name + e.ext
	}
	return name
}

func (e *Engine) template(path string) (*pongo2.Template, error) {
	e.mu.RLock()
	if tmpl, ok := e.templates[path]; ok {
		e.mu.RUnlock()
		return tmpl, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if tmpl, ok := e.templates[path]; ok {
		return tmpl, nil
	}
	tmpl, err := e.templateSet.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("views: load template %q: %w", path, err)
	}
	e.templates[path] = tmpl
	return tmpl, nil
}

// toContext turns data into plain maps through its JSON form so templates
// address fields by their JSON names.
func toContext(data any) (pongo2.Context, error) {
	if data == nil {
		return pongo2.Context{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := pongo2.Context{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func registerDefaultFilters() {
	if !pongo2.FilterExists("money") {
		_ = pongo2.RegisterFilter("money", filterMoney)
	}
	if !pongo2.FilterExists("millis") {
		_ = pongo2.RegisterFilter("millis", filterMillis)
	}
}

func filterMoney(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	if !in.IsNumber() {
		return pongo2.AsValue(in.String()), nil
	}
	return pongo2.AsValue(formatMoney(in.Float())), nil
}

// filterMillis converts a JSON encoded time.Duration (nanoseconds) to
// milliseconds.
func filterMillis(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	if !in.IsNumber() {
		return pongo2.AsValue(0), nil
	}
	return pongo2.AsValue(int64(in.Float()) / 1_000_000), nil
}

func formatMoney(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	whole := fmt.Sprintf("%.2f", amount)
	intPart, frac := whole[:len(whole)-3], whole[len(whole)-2:]
	var grouped strings.Builder
	for idx, r := range intPart {
		if idx > 0 && (len(intPart)-idx)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}
	return sign + "$" + grouped.String() + "." + frac
}
