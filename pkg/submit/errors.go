package submit

import (
	"strconv"
	"strings"

	"github.com/goliatone/go-rentreport/pkg/model"
)

// ErrorMapping splits a server error payload into field-level and form-level
// messages keyed by the dotted paths of the form.
type ErrorMapping struct {
	Fields map[string][]string
	Form   []string
}

// MapErrorPayload normalises server error payloads (bracket indices, JSON
// pointers, wrapper segments) into form paths. Section indices are kept so a
// message lands on the entry it belongs to. Unknown paths become form-level
// messages.
func MapErrorPayload(form model.FormModel, payload map[string][]string) ErrorMapping {
	mapping := ErrorMapping{Fields: make(map[string][]string)}
	for rawPath, messages := range payload {
		normalized := normalizeMessages(messages)
		if len(normalized) == 0 {
			continue
		}
		mapped, formLevel := mapErrorPath(form, rawPath)
		if formLevel {
			mapping.Form = append(mapping.Form, normalized...)
			continue
		}
		mapping.Fields[mapped] = normalizeMessages(append(mapping.Fields[mapped], normalized...))
	}
	if len(mapping.Fields) == 0 {
		mapping.Fields = nil
	}
	mapping.Form = normalizeMessages(mapping.Form)
	return mapping
}

// FieldErrors keeps the first message per path.
func (m ErrorMapping) FieldErrors() model.Errors {
	if len(m.Fields) == 0 {
		return nil
	}
	out := make(model.Errors, len(m.Fields))
	for path, messages := range m.Fields {
		if len(messages) > 0 {
			out[path] = messages[0]
		}
	}
	return out
}

func normalizeMessages(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}
	out := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func mapErrorPath(form model.FormModel, raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if isFormLevelKey(trimmed) {
		return "", true
	}
	segments := parsePathSegments(trimmed)
	if len(segments) == 0 {
		return "", true
	}
	best := ""
	for _, variant := range [][]string{segments, dropWrapperSegments(segments)} {
		if path := resolvePath(form.Fields, variant); len(path) > len(best) {
			best = path
		}
	}
	if best == "" {
		return "", true
	}
	return best, false
}

// resolvePath matches the longest prefix of segments against the field
// tree, keeping numeric segments that follow a section.
func resolvePath(fields []model.Field, segments []string) string {
	var out []string
	current := fields
	for idx := 0; idx < len(segments); idx++ {
		field, ok := findField(current, segments[idx])
		if !ok {
			break
		}
		out = append(out, field.Name)
		if field.Kind != model.KindSection || idx+1 >= len(segments) {
			break
		}
		entry, ok := model.ParseIndex(segments[idx+1])
		if !ok {
			break
		}
		out = append(out, strconv.Itoa(entry))
		idx++
		current = field.Fields
	}
	return model.JoinPath(out...)
}

func findField(fields []model.Field, name string) (model.Field, bool) {
	for _, field := range fields {
		if field.Name == name {
			return field, true
		}
	}
	return model.Field{}, false
}

func parsePathSegments(path string) []string {
	clean := strings.TrimSpace(path)
	for strings.HasPrefix(clean, "#") || strings.HasPrefix(clean, "/") || strings.HasPrefix(clean, ".") || strings.HasPrefix(clean, "$") {
		clean = clean[1:]
	}
	clean = strings.NewReplacer("[", ".", "]", "", "//", "/").Replace(clean)
	clean = strings.Trim(clean, "./")
	if clean == "" {
		return nil
	}
	parts := strings.FieldsFunc(clean, func(r rune) bool {
		return r == '.' || r == '/'
	})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		segment := strings.TrimSpace(part)
		if segment == "" {
			continue
		}
		segment = strings.ReplaceAll(segment, "~1", "/")
		segment = strings.ReplaceAll(segment, "~0", "~")
		out = append(out, segment)
	}
	return out
}

func dropWrapperSegments(segments []string) []string {
	out := segments
	for len(out) > 0 {
		switch strings.ToLower(out[0]) {
		case "body", "request", "payload", "data", "attributes":
			out = out[1:]
			continue
		}
		break
	}
	return out
}

func isFormLevelKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", ".", "/", "#", "$", "form", "base", "__all__", "non_field_errors", "non-field-errors":
		return true
	default:
		return false
	}
}
