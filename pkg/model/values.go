package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Values maps field names to their current value: string, float64, bool,
// time.Time, FileRef or []Values for sections.
type Values map[string]any

// Errors maps dotted field paths to a single human-readable message.
type Errors map[string]string

// Clone returns a deep copy of the values, including section entries.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for key, value := range v {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case Values:
		return typed.Clone()
	case []Values:
		entries := make([]Values, len(typed))
		for idx, entry := range typed {
			entries[idx] = entry.Clone()
		}
		return entries
	case FileRef:
		ref := typed
		if len(typed.Head) > 0 {
			ref.Head = append([]byte(nil), typed.Head...)
		}
		return ref
	default:
		return value
	}
}

// Get resolves a dotted path, descending into section entries by index.
func (v Values) Get(path string) (any, bool) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return nil, false
	}
	var current any = v
	for _, segment := range segments {
		switch typed := current.(type) {
		case Values:
			next, ok := typed[segment]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]any:
			next, ok := typed[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []Values:
			idx, ok := ParseIndex(segment)
			if !ok || idx >= len(typed) {
				return nil, false
			}
			current = typed[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Set assigns a value at a dotted path. Section entries must already exist;
// use Entries/SetEntries to grow or shrink a section.
func (v Values) Set(path string, value any) error {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return fmt.Errorf("model: empty value path")
	}
	if len(segments) == 1 {
		v[segments[0]] = value
		return nil
	}
	entries := v.Entries(segments[0])
	idx, ok := ParseIndex(segments[1])
	if !ok {
		return fmt.Errorf("model: path %q does not address a section entry", path)
	}
	if idx >= len(entries) {
		return fmt.Errorf("model: section %q has no entry %d", segments[0], idx)
	}
	if len(segments) == 2 {
		entry, ok := value.(Values)
		if !ok {
			return fmt.Errorf("model: entry %q must be a value map", path)
		}
		entries[idx] = entry
		return nil
	}
	if entries[idx] == nil {
		entries[idx] = Values{}
	}
	return entries[idx].Set(JoinPath(segments[2:]...), value)
}

// Entries returns the entries of a section field, or nil.
func (v Values) Entries(section string) []Values {
	raw, ok := v[section]
	if !ok {
		return nil
	}
	entries, _ := raw.([]Values)
	return entries
}

// SetEntries replaces the entries of a section field.
func (v Values) SetEntries(section string, entries []Values) {
	v[section] = entries
}

// Has reports whether the path holds a non-empty value.
func (v Values) Has(path string) bool {
	value, ok := v.Get(path)
	return ok && !IsEmpty(value)
}

// IsEmpty reports whether a value counts as missing for required checks.
func IsEmpty(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case FileRef:
		return typed.Name == "" && typed.Size == 0
	case *FileRef:
		return typed == nil || (typed.Name == "" && typed.Size == 0)
	case []Values:
		return len(typed) == 0
	case interface{ IsZero() bool }:
		return typed.IsZero()
	default:
		return false
	}
}

// Has reports whether the path carries a message.
func (e Errors) Has(path string) bool {
	_, ok := e[path]
	return ok
}

// Paths returns the error paths sorted for deterministic output.
func (e Errors) Paths() []string {
	if len(e) == 0 {
		return nil
	}
	out := make([]string, 0, len(e))
	for path := range e {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Merge copies messages from other without overwriting existing paths, so
// the first violated rule for a field wins.
func (e Errors) Merge(other Errors) Errors {
	if len(other) == 0 {
		return e
	}
	if e == nil {
		e = make(Errors, len(other))
	}
	for path, message := range other {
		if _, exists := e[path]; exists {
			continue
		}
		e[path] = message
	}
	return e
}

// Under returns the messages whose path sits at or below prefix.
func (e Errors) Under(prefix string) Errors {
	out := Errors{}
	for path, message := range e {
		if path == prefix || strings.HasPrefix(path, prefix+".") {
			out[path] = message
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SplitPath splits a dotted path, accepting bracket indices ("history[1].endDate").
func SplitPath(path string) []string {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return nil
	}
	clean = strings.NewReplacer("[", ".", "]", "").Replace(clean)
	parts := strings.Split(clean, ".")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// JoinPath joins path segments with dots, skipping empty segments.
func JoinPath(segments ...string) string {
	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		if trimmed := strings.Trim(strings.TrimSpace(segment), "."); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, ".")
}

// EntryPath builds the path of a field inside a section entry.
func EntryPath(section string, index int, field string) string {
	return JoinPath(section, strconv.Itoa(index), field)
}

// ParseIndex parses a non-negative section index segment.
func ParseIndex(segment string) (int, bool) {
	if segment == "" {
		return 0, false
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(segment)
	if err != nil {
		return 0, false
	}
	return idx, true
}
