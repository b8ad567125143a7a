package model

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire layout for date fields.
const DateLayout = "2006-01-02"

const (
	msgInvalidNumber  = "Enter a valid number"
	msgInvalidDate    = "Enter a valid date"
	msgInvalidBoolean = "Choose yes or no"
	msgInvalidFile    = "Attach a valid file"
	msgInvalidSection = "Invalid entries"
)

// Normalize converts loosely typed input (decoded JSON, form posts) into the
// typed values the validators expect. Conversion failures are reported as
// field errors and the raw value is kept so nothing the user typed is lost.
// Unknown keys are dropped.
func Normalize(form FormModel, raw map[string]any) (Values, Errors) {
	return normalizeFields(form.Fields, raw, "")
}

func normalizeFields(fields []Field, raw map[string]any, prefix string) (Values, Errors) {
	values := make(Values, len(fields))
	var errs Errors
	for _, field := range fields {
		value, ok := raw[field.Name]
		if !ok {
			continue
		}
		path := JoinPath(prefix, field.Name)
		if field.Kind == KindSection {
			entries, sectionErrs := normalizeSection(field, value, path)
			values[field.Name] = entries
			errs = errs.Merge(sectionErrs)
			continue
		}
		coerced, err := Coerce(field.Kind, value)
		if err != nil {
			if errs == nil {
				errs = Errors{}
			}
			errs[path] = err.Error()
			values[field.Name] = value
			continue
		}
		if coerced != nil {
			values[field.Name] = coerced
		}
	}
	return values, errs
}

func normalizeSection(field Field, value any, path string) ([]Values, Errors) {
	var items []map[string]any
	switch typed := value.(type) {
	case nil:
		return nil, nil
	case []Values:
		for _, entry := range typed {
			items = append(items, map[string]any(entry))
		}
	case []map[string]any:
		items = typed
	case []any:
		for idx, item := range typed {
			entry, ok := asMap(item)
			if !ok {
				return nil, Errors{JoinPath(path, strconv.Itoa(idx)): msgInvalidSection}
			}
			items = append(items, entry)
		}
	default:
		return nil, Errors{path: msgInvalidSection}
	}

	entries := make([]Values, 0, len(items))
	var errs Errors
	for idx, item := range items {
		entry, entryErrs := normalizeFields(field.Fields, item, JoinPath(path, strconv.Itoa(idx)))
		entries = append(entries, entry)
		errs = errs.Merge(entryErrs)
	}
	return entries, errs
}

func asMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case Values:
		return map[string]any(typed), true
	default:
		return nil, false
	}
}

// Coerce converts a single raw value to the Go type used for kind. Empty
// strings become nil so required checks see them as missing.
func Coerce(kind Kind, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" && kind != KindString && kind != KindEmail {
		return nil, nil
	}

	switch kind {
	case KindString, KindEmail, "":
		switch typed := value.(type) {
		case string:
			return typed, nil
		case float64:
			return strconv.FormatFloat(typed, 'f', -1, 64), nil
		case json.Number:
			return typed.String(), nil
		default:
			return fmt.Sprint(typed), nil
		}
	case KindNumber:
		return coerceNumber(value)
	case KindBoolean:
		return coerceBool(value)
	case KindDate:
		return coerceDate(value)
	case KindFile:
		return coerceFile(value)
	default:
		return value, nil
	}
}

func coerceNumber(value any) (any, error) {
	switch typed := value.(type) {
	case float64:
		return typed, nil
	case float32:
		return float64(typed), nil
	case int:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	case json.Number:
		f, err := typed.Float64()
		if err != nil {
			return nil, errors.New(msgInvalidNumber)
		}
		return f, nil
	case string:
		clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(typed)
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return nil, errors.New(msgInvalidNumber)
		}
		return f, nil
	default:
		return nil, errors.New(msgInvalidNumber)
	}
}

func coerceBool(value any) (any, error) {
	switch typed := value.(type) {
	case bool:
		return typed, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true", "on", "yes", "1":
			return true, nil
		case "false", "off", "no", "0":
			return false, nil
		}
	}
	return nil, errors.New(msgInvalidBoolean)
}

func coerceDate(value any) (any, error) {
	switch typed := value.(type) {
	case time.Time:
		return typed, nil
	case string:
		trimmed := strings.TrimSpace(typed)
		if t, err := time.Parse(DateLayout, trimmed); err == nil {
			return t, nil
		}
		if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
			return t, nil
		}
	}
	return nil, errors.New(msgInvalidDate)
}

func coerceFile(value any) (any, error) {
	switch typed := value.(type) {
	case FileRef:
		return typed, nil
	case *FileRef:
		if typed == nil {
			return nil, nil
		}
		return *typed, nil
	case map[string]any:
		ref := FileRef{}
		ref.Name, _ = typed["name"].(string)
		ref.ContentType, _ = typed["contentType"].(string)
		ref.Key, _ = typed["key"].(string)
		switch size := typed["size"].(type) {
		case float64:
			ref.Size = int64(size)
		case int64:
			ref.Size = size
		case int:
			ref.Size = int64(size)
		}
		if head, ok := typed["head"].(string); ok && head != "" {
			decoded, err := base64.StdEncoding.DecodeString(head)
			if err != nil {
				return nil, errors.New(msgInvalidFile)
			}
			ref.Head = decoded
		}
		if ref.Name == "" {
			return nil, errors.New(msgInvalidFile)
		}
		return ref, nil
	default:
		return nil, errors.New(msgInvalidFile)
	}
}

// FormatValue renders a typed value back into its wire representation.
func FormatValue(value any) any {
	switch typed := value.(type) {
	case time.Time:
		return typed.Format(DateLayout)
	case []Values:
		out := make([]map[string]any, len(typed))
		for idx, entry := range typed {
			out[idx] = FormatValues(entry)
		}
		return out
	default:
		return value
	}
}

// FormatValues renders every value through FormatValue.
func FormatValues(values Values) map[string]any {
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = FormatValue(value)
	}
	return out
}
