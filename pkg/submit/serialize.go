package submit

import (
	"github.com/goliatone/go-rentreport/pkg/model"
)

// MetaSerialize is the field metadata key controlling serialization;
// "omit" keeps the field out of the payload.
const (
	MetaSerialize = "serialize"
	MetaWireName  = "wireName"
	serializeOmit = "omit"
)

// Serializer turns validated values into the endpoint payload.
type Serializer interface {
	Serialize(form model.FormModel, values model.Values) (map[string]any, error)
}

// SerializerFunc adapts a function into a Serializer.
type SerializerFunc func(form model.FormModel, values model.Values) (map[string]any, error)

// Serialize calls fn.
func (fn SerializerFunc) Serialize(form model.FormModel, values model.Values) (map[string]any, error) {
	return fn(form, values)
}

// DefaultSerializer writes every declared field with a non-empty value, in
// wire format: dates as YYYY-MM-DD, attachments as {name, contentType, size}
// plus their storage key once stored, sections as arrays of objects.
func DefaultSerializer() Serializer {
	return SerializerFunc(func(form model.FormModel, values model.Values) (map[string]any, error) {
		return serializeFields(form.Fields, values), nil
	})
}

// Extend runs base and merges extra into the payload.
func Extend(base Serializer, extra func(values model.Values) map[string]any) Serializer {
	if base == nil {
		base = DefaultSerializer()
	}
	return SerializerFunc(func(form model.FormModel, values model.Values) (map[string]any, error) {
		payload, err := base.Serialize(form, values)
		if err != nil {
			return nil, err
		}
		if payload == nil {
			payload = make(map[string]any)
		}
		for key, value := range extra(values) {
			payload[key] = value
		}
		return payload, nil
	})
}

func serializeFields(fields []model.Field, values model.Values) map[string]any {
	out := make(map[string]any, len(fields))
	for _, field := range fields {
		if field.Metadata[MetaSerialize] == serializeOmit {
			continue
		}
		value, ok := values[field.Name]
		if !ok || model.IsEmpty(value) {
			continue
		}
		name := field.Name
		if wire := field.Metadata[MetaWireName]; wire != "" {
			name = wire
		}
		out[name] = serializeValue(field, value)
	}
	return out
}

func serializeValue(field model.Field, value any) any {
	switch typed := value.(type) {
	case []model.Values:
		entries := make([]map[string]any, len(typed))
		for idx, entry := range typed {
			entries[idx] = serializeFields(field.Fields, entry)
		}
		return entries
	case model.FileRef:
		return attachment(typed)
	case *model.FileRef:
		return attachment(*typed)
	default:
		return model.FormatValue(value)
	}
}

func attachment(ref model.FileRef) map[string]any {
	out := map[string]any{
		"name":        ref.Name,
		"contentType": ref.ContentType,
		"size":        ref.Size,
	}
	if ref.Key != "" {
		out["key"] = ref.Key
	}
	return out
}
