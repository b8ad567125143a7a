package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/goliatone/go-rentreport/pkg/upload"
)

const (
	maxJSONBody      = 1 << 20
	maxMultipartBody = upload.DefaultMaxBytes + 1<<20
)

var errEmptyBody = errors.New("request body is empty")

// decodeValues reads raw form values from a JSON object or a multipart form.
// Multipart file parts become FileRefs; repeated text parts become lists.
func decodeValues(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return decodeMultipart(w, r)
	}
	return decodeJSONObject(w, r)
}

func decodeJSONObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	raw := map[string]any{}
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEmptyBody
		}
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("request body must contain a single JSON value")
	}
	return raw, nil
}

func decodeMultipart(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(maxJSONBody); err != nil {
		return nil, fmt.Errorf("decode multipart: %w", err)
	}
	raw := map[string]any{}
	for name, values := range r.MultipartForm.Value {
		switch len(values) {
		case 0:
		case 1:
			raw[name] = values[0]
		default:
			list := make([]any, len(values))
			for i, v := range values {
				list[i] = v
			}
			raw[name] = list
		}
	}
	for name, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		ref, err := upload.FromMultipart(headers[0])
		if err != nil {
			return nil, err
		}
		raw[name] = ref
	}
	return raw, nil
}

// popString removes key from raw and returns it when it is a string.
func popString(raw map[string]any, key string) string {
	value, ok := raw[key]
	if !ok {
		return ""
	}
	delete(raw, key)
	s, _ := value.(string)
	return s
}

// popInto removes key from raw and decodes its value into dst.
func popInto(raw map[string]any, key string, dst any) error {
	value, ok := raw[key]
	if !ok {
		return fmt.Errorf("%s is required", key)
	}
	delete(raw, key)
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(encoded, dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
