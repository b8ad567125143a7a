// Package upload validates file attachments: size limit, declared MIME type
// and extension allowlist, and optional magic-byte signature checks.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goliatone/go-rentreport/pkg/model"
)

// DefaultMaxBytes is the attachment size limit (10 MB).
const DefaultMaxBytes int64 = 10 * 1024 * 1024

// HeadSize is the number of leading bytes kept for signature checks.
const HeadSize = 512

var (
	ErrMissing   = errors.New("upload: file is missing")
	ErrTooLarge  = errors.New("upload: file exceeds the size limit")
	ErrType      = errors.New("upload: file type is not allowed")
	ErrSignature = errors.New("upload: file content does not match its type")
)

// Format describes an accepted attachment type.
type Format struct {
	Name       string
	MIME       string
	Extensions []string
	Signatures [][]byte
}

// Known formats, keyed by short name.
var formats = map[string]Format{
	"png": {
		Name:       "PNG",
		MIME:       "image/png",
		Extensions: []string{".png"},
		Signatures: [][]byte{{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	},
	"jpeg": {
		Name:       "JPEG",
		MIME:       "image/jpeg",
		Extensions: []string{".jpg", ".jpeg"},
		Signatures: [][]byte{{0xFF, 0xD8, 0xFF}},
	},
	"pdf": {
		Name:       "PDF",
		MIME:       "application/pdf",
		Extensions: []string{".pdf"},
		Signatures: [][]byte{[]byte("%PDF-")},
	},
}

// Policy lists the constraints an attachment must satisfy.
type Policy struct {
	MaxBytes int64
	Formats  []Format
	// Sniff requires the leading bytes to match a signature of the declared
	// format.
	Sniff bool
}

// DefaultPolicy accepts PNG, JPEG and PDF up to DefaultMaxBytes.
func DefaultPolicy() Policy {
	return Policy{
		MaxBytes: DefaultMaxBytes,
		Formats:  []Format{formats["png"], formats["jpeg"], formats["pdf"]},
	}
}

// PhotoPolicy accepts PNG and JPEG images whose content matches their type.
func PhotoPolicy() Policy {
	return Policy{
		MaxBytes: DefaultMaxBytes,
		Formats:  []Format{formats["png"], formats["jpeg"]},
		Sniff:    true,
	}
}

// PolicyFromParams builds a Policy from file rule params: maxBytes, types
// (comma separated short names such as "png,jpeg") and sniff.
func PolicyFromParams(params map[string]string) (Policy, error) {
	policy := DefaultPolicy()
	if raw := strings.TrimSpace(params["maxBytes"]); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return Policy{}, fmt.Errorf("upload: invalid maxBytes %q", raw)
		}
		policy.MaxBytes = n
	}
	if raw := strings.TrimSpace(params["types"]); raw != "" {
		policy.Formats = nil
		for _, name := range strings.Split(raw, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "jpg" {
				name = "jpeg"
			}
			format, ok := formats[name]
			if !ok {
				return Policy{}, fmt.Errorf("upload: unknown file type %q", name)
			}
			policy.Formats = append(policy.Formats, format)
		}
	}
	if raw := strings.TrimSpace(params["sniff"]); raw != "" {
		sniff, err := strconv.ParseBool(raw)
		if err != nil {
			return Policy{}, fmt.Errorf("upload: invalid sniff %q", raw)
		}
		policy.Sniff = sniff
	}
	return policy, nil
}

// Validate checks ref against the policy and returns the first violation.
func (p Policy) Validate(ref model.FileRef) error {
	if ref.Name == "" && ref.Size == 0 {
		return ErrMissing
	}
	limit := p.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if ref.Size > limit {
		return ErrTooLarge
	}

	format, ok := p.match(ref)
	if !ok {
		return ErrType
	}
	if p.Sniff && !hasSignature(ref.Head, format.Signatures) {
		return ErrSignature
	}
	return nil
}

// match finds the allowed format whose MIME type and extension both agree
// with the declared attachment.
func (p Policy) match(ref model.FileRef) (Format, bool) {
	declared := strings.ToLower(strings.TrimSpace(ref.ContentType))
	if idx := strings.IndexByte(declared, ';'); idx >= 0 {
		declared = strings.TrimSpace(declared[:idx])
	}
	ext := strings.ToLower(filepath.Ext(ref.Name))
	for _, format := range p.Formats {
		if format.MIME != declared {
			continue
		}
		for _, candidate := range format.Extensions {
			if candidate == ext {
				return format, true
			}
		}
	}
	return Format{}, false
}

func hasSignature(head []byte, signatures [][]byte) bool {
	for _, signature := range signatures {
		if bytes.HasPrefix(head, signature) {
			return true
		}
	}
	return false
}

// Message returns the user-facing message for a validation error.
func (p Policy) Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissing):
		return "Attach a file"
	case errors.Is(err, ErrTooLarge):
		limit := p.MaxBytes
		if limit <= 0 {
			limit = DefaultMaxBytes
		}
		return fmt.Sprintf("File must be %s or smaller", humanSize(limit))
	case errors.Is(err, ErrType):
		return "File must be " + p.describe()
	case errors.Is(err, ErrSignature):
		return "File content does not match a " + p.describe() + " file"
	default:
		return "Attach a valid file"
	}
}

func (p Policy) describe() string {
	names := make([]string, 0, len(p.Formats))
	for _, format := range p.Formats {
		names = append(names, format.Name)
	}
	switch len(names) {
	case 0:
		return "an allowed type"
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " or " + names[len(names)-1]
	}
}

func humanSize(n int64) string {
	const mb = 1024 * 1024
	if n%mb == 0 {
		return fmt.Sprintf("%d MB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}

// FromReader reads the content of r into memory so it can be stored after
// validation. Content past DefaultMaxBytes is counted but not kept, and the
// resulting ref has no Open; Policy.Validate rejects it by size.
func FromReader(name, contentType string, r io.Reader) (model.FileRef, error) {
	var buf bytes.Buffer
	kept, err := io.Copy(&buf, io.LimitReader(r, DefaultMaxBytes+1))
	if err != nil {
		return model.FileRef{}, fmt.Errorf("upload: read %s: %w", name, err)
	}
	rest, err := io.Copy(io.Discard, r)
	if err != nil {
		return model.FileRef{}, fmt.Errorf("upload: read %s: %w", name, err)
	}
	data := buf.Bytes()
	ref := model.FileRef{
		Name:        filepath.Base(name),
		ContentType: contentType,
		Size:        kept + rest,
		Head:        append([]byte(nil), data[:min(len(data), HeadSize)]...),
	}
	if ref.Size <= DefaultMaxBytes {
		ref.Open = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}
	return ref, nil
}

// FromMultipart converts a multipart file header into a FileRef using the
// declared Content-Type of the part. Open reads the part again, from memory
// or from the temporary file the request parser spooled it to, so the ref
// is only usable while the request is being handled.
func FromMultipart(header *multipart.FileHeader) (model.FileRef, error) {
	if header == nil {
		return model.FileRef{}, ErrMissing
	}
	file, err := header.Open()
	if err != nil {
		return model.FileRef{}, fmt.Errorf("upload: open %s: %w", header.Filename, err)
	}
	defer file.Close()

	head := make([]byte, HeadSize)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return model.FileRef{}, fmt.Errorf("upload: read %s: %w", header.Filename, err)
	}
	size := header.Size
	if size < int64(n) {
		size = int64(n)
	}
	return model.FileRef{
		Name:        filepath.Base(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Size:        size,
		Head:        head[:n],
		Open: func() (io.ReadCloser, error) {
			return header.Open()
		},
	}, nil
}
