package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// UploadFile is one attachment sent to document storage.
type UploadFile struct {
	Field       string
	Name        string
	ContentType string
	Content     io.Reader
}

// StoredDocument is the receipt of an upload.
type StoredDocument struct {
	Key  string `json:"key"`
	URL  string `json:"url,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Documents stores attachment content and returns keys that submissions
// reference.
type Documents struct {
	*Client
}

// NewDocuments wraps c as the document storage client.
func NewDocuments(c *Client) *Documents { return &Documents{Client: c} }

// Upload posts file as multipart/form-data under the "file" part. The token
// is optional; public forms upload anonymously.
func (d *Documents) Upload(ctx context.Context, token string, file UploadFile) (StoredDocument, error) {
	if file.Content == nil {
		return StoredDocument{}, fmt.Errorf("client: %s upload %s: no content", d.Service(), file.Name)
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if file.Field != "" {
		if err := writer.WriteField("field", file.Field); err != nil {
			return StoredDocument{}, fmt.Errorf("client: %s upload %s: %w", d.Service(), file.Name, err)
		}
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(file.Name)))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return StoredDocument{}, fmt.Errorf("client: %s upload %s: %w", d.Service(), file.Name, err)
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return StoredDocument{}, fmt.Errorf("client: %s upload %s: %w", d.Service(), file.Name, err)
	}
	if err := writer.Close(); err != nil {
		return StoredDocument{}, fmt.Errorf("client: %s upload %s: %w", d.Service(), file.Name, err)
	}

	var out StoredDocument
	err = d.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        "/documents",
		Token:       token,
		Content:     &body,
		ContentType: writer.FormDataContentType(),
	}, &out)
	if err != nil {
		return StoredDocument{}, err
	}
	if out.Key == "" {
		return StoredDocument{}, fmt.Errorf("client: %s upload %s: response has no key", d.Service(), file.Name)
	}
	return out, nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
