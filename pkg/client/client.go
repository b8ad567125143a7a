// Package client talks JSON over HTTP to the external services: identity,
// the rent reporting API, billing, delivery, tracking and geocoding.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout caps a single request when no HTTP client is supplied.
const DefaultTimeout = 15 * time.Second

const maxErrorBody = 1 << 20

var (
	// ErrUnauthorized matches 401 responses.
	ErrUnauthorized = errors.New("client: unauthorized")
	// ErrNotFound matches 404 responses.
	ErrNotFound = errors.New("client: not found")
)

// ErrorBody is the structured error payload returned by the services.
type ErrorBody struct {
	Message string              `json:"message,omitempty"`
	Code    string              `json:"code,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Service    string
	Method     string
	Path       string
	StatusCode int
	Body       ErrorBody
}

func (e *StatusError) Error() string {
	msg := e.Body.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("client: %s %s %s: status %d: %s", e.Service, e.Method, e.Path, e.StatusCode, msg)
}

// Is matches ErrUnauthorized and ErrNotFound by status code.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Structured reports whether the service explained the failure.
func (e *StatusError) Structured() bool {
	return e.Body.Message != "" || len(e.Body.Errors) > 0
}

// Request describes one call. Body is encoded as JSON; Content is sent
// as-is with ContentType instead when set.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Token       string
	Body        any
	Content     io.Reader
	ContentType string
}

// Client is a JSON client bound to one service base URL.
type Client struct {
	service string
	base    *url.URL
	http    *http.Client
	logger  *zap.Logger
	header  http.Header
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHeader adds a header to every request, such as an API key.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

// New creates a client for service at baseURL.
func New(service, baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("client: %s base URL %q is invalid", service, baseURL)
	}
	c := &Client{
		service: service,
		base:    base,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  zap.NewNop(),
		header:  http.Header{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = c.logger.With(zap.String("service", service))
	return c, nil
}

// Service returns the service name.
func (c *Client) Service() string { return c.service }

// Do sends req and decodes a 2xx JSON response into out when out is not nil.
// Non-2xx responses return *StatusError; transport failures are wrapped.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	target := c.base.JoinPath(req.Path)
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.Content != nil:
		body, contentType = req.Content, req.ContentType
	case req.Body != nil:
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("client: %s encode %s: %w", c.service, req.Path, err)
		}
		body, contentType = bytes.NewReader(payload), "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("client: %s build request: %w", c.service, err)
	}
	for key, values := range c.header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("request failed", zap.String("method", method), zap.String("path", req.Path), zap.Error(err))
		return fmt.Errorf("client: %s %s %s: %w", c.service, method, req.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			Service:    c.service,
			Method:     method,
			Path:       req.Path,
			StatusCode: resp.StatusCode,
			Body:       decodeErrorBody(resp.Body),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("client: %s decode %s: %w", c.service, req.Path, err)
	}
	return nil
}

// decodeErrorBody reads {"message","code","errors"} and tolerates "error"
// as an alias of "message" and single strings in "errors".
func decodeErrorBody(r io.Reader) ErrorBody {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return ErrorBody{}
	}
	var raw struct {
		Message string                     `json:"message"`
		Error   string                     `json:"error"`
		Code    string                     `json:"code"`
		Errors  map[string]json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ErrorBody{}
	}
	body := ErrorBody{Message: raw.Message, Code: raw.Code}
	if body.Message == "" {
		body.Message = raw.Error
	}
	for path, value := range raw.Errors {
		var list []string
		if err := json.Unmarshal(value, &list); err != nil {
			var single string
			if err := json.Unmarshal(value, &single); err != nil {
				continue
			}
			list = []string{single}
		}
		if body.Errors == nil {
			body.Errors = make(map[string][]string)
		}
		body.Errors[path] = list
	}
	return body
}
