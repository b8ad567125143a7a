// Package submit coordinates form submissions: validation, serialization,
// the outgoing call and the mapping of its result into UI state.
package submit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/pkg/cache"
	"github.com/goliatone/go-rentreport/pkg/client"
	"github.com/goliatone/go-rentreport/pkg/contract"
	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/validation"
)

// ErrNoToken is recorded when a gated form is submitted without credentials.
var ErrNoToken = errors.New("submit: no bearer token for gated form")

// Sender performs the outgoing call. *client.Client satisfies it.
type Sender interface {
	Do(ctx context.Context, req client.Request, out any) error
}

// Checker validates a payload against the endpoint contract.
type Checker interface {
	Check(ctx context.Context, method, path string, payload any) error
}

// DocumentStore keeps attachment content. *client.Documents satisfies it.
type DocumentStore interface {
	Upload(ctx context.Context, token string, file client.UploadFile) (client.StoredDocument, error)
}

// TokenSource yields the bearer token of the current identity session.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function into a TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token calls fn.
func (fn TokenFunc) Token(ctx context.Context) (string, error) { return fn(ctx) }

// StaticToken returns a TokenSource for a fixed token.
func StaticToken(token string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) { return token, nil })
}

// Request is one submit attempt. Raw input is normalized first; Values is
// used as-is when Raw is nil.
type Request struct {
	Form       model.FormModel
	Raw        map[string]any
	Values     model.Values
	Tokens     TokenSource
	Serializer Serializer
	// Response receives the decoded 2xx body; a map is used when nil.
	Response any
	// Invalidate lists extra cache prefixes dropped on success.
	Invalidate []string
	View       string
}

// Coordinator runs submissions against the configured services.
type Coordinator struct {
	validator    *validation.Validator
	senders      map[string]Sender
	checker      Checker
	documents    DocumentStore
	invalidator  cache.Invalidator
	tokens       TokenSource
	logger       *zap.Logger
	dismissAfter time.Duration
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithSender registers the sender used for forms of service.
func WithSender(service string, sender Sender) Option {
	return func(c *Coordinator) {
		if sender != nil {
			c.senders[service] = sender
		}
	}
}

// WithContract enables payload conformance checks.
func WithContract(checker Checker) Option {
	return func(c *Coordinator) {
		c.checker = checker
	}
}

// WithDocuments stores attachment content before the payload is sent; the
// payload then references each attachment by its stored key.
func WithDocuments(store DocumentStore) Option {
	return func(c *Coordinator) {
		c.documents = store
	}
}

// WithInvalidator sets the caches invalidated after a successful submission.
func WithInvalidator(inv cache.Invalidator) Option {
	return func(c *Coordinator) {
		c.invalidator = inv
	}
}

// WithTokenSource sets the default token source for gated forms.
func WithTokenSource(tokens TokenSource) Option {
	return func(c *Coordinator) {
		c.tokens = tokens
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDismissAfter sets the toast auto-dismiss interval.
func WithDismissAfter(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.dismissAfter = d
		}
	}
}

// New builds a Coordinator around validator.
func New(validator *validation.Validator, opts ...Option) *Coordinator {
	if validator == nil {
		validator = validation.New()
	}
	c := &Coordinator{
		validator:    validator,
		senders:      make(map[string]Sender),
		logger:       zap.NewNop(),
		dismissAfter: DefaultDismissAfter,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Validator returns the validator used before every submission.
func (c *Coordinator) Validator() *validation.Validator { return c.validator }

// Submit validates, serializes and sends one submission. It never retries
// and never panics; every failure is folded into the Result.
func (c *Coordinator) Submit(ctx context.Context, req Request) (result Result) {
	form := req.Form
	logger := c.logger.With(zap.String("form", form.ID))
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("submission panicked", zap.Any("panic", recovered), zap.Stack("stack"))
			result = c.failure(OutcomeNetworkError, MsgUnexpected, fmt.Errorf("submit: panic: %v", recovered))
		}
	}()

	values := req.Values
	var check validation.Result
	var err error
	if req.Raw != nil {
		values, check, err = c.validator.ValidateRaw(form, req.Raw)
	} else {
		check, err = c.validator.Validate(form, values)
	}
	if err != nil {
		logger.Error("validation misconfigured", zap.Error(err))
		return c.failure(OutcomeNetworkError, MsgUnexpected, err)
	}
	if !check.Valid {
		return Validation(check.Errors)
	}

	token := ""
	if form.Auth == model.AuthMember || form.Auth == model.AuthAdmin {
		tokens := req.Tokens
		if tokens == nil {
			tokens = c.tokens
		}
		if tokens != nil {
			token, err = tokens.Token(ctx)
		}
		if err != nil || token == "" {
			if err == nil {
				err = ErrNoToken
			}
			logger.Info("gated form without session", zap.Error(err))
			return c.failure(OutcomeUnauthorized, MsgUnauthorized, err)
		}
	}

	if c.documents != nil {
		values, err = c.storeAttachments(ctx, logger, form.Fields, values, token, "")
		if err != nil {
			return c.sendFailure(logger, form, err)
		}
	}

	serializer := req.Serializer
	if serializer == nil {
		serializer = DefaultSerializer()
	}
	payload, err := serializer.Serialize(form, values)
	if err != nil {
		logger.Error("serialize failed", zap.Error(err))
		return c.failure(OutcomeNetworkError, MsgUnexpected, fmt.Errorf("submit: serialize %s: %w", form.ID, err))
	}

	method := strings.ToUpper(form.Method)
	if method == "" {
		method = http.MethodPost
	}
	if c.checker != nil {
		if err := c.checker.Check(ctx, method, form.Endpoint, payload); err != nil {
			var contractErr *contract.Error
			switch {
			case errors.Is(err, contract.ErrNoOperation):
				logger.Debug("no contract for endpoint", zap.String("endpoint", form.Endpoint))
			case errors.As(err, &contractErr):
				logger.Warn("payload does not match contract", zap.Error(err))
				fields := MapErrorPayload(form, issuePayload(contractErr)).FieldErrors()
				failed := c.failure(OutcomeValidationFailure, MsgFixFields, err)
				failed.Fields = fields
				return failed
			default:
				logger.Error("contract check failed", zap.Error(err))
				return c.failure(OutcomeNetworkError, MsgUnexpected, err)
			}
		}
	}

	sender, ok := c.senders[form.Service]
	if !ok {
		err := fmt.Errorf("submit: no sender for service %q", form.Service)
		logger.Error("submission misconfigured", zap.Error(err))
		return c.failure(OutcomeNetworkError, MsgUnexpected, err)
	}

	out := req.Response
	if out == nil {
		out = &map[string]any{}
	}
	err = sender.Do(ctx, client.Request{Method: method, Path: form.Endpoint, Token: token, Body: payload}, out)
	if err != nil {
		return c.sendFailure(logger, form, err)
	}

	c.invalidate(form, req.Invalidate)
	view := req.View
	if view == "" {
		view = SuccessView(form)
	}
	logger.Info("submission accepted", zap.String("endpoint", form.Endpoint))
	return Result{Outcome: OutcomeSuccess, View: view, Data: out}
}

// storeAttachments uploads every attachment that carries content and has no
// key yet, and returns a copy of values with the keys filled in.
func (c *Coordinator) storeAttachments(ctx context.Context, logger *zap.Logger, fields []model.Field, values model.Values, token, prefix string) (model.Values, error) {
	out := values.Clone()
	for _, field := range fields {
		switch field.Kind {
		case model.KindFile:
			ref, ok := out[field.Name].(model.FileRef)
			if !ok || ref.Key != "" {
				continue
			}
			if ref.Open == nil {
				logger.Debug("attachment without content", zap.String("field", prefix+field.Name))
				continue
			}
			stored, err := c.upload(ctx, token, prefix+field.Name, ref)
			if err != nil {
				return nil, err
			}
			ref.Key = stored.Key
			out[field.Name] = ref
			logger.Debug("attachment stored", zap.String("field", prefix+field.Name), zap.String("key", stored.Key))
		case model.KindSection:
			entries, ok := out[field.Name].([]model.Values)
			if !ok {
				continue
			}
			for idx, entry := range entries {
				stored, err := c.storeAttachments(ctx, logger, field.Fields, entry, token, fmt.Sprintf("%s%s.%d.", prefix, field.Name, idx))
				if err != nil {
					return nil, err
				}
				entries[idx] = stored
			}
		}
	}
	return out, nil
}

func (c *Coordinator) upload(ctx context.Context, token, path string, ref model.FileRef) (client.StoredDocument, error) {
	content, err := ref.Open()
	if err != nil {
		return client.StoredDocument{}, fmt.Errorf("submit: open %s: %w", path, err)
	}
	defer content.Close()
	return c.documents.Upload(ctx, token, client.UploadFile{
		Field:       path,
		Name:        ref.Name,
		ContentType: ref.ContentType,
		Content:     content,
	})
}

func (c *Coordinator) sendFailure(logger *zap.Logger, form model.FormModel, err error) Result {
	var statusErr *client.StatusError
	if !errors.As(err, &statusErr) {
		logger.Warn("submission transport failure", zap.Error(err))
		return c.failure(OutcomeNetworkError, MsgNetwork, err)
	}
	if statusErr.StatusCode == http.StatusUnauthorized {
		logger.Info("submission rejected credentials", zap.Error(err))
		return c.failure(OutcomeUnauthorized, MsgUnauthorized, err)
	}
	if !statusErr.Structured() {
		logger.Warn("submission failed without details", zap.Error(err))
		return c.failure(OutcomeNetworkError, MsgNetwork, err)
	}

	mapping := MapErrorPayload(form, statusErr.Body.Errors)
	message := SanitizeMessage(statusErr.Body.Message)
	if message == "" && len(mapping.Form) > 0 {
		message = SanitizeMessage(mapping.Form[0])
	}
	if message == "" {
		message = MsgServer
	}
	logger.Info("submission rejected", zap.Int("status", statusErr.StatusCode), zap.String("message", message))
	result := c.failure(OutcomeServerError, message, err)
	result.Fields = mapping.FieldErrors()
	for _, msg := range mapping.Form {
		if clean := SanitizeMessage(msg); clean != "" {
			result.Form = append(result.Form, clean)
		}
	}
	return result
}

func (c *Coordinator) failure(outcome Outcome, message string, err error) Result {
	return Result{
		Outcome: outcome,
		Toast:   &Toast{Message: message, Kind: "error", DismissAfter: c.dismissAfter},
		Err:     err,
	}
}

func (c *Coordinator) invalidate(form model.FormModel, extra []string) {
	if c.invalidator == nil {
		return
	}
	for _, prefix := range append(append([]string(nil), form.Invalidates...), extra...) {
		if prefix != "" {
			c.invalidator.InvalidatePrefix(prefix)
		}
	}
}

// SuccessView names the view shown after form succeeds: the "successView"
// metadata entry, or "<form id>-success".
func SuccessView(form model.FormModel) string {
	if view := form.Metadata["successView"]; view != "" {
		return view
	}
	return form.ID + "-success"
}

func issuePayload(err *contract.Error) map[string][]string {
	out := make(map[string][]string, len(err.Issues))
	for _, issue := range err.Issues {
		out[issue.Path] = append(out[issue.Path], issue.Message)
	}
	return out
}
