package rentreport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/pkg/auth"
	"github.com/goliatone/go-rentreport/pkg/client"
	"github.com/goliatone/go-rentreport/pkg/clock"
	"github.com/goliatone/go-rentreport/pkg/forms"
	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/session"
	"github.com/goliatone/go-rentreport/pkg/submit"
)

// View names rendered after the reporting flows.
const (
	ViewAlreadyReported = "back-rent-already-reported"
	ViewAdminDashboard  = "admin-dashboard"
)

const (
	MsgUnknownCode      = "We couldn't find that verification code"
	MsgDeliveryDelayed  = "Your report was saved. We couldn't send it yet and will email it shortly."
	MsgAdminCredentials = "Incorrect username or password."
)

const fieldVerificationCode = "verificationCode"

var (
	// ErrCodeConsumed reports a verification code that already produced a
	// report.
	ErrCodeConsumed = errors.New("rentreport: verification code already used")
	// ErrNoSession reports a member call without a live identity session.
	ErrNoSession = errors.New("rentreport: no member session")
)

// API is the subset of the rent reporting API the service reads from.
type API interface {
	ListRentReports(ctx context.Context, token string) ([]client.RentReport, error)
	VerificationCode(ctx context.Context, code string) (client.VerificationCode, error)
	ListDocuments(ctx context.Context, token string) ([]client.Document, error)
	CreditScore(ctx context.Context, token string) (client.CreditScore, error)
	ListMembers(ctx context.Context, adminToken string) ([]client.MemberSummary, error)
}

// Deliverer requests PDF delivery of a back-rent report.
type Deliverer interface {
	Request(ctx context.Context, req client.DeliveryRequest) (client.Delivery, error)
}

// Deps wires a Service.
type Deps struct {
	Forms       *forms.Registry
	Coordinator *submit.Coordinator
	API         API
	Delivery    Deliverer
	Stores      *session.Stores
	Caches      *Caches
	Clock       clock.Clock
	Logger      *zap.Logger
}

// Service runs the reporting flows.
type Service struct {
	forms       *forms.Registry
	coordinator *submit.Coordinator
	api         API
	delivery    Deliverer
	stores      *session.Stores
	caches      *Caches
	clock       clock.Clock
	logger      *zap.Logger
}

// NewService validates deps and builds a Service.
func NewService(deps Deps) (*Service, error) {
	if deps.Forms == nil || deps.Coordinator == nil || deps.API == nil {
		return nil, errors.New("rentreport: forms, coordinator and api are required")
	}
	s := &Service{
		forms:       deps.Forms,
		coordinator: deps.Coordinator,
		api:         deps.API,
		delivery:    deps.Delivery,
		stores:      deps.Stores,
		caches:      deps.Caches,
		clock:       clock.OrSystem(deps.Clock),
		logger:      deps.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.stores == nil {
		s.stores = session.NewMemoryStores(s.clock)
	}
	if s.caches == nil {
		s.caches = NewCaches(0, s.clock, s.logger)
	}
	return s, nil
}

// Caches exposes the dashboard caches.
func (s *Service) Caches() *Caches { return s.caches }

func memberToken(sess auth.Session) submit.TokenSource {
	return submit.TokenFunc(func(context.Context) (string, error) {
		token := sess.BearerToken()
		if token == "" {
			return "", ErrNoSession
		}
		return token, nil
	})
}

// SubmitRentReport submits a rent payment report. The status is derived from
// the submission day.
func (s *Service) SubmitRentReport(ctx context.Context, sess auth.Session, raw map[string]any) submit.Result {
	form, err := s.forms.Get(forms.RentReport)
	if err != nil {
		return s.misconfigured(err)
	}
	status := StatusAt(s.clock.Now())
	result := s.coordinator.Submit(ctx, submit.Request{
		Form:   form,
		Raw:    raw,
		Tokens: memberToken(sess),
		Serializer: submit.Extend(nil, func(model.Values) map[string]any {
			return map[string]any{"status": string(status)}
		}),
		Response: &client.RentReport{},
	})
	if result.OK() {
		s.logger.Info("rent report submitted", zap.String("member", sess.Subject), zap.String("status", string(status)))
	}
	return result
}

// ListReports returns the member's reports through the cache.
func (s *Service) ListReports(ctx context.Context, sess auth.Session) ([]client.RentReport, error) {
	if sess.Subject == "" {
		return nil, ErrNoSession
	}
	return s.caches.Reports.GetOrLoad(ctx, key(PrefixReports, sess.Subject), func(ctx context.Context) ([]client.RentReport, error) {
		return s.api.ListRentReports(ctx, sess.BearerToken())
	})
}

// Documents returns the member's stored documents through the cache.
func (s *Service) Documents(ctx context.Context, sess auth.Session) ([]client.Document, error) {
	if sess.Subject == "" {
		return nil, ErrNoSession
	}
	return s.caches.Documents.GetOrLoad(ctx, key(PrefixDocuments, sess.Subject), func(ctx context.Context) ([]client.Document, error) {
		return s.api.ListDocuments(ctx, sess.BearerToken())
	})
}

// CreditScore returns the member's latest score through the cache.
func (s *Service) CreditScore(ctx context.Context, sess auth.Session) (client.CreditScore, error) {
	if sess.Subject == "" {
		return client.CreditScore{}, ErrNoSession
	}
	return s.caches.Scores.GetOrLoad(ctx, key(PrefixCreditScore, sess.Subject), func(ctx context.Context) (client.CreditScore, error) {
		return s.api.CreditScore(ctx, sess.BearerToken())
	})
}

// SubmitBackRent submits a member back-rent report under MemberPolicy.
func (s *Service) SubmitBackRent(ctx context.Context, sess auth.Session, raw map[string]any) submit.Result {
	form, err := s.forms.Get(MemberPolicy.FormID)
	if err != nil {
		return s.misconfigured(err)
	}
	return s.coordinator.Submit(ctx, submit.Request{
		Form:     MemberPolicy.Apply(form),
		Raw:      raw,
		Tokens:   memberToken(sess),
		Response: &client.BackRentReport{},
	})
}

// PublicReceipt is the data of a successful public back-rent submission.
type PublicReceipt struct {
	Report   client.BackRentReport `json:"report"`
	Delivery *client.Delivery      `json:"delivery,omitempty"`
}

// AlreadyReported is the data of the already-reported view.
type AlreadyReported struct {
	Code     string `json:"code"`
	ReportID string `json:"reportId,omitempty"`
}

// SubmitPublicBackRent submits a back-rent report bought with a verification
// code. A consumed code short-circuits to the already-reported view without
// submitting. After success the code is marked consumed and delivery of the
// PDF is requested.
func (s *Service) SubmitPublicBackRent(ctx context.Context, raw map[string]any) submit.Result {
	form, err := s.forms.Get(PublicPolicy.FormID)
	if err != nil {
		return s.misconfigured(err)
	}
	form = PublicPolicy.Apply(form)

	validator := s.coordinator.Validator()
	normalized, _ := model.Normalize(form, raw)
	message, err := validator.ValidateField(form, normalized, fieldVerificationCode)
	if err != nil {
		return s.misconfigured(err)
	}
	if message != "" {
		return submit.Validation(model.Errors{fieldVerificationCode: message})
	}

	code := strings.TrimSpace(fmt.Sprint(normalized[fieldVerificationCode]))
	reportID, err := s.consumedReport(ctx, code)
	switch {
	case errors.Is(err, ErrCodeConsumed):
		s.logger.Info("verification code already used", zap.String("code", code))
		return submit.Result{
			Outcome: submit.OutcomeSuccess,
			View:    ViewAlreadyReported,
			Data:    AlreadyReported{Code: code, ReportID: reportID},
		}
	case errors.Is(err, client.ErrNotFound):
		_, check, verr := validator.ValidateRaw(form, raw)
		if verr != nil {
			return s.misconfigured(verr)
		}
		return submit.Validation(model.Errors{}.Merge(check.Errors).Merge(model.Errors{fieldVerificationCode: MsgUnknownCode}))
	case err != nil:
		s.logger.Warn("verification code lookup failed", zap.Error(err))
		return submit.Result{
			Outcome: submit.OutcomeNetworkError,
			Toast:   &submit.Toast{Message: submit.MsgNetwork, Kind: "error", DismissAfter: submit.DefaultDismissAfter},
			Err:     err,
		}
	}

	values, check, err := validator.ValidateRaw(form, raw)
	if err != nil {
		return s.misconfigured(err)
	}
	if !check.Valid {
		return submit.Validation(check.Errors)
	}

	report := &client.BackRentReport{}
	result := s.coordinator.Submit(ctx, submit.Request{Form: form, Values: values, Response: report})
	if !result.OK() {
		return result
	}

	if err := s.stores.MarkConsumed(ctx, code, report.ID); err != nil {
		s.logger.Warn("mark code consumed failed", zap.String("code", code), zap.Error(err))
	}
	receipt := PublicReceipt{Report: *report}
	result.Data = &receipt
	if s.delivery == nil {
		return result
	}
	email, _ := values["email"].(string)
	method, _ := values["delivery"].(string)
	delivery, err := s.delivery.Request(ctx, client.DeliveryRequest{ReportID: report.ID, Email: email, Method: method})
	if err != nil {
		s.logger.Warn("report delivery failed", zap.String("report", report.ID), zap.Error(err))
		result.Toast = &submit.Toast{Message: MsgDeliveryDelayed, Kind: "warning", DismissAfter: submit.DefaultDismissAfter}
		return result
	}
	receipt.Delivery = &delivery
	return result
}

// consumedReport checks the local record first, then the API.
func (s *Service) consumedReport(ctx context.Context, code string) (string, error) {
	if consumed, err := s.stores.Consumed.Get(ctx, code); err == nil {
		return consumed.ReportID, ErrCodeConsumed
	} else if !errors.Is(err, session.ErrNotFound) {
		s.logger.Warn("consumed code store failed", zap.Error(err))
	}
	state, err := s.api.VerificationCode(ctx, code)
	if err != nil {
		return "", err
	}
	if state.Consumed {
		return state.ReportID, ErrCodeConsumed
	}
	return "", nil
}

// AdminLogin is the data of a successful admin sign-in.
type AdminLogin struct {
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// AdminSignIn submits the admin login form and stores the issued token as
// an admin session.
func (s *Service) AdminSignIn(ctx context.Context, raw map[string]any) submit.Result {
	form, err := s.forms.Get(forms.AdminLogin)
	if err != nil {
		return s.misconfigured(err)
	}
	var out struct {
		Token string `json:"token"`
	}
	result := s.coordinator.Submit(ctx, submit.Request{Form: form, Raw: raw, Response: &out, View: ViewAdminDashboard})
	if result.Outcome == submit.OutcomeUnauthorized && result.Toast != nil {
		result.Toast.Message = MsgAdminCredentials
	}
	if !result.OK() {
		return result
	}

	username, _ := raw["username"].(string)
	admin, err := session.NewAdminSession(out.Token, username)
	if err != nil {
		return s.misconfigured(err)
	}
	id, err := s.stores.SaveAdmin(ctx, admin)
	if err != nil {
		return s.misconfigured(err)
	}
	s.logger.Info("admin signed in", zap.String("admin", admin.Username))
	result.Data = AdminLogin{SessionID: id, ExpiresAt: admin.ExpiresAt}
	return result
}

// Members lists member summaries for a live admin session.
func (s *Service) Members(ctx context.Context, adminSessionID string) ([]client.MemberSummary, error) {
	admin, err := s.stores.LoadAdmin(ctx, adminSessionID)
	if err != nil {
		return nil, err
	}
	return s.api.ListMembers(ctx, admin.Token)
}

func (s *Service) misconfigured(err error) submit.Result {
	s.logger.Error("reporting flow misconfigured", zap.Error(err))
	return submit.Result{
		Outcome: submit.OutcomeNetworkError,
		Toast:   &submit.Toast{Message: submit.MsgUnexpected, Kind: "error", DismissAfter: submit.DefaultDismissAfter},
		Err:     err,
	}
}
