package registration_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/goliatone/go-rentreport/pkg/auth"
	"github.com/goliatone/go-rentreport/pkg/client"
	"github.com/goliatone/go-rentreport/pkg/clock"
	"github.com/goliatone/go-rentreport/pkg/forms"
	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/registration"
	"github.com/goliatone/go-rentreport/pkg/session"
	"github.com/goliatone/go-rentreport/pkg/submit"
	"github.com/goliatone/go-rentreport/pkg/tracking"
	"github.com/goliatone/go-rentreport/pkg/validation"
)

var now = time.Date(2024, 7, 3, 12, 0, 0, 0, time.UTC)

type fakeProvider struct {
	auth.Provider
	t           *testing.T
	signUpErr   error
	challenge   bool
	unconfirmed int
	signIns     int
	signUps     []auth.SignUpInput
}

func (f *fakeProvider) SignUp(_ context.Context, input auth.SignUpInput) (auth.SignUpOutput, error) {
	f.signUps = append(f.signUps, input)
	if f.signUpErr != nil {
		return auth.SignUpOutput{}, f.signUpErr
	}
	for _, previous := range f.signUps[:len(f.signUps)-1] {
		if previous.Email == input.Email {
			return auth.SignUpOutput{}, &auth.ProviderError{Code: auth.CodeUsernameExists}
		}
	}
	return auth.SignUpOutput{UserSub: "sub-1"}, nil
}

func (f *fakeProvider) SignIn(_ context.Context, email, password string) (auth.Response, error) {
	f.signIns++
	if f.signIns <= f.unconfirmed {
		return auth.Response{}, &auth.ProviderError{Code: auth.CodeUserNotConfirmed}
	}
	if f.challenge {
		return auth.Response{Challenge: &auth.Challenge{Kind: auth.ChallengeMFA, Session: "challenge-1", Channel: "SMS"}}, nil
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.IDClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "sub-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		f.t.Fatalf("sign: %v", err)
	}
	return auth.Response{Tokens: &auth.Tokens{IDToken: signed, AccessToken: "access"}}, nil
}

type fakeBilling struct {
	requests []client.CheckoutRequest
	tokens   []string
}

func (f *fakeBilling) CreateCheckoutSession(_ context.Context, token string, req client.CheckoutRequest) (client.BillingSession, error) {
	f.requests = append(f.requests, req)
	f.tokens = append(f.tokens, token)
	return client.BillingSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	deletes []string
}

func (r *recordingSink) Put(context.Context, client.TrackingSnapshot) error { return nil }

func (r *recordingSink) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, id)
	return nil
}

type harness struct {
	funnel   *registration.Funnel
	provider *fakeProvider
	billing  *fakeBilling
	stores   *session.Stores
	tracker  *tracking.Tracker
	sink     *recordingSink
	clock    *clock.Manual
	logs     *observer.ObservedLogs
	sleeps   []time.Duration
	members  []map[string]any
	// memberFailures answers that many member requests with 503.
	memberFailures int
	mu             sync.Mutex
}

func newHarness(t *testing.T, unconfirmed int) *harness {
	t.Helper()
	h := &harness{
		provider: &fakeProvider{t: t, unconfirmed: unconfirmed},
		billing:  &fakeBilling{},
		clock:    clock.NewManual(now),
		sink:     &recordingSink{},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/members" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		h.mu.Lock()
		h.members = append(h.members, body)
		failing := h.memberFailures > 0
		if failing {
			h.memberFailures--
		}
		h.mu.Unlock()
		if failing {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"m1","email":"ada@example.com"}`))
	}))
	t.Cleanup(server.Close)

	api, err := client.New("api", server.URL)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	registry, err := forms.Default()
	if err != nil {
		t.Fatalf("forms: %v", err)
	}
	h.stores = session.NewMemoryStores(h.clock)
	core, logs := observer.New(zapcore.DebugLevel)
	h.logs = logs
	h.tracker = tracking.NewTracker(h.sink, tracking.WithDebounce(time.Hour))
	t.Cleanup(h.tracker.Close)

	h.funnel, err = registration.New(registration.Deps{
		Forms:       registry,
		Coordinator: submit.New(validation.New(validation.WithClock(h.clock)), submit.WithSender("api", api)),
		Provider:    h.provider,
		Billing:     h.billing,
		Stores:      h.stores,
		Tracker:     h.tracker,
		Sleeper: func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		},
		Clock:      h.clock,
		Logger:     zap.New(core),
		SuccessURL: "https://app.example.com/welcome",
		CancelURL:  "https://app.example.com/plans",
	})
	if err != nil {
		t.Fatalf("funnel: %v", err)
	}
	return h
}

func (h *harness) memberRequests() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]map[string]any(nil), h.members...)
}

func registrationInput() map[string]any {
	return map[string]any{
		"firstName":       "Ada",
		"lastName":        "Lovelace",
		"email":           "ada@example.com",
		"password":        "Secret123",
		"confirmPassword": "Secret123",
		"birthDate":       "1990-05-01",
		"phone":           "5125550100",
		"nationalId":      "123456789",
		"street":          "1 Main St",
		"city":            "Austin",
		"state":           "TX",
		"postalCode":      "78701",
		"monthlyRent":     1500.0,
		"rentalStartDate": "2024-01-01",
		"rentalEndDate":   "2024-06-30",
		"plan":            "premium",
		"idPhoto": model.FileRef{
			Name:        "id.png",
			ContentType: "image/png",
			Size:        2048,
			Head:        []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0},
		},
		"acceptTerms": true,
	}
}

func TestRegister_CreatesPendingRegistration(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	tracked, err := h.tracker.Start(ctx, client.TrackingSnapshot{Step: "personal"})
	if err != nil {
		t.Fatalf("tracking: %v", err)
	}

	result := h.funnel.Register(ctx, registrationInput(), tracked.ID)
	if !result.OK() || result.View != registration.ViewPending {
		t.Fatalf("expected pending view, got %+v (err %v)", result, result.Err)
	}
	draft, ok := result.Data.(registration.Draft)
	if !ok || draft.DraftID == "" || draft.MemberID != "m1" {
		t.Fatalf("unexpected draft %#v", result.Data)
	}
	if !draft.ExpiresAt.Equal(now.Add(session.PendingRegistrationTTL)) {
		t.Fatalf("unexpected expiry %v", draft.ExpiresAt)
	}

	pending, err := h.stores.Pending.Get(ctx, draft.DraftID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	want := session.PendingRegistration{
		Email:      "ada@example.com",
		Password:   "Secret123",
		Plan:       "premium",
		UserSub:    "sub-1",
		MemberID:   "m1",
		TrackingID: tracked.ID,
		CreatedAt:  now,
	}
	if diff := cmp.Diff(want, pending); diff != "" {
		t.Fatalf("pending mismatch (-want +got):\n%s", diff)
	}

	members := h.memberRequests()
	if len(members) != 1 {
		t.Fatalf("expected one member request, got %d", len(members))
	}
	body := members[0]
	for _, omitted := range []string{"password", "confirmPassword", "acceptTerms"} {
		if _, ok := body[omitted]; ok {
			t.Fatalf("expected %s to be left out of the member payload", omitted)
		}
	}
	if body["trackingId"] != tracked.ID || body["birthDate"] != "1990-05-01" {
		t.Fatalf("unexpected member payload %v", body)
	}
	if got := h.provider.signUps[0].Attributes["birthdate"]; got != "1990-05-01" {
		t.Fatalf("unexpected birthdate attribute %q", got)
	}
}

func TestRegister_PasswordMismatchSkipsSignUp(t *testing.T) {
	h := newHarness(t, 0)
	input := registrationInput()
	input["confirmPassword"] = "Secret124"

	result := h.funnel.Register(context.Background(), input, "")
	if diff := cmp.Diff(model.Errors{"confirmPassword": "Passwords do not match"}, result.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	if len(h.provider.signUps) != 0 || len(h.memberRequests()) != 0 {
		t.Fatalf("expected no external calls")
	}
}

func TestRegister_RentalDatesOutsideWindow(t *testing.T) {
	h := newHarness(t, 0)
	input := registrationInput()
	input["rentalStartDate"] = "2022-01-01"
	input["rentalEndDate"] = "2022-06-30"
	input["history"] = []any{
		map[string]any{"street": "9 Elm St", "startDate": "2024-06-01", "endDate": "2024-09-30"},
	}

	result := h.funnel.Register(context.Background(), input, "")
	if result.Outcome != submit.OutcomeValidationFailure {
		t.Fatalf("expected validation failure, got %+v", result)
	}
	want := map[string]string{
		"rentalStartDate":   "Start date must be within the last 24 months",
		"history.0.endDate": "End date cannot be in the future",
	}
	for path, message := range want {
		if got := result.Fields[path]; got != message {
			t.Fatalf("%s: want %q, got %q (all %v)", path, message, got, result.Fields)
		}
	}
	if len(h.provider.signUps) != 0 {
		t.Fatalf("expected no sign-up")
	}
}

func TestRegister_ExistingEmail(t *testing.T) {
	h := newHarness(t, 0)
	h.provider.signUpErr = &auth.ProviderError{Code: auth.CodeUsernameExists}

	result := h.funnel.Register(context.Background(), registrationInput(), "")
	if diff := cmp.Diff(model.Errors{"email": registration.MsgEmailTaken}, result.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	if len(h.memberRequests()) != 0 {
		t.Fatalf("expected no member request")
	}
}

func TestRegister_RetryAfterMemberFailureReusesIdentity(t *testing.T) {
	h := newHarness(t, 0)
	h.memberFailures = 1
	ctx := context.Background()

	first := h.funnel.Register(ctx, registrationInput(), "")
	if first.Outcome != submit.OutcomeNetworkError {
		t.Fatalf("expected network error, got %+v", first)
	}

	retry := h.funnel.Register(ctx, registrationInput(), "")
	if !retry.OK() {
		t.Fatalf("expected retry to succeed, got %+v fields %v (err %v)", retry, retry.Fields, retry.Err)
	}
	if len(h.provider.signUps) != 1 {
		t.Fatalf("expected a single identity sign-up, got %d", len(h.provider.signUps))
	}
	if got := len(h.memberRequests()); got != 2 {
		t.Fatalf("expected the member request to be repeated, got %d", got)
	}
	draft := retry.Data.(registration.Draft)
	pending, err := h.stores.Pending.Get(ctx, draft.DraftID)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.UserSub != "sub-1" || pending.MemberID != "m1" {
		t.Fatalf("unexpected pending registration %+v", pending)
	}

	again := h.funnel.Register(ctx, registrationInput(), "")
	if diff := cmp.Diff(model.Errors{"email": registration.MsgEmailTaken}, again.Fields); diff != "" {
		t.Fatalf("expected a registered email to be taken (-want +got):\n%s", diff)
	}
}

func TestRegister_RetryWithDifferentPasswordIsRejected(t *testing.T) {
	h := newHarness(t, 0)
	h.memberFailures = 1
	ctx := context.Background()

	if first := h.funnel.Register(ctx, registrationInput(), ""); first.OK() {
		t.Fatalf("expected first attempt to fail")
	}
	input := registrationInput()
	input["password"] = "Another123"
	input["confirmPassword"] = "Another123"

	result := h.funnel.Register(ctx, input, "")
	if diff := cmp.Diff(model.Errors{"email": registration.MsgEmailTaken}, result.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	if got := len(h.memberRequests()); got != 1 {
		t.Fatalf("expected no second member request, got %d", got)
	}
}

func TestComplete_RetriesUntilConfirmedThenChecksOut(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	tracked, _ := h.tracker.Start(ctx, client.TrackingSnapshot{Step: "personal"})
	draft := h.funnel.Register(ctx, registrationInput(), tracked.ID).Data.(registration.Draft)

	result := h.funnel.Complete(ctx, draft.DraftID)
	if !result.OK() || result.View != registration.ViewComplete {
		t.Fatalf("expected completion, got %+v (err %v)", result, result.Err)
	}
	completion, ok := result.Data.(*registration.Completion)
	if !ok || completion.CheckoutURL != "https://pay.example.com/cs_1" {
		t.Fatalf("unexpected completion %#v", result.Data)
	}
	if completion.Auth.State != auth.StateDone || completion.Auth.Session == nil || completion.Auth.Session.Subject != "sub-1" {
		t.Fatalf("unexpected auth snapshot %+v", completion.Auth)
	}
	if h.provider.signIns != 3 {
		t.Fatalf("expected 3 sign-in attempts, got %d", h.provider.signIns)
	}
	if diff := cmp.Diff([]time.Duration{2 * time.Second, 2 * time.Second}, h.sleeps); diff != "" {
		t.Fatalf("sleeps mismatch (-want +got):\n%s", diff)
	}
	want := client.CheckoutRequest{
		Plan:       "premium",
		Email:      "ada@example.com",
		SuccessURL: "https://app.example.com/welcome",
		CancelURL:  "https://app.example.com/plans",
	}
	if diff := cmp.Diff([]client.CheckoutRequest{want}, h.billing.requests); diff != "" {
		t.Fatalf("checkout mismatch (-want +got):\n%s", diff)
	}
	if h.billing.tokens[0] == "" {
		t.Fatalf("expected checkout to carry the member token")
	}
	if _, err := h.stores.Pending.Get(ctx, draft.DraftID); err == nil {
		t.Fatalf("expected draft to be deleted")
	}
	if diff := cmp.Diff([]string{tracked.ID}, h.sink.deletes); diff != "" {
		t.Fatalf("tracking deletes mismatch (-want +got):\n%s", diff)
	}
}

func TestComplete_GivesUpAfterThreeUnconfirmedAttempts(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()
	draft := h.funnel.Register(ctx, registrationInput(), "").Data.(registration.Draft)

	result := h.funnel.Complete(ctx, draft.DraftID)
	if result.Outcome != submit.OutcomeUnauthorized || result.Toast.Message != auth.MsgNotConfirmed {
		t.Fatalf("unexpected result %+v", result)
	}
	if h.provider.signIns != 3 || len(h.sleeps) != 2 {
		t.Fatalf("expected 3 attempts and 2 waits, got %d and %d", h.provider.signIns, len(h.sleeps))
	}
	if len(h.billing.requests) != 0 {
		t.Fatalf("expected no checkout")
	}
	if _, err := h.stores.Pending.Get(ctx, draft.DraftID); err != nil {
		t.Fatalf("expected draft to survive a failed completion: %v", err)
	}
}

type failingDelete struct {
	session.Store[session.PendingRegistration]
}

func (failingDelete) Delete(context.Context, string) error { return errors.New("store offline") }

func TestComplete_ChallengeLogsDraftCleanupFailure(t *testing.T) {
	h := newHarness(t, 0)
	h.provider.challenge = true
	ctx := context.Background()
	draft := h.funnel.Register(ctx, registrationInput(), "").Data.(registration.Draft)
	h.stores.Pending = failingDelete{Store: h.stores.Pending}

	result := h.funnel.Complete(ctx, draft.DraftID)
	if result.Outcome != submit.OutcomeUnauthorized || result.Toast.Message != registration.MsgExtraVerify {
		t.Fatalf("unexpected result %+v", result)
	}
	completion, ok := result.Data.(registration.Completion)
	if !ok || completion.Auth.State != auth.StateMFARequired {
		t.Fatalf("expected the MFA step to be handed back, got %#v", result.Data)
	}
	entries := h.logs.FilterMessage("delete pending registration failed").All()
	if len(entries) != 1 || entries[0].ContextMap()["draft"] != draft.DraftID {
		t.Fatalf("expected one cleanup warning for the draft, got %v", entries)
	}
}

func TestComplete_ExpiredDraft(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	draft := h.funnel.Register(ctx, registrationInput(), "").Data.(registration.Draft)
	h.clock.Advance(session.PendingRegistrationTTL + time.Second)

	result := h.funnel.Complete(ctx, draft.DraftID)
	if result.Outcome != submit.OutcomeUnauthorized || result.Toast.Message != registration.MsgDraftExpired {
		t.Fatalf("unexpected result %+v", result)
	}
	if h.provider.signIns != 0 {
		t.Fatalf("expected no sign-in")
	}
}
