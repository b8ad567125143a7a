// Package registration runs the sign-up funnel: the registration form
// creates the identity and the member record, a pending registration hands
// the credentials to the completion step, which signs in (retrying while
// the account confirms) and opens a checkout session for the chosen plan.
package registration

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/pkg/auth"
	"github.com/goliatone/go-rentreport/pkg/client"
	"github.com/goliatone/go-rentreport/pkg/clock"
	"github.com/goliatone/go-rentreport/pkg/forms"
	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/session"
	"github.com/goliatone/go-rentreport/pkg/submit"
	"github.com/goliatone/go-rentreport/pkg/tracking"
)

// Views shown by the funnel.
const (
	ViewPending  = "registration-pending"
	ViewComplete = "registration-complete"
)

const (
	MsgEmailTaken      = "An account with this email already exists."
	MsgDraftExpired    = "Your registration session expired. Sign in to continue."
	MsgCheckoutDelayed = "You're signed in, but we couldn't open checkout. Try again from your account."
	MsgExtraVerify     = "Sign in to finish setting up your account."
)

const stepRegistered = "registered"

// Billing opens payment sessions. *client.Billing satisfies it.
type Billing interface {
	CreateCheckoutSession(ctx context.Context, token string, req client.CheckoutRequest) (client.BillingSession, error)
}

// Deps wires a Funnel.
type Deps struct {
	Forms       *forms.Registry
	Coordinator *submit.Coordinator
	Provider    auth.Provider
	Billing     Billing
	Stores      *session.Stores
	Tracker     *tracking.Tracker
	Retry       auth.Retry
	Sleeper     auth.Sleeper
	Clock       clock.Clock
	Logger      *zap.Logger
	SuccessURL  string
	CancelURL   string
}

// Funnel runs registration and its completion.
type Funnel struct {
	deps Deps
}

// New validates deps and builds a Funnel.
func New(deps Deps) (*Funnel, error) {
	if deps.Forms == nil || deps.Coordinator == nil || deps.Provider == nil {
		return nil, errors.New("registration: forms, coordinator and provider are required")
	}
	deps.Clock = clock.OrSystem(deps.Clock)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Stores == nil {
		deps.Stores = session.NewMemoryStores(deps.Clock)
	}
	if deps.Retry.Attempts <= 0 {
		deps.Retry = auth.DefaultRetry
	}
	return &Funnel{deps: deps}, nil
}

// Draft is the data of an accepted registration.
type Draft struct {
	DraftID   string    `json:"draftId"`
	MemberID  string    `json:"memberId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type member struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Register validates the registration form, signs the user up with the
// identity provider, creates the member record and keeps a pending
// registration for the completion step. A retry after a failed member
// submission reuses the identity created by the failed attempt.
func (f *Funnel) Register(ctx context.Context, raw map[string]any, trackingID string) submit.Result {
	logger := f.deps.Logger
	form, err := f.deps.Forms.Get(forms.Registration)
	if err != nil {
		return failure(submit.OutcomeNetworkError, submit.MsgUnexpected, err)
	}
	values, check, err := f.deps.Coordinator.Validator().ValidateRaw(form, raw)
	if err != nil {
		logger.Error("registration validation misconfigured", zap.Error(err))
		return failure(submit.OutcomeNetworkError, submit.MsgUnexpected, err)
	}
	if !check.Valid {
		return submit.Validation(check.Errors)
	}

	email := text(values, "email")
	password := text(values, "password")
	userSub, err := f.signUp(ctx, logger, values, email, password)
	if err != nil {
		switch auth.ErrorCode(err) {
		case auth.CodeUsernameExists:
			return submit.Validation(model.Errors{"email": MsgEmailTaken})
		case auth.CodeInvalidPassword:
			return submit.Validation(model.Errors{"password": auth.MsgInvalidPassword})
		}
		logger.Warn("sign up failed", zap.Error(err))
		return failure(submit.OutcomeServerError, auth.Message(err), err)
	}

	created := &member{}
	result := f.deps.Coordinator.Submit(ctx, submit.Request{
		Form:   form,
		Values: values,
		Serializer: submit.Extend(nil, func(model.Values) map[string]any {
			if trackingID == "" {
				return nil
			}
			return map[string]any{"trackingId": trackingID}
		}),
		Response: created,
		View:     ViewPending,
	})
	if !result.OK() {
		return result
	}
	if err := f.deps.Stores.ForgetSignUp(ctx, email); err != nil {
		logger.Warn("forget sign-up failed", zap.Error(err))
	}

	pending := session.PendingRegistration{
		Email:      email,
		Password:   password,
		Plan:       text(values, "plan"),
		UserSub:    userSub,
		MemberID:   created.ID,
		TrackingID: trackingID,
	}
	draftID, err := f.deps.Stores.SavePending(ctx, pending)
	if err != nil {
		logger.Error("store pending registration failed", zap.Error(err))
		return failure(submit.OutcomeNetworkError, submit.MsgUnexpected, err)
	}
	if f.deps.Tracker != nil && trackingID != "" {
		if _, err := f.deps.Tracker.Update(trackingID, client.TrackingSnapshot{Step: stepRegistered}); err != nil {
			logger.Debug("tracking update skipped", zap.String("tracking", trackingID), zap.Error(err))
		}
	}
	logger.Info("registration accepted", zap.String("member", created.ID))
	result.Data = Draft{
		DraftID:   draftID,
		MemberID:  created.ID,
		ExpiresAt: f.deps.Clock.Now().Add(session.PendingRegistrationTTL),
	}
	return result
}

// signUp creates the identity for email, or reuses the one an earlier
// attempt created with the same password when that attempt failed before
// the member record was stored.
func (f *Funnel) signUp(ctx context.Context, logger *zap.Logger, values model.Values, email, password string) (string, error) {
	previous, ok, err := f.deps.Stores.ResumeSignUp(ctx, email, password)
	if err != nil {
		logger.Warn("load sign-up failed", zap.Error(err))
	}
	if ok {
		logger.Info("resuming registration after an earlier sign-up")
		return previous.UserSub, nil
	}

	birthDate, _ := model.FormatValue(values["birthDate"]).(string)
	out, err := f.deps.Provider.SignUp(ctx, auth.SignUpInput{
		Email:    email,
		Password: password,
		Attributes: map[string]string{
			"given_name":  text(values, "firstName"),
			"family_name": text(values, "lastName"),
			"birthdate":   birthDate,
		},
	})
	if err != nil {
		return "", err
	}
	if err := f.deps.Stores.SaveSignUp(ctx, email, password, out.UserSub); err != nil {
		logger.Warn("record sign-up failed", zap.Error(err))
	}
	return out.UserSub, nil
}

// Completion is the data of a completed registration.
type Completion struct {
	Auth        auth.Snapshot `json:"auth"`
	CheckoutURL string        `json:"checkoutUrl,omitempty"`
}

// Complete signs in with the pending credentials, retrying while the new
// account confirms, then opens checkout for the chosen plan. The draft is
// deleted once sign-in succeeds.
func (f *Funnel) Complete(ctx context.Context, draftID string) submit.Result {
	logger := f.deps.Logger.With(zap.String("draft", draftID))
	pending, err := f.deps.Stores.Pending.Get(ctx, draftID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return failure(submit.OutcomeUnauthorized, MsgDraftExpired, err)
		}
		logger.Error("load pending registration failed", zap.Error(err))
		return failure(submit.OutcomeNetworkError, submit.MsgUnexpected, err)
	}

	opts := []auth.Option{auth.WithRetry(f.deps.Retry), auth.WithClock(f.deps.Clock), auth.WithLogger(f.deps.Logger)}
	if f.deps.Sleeper != nil {
		opts = append(opts, auth.WithSleeper(f.deps.Sleeper))
	}
	machine := auth.NewMachine(f.deps.Provider, opts...)
	signIn := machine.SignInAfterSignUp(ctx, pending.Email, pending.Password)
	switch signIn.Kind {
	case auth.ResultDone:
	case auth.ResultError:
		return failure(submit.OutcomeUnauthorized, signIn.Message, errors.New("registration: sign in failed"))
	default:
		if err := f.deps.Stores.Pending.Delete(ctx, draftID); err != nil {
			logger.Warn("delete pending registration failed", zap.Error(err))
		}
		out := failure(submit.OutcomeUnauthorized, MsgExtraVerify, nil)
		out.Data = Completion{Auth: machine.Snapshot()}
		return out
	}

	if err := f.deps.Stores.Pending.Delete(ctx, draftID); err != nil {
		logger.Warn("delete pending registration failed", zap.Error(err))
	}
	if f.deps.Tracker != nil && pending.TrackingID != "" {
		if err := f.deps.Tracker.Complete(ctx, pending.TrackingID); err != nil {
			logger.Debug("tracking completion failed", zap.Error(err))
		}
	}

	completion := Completion{Auth: machine.Snapshot()}
	result := submit.Result{Outcome: submit.OutcomeSuccess, View: ViewComplete, Data: &completion}
	if f.deps.Billing == nil {
		return result
	}
	sess, _ := machine.Session()
	checkout, err := f.deps.Billing.CreateCheckoutSession(ctx, sess.BearerToken(), client.CheckoutRequest{
		Plan:       pending.Plan,
		Email:      pending.Email,
		SuccessURL: f.deps.SuccessURL,
		CancelURL:  f.deps.CancelURL,
	})
	if err != nil {
		logger.Warn("checkout session failed", zap.Error(err))
		result.Toast = &submit.Toast{Message: MsgCheckoutDelayed, Kind: "warning", DismissAfter: submit.DefaultDismissAfter}
		return result
	}
	completion.CheckoutURL = checkout.URL
	logger.Info("registration completed", zap.String("member", sess.Subject))
	return result
}

func failure(outcome submit.Outcome, message string, err error) submit.Result {
	return submit.Result{
		Outcome: outcome,
		Toast:   &submit.Toast{Message: message, Kind: "error", DismissAfter: submit.DefaultDismissAfter},
		Err:     err,
	}
}

func text(values model.Values, name string) string {
	value, _ := values[name].(string)
	return value
}
