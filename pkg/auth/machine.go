// Package auth maps identity provider responses onto the sign-in state
// machine: SignedOut, Authenticating, then Done, MFARequired,
// NewPasswordRequired or Error. Only Done reaches protected views.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/pkg/clock"
)

// State is a sign-in machine state.
type State string

const (
	StateSignedOut           State = "SignedOut"
	StateAuthenticating      State = "Authenticating"
	StateDone                State = "Done"
	StateMFARequired         State = "MFARequired"
	StateNewPasswordRequired State = "NewPasswordRequired"
	StateError               State = "Error"
)

// Retry bounds the sign-in attempts made while the provider still reports
// a freshly signed-up user as not confirmed.
type Retry struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetry makes three attempts two seconds apart.
var DefaultRetry = Retry{Attempts: 3, Delay: 2 * time.Second}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Messages shown to the user.
const (
	MsgNotConfirmed      = "Your account is still being confirmed. Check your email for the confirmation link, then sign in again."
	MsgBadCredentials    = "Incorrect email or password."
	MsgCodeMismatch      = "The code you entered is incorrect."
	MsgCodeExpired       = "The code has expired. Request a new one."
	MsgResetRequired     = "Reset your password to continue."
	MsgTooManyAttempts   = "Too many attempts. Wait a few minutes and try again."
	MsgInvalidPassword   = "Choose a stronger password."
	MsgUnavailable       = "We couldn't reach the sign-in service. Please try again."
	MsgNoChallenge       = "Your sign-in session expired. Start again."
	MsgSessionUnreadable = "We couldn't read your sign-in session. Please sign in again."
)

// Snapshot is the serializable state of a Machine, kept between requests.
type Snapshot struct {
	State     State    `json:"state"`
	Email     string   `json:"email,omitempty"`
	Challenge string   `json:"challenge,omitempty"`
	Channel   string   `json:"channel,omitempty"`
	Message   string   `json:"message,omitempty"`
	Session   *Session `json:"session,omitempty"`
}

// Machine drives one user's sign-in.
type Machine struct {
	provider Provider
	retry    Retry
	sleep    Sleeper
	clock    clock.Clock
	logger   *zap.Logger

	mu   sync.Mutex
	snap Snapshot
}

// Option customises a Machine.
type Option func(*Machine)

// WithRetry sets the not-confirmed retry policy.
func WithRetry(r Retry) Option {
	return func(m *Machine) {
		if r.Attempts > 0 {
			m.retry = r
		}
	}
}

// WithSleeper replaces the wait between retries.
func WithSleeper(s Sleeper) Option {
	return func(m *Machine) {
		if s != nil {
			m.sleep = s
		}
	}
}

// WithClock sets the time source used for session expiry.
func WithClock(c clock.Clock) Option {
	return func(m *Machine) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMachine returns a machine in SignedOut.
func NewMachine(provider Provider, opts ...Option) *Machine {
	m := &Machine{
		provider: provider,
		retry:    DefaultRetry,
		sleep:    Sleep,
		clock:    clock.System(),
		logger:   zap.NewNop(),
		snap:     Snapshot{State: StateSignedOut},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.State
}

// Snapshot returns a copy of the machine state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Restore replaces the machine state with a stored snapshot.
func (m *Machine) Restore(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.State == "" {
		s.State = StateSignedOut
	}
	m.snap = s
}

// Session returns the signed-in session when the machine is Done.
func (m *Machine) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap.State != StateDone || m.snap.Session == nil {
		return Session{}, false
	}
	return *m.snap.Session, true
}

// Authorized reports whether protected views are reachable: the machine is
// Done and the session has not expired.
func (m *Machine) Authorized() bool {
	session, ok := m.Session()
	return ok && !session.Expired(m.clock.Now())
}

// SignIn makes a single sign-in attempt.
func (m *Machine) SignIn(ctx context.Context, email, password string) SignInResult {
	return m.signIn(ctx, email, password, Retry{Attempts: 1})
}

// SignInAfterSignUp signs in a user who has just registered. While the
// provider still reports the user as not confirmed the attempt is repeated
// up to the retry policy's limit with a fixed delay.
func (m *Machine) SignInAfterSignUp(ctx context.Context, email, password string) SignInResult {
	return m.signIn(ctx, email, password, m.retry)
}

func (m *Machine) signIn(ctx context.Context, email, password string, retry Retry) SignInResult {
	m.transition(Snapshot{State: StateAuthenticating, Email: email})

	var (
		resp Response
		err  error
	)
	for attempt := 1; ; attempt++ {
		resp, err = m.provider.SignIn(ctx, email, password)
		if err == nil || !errors.Is(err, ErrNotConfirmed) || attempt >= retry.Attempts {
			break
		}
		m.logger.Info("sign-in retry: user not confirmed yet",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", retry.Attempts),
			zap.Duration("delay", retry.Delay),
		)
		if sleepErr := m.sleep(ctx, retry.Delay); sleepErr != nil {
			err = sleepErr
			break
		}
	}
	if err != nil {
		return m.fail(email, err)
	}
	return m.apply(email, resp)
}

// SubmitMFA answers an MFA challenge.
func (m *Machine) SubmitMFA(ctx context.Context, code string) SignInResult {
	snap := m.Snapshot()
	if snap.State != StateMFARequired {
		return m.fail(snap.Email, ErrNoChallenge)
	}
	m.transition(Snapshot{State: StateAuthenticating, Email: snap.Email, Challenge: snap.Challenge, Channel: snap.Channel})
	resp, err := m.provider.RespondMFA(ctx, snap.Email, snap.Challenge, code)
	if err != nil {
		return m.fail(snap.Email, err)
	}
	return m.apply(snap.Email, resp)
}

// CompleteNewPassword answers a new-password challenge.
func (m *Machine) CompleteNewPassword(ctx context.Context, password string) SignInResult {
	snap := m.Snapshot()
	if snap.State != StateNewPasswordRequired {
		return m.fail(snap.Email, ErrNoChallenge)
	}
	m.transition(Snapshot{State: StateAuthenticating, Email: snap.Email, Challenge: snap.Challenge})
	resp, err := m.provider.RespondNewPassword(ctx, snap.Email, snap.Challenge, password)
	if err != nil {
		return m.fail(snap.Email, err)
	}
	return m.apply(snap.Email, resp)
}

// SignOut ends the session. The machine returns to SignedOut even when the
// provider call fails.
func (m *Machine) SignOut(ctx context.Context) error {
	snap := m.Snapshot()
	m.transition(Snapshot{State: StateSignedOut})
	if snap.Session == nil || snap.Session.Tokens.AccessToken == "" {
		return nil
	}
	if err := m.provider.SignOut(ctx, snap.Session.Tokens.AccessToken); err != nil {
		m.logger.Warn("provider sign-out failed", zap.Error(err))
		return fmt.Errorf("auth: sign out: %w", err)
	}
	return nil
}

func (m *Machine) apply(email string, resp Response) SignInResult {
	switch {
	case resp.Challenge != nil && resp.Challenge.Kind == ChallengeMFA:
		m.transition(Snapshot{
			State:     StateMFARequired,
			Email:     email,
			Challenge: resp.Challenge.Session,
			Channel:   resp.Challenge.Channel,
		})
		return MFA(resp.Challenge.Channel)
	case resp.Challenge != nil && resp.Challenge.Kind == ChallengeNewPassword:
		m.transition(Snapshot{State: StateNewPasswordRequired, Email: email, Challenge: resp.Challenge.Session})
		return NewPasswordRequired()
	case resp.Tokens != nil:
		session, err := ParseSession(*resp.Tokens)
		if err != nil {
			m.logger.Error("unreadable provider session", zap.Error(err))
			m.transition(Snapshot{State: StateError, Email: email, Message: MsgSessionUnreadable})
			return Failed(MsgSessionUnreadable)
		}
		m.transition(Snapshot{State: StateDone, Email: email, Session: &session})
		return Done()
	default:
		m.logger.Error("provider response carried neither tokens nor a challenge")
		m.transition(Snapshot{State: StateError, Email: email, Message: MsgUnavailable})
		return Failed(MsgUnavailable)
	}
}

func (m *Machine) fail(email string, err error) SignInResult {
	message := Message(err)
	if ErrorCode(err) == "" && !errors.Is(err, ErrNoChallenge) {
		m.logger.Warn("sign-in call failed", zap.Error(err))
	}
	m.transition(Snapshot{State: StateError, Email: email, Message: message})
	return Failed(message)
}

func (m *Machine) transition(next Snapshot) {
	m.mu.Lock()
	prev := m.snap.State
	m.snap = next
	m.mu.Unlock()
	if prev != next.State {
		m.logger.Debug("auth transition", zap.String("from", string(prev)), zap.String("to", string(next.State)))
	}
}

// Message maps an error onto the message shown to the user.
func Message(err error) string {
	if errors.Is(err, ErrNoChallenge) {
		return MsgNoChallenge
	}
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		return MsgUnavailable
	}
	switch providerErr.Code {
	case CodeUserNotConfirmed:
		return MsgNotConfirmed
	case CodeNotAuthorized, CodeUserNotFound:
		return MsgBadCredentials
	case CodeCodeMismatch:
		return MsgCodeMismatch
	case CodeExpiredCode:
		return MsgCodeExpired
	case CodePasswordResetRequired:
		return MsgResetRequired
	case CodeLimitExceeded:
		return MsgTooManyAttempts
	case CodeInvalidPassword:
		return MsgInvalidPassword
	}
	if providerErr.Message != "" {
		return providerErr.Message
	}
	return MsgUnavailable
}
