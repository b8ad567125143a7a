package session

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-rentreport/pkg/clock"
)

// PendingRegistrationTTL bounds the handoff between sign-up and auto sign-in.
const PendingRegistrationTTL = 15 * time.Minute

// PendingRegistration carries what the completion step needs after sign-up.
// It is addressed by an opaque draft ID returned to the client.
type PendingRegistration struct {
	Email      string    `json:"email"`
	Password   string    `json:"password"`
	Plan       string    `json:"plan"`
	UserSub    string    `json:"userSub,omitempty"`
	MemberID   string    `json:"memberId,omitempty"`
	TrackingID string    `json:"trackingId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SignUpTTL bounds how long a registration can resume after its identity
// was created but its member record was not.
const SignUpTTL = 24 * time.Hour

// SignUp records an identity created by the registration funnel. It lives
// until the member record is created so a retry skips the identity step.
// Only a digest of the password is kept.
type SignUp struct {
	Email          string    `json:"email"`
	UserSub        string    `json:"userSub,omitempty"`
	PasswordDigest string    `json:"passwordDigest"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AdminSession is the token issued by the admin sign-in endpoint.
type AdminSession struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// ErrAdminTokenExpired reports an admin token past its exp claim.
var ErrAdminTokenExpired = errors.New("session: admin token expired")

// NewAdminSession reads the expiry of token from its exp claim. The token is
// issued and verified by the API; the signature is not checked here.
func NewAdminSession(token, username string) (AdminSession, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return AdminSession{}, fmt.Errorf("session: read admin token: %w", err)
	}
	out := AdminSession{Token: token, Username: username}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if out.Username == "" {
		out.Username = claims.Subject
	}
	return out, nil
}

// Expired reports whether the session is past its expiry at now.
func (s AdminSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// TTL is the remaining lifetime at now, zero when unknown.
func (s AdminSession) TTL(now time.Time) time.Duration {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	if left := s.ExpiresAt.Sub(now); left > 0 {
		return left
	}
	return 0
}

// ConsumedCode records a public verification code that already produced a
// report.
type ConsumedCode struct {
	Code       string    `json:"code"`
	ReportID   string    `json:"reportId,omitempty"`
	ConsumedAt time.Time `json:"consumedAt"`
}

// Stores groups the typed stores used by the application.
type Stores struct {
	Pending  Store[PendingRegistration]
	Admin    Store[AdminSession]
	Consumed Store[ConsumedCode]
	SignUps  Store[SignUp]
	clock    clock.Clock
}

// NewMemoryStores keeps everything in process memory.
func NewMemoryStores(c clock.Clock) *Stores {
	c = clock.OrSystem(c)
	return &Stores{
		Pending:  NewMemoryStore[PendingRegistration](c),
		Admin:    NewMemoryStore[AdminSession](c),
		Consumed: NewMemoryStore[ConsumedCode](c),
		SignUps:  NewMemoryStore[SignUp](c),
		clock:    c,
	}
}

// NewRedisStores keeps everything in Redis under prefix.
func NewRedisStores(client redis.Cmdable, prefix string, c clock.Clock) *Stores {
	return &Stores{
		Pending:  NewRedisStore[PendingRegistration](client, prefix+"pending:"),
		Admin:    NewRedisStore[AdminSession](client, prefix+"admin:"),
		Consumed: NewRedisStore[ConsumedCode](client, prefix+"consumed:"),
		SignUps:  NewRedisStore[SignUp](client, prefix+"signup:"),
		clock:    clock.OrSystem(c),
	}
}

// SavePending stores reg under a fresh draft ID and returns the ID.
func (s *Stores) SavePending(ctx context.Context, reg PendingRegistration) (string, error) {
	id := uuid.NewString()
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = s.clock.Now()
	}
	if err := s.Pending.Put(ctx, id, reg, PendingRegistrationTTL); err != nil {
		return "", err
	}
	return id, nil
}

// SaveAdmin stores an admin session until its token expires and returns an
// opaque session ID.
func (s *Stores) SaveAdmin(ctx context.Context, admin AdminSession) (string, error) {
	now := s.clock.Now()
	if admin.Expired(now) {
		return "", ErrAdminTokenExpired
	}
	id := uuid.NewString()
	if err := s.Admin.Put(ctx, id, admin, admin.TTL(now)); err != nil {
		return "", err
	}
	return id, nil
}

// LoadAdmin loads a live admin session.
func (s *Stores) LoadAdmin(ctx context.Context, id string) (AdminSession, error) {
	admin, err := s.Admin.Get(ctx, id)
	if err != nil {
		return AdminSession{}, err
	}
	if admin.Expired(s.clock.Now()) {
		_ = s.Admin.Delete(ctx, id)
		return AdminSession{}, ErrNotFound
	}
	return admin, nil
}

// MarkConsumed records code as used.
func (s *Stores) MarkConsumed(ctx context.Context, code, reportID string) error {
	return s.Consumed.Put(ctx, code, ConsumedCode{Code: code, ReportID: reportID, ConsumedAt: s.clock.Now()}, 0)
}

// IsConsumed reports whether code was already used.
func (s *Stores) IsConsumed(ctx context.Context, code string) (bool, error) {
	_, err := s.Consumed.Get(ctx, code)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// SaveSignUp records that the identity for email was created with password.
func (s *Stores) SaveSignUp(ctx context.Context, email, password, userSub string) error {
	key := signUpKey(email)
	record := SignUp{
		Email:          email,
		UserSub:        userSub,
		PasswordDigest: passwordDigest(key, password),
		CreatedAt:      s.clock.Now(),
	}
	return s.SignUps.Put(ctx, key, record, SignUpTTL)
}

// ResumeSignUp returns the sign-up recorded for email when password matches
// the one it was created with.
func (s *Stores) ResumeSignUp(ctx context.Context, email, password string) (SignUp, bool, error) {
	key := signUpKey(email)
	record, err := s.SignUps.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return SignUp{}, false, nil
	case err != nil:
		return SignUp{}, false, err
	}
	digest := passwordDigest(key, password)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(record.PasswordDigest)) != 1 {
		return SignUp{}, false, nil
	}
	return record, true, nil
}

// ForgetSignUp drops the sign-up recorded for email.
func (s *Stores) ForgetSignUp(ctx context.Context, email string) error {
	return s.SignUps.Delete(ctx, signUpKey(email))
}

func signUpKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func passwordDigest(key, password string) string {
	sum := sha256.Sum256([]byte(key + "\x00" + password))
	return hex.EncodeToString(sum[:])
}
