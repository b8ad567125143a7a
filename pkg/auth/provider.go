package auth

import (
	"context"
	"errors"
	"fmt"
)

// Provider is the identity provider the application delegates to. Every
// credential check and token issue happens on the provider side.
type Provider interface {
	SignUp(ctx context.Context, input SignUpInput) (SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, email, code string) error
	SignIn(ctx context.Context, email, password string) (Response, error)
	RespondMFA(ctx context.Context, email, session, code string) (Response, error)
	RespondNewPassword(ctx context.Context, email, session, password string) (Response, error)
	SignOut(ctx context.Context, accessToken string) error
	ForgotPassword(ctx context.Context, email string) (CodeDelivery, error)
	ConfirmForgotPassword(ctx context.Context, email, code, password string) error
}

// SignUpInput carries the attributes registered with the provider.
type SignUpInput struct {
	Email      string            `json:"email"`
	Password   string            `json:"password"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// SignUpOutput reports the created user.
type SignUpOutput struct {
	UserSub   string `json:"userSub"`
	Confirmed bool   `json:"confirmed"`
}

// CodeDelivery describes where a verification code was sent.
type CodeDelivery struct {
	Channel     string `json:"channel"`
	Destination string `json:"destination"`
}

// Tokens are the provider-issued session tokens.
type Tokens struct {
	IDToken      string `json:"idToken"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int    `json:"expiresIn,omitempty"`
}

// ChallengeKind names the follow-up step the provider asks for.
type ChallengeKind string

const (
	ChallengeMFA         ChallengeKind = "MFA"
	ChallengeNewPassword ChallengeKind = "NEW_PASSWORD_REQUIRED"
)

// Challenge is a pending provider step. Session is the opaque handle the
// provider expects back with the answer.
type Challenge struct {
	Kind    ChallengeKind `json:"kind"`
	Session string        `json:"session"`
	Channel string        `json:"channel,omitempty"`
}

// Response is the provider's answer to a sign-in step: tokens or a challenge.
type Response struct {
	Tokens    *Tokens    `json:"tokens,omitempty"`
	Challenge *Challenge `json:"challenge,omitempty"`
}

// Provider error codes.
const (
	CodeUserNotConfirmed      = "UserNotConfirmedException"
	CodeNotAuthorized         = "NotAuthorizedException"
	CodeUserNotFound          = "UserNotFoundException"
	CodeCodeMismatch          = "CodeMismatchException"
	CodeExpiredCode           = "ExpiredCodeException"
	CodePasswordResetRequired = "PasswordResetRequiredException"
	CodeUsernameExists        = "UsernameExistsException"
	CodeInvalidPassword       = "InvalidPasswordException"
	CodeLimitExceeded         = "LimitExceededException"
)

var (
	// ErrNotConfirmed matches provider errors for users that have not
	// confirmed their sign-up yet.
	ErrNotConfirmed = errors.New("auth: user not confirmed")
	// ErrNoChallenge is returned when a challenge answer arrives in a state
	// that does not expect one.
	ErrNoChallenge = errors.New("auth: no challenge in progress")
)

// ProviderError is a structured failure reported by the provider.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth: provider error %s", e.Code)
	}
	return fmt.Sprintf("auth: provider error %s: %s", e.Code, e.Message)
}

// Is lets errors.Is(err, ErrNotConfirmed) match the provider code.
func (e *ProviderError) Is(target error) bool {
	return target == ErrNotConfirmed && e.Code == CodeUserNotConfirmed
}

// ErrorCode extracts the provider code from err, or "".
func ErrorCode(err error) string {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Code
	}
	return ""
}
