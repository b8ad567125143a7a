package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IDClaims are the ID token claims the application reads.
type IDClaims struct {
	Email         string   `json:"email,omitempty"`
	EmailVerified bool     `json:"email_verified,omitempty"`
	Groups        []string `json:"cognito:groups,omitempty"`
	jwt.RegisteredClaims
}

// Session is the signed-in member as read from the provider's tokens.
type Session struct {
	Subject   string    `json:"subject"`
	Email     string    `json:"email"`
	Groups    []string  `json:"groups,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	Tokens    Tokens    `json:"tokens"`
}

// ParseSession reads the ID token claims without verifying the signature.
func ParseSession(tokens Tokens) (Session, error) {
	if tokens.IDToken == "" {
		return Session{}, errors.New("auth: id token is missing")
	}
	claims := &IDClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokens.IDToken, claims); err != nil {
		return Session{}, fmt.Errorf("auth: parse id token: %w", err)
	}
	if claims.Subject == "" {
		return Session{}, errors.New("auth: id token has no subject")
	}
	session := Session{
		Subject: claims.Subject,
		Email:   claims.Email,
		Groups:  claims.Groups,
		Tokens:  tokens,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// Expired reports whether the session expired at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// BearerToken returns the token attached to API calls.
func (s Session) BearerToken() string {
	if s.Tokens.IDToken != "" {
		return s.Tokens.IDToken
	}
	return s.Tokens.AccessToken
}
