package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/goliatone/go-rentreport/pkg/auth"
)

// Identity adapts the identity provider's HTTP API to auth.Provider.
type Identity struct {
	*Client
}

var _ auth.Provider = (*Identity)(nil)

// NewIdentity wraps c as the identity provider client.
func NewIdentity(c *Client) *Identity { return &Identity{Client: c} }

type signInWire struct {
	IDToken       string `json:"idToken,omitempty"`
	AccessToken   string `json:"accessToken,omitempty"`
	RefreshToken  string `json:"refreshToken,omitempty"`
	ExpiresIn     int    `json:"expiresIn,omitempty"`
	ChallengeName string `json:"challengeName,omitempty"`
	Session       string `json:"session,omitempty"`
	Channel       string `json:"deliveryMedium,omitempty"`
}

func (w signInWire) response() auth.Response {
	switch w.ChallengeName {
	case "SMS_MFA", "SOFTWARE_TOKEN_MFA", "EMAIL_OTP", string(auth.ChallengeMFA):
		channel := w.Channel
		if channel == "" {
			channel = w.ChallengeName
		}
		return auth.Response{Challenge: &auth.Challenge{Kind: auth.ChallengeMFA, Session: w.Session, Channel: channel}}
	case string(auth.ChallengeNewPassword):
		return auth.Response{Challenge: &auth.Challenge{Kind: auth.ChallengeNewPassword, Session: w.Session}}
	}
	if w.IDToken == "" && w.AccessToken == "" {
		return auth.Response{}
	}
	return auth.Response{Tokens: &auth.Tokens{
		IDToken:      w.IDToken,
		AccessToken:  w.AccessToken,
		RefreshToken: w.RefreshToken,
		ExpiresIn:    w.ExpiresIn,
	}}
}

func (i *Identity) call(ctx context.Context, path string, body, out any) error {
	return providerError(i.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out))
}

// SignUp registers a user.
func (i *Identity) SignUp(ctx context.Context, input auth.SignUpInput) (auth.SignUpOutput, error) {
	var out auth.SignUpOutput
	err := i.call(ctx, "/sign-up", input, &out)
	return out, err
}

// ConfirmSignUp confirms a sign-up with the emailed code.
func (i *Identity) ConfirmSignUp(ctx context.Context, email, code string) error {
	return i.call(ctx, "/confirm-sign-up", map[string]string{"email": email, "code": code}, nil)
}

// SignIn starts a password sign-in.
func (i *Identity) SignIn(ctx context.Context, email, password string) (auth.Response, error) {
	var out signInWire
	if err := i.call(ctx, "/sign-in", map[string]string{"email": email, "password": password}, &out); err != nil {
		return auth.Response{}, err
	}
	return out.response(), nil
}

// RespondMFA answers an MFA challenge.
func (i *Identity) RespondMFA(ctx context.Context, email, session, code string) (auth.Response, error) {
	var out signInWire
	body := map[string]string{"email": email, "session": session, "code": code}
	if err := i.call(ctx, "/challenges/mfa", body, &out); err != nil {
		return auth.Response{}, err
	}
	return out.response(), nil
}

// RespondNewPassword answers a new-password challenge.
func (i *Identity) RespondNewPassword(ctx context.Context, email, session, password string) (auth.Response, error) {
	var out signInWire
	body := map[string]string{"email": email, "session": session, "password": password}
	if err := i.call(ctx, "/challenges/new-password", body, &out); err != nil {
		return auth.Response{}, err
	}
	return out.response(), nil
}

// SignOut revokes the access token.
func (i *Identity) SignOut(ctx context.Context, accessToken string) error {
	return providerError(i.Do(ctx, Request{Method: http.MethodPost, Path: "/sign-out", Token: accessToken}, nil))
}

// ForgotPassword sends a reset code.
func (i *Identity) ForgotPassword(ctx context.Context, email string) (auth.CodeDelivery, error) {
	var out auth.CodeDelivery
	err := i.call(ctx, "/forgot-password", map[string]string{"email": email}, &out)
	return out, err
}

// ConfirmForgotPassword sets a new password with the reset code.
func (i *Identity) ConfirmForgotPassword(ctx context.Context, email, code, password string) error {
	body := map[string]string{"email": email, "code": code, "password": password}
	return i.call(ctx, "/confirm-forgot-password", body, nil)
}

// providerError turns structured identity failures into *auth.ProviderError.
func providerError(err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Body.Code != "" {
		return &auth.ProviderError{Code: statusErr.Body.Code, Message: statusErr.Body.Message}
	}
	return err
}
