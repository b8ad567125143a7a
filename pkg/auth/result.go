package auth

// ResultKind tags a SignInResult.
type ResultKind string

const (
	ResultDone                ResultKind = "DONE"
	ResultMFA                 ResultKind = "MFA"
	ResultNewPasswordRequired ResultKind = "NEW_PASSWORD_REQUIRED"
	ResultError               ResultKind = "ERROR"
)

// SignInResult is the outcome of a sign-in step: {Done}, {MFA, Channel},
// {NewPasswordRequired} or {Error, Message}.
type SignInResult struct {
	Kind    ResultKind `json:"kind"`
	Channel string     `json:"channel,omitempty"`
	Message string     `json:"message,omitempty"`
}

// Done reports a completed sign-in.
func Done() SignInResult { return SignInResult{Kind: ResultDone} }

// MFA reports that a code was sent over channel.
func MFA(channel string) SignInResult { return SignInResult{Kind: ResultMFA, Channel: channel} }

// NewPasswordRequired reports that the user must choose a new password.
func NewPasswordRequired() SignInResult { return SignInResult{Kind: ResultNewPasswordRequired} }

// Failed reports a failure with a user-facing message.
func Failed(message string) SignInResult { return SignInResult{Kind: ResultError, Message: message} }

// OK reports whether the result is Done.
func (r SignInResult) OK() bool { return r.Kind == ResultDone }
