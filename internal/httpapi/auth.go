package httpapi

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/pkg/auth"
	"github.com/goliatone/go-rentreport/pkg/forms"
	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/submit"
)

// Messages for the password reset and sign-up confirmation flows.
const (
	MsgResetCodeSent = "We sent a reset code. Check your messages."
	MsgPasswordReset = "Your password was updated. Sign in with your new password."
	MsgConfirmed     = "Your email is confirmed. You can sign in now."
)

// authPayload is returned by the sign-in steps. Auth is handed back by the
// client with the next challenge answer.
type authPayload struct {
	Result auth.SignInResult `json:"result"`
	Auth   auth.Snapshot     `json:"auth"`
}

func (s *Server) machine() *auth.Machine {
	return auth.NewMachine(s.provider, auth.WithClock(s.clock), auth.WithLogger(s.logger))
}

// validated decodes and validates the posted values of formID. It writes
// the response itself and returns false when the request should stop.
func (s *Server) validated(w http.ResponseWriter, r *http.Request, formID string, raw map[string]any) (model.Values, bool) {
	form, err := s.forms.Get(formID)
	if err != nil {
		s.internalError(w, r, "load form", err)
		return nil, false
	}
	values, result, err := s.validator.ValidateRaw(form, raw)
	if err != nil {
		s.internalError(w, r, "validate "+formID, err)
		return nil, false
	}
	if !result.Valid {
		s.writeResult(w, r, submit.Validation(result.Errors))
		return nil, false
	}
	return values, true
}

func (s *Server) authResult(m *auth.Machine, res auth.SignInResult) submit.Result {
	payload := authPayload{Result: res, Auth: m.Snapshot()}
	if res.Kind == auth.ResultError {
		return submit.Result{
			Outcome: submit.OutcomeUnauthorized,
			Form:    []string{res.Message},
			Toast:   &submit.Toast{Message: res.Message, Kind: "error", DismissAfter: submit.DefaultDismissAfter},
			Data:    payload,
		}
	}
	return submit.Result{Outcome: submit.OutcomeSuccess, Data: payload}
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeValues(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	values, ok := s.validated(w, r, forms.SignIn, raw)
	if !ok {
		return
	}
	m := s.machine()
	res := m.SignIn(r.Context(), text(values, "email"), text(values, "password"))
	s.writeResult(w, r, s.authResult(m, res))
}

// resume restores the machine state the client carried over from the
// previous step.
func (s *Server) resume(w http.ResponseWriter, raw map[string]any) (*auth.Machine, bool) {
	var snap auth.Snapshot
	if err := popInto(raw, "auth", &snap); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return nil, false
	}
	m := s.machine()
	m.Restore(snap)
	return m, true
}

func (s *Server) submitMFA(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeJSONObject(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	m, ok := s.resume(w, raw)
	if !ok {
		return
	}
	values, ok := s.validated(w, r, forms.MFACode, raw)
	if !ok {
		return
	}
	res := m.SubmitMFA(r.Context(), text(values, "code"))
	s.writeResult(w, r, s.authResult(m, res))
}

func (s *Server) completeNewPassword(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeJSONObject(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	m, ok := s.resume(w, raw)
	if !ok {
		return
	}
	values, ok := s.validated(w, r, forms.NewPassword, raw)
	if !ok {
		return
	}
	res := m.CompleteNewPassword(r.Context(), text(values, "password"))
	s.writeResult(w, r, s.authResult(m, res))
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	m := s.machine()
	m.Restore(auth.Snapshot{State: auth.StateDone, Email: sess.Email, Session: &sess})
	if err := m.SignOut(r.Context()); err != nil {
		s.logger.Warn("sign-out incomplete",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Error(err),
		)
	}
	writeSuccess(w, http.StatusOK, m.Snapshot())
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeValues(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	values, ok := s.validated(w, r, forms.ForgotPassword, raw)
	if !ok {
		return
	}
	delivery, err := s.provider.ForgotPassword(r.Context(), text(values, "email"))
	if err != nil {
		s.writeResult(w, r, providerFailure(err))
		return
	}
	s.writeResult(w, r, submit.Result{
		Outcome: submit.OutcomeSuccess,
		Toast:   &submit.Toast{Message: MsgResetCodeSent, Kind: "success", DismissAfter: submit.DefaultDismissAfter},
		Data:    delivery,
	})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeValues(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	values, ok := s.validated(w, r, forms.PasswordReset, raw)
	if !ok {
		return
	}
	err = s.provider.ConfirmForgotPassword(r.Context(), text(values, "email"), text(values, "code"), text(values, "password"))
	if err != nil {
		s.writeResult(w, r, providerFailure(err))
		return
	}
	s.writeResult(w, r, submit.Result{
		Outcome: submit.OutcomeSuccess,
		Toast:   &submit.Toast{Message: MsgPasswordReset, Kind: "success", DismissAfter: submit.DefaultDismissAfter},
	})
}

func (s *Server) confirmSignUp(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeValues(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	values, ok := s.validated(w, r, forms.ConfirmSignUp, raw)
	if !ok {
		return
	}
	if err := s.provider.ConfirmSignUp(r.Context(), text(values, "email"), text(values, "code")); err != nil {
		s.writeResult(w, r, providerFailure(err))
		return
	}
	s.writeResult(w, r, submit.Result{
		Outcome: submit.OutcomeSuccess,
		Toast:   &submit.Toast{Message: MsgConfirmed, Kind: "success", DismissAfter: submit.DefaultDismissAfter},
	})
}

// providerFailure reports an identity provider rejection. Code problems
// belong to the code field.
func providerFailure(err error) submit.Result {
	message := auth.Message(err)
	result := submit.Result{
		Outcome: submit.OutcomeServerError,
		Form:    []string{message},
		Toast:   &submit.Toast{Message: message, Kind: "error", DismissAfter: submit.DefaultDismissAfter},
		Err:     err,
	}
	switch auth.ErrorCode(err) {
	case auth.CodeCodeMismatch, auth.CodeExpiredCode:
		result.Outcome = submit.OutcomeValidationFailure
		result.Fields = model.Errors{"code": message}
		result.Form = nil
	case "":
		result.Outcome = submit.OutcomeNetworkError
	}
	return result
}

func text(values model.Values, name string) string {
	value, ok := values[name]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}
