package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/pkg/submit"
)

// Error codes carried by the error envelope.
const (
	CodeBadRequest     = "BAD_REQUEST"
	CodeNotFound       = "NOT_FOUND"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeSessionExpired = "SESSION_EXPIRED"
	CodeUpstream       = "UPSTREAM_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
)

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

// ResultStatus maps a submission outcome onto an HTTP status code.
func ResultStatus(outcome submit.Outcome) int {
	switch outcome {
	case submit.OutcomeSuccess:
		return http.StatusOK
	case submit.OutcomeValidationFailure:
		return http.StatusUnprocessableEntity
	case submit.OutcomeUnauthorized:
		return http.StatusUnauthorized
	case submit.OutcomeServerError:
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}

// writeResult sends a submission result as JSON, or as the rendered view
// when the client asks for HTML.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, result submit.Result) {
	status := ResultStatus(result.Outcome)
	if result.Err != nil {
		s.logger.Debug("submission finished with error",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.String("outcome", string(result.Outcome)),
			zap.Error(result.Err),
		)
	}

	if s.views != nil && wantsHTML(r) {
		page, err := s.views.Render(result)
		if err == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(page))
			return
		}
		s.logger.Error("render view failed", zap.String("view", result.View), zap.Error(err))
	}
	writeJSON(w, status, result)
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}
