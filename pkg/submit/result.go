package submit

import (
	"time"

	"github.com/goliatone/go-rentreport/pkg/model"
)

// Outcome tags a submission attempt.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeValidationFailure Outcome = "validation_failure"
	OutcomeServerError       Outcome = "server_error"
	OutcomeNetworkError      Outcome = "network_error"
	OutcomeUnauthorized      Outcome = "unauthorized"
)

// DefaultDismissAfter is how long a toast stays visible.
const DefaultDismissAfter = 5 * time.Second

const (
	MsgNetwork      = "We couldn't reach our servers. Check your connection and try again."
	MsgServer       = "We couldn't save your submission. Please try again."
	MsgUnauthorized = "Your session has expired. Please sign in again."
	MsgUnexpected   = "Something went wrong. Please try again."
	MsgFixFields    = "Please fix the highlighted fields."
)

// Toast is a transient message. DismissAfter of zero keeps it until closed.
type Toast struct {
	Message      string        `json:"message"`
	Kind         string        `json:"kind"`
	DismissAfter time.Duration `json:"dismissAfter"`
}

// Result is produced once per submit attempt.
type Result struct {
	Outcome Outcome      `json:"outcome"`
	Fields  model.Errors `json:"fields,omitempty"`
	Form    []string     `json:"form,omitempty"`
	Toast   *Toast       `json:"toast,omitempty"`
	View    string       `json:"view,omitempty"`
	Data    any          `json:"data,omitempty"`

	// Err is the underlying cause, kept for logging and never rendered.
	Err error `json:"-"`
}

// OK reports a successful submission.
func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// Validation builds a validation failure result.
func Validation(fields model.Errors) Result {
	return Result{Outcome: OutcomeValidationFailure, Fields: fields}
}
