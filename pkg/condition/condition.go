// Package condition evaluates the small boolean expressions used by
// conditional field rules such as requiredWhen.
package condition

import "github.com/goliatone/go-rentreport/pkg/model"

// Evaluator decides whether a rule holds for the supplied scope.
type Evaluator interface {
	Eval(rule string, scope Scope) (bool, error)
}

// Scope provides the values a rule reads. Local holds the values nearest to
// the field (the section entry for fields inside a section, the whole form
// otherwise). Form always holds the whole form and is addressed with the
// "form." prefix.
type Scope struct {
	Local model.Values
	Form  model.Values
}

// FormScope builds a scope for a top-level field.
func FormScope(values model.Values) Scope {
	return Scope{Local: values, Form: values}
}

// EntryScope builds a scope for a field inside a section entry.
func EntryScope(form, entry model.Values) Scope {
	return Scope{Local: entry, Form: form}
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(rule string, scope Scope) (bool, error)

// Eval delegates to the underlying function.
func (fn EvaluatorFunc) Eval(rule string, scope Scope) (bool, error) {
	return fn(rule, scope)
}
