package rules

import (
	"fmt"
	"time"

	"github.com/goliatone/go-rentreport/pkg/model"
)

// Built-in refinement names.
const (
	PasswordMatch = "passwordMatch"
	MinAge        = "minAge"
	DateWindow    = "dateWindow"
	RentalPeriod  = "rentalPeriod"
	HistorySpan   = "historySpan"
)

// passwordMatch: params field (password), confirm (confirmPassword).
func newPasswordMatch(raw map[string]string) (Refiner, error) {
	p := params(raw)
	field := p.str("field", "password")
	confirm := p.str("confirm", "confirmPassword")
	message := p.str("message", "Passwords do not match")

	return RefinerFunc(func(values model.Values, _ time.Time) model.Errors {
		password, _ := values.Get(field)
		confirmation, _ := values.Get(confirm)
		if asString(password) == asString(confirmation) {
			return nil
		}
		return model.Errors{confirm: message}
	}), nil
}

// minAge: params field (birthDate), years (18).
func newMinAge(raw map[string]string) (Refiner, error) {
	p := params(raw)
	field := p.str("field", "birthDate")
	years, err := p.int("years", 18)
	if err != nil {
		return nil, err
	}
	message := p.str("message", fmt.Sprintf("You must be at least %d years old", years))

	return RefinerFunc(func(values model.Values, now time.Time) model.Errors {
		birth, ok := dateAt(values, field)
		if !ok {
			return nil
		}
		if Age(birth, now) >= years {
			return nil
		}
		return model.Errors{field: message}
	}), nil
}

// dateWindow: params section, start, end, earliestMonths, latestMonths. Start
// dates may not precede today minus earliestMonths and end dates may not pass
// today plus latestMonths. An omitted bound is not checked.
func newDateWindow(raw map[string]string) (Refiner, error) {
	p := params(raw)
	section := p.str("section", "")
	start := p.str("start", "startDate")
	end := p.str("end", "endDate")

	checkEarliest := p.str("earliestMonths", "") != ""
	earliest, err := p.int("earliestMonths", 0)
	if err != nil {
		return nil, err
	}
	checkLatest := p.str("latestMonths", "") != ""
	latest, err := p.int("latestMonths", 0)
	if err != nil {
		return nil, err
	}
	if !checkEarliest && !checkLatest {
		return nil, fmt.Errorf("earliestMonths or latestMonths is required")
	}

	startMessage := p.str("startMessage", fmt.Sprintf("Start date must be within the last %d months", earliest))
	endMessage := p.str("endMessage", "End date cannot be in the future")
	if latest > 0 {
		endMessage = p.str("endMessage", fmt.Sprintf("End date must be within the next %d months", latest))
	}

	return RefinerFunc(func(values model.Values, now time.Time) model.Errors {
		var errs model.Errors
		for _, scope := range scopes(values, section) {
			if checkEarliest {
				if date, ok := dateAt(scope.values, start); ok && !NotBefore(date, now, earliest) {
					errs = errs.Merge(model.Errors{scope.path(start): startMessage})
				}
			}
			if checkLatest {
				if date, ok := dateAt(scope.values, end); ok && !NotAfter(date, now, latest) {
					errs = errs.Merge(model.Errors{scope.path(end): endMessage})
				}
			}
		}
		return errs
	}), nil
}

// rentalPeriod: params section, start, end, minMonths (1), maxMonths (13).
func newRentalPeriod(raw map[string]string) (Refiner, error) {
	p := params(raw)
	section := p.str("section", "")
	start := p.str("start", "startDate")
	end := p.str("end", "endDate")
	minMonths, err := p.int("minMonths", 1)
	if err != nil {
		return nil, err
	}
	maxMonths, err := p.int("maxMonths", 13)
	if err != nil {
		return nil, err
	}
	if maxMonths < minMonths {
		return nil, fmt.Errorf("maxMonths %d is below minMonths %d", maxMonths, minMonths)
	}

	return RefinerFunc(func(values model.Values, _ time.Time) model.Errors {
		var errs model.Errors
		for _, scope := range scopes(values, section) {
			from, okFrom := dateAt(scope.values, start)
			to, okTo := dateAt(scope.values, end)
			if !okFrom || !okTo {
				continue
			}
			path := scope.path(end)
			months := WholeMonths(from, to)
			switch {
			case to.Before(from):
				errs = errs.Merge(model.Errors{path: "End date cannot be before start date"})
			case months < minMonths:
				errs = errs.Merge(model.Errors{path: fmt.Sprintf("Rental period must be at least %d month%s", minMonths, plural(minMonths))})
			case months > maxMonths:
				errs = errs.Merge(model.Errors{path: fmt.Sprintf("Rental period cannot exceed %d months", maxMonths)})
			}
		}
		return errs
	}), nil
}

// historySpan: params section, start, end, maxMonths (12), primaryStart,
// primaryEnd, path. Whole months from the earliest start to the latest end,
// across the primary period and every section entry, must not exceed
// maxMonths.
func newHistorySpan(raw map[string]string) (Refiner, error) {
	p := params(raw)
	section := p.str("section", "")
	start := p.str("start", "startDate")
	end := p.str("end", "endDate")
	primaryStart := p.str("primaryStart", "")
	primaryEnd := p.str("primaryEnd", "")
	maxMonths, err := p.int("maxMonths", 12)
	if err != nil {
		return nil, err
	}
	target := p.str("path", section)
	if target == "" {
		target = end
	}
	message := p.str("message", fmt.Sprintf("Rental history cannot span more than %d months", maxMonths))

	return RefinerFunc(func(values model.Values, _ time.Time) model.Errors {
		var starts, ends []time.Time
		if primaryStart != "" {
			if date, ok := dateAt(values, primaryStart); ok {
				starts = append(starts, date)
			}
		}
		if primaryEnd != "" {
			if date, ok := dateAt(values, primaryEnd); ok {
				ends = append(ends, date)
			}
		}
		for _, scope := range scopes(values, section) {
			if date, ok := dateAt(scope.values, start); ok {
				starts = append(starts, date)
			}
			if date, ok := dateAt(scope.values, end); ok {
				ends = append(ends, date)
			}
		}
		if len(starts) == 0 || len(ends) == 0 {
			return nil
		}
		if Span(starts, ends) <= maxMonths {
			return nil
		}
		return model.Errors{target: message}
	}), nil
}

// Span returns the whole months from the earliest start to the latest end.
func Span(starts, ends []time.Time) int {
	if len(starts) == 0 || len(ends) == 0 {
		return 0
	}
	earliest := starts[0]
	for _, date := range starts[1:] {
		if date.Before(earliest) {
			earliest = date
		}
	}
	latest := ends[0]
	for _, date := range ends[1:] {
		if date.After(latest) {
			latest = date
		}
	}
	return WholeMonths(earliest, latest)
}

type scope struct {
	prefix string
	values model.Values
}

func (s scope) path(field string) string {
	return model.JoinPath(s.prefix, field)
}

// scopes returns the whole form, or one scope per entry when section is set.
func scopes(values model.Values, section string) []scope {
	if section == "" {
		return []scope{{values: values}}
	}
	entries := values.Entries(section)
	out := make([]scope, 0, len(entries))
	for idx, entry := range entries {
		out = append(out, scope{prefix: model.EntryPath(section, idx, ""), values: entry})
	}
	return out
}

func dateAt(values model.Values, path string) (time.Time, bool) {
	value, ok := values.Get(path)
	if !ok {
		return time.Time{}, false
	}
	date, ok := value.(time.Time)
	if !ok || date.IsZero() {
		return time.Time{}, false
	}
	return date, true
}

func asString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
