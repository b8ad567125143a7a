package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/pkg/condition"
	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/rules"
	"github.com/goliatone/go-rentreport/pkg/upload"
)

const (
	msgRequired = "This field is required"
	msgEmail    = "Enter a valid email address"
	msgPattern  = "Enter a valid value"
	msgOneOf    = "Choose one of the available options"
	msgNumber   = "Enter a valid number"
	msgDate     = "Enter a valid date"
	msgBoolean  = "Choose yes or no"
	msgFile     = "Attach a valid file"
	msgEntries  = "Invalid entries"
)

type patternEntry struct {
	re  *regexp.Regexp
	err error
}

// checkField returns the message of the first violated rule.
func (v *Validator) checkField(field model.Field, value any, scope condition.Scope, now time.Time) string {
	if model.IsEmpty(value) {
		if v.required(field, scope) {
			return firstNonEmpty(ruleMessage(field, model.RuleRequired), field.Message, msgRequired)
		}
		return ""
	}

	if message := checkKind(field, value); message != "" {
		return firstNonEmpty(field.Message, message)
	}
	if field.Kind == model.KindSection {
		return checkItems(field, value)
	}

	for _, rule := range field.Rules {
		if rule.Kind == model.RuleRequired {
			continue
		}
		if message := v.checkRule(rule, value, now); message != "" {
			return firstNonEmpty(rule.Message, field.Message, message)
		}
	}
	return ""
}

func (v *Validator) required(field model.Field, scope condition.Scope) bool {
	if field.Required {
		return true
	}
	if _, ok := field.Rule(model.RuleRequired); ok {
		return true
	}
	if field.RequiredWhen == "" {
		return false
	}
	ok, err := v.evaluator.Eval(field.RequiredWhen, scope)
	if err != nil {
		v.logger.Warn("requiredWhen evaluation failed",
			zap.String("field", field.Name),
			zap.String("rule", field.RequiredWhen),
			zap.Error(err),
		)
		return false
	}
	return ok
}

// checkKind rejects values whose Go type does not fit the field kind, which
// happens when normalization kept a raw value it could not convert.
func checkKind(field model.Field, value any) string {
	switch field.Kind {
	case model.KindNumber:
		if _, ok := value.(float64); !ok {
			return msgNumber
		}
	case model.KindDate:
		if _, ok := value.(time.Time); !ok {
			return msgDate
		}
	case model.KindBoolean:
		if _, ok := value.(bool); !ok {
			return msgBoolean
		}
	case model.KindFile:
		if _, ok := value.(model.FileRef); !ok {
			return msgFile
		}
	case model.KindSection:
		if _, ok := value.([]model.Values); !ok {
			return msgEntries
		}
	case model.KindEmail:
		s, ok := value.(string)
		if !ok || !validEmail(s) {
			return msgEmail
		}
	}
	return ""
}

func checkItems(field model.Field, value any) string {
	count := len(value.([]model.Values))
	if field.MinItems > 0 && count < field.MinItems {
		return fmt.Sprintf("Add at least %d entr%s", field.MinItems, pluralY(field.MinItems))
	}
	if field.MaxItems > 0 && count > field.MaxItems {
		return fmt.Sprintf("Add no more than %d entr%s", field.MaxItems, pluralY(field.MaxItems))
	}
	return ""
}

func (v *Validator) checkRule(rule model.Rule, value any, now time.Time) string {
	switch rule.Kind {
	case model.RuleEmail:
		if s, _ := value.(string); !validEmail(s) {
			return msgEmail
		}
	case model.RuleDigits:
		want, err := strconv.Atoi(rule.Param("value"))
		s := strings.TrimSpace(asText(value))
		if err != nil || len(s) != want || strings.Trim(s, "0123456789") != "" {
			return fmt.Sprintf("Enter exactly %s digits", rule.Param("value"))
		}
	case model.RulePattern:
		re, err := v.pattern(rule.Param("pattern"))
		if err != nil {
			v.logger.Warn("invalid pattern rule", zap.String("pattern", rule.Param("pattern")), zap.Error(err))
			return ""
		}
		if !re.MatchString(asText(value)) {
			return msgPattern
		}
	case model.RuleMinLength:
		if n, err := strconv.Atoi(rule.Param("value")); err == nil && utf8.RuneCountInString(asText(value)) < n {
			return fmt.Sprintf("Must be at least %d characters", n)
		}
	case model.RuleMaxLength:
		if n, err := strconv.Atoi(rule.Param("value")); err == nil && utf8.RuneCountInString(asText(value)) > n {
			return fmt.Sprintf("Must be at most %d characters", n)
		}
	case model.RuleMin:
		bound, err := strconv.ParseFloat(rule.Param("value"), 64)
		if n, ok := value.(float64); ok && err == nil && n < bound {
			return "Must be at least " + rule.Param("value")
		}
	case model.RuleMax:
		bound, err := strconv.ParseFloat(rule.Param("value"), 64)
		if n, ok := value.(float64); ok && err == nil && n > bound {
			return "Must be at most " + rule.Param("value")
		}
	case model.RuleMinAge:
		years, err := strconv.Atoi(rule.Param("value"))
		if date, ok := value.(time.Time); ok && err == nil && rules.Age(date, now) < years {
			return fmt.Sprintf("You must be at least %d years old", years)
		}
	case model.RuleNotBefore:
		months, _ := strconv.Atoi(rule.Param("months"))
		if date, ok := value.(time.Time); ok && !rules.NotBefore(date, now, months) {
			if months == 0 {
				return "Date cannot be in the past"
			}
			return fmt.Sprintf("Date must be within the last %d months", months)
		}
	case model.RuleNotAfter:
		months, _ := strconv.Atoi(rule.Param("months"))
		if date, ok := value.(time.Time); ok && !rules.NotAfter(date, now, months) {
			if months == 0 {
				return "Date cannot be in the future"
			}
			return fmt.Sprintf("Date must be within the next %d months", months)
		}
	case model.RuleOneOf:
		if !oneOf(asText(value), rule.Param("values")) {
			return msgOneOf
		}
	case model.RuleFile:
		ref, _ := value.(model.FileRef)
		policy, err := upload.PolicyFromParams(rule.Params)
		if err != nil {
			v.logger.Warn("invalid file rule", zap.Error(err))
			policy = upload.DefaultPolicy()
		}
		if err := policy.Validate(ref); err != nil {
			return policy.Message(err)
		}
	default:
		v.logger.Debug("unknown rule kind ignored", zap.String("rule", rule.Kind))
	}
	return ""
}

func (v *Validator) pattern(expr string) (*regexp.Regexp, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if entry, ok := v.patterns[expr]; ok {
		return entry.re, entry.err
	}
	re, err := regexp.Compile(expr)
	v.patterns[expr] = patternEntry{re: re, err: err}
	return re, err
}

func validEmail(s string) bool {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}

func oneOf(value, allowed string) bool {
	for _, candidate := range strings.Split(allowed, ",") {
		if strings.TrimSpace(candidate) == value {
			return true
		}
	}
	return false
}

func ruleMessage(field model.Field, kind string) string {
	if rule, ok := field.Rule(kind); ok {
		return rule.Message
	}
	return ""
}

func asText(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(typed)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
