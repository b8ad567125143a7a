package model

import "io"

// Kind is the simplified enum for form field kinds.
type Kind string

const (
	KindString  Kind = "string"
	KindEmail   Kind = "email"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindDate    Kind = "date"
	KindFile    Kind = "file"
	KindSection Kind = "section"
)

const (
	RuleRequired  = "required"
	RuleEmail     = "email"
	RuleDigits    = "digits"
	RulePattern   = "pattern"
	RuleMinLength = "minLength"
	RuleMaxLength = "maxLength"
	RuleMin       = "min"
	RuleMax       = "max"
	RuleMinAge    = "minAge"
	RuleNotBefore = "notBefore"
	RuleNotAfter  = "notAfter"
	RuleOneOf     = "oneOf"
	RuleFile      = "file"
)

// AuthMode states which credential, if any, a submission must carry.
type AuthMode string

const (
	AuthAnonymous AuthMode = "anonymous"
	AuthMember    AuthMode = "member"
	AuthAdmin     AuthMode = "admin"
)

// Rule represents a single constraint applied to a field. Numeric bounds and
// lengths encode their threshold in Params["value"], patterns keep the
// expression in Params["pattern"], relative date windows use Params["months"].
// Message overrides the static default message for the rule.
type Rule struct {
	Kind    string            `json:"kind" yaml:"kind"`
	Params  map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Message string            `json:"message,omitempty" yaml:"message,omitempty"`
}

// Param returns a rule parameter or the empty string.
func (r Rule) Param(name string) string {
	if r.Params == nil {
		return ""
	}
	return r.Params[name]
}

// Field models an individual input. Section fields list their entry shape in
// Fields and hold []Values at runtime.
type Field struct {
	Name         string            `json:"name" yaml:"name"`
	Kind         Kind              `json:"kind" yaml:"kind"`
	Label        string            `json:"label,omitempty" yaml:"label,omitempty"`
	Placeholder  string            `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	Required     bool              `json:"required" yaml:"required"`
	RequiredWhen string            `json:"requiredWhen,omitempty" yaml:"requiredWhen,omitempty"`
	Message      string            `json:"message,omitempty" yaml:"message,omitempty"`
	Default      any               `json:"default,omitempty" yaml:"default,omitempty"`
	Widget       string            `json:"widget,omitempty" yaml:"widget,omitempty"`
	Rules        []Rule            `json:"rules,omitempty" yaml:"rules,omitempty"`
	Fields       []Field           `json:"fields,omitempty" yaml:"fields,omitempty"`
	MinItems     int               `json:"minItems,omitempty" yaml:"minItems,omitempty"`
	MaxItems     int               `json:"maxItems,omitempty" yaml:"maxItems,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Rule returns the first rule of the given kind.
func (f Field) Rule(kind string) (Rule, bool) {
	for _, rule := range f.Rules {
		if rule.Kind == kind {
			return rule, true
		}
	}
	return Rule{}, false
}

// Refinement names a cross-field rule evaluated after every field rule
// passes. Params are rule specific (field names, month counts).
type Refinement struct {
	Rule   string            `json:"rule" yaml:"rule"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// FormModel is the top-level form definition.
type FormModel struct {
	ID          string            `json:"id" yaml:"id"`
	Title       string            `json:"title,omitempty" yaml:"title,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Service     string            `json:"service" yaml:"service"`
	Endpoint    string            `json:"endpoint" yaml:"endpoint"`
	Method      string            `json:"method" yaml:"method"`
	Auth        AuthMode          `json:"auth" yaml:"auth"`
	Fields      []Field           `json:"fields" yaml:"fields"`
	Refinements []Refinement      `json:"refinements,omitempty" yaml:"refinements,omitempty"`
	Invalidates []string          `json:"invalidates,omitempty" yaml:"invalidates,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Field returns the top-level field with the given name.
func (f FormModel) Field(name string) (Field, bool) {
	for _, field := range f.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

// Lookup resolves a dotted path (including section indices) to its field
// definition.
func (f FormModel) Lookup(path string) (Field, bool) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return Field{}, false
	}
	fields := f.Fields
	var current Field
	for idx := 0; idx < len(segments); idx++ {
		found := false
		for _, candidate := range fields {
			if candidate.Name == segments[idx] {
				current = candidate
				found = true
				break
			}
		}
		if !found {
			return Field{}, false
		}
		if current.Kind != KindSection || idx == len(segments)-1 {
			if idx != len(segments)-1 {
				return Field{}, false
			}
			return current, true
		}
		// section entries are addressed by index before the nested name
		if idx+1 < len(segments) {
			if _, ok := ParseIndex(segments[idx+1]); ok {
				idx++
				if idx == len(segments)-1 {
					return current, true
				}
			}
		}
		fields = current.Fields
	}
	return current, true
}

// FileRef describes an uploaded attachment. Head holds the leading bytes of
// the content so signatures can be checked without reopening the file. Open
// is nil when only metadata is known; Key is set once the content is stored.
type FileRef struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Head        []byte `json:"head,omitempty"`
	Key         string `json:"key,omitempty"`

	Open func() (io.ReadCloser, error) `json:"-"`
}
