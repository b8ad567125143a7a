// Package model defines the declarative form schema shared by the validation,
// state and submission layers. A FormModel lists Fields; each Field carries a
// Kind, a required flag (optionally conditional through RequiredWhen) and a
// list of Rules. Rules use canonical identifiers (required, email, digits,
// min/max, minLength/maxLength, pattern, minAge, notBefore/notAfter, oneOf,
// file) with string parameters so definitions stay stable when loaded from
// YAML or served as JSON to a presentational shell.
//
// Section fields hold an ordered list of entries ([]Values). Paths into a
// section use dotted indices, for example "history.1.endDate".
package model
