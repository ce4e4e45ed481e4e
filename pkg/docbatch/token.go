package docbatch

import (
	"strings"
)

// Token delimiters in templates ({{FIELD}}).
const (
	TokenPrefix = "{{"
	TokenSuffix = "}}"
)

// FilterName names a registered filter. Names are resolved against the
// Registry when a token is resolved, not when it is parsed, so filters can
// be registered after templates have been scanned.
type FilterName string

// TokenExpression is one parsed {{...}} token: a field name, an ordered
// filter chain and an optional default. Immutable once parsed; two
// expressions are equal iff their String() forms are equal.
type TokenExpression struct {
	FieldName    string
	Filters      []FilterName
	HasDefault   bool
	DefaultValue string
}

// String serializes the expression back to its canonical inner form,
// e.g. "Name|trim|upper" or "Field?:N/A".
func (e TokenExpression) String() string {
	var b strings.Builder
	b.WriteString(e.FieldName)
	for _, f := range e.Filters {
		b.WriteByte('|')
		b.WriteString(string(f))
	}
	if e.HasDefault {
		b.WriteString("?:")
		b.WriteString(e.DefaultValue)
	}
	return b.String()
}

// ParseToken parses the inner content of a {{...}} token.
//
// Grammar, left to right: a field name (any characters except '|', '?' and
// the closing delimiter), then zero or more '|'-separated filter names, then
// an optional '?:' default running to the end of the token. Whitespace
// around the field name is trimmed; filter names and default text are taken
// literally.
func ParseToken(raw string) (TokenExpression, error) {
	inner := raw
	var expr TokenExpression

	if idx := strings.Index(inner, "?:"); idx >= 0 {
		expr.HasDefault = true
		expr.DefaultValue = inner[idx+2:]
		inner = inner[:idx]
	}

	if strings.Contains(inner, "?") {
		return TokenExpression{}, NewParseError(raw, "'?' must be followed by ':' to introduce a default")
	}

	pieces := strings.Split(inner, "|")
	expr.FieldName = strings.TrimSpace(pieces[0])
	if expr.FieldName == "" {
		return TokenExpression{}, NewParseError(raw, "empty field name")
	}

	for _, p := range pieces[1:] {
		if p == "" {
			return TokenExpression{}, NewParseError(raw, "empty filter name")
		}
		expr.Filters = append(expr.Filters, FilterName(p))
	}

	return expr, nil
}
