package docbatch

import (
	"strings"
)

// RowValues maps column names to stringified cell values for one data row.
// The data source collaborator stringifies all cell types uniformly before
// rows reach the resolver. Read-only for the duration of one row.
type RowValues map[string]string

// Lookup finds a column by name. With matchCase false (the default for
// spreadsheet headers) the comparison is case-insensitive; an exact-case
// match wins over a folded one when both exist.
func (r RowValues) Lookup(name string, matchCase bool) (string, bool) {
	if v, ok := r[name]; ok {
		return v, true
	}
	if matchCase {
		return "", false
	}
	for k, v := range r {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Resolved is the outcome of resolving one token expression against a row.
type Resolved struct {
	Value        string
	FieldPresent bool
	Warnings     []Warning
}

// Resolver turns parsed token expressions into substitution strings.
type Resolver struct {
	registry  *Registry
	matchCase bool
}

// NewResolver creates a resolver over a filter registry. matchCase selects
// exact-case column matching; spreadsheet headers conventionally match
// case-insensitively.
func NewResolver(registry *Registry, matchCase bool) *Resolver {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Resolver{registry: registry, matchCase: matchCase}
}

// Resolve looks the expression's field up in the row, applies the default if
// the field is absent, then runs the filter chain in order. All filter-level
// issues are soft warnings attached to the successful result; the only hard
// failure is a missing required field under strict mode.
func (r *Resolver) Resolve(expr TokenExpression, row RowValues, strict bool) (Resolved, error) {
	res := Resolved{}

	base, present := row.Lookup(expr.FieldName, r.matchCase)
	res.FieldPresent = present
	if !present {
		if expr.HasDefault {
			base = expr.DefaultValue
		} else {
			if strict {
				return Resolved{}, &ResolveError{Kind: MissingRequiredField, Field: expr.FieldName}
			}
			base = ""
		}
	}

	value := base
	for _, name := range expr.Filters {
		var warn *Warning
		value, warn = r.registry.Apply(name, value)
		if warn != nil {
			warn.Field = expr.FieldName
			res.Warnings = append(res.Warnings, *warn)
		}
	}

	res.Value = value
	return res, nil
}
