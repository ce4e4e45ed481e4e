package docbatch

import (
	"sort"
	"strings"
)

// Reserved control columns that drive the batch itself and are never
// expected to appear as tokens.
const (
	TemplateColumn = "TEMPLATE"
	SkipColumn     = "SKIP"
	OutputColumn   = "OUTPUT"
)

// PreflightOptions tunes the batch-wide token/column cross-check.
type PreflightOptions struct {
	// MatchCase selects exact-case matching between field names and column
	// names. Off by default, matching the resolver.
	MatchCase bool
	// ReservedColumns are excluded from the unused-column report. Nil means
	// the standard control columns (TEMPLATE, SKIP, OUTPUT).
	ReservedColumns []string
}

// PreflightResult cross-references the tokens of all templates against the
// available data columns.
type PreflightResult struct {
	// MissingColumns lists field names referenced by some token but absent
	// from the data, excluding fields that carry a default in every
	// occurrence group (a defaulted token degrades gracefully).
	MissingColumns []string
	// UnusedColumns lists data columns no token references.
	UnusedColumns []string
	// PerTemplateTokens maps each template to its distinct expressions.
	PerTemplateTokens map[string][]TokenExpression
}

// Preflight runs once per batch, before any row is processed, over the union
// of all templates that will be used.
func Preflight(perTemplateTokens map[string][]TokenExpression, availableColumns []string, opts PreflightOptions) PreflightResult {
	reserved := opts.ReservedColumns
	if reserved == nil {
		reserved = []string{TemplateColumn, SkipColumn, OutputColumn}
	}

	fold := func(s string) string {
		if opts.MatchCase {
			return s
		}
		return strings.ToLower(s)
	}

	reservedSet := make(map[string]bool, len(reserved))
	for _, c := range reserved {
		reservedSet[fold(c)] = true
	}

	columnSet := make(map[string]string, len(availableColumns))
	for _, c := range availableColumns {
		columnSet[fold(c)] = c
	}

	// fields maps folded field name -> display name; defaulted tracks
	// whether any occurrence of the field supplies a default.
	fields := make(map[string]string)
	defaulted := make(map[string]bool)
	for _, exprs := range perTemplateTokens {
		for _, expr := range exprs {
			key := fold(expr.FieldName)
			if _, ok := fields[key]; !ok {
				fields[key] = expr.FieldName
			}
			if expr.HasDefault {
				defaulted[key] = true
			}
		}
	}

	missing := make([]string, 0)
	for key, display := range fields {
		if _, ok := columnSet[key]; ok {
			continue
		}
		if defaulted[key] {
			continue
		}
		missing = append(missing, display)
	}
	sort.Strings(missing)

	unused := make([]string, 0)
	for key, display := range columnSet {
		if reservedSet[key] {
			continue
		}
		if _, ok := fields[key]; ok {
			continue
		}
		unused = append(unused, display)
	}
	sort.Strings(unused)

	return PreflightResult{
		MissingColumns:    missing,
		UnusedColumns:     unused,
		PerTemplateTokens: perTemplateTokens,
	}
}
