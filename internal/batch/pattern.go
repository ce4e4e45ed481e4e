package batch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docbatch/docbatch/pkg/docbatch"
)

// Predicate filters rows by an exact column value, optionally negated.
type Predicate struct {
	Column string
	Value  string
	Negate bool
}

// ParsePredicate parses "Column=Value" or "Column!=Value". The value may be
// empty, which matches rows where the column is blank or absent.
func ParsePredicate(s string) (Predicate, error) {
	column, value, ok := strings.Cut(s, "=")
	if !ok {
		return Predicate{}, fmt.Errorf("predicate must have the form Column=Value or Column!=Value: %q", s)
	}
	negate := strings.HasSuffix(column, "!")
	column = strings.TrimSpace(strings.TrimSuffix(column, "!"))
	if column == "" {
		return Predicate{}, fmt.Errorf("predicate has an empty column name: %q", s)
	}
	return Predicate{Column: column, Value: value, Negate: negate}, nil
}

// MatchAll reports whether the row satisfies every predicate; predicates
// form a conjunction.
func MatchAll(preds []Predicate, row docbatch.RowValues, matchCase bool) bool {
	for _, p := range preds {
		got, _ := row.Lookup(p.Column, matchCase)
		if (got == p.Value) == p.Negate {
			return false
		}
	}
	return true
}

// ExpandPattern substitutes {Column} placeholders in a filename pattern
// with row values, plus {index} with the one-based source row number. A
// placeholder naming a column absent from the row is an error so the row
// fails loudly instead of producing a half-named file.
func ExpandPattern(pattern string, row docbatch.RowValues, rowIndex int, matchCase bool) (string, error) {
	var out strings.Builder
	rest := pattern
	for {
		open := strings.Index(rest, "{")
		if open < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:open])
		rest = rest[open+1:]
		closeIdx := strings.Index(rest, "}")
		if closeIdx < 0 {
			return "", fmt.Errorf("unclosed placeholder in filename pattern: %q", pattern)
		}
		name := rest[:closeIdx]
		rest = rest[closeIdx+1:]
		if name == "index" {
			out.WriteString(strconv.Itoa(rowIndex + 1))
			continue
		}
		value, ok := row.Lookup(name, matchCase)
		if !ok {
			return "", fmt.Errorf("filename pattern references unknown column %q", name)
		}
		out.WriteString(value)
	}
	expanded := strings.TrimSpace(out.String())
	if expanded == "" {
		return "", fmt.Errorf("filename pattern expanded to an empty name")
	}
	return expanded, nil
}

// SanitizeFilename replaces characters that are unsafe in filenames on
// common filesystems with underscores.
func SanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, name)
}
