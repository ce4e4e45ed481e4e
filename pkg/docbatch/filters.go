package docbatch

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// FilterFunc transforms a value. Filters are pure and total: they never fail
// for any input string. When a numeric or date filter cannot parse its input
// it returns the value unchanged together with a warning, so batch runs over
// thousands of rows never abort on one malformed cell.
type FilterFunc func(value string) (string, *Warning)

// FormatOptions configures the locale-sensitive baseline filters.
type FormatOptions struct {
	// Locale drives thousands and decimal separators of the currency filter.
	Locale language.Tag
	// DateInputLayouts are tried in order when parsing date filter input.
	DateInputLayouts []string
	// DateOutputLayout is the fixed layout dates are reformatted to.
	DateOutputLayout string
}

// DefaultFormatOptions returns the formatting defaults: English number
// grouping and the date layouts the original spreadsheets used.
func DefaultFormatOptions() FormatOptions {
	return FormatOptions{
		Locale: language.English,
		DateInputLayouts: []string{
			"2006-01-02",
			"02/01/2006",
			"02-01-2006",
			"2006/01/02",
		},
		DateOutputLayout: "02/01/2006",
	}
}

// Registry maps filter names to functions. The baseline set is closed but
// the registry stays open to extension via Register at startup.
type Registry struct {
	mu      sync.RWMutex
	filters map[FilterName]FilterFunc
}

// NewRegistry creates a registry with the baseline filters registered:
// identity, trim, upper, lower, currency, euros and date, plus the
// spreadsheet alias dmy. euros always formats Spanish-style with a euro
// suffix regardless of the configured locale.
func NewRegistry(opts FormatOptions) *Registry {
	r := &Registry{filters: make(map[FilterName]FilterFunc)}

	identity := func(s string) (string, *Warning) { return s, nil }
	date := dateFilter(opts.DateInputLayouts, opts.DateOutputLayout)

	r.filters["identity"] = identity
	r.filters["trim"] = func(s string) (string, *Warning) { return strings.TrimSpace(s), nil }
	r.filters["upper"] = func(s string) (string, *Warning) { return strings.ToUpper(s), nil }
	r.filters["lower"] = func(s string) (string, *Warning) { return strings.ToLower(s), nil }
	r.filters["currency"] = currencyFilter(opts.Locale)
	r.filters["euros"] = eurosFilter()
	r.filters["date"] = date
	r.filters["dmy"] = date

	return r
}

// DefaultRegistry creates a registry with default formatting options.
func DefaultRegistry() *Registry {
	return NewRegistry(DefaultFormatOptions())
}

// Register adds or replaces a filter.
func (r *Registry) Register(name FilterName, fn FilterFunc) error {
	if name == "" {
		return fmt.Errorf("filter name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("filter function cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[name] = fn
	return nil
}

// Has reports whether a filter name is registered.
func (r *Registry) Has(name FilterName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.filters[name]
	return ok
}

// Names returns all registered filter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.filters))
	for name := range r.filters {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// Apply runs one filter over a value. Unknown names leave the value
// unchanged and return a warning; they are never a hard failure so that
// preflight can still reason about the field even when a filter name is
// misspelled.
func (r *Registry) Apply(name FilterName, value string) (string, *Warning) {
	r.mu.RLock()
	fn, ok := r.filters[name]
	r.mu.RUnlock()
	if !ok {
		return value, &Warning{
			Code:    WarnUnknownFilter,
			Filter:  name,
			Message: fmt.Sprintf("unknown filter '%s'", name),
		}
	}
	return fn(value)
}

// currencyFilter formats a decimal value with locale-aware grouping, two
// fixed decimals and half-up rounding.
func currencyFilter(locale language.Tag) FilterFunc {
	printer := message.NewPrinter(locale)
	return func(s string) (string, *Warning) {
		v, ok := parseDecimal(s)
		if !ok {
			return s, &Warning{
				Code:    WarnUnparsableInput,
				Filter:  "currency",
				Message: fmt.Sprintf("cannot parse '%s' as a number", s),
			}
		}
		v = roundHalfUp(v, 2)
		return printer.Sprintf("%v", number.Decimal(v, number.Scale(2))), nil
	}
}

// eurosFilter formats a decimal value the way the Spanish spreadsheets
// expect: dot grouping, comma decimals, two fixed decimals and a trailing
// euro sign ("1.234,50 €"). It ignores the configured locale.
func eurosFilter() FilterFunc {
	printer := message.NewPrinter(language.Spanish)
	return func(s string) (string, *Warning) {
		v, ok := parseDecimal(s)
		if !ok {
			return s, &Warning{
				Code:    WarnUnparsableInput,
				Filter:  "euros",
				Message: fmt.Sprintf("cannot parse '%s' as a number", s),
			}
		}
		v = roundHalfUp(v, 2)
		return printer.Sprintf("%v €", number.Decimal(v, number.Scale(2))), nil
	}
}

func roundHalfUp(v float64, decimals int) float64 {
	shift := math.Pow(10, float64(decimals))
	if v < 0 {
		return math.Ceil(v*shift-0.5) / shift
	}
	return math.Floor(v*shift+0.5) / shift
}

// parseDecimal accepts plain ("1234.5"), grouped ("1,234.50") and European
// ("1.234,5") numbers. The rightmost of '.' and ',' is taken as the decimal
// separator, the other as grouping.
func parseDecimal(s string) (float64, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(t, 64); err == nil {
		return v, true
	}

	dot := strings.LastIndex(t, ".")
	comma := strings.LastIndex(t, ",")
	switch {
	case comma > dot:
		t = strings.ReplaceAll(t, ".", "")
		t = strings.Replace(t, ",", ".", 1)
	case dot > comma:
		t = strings.ReplaceAll(t, ",", "")
	default:
		return 0, false
	}

	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// dateFilter reformats a date from any of the accepted input layouts to one
// fixed output layout.
func dateFilter(inputLayouts []string, outputLayout string) FilterFunc {
	return func(s string) (string, *Warning) {
		t := strings.TrimSpace(s)
		if t == "" {
			return "", nil
		}
		for _, layout := range inputLayouts {
			if d, err := time.Parse(layout, t); err == nil {
				return d.Format(outputLayout), nil
			}
		}
		return s, &Warning{
			Code:    WarnUnparsableInput,
			Filter:  "date",
			Message: fmt.Sprintf("cannot parse '%s' as a date", s),
		}
	}
}
