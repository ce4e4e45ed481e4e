package docbatch

import (
	"fmt"

	"github.com/docbatch/docbatch/pkg/doctree"
)

// SubstituteStats summarizes one substitution pass over a document.
type SubstituteStats struct {
	Replaced int
	Warnings []Warning
}

// Substitute rewrites the document tree in place, replacing every scanned
// token occurrence with its resolved value. Non-token text and all span
// boundaries outside the tokens are untouched, so surrounding formatting
// survives exactly.
//
// Resolution runs for every occurrence before the first mutation: under
// strict mode a missing required field aborts the whole document with no
// partial write.
//
// Occurrences within a container are applied in reverse document order so
// earlier replacements never invalidate the offsets of later ones. A token
// crossing several spans is absorbed into its first span — the resolved
// value inherits that span's formatting — and the token-covered portions of
// the following spans are truncated, dropping spans that become empty unless
// they anchor structural content.
func Substitute(doc *doctree.Document, scan *ScanResult, resolver *Resolver, row RowValues, strict bool) (*SubstituteStats, error) {
	stats := &SubstituteStats{}

	values := make([]string, len(scan.Occurrences))
	for i, occ := range scan.Occurrences {
		res, err := resolver.Resolve(occ.Expression, row, strict)
		if err != nil {
			return nil, err
		}
		values[i] = res.Value
		stats.Warnings = append(stats.Warnings, res.Warnings...)
	}

	parts := make(map[string]*doctree.Part, len(doc.Parts()))
	for _, p := range doc.Parts() {
		parts[p.Name()] = p
	}

	// Reverse document order: scan emits occurrences in document order, so
	// walking the slice backwards visits each container back to front.
	for i := len(scan.Occurrences) - 1; i >= 0; i-- {
		occ := scan.Occurrences[i]
		part, ok := parts[occ.Location.Part]
		if !ok {
			return nil, fmt.Errorf("occurrence references unknown part %s", occ.Location.Part)
		}
		containers := part.Containers()
		if occ.Location.Container >= len(containers) {
			return nil, fmt.Errorf("occurrence references container %d of %d in %s",
				occ.Location.Container, len(containers), occ.Location.Part)
		}
		if err := replaceOccurrence(containers[occ.Location.Container], occ.Location, values[i]); err != nil {
			return nil, err
		}
		stats.Replaced++
	}

	return stats, nil
}

func replaceOccurrence(container *doctree.Container, loc Location, value string) error {
	spans := container.Spans()
	if loc.StartSpan >= len(spans) || loc.EndSpan >= len(spans) {
		return fmt.Errorf("occurrence span range [%d,%d] outside container of %d spans",
			loc.StartSpan, loc.EndSpan, len(spans))
	}

	first := spans[loc.StartSpan]
	if loc.StartSpan == loc.EndSpan {
		text := first.Text()
		first.SetText(text[:loc.StartOffset] + value + text[loc.EndOffset:])
		return nil
	}

	first.SetText(first.Text()[:loc.StartOffset] + value)
	for i := loc.StartSpan + 1; i < loc.EndSpan; i++ {
		spans[i].Remove()
	}
	last := spans[loc.EndSpan]
	tail := last.Text()[loc.EndOffset:]
	if tail == "" {
		last.Remove()
	} else {
		last.SetText(tail)
	}
	return nil
}
