package docbatch

import (
	"fmt"
	"strings"

	"github.com/docbatch/docbatch/pkg/doctree"
)

// Location addresses one token occurrence inside a document tree. It is
// only meaningful within the document-processing call that produced it and
// is never persisted or compared across documents.
type Location struct {
	Part      string
	Container int
	// StartSpan/StartOffset mark the byte where '{{' begins within the
	// container's span sequence; EndSpan/EndOffset mark the byte just past
	// the closing '}}' (EndOffset is exclusive within EndSpan's text).
	StartSpan   int
	StartOffset int
	EndSpan     int
	EndOffset   int
	Ordinal     int
}

// TokenOccurrence is one discovered token together with its location.
type TokenOccurrence struct {
	Expression TokenExpression
	Raw        string
	Location   Location
}

// ScanResult holds everything one scan pass discovered.
type ScanResult struct {
	Occurrences []TokenOccurrence
	Warnings    []Warning
}

// Expressions returns the distinct expressions of the scan, deduplicated by
// serialized form, in first-seen order.
func (r *ScanResult) Expressions() []TokenExpression {
	seen := make(map[string]bool, len(r.Occurrences))
	exprs := make([]TokenExpression, 0, len(r.Occurrences))
	for _, occ := range r.Occurrences {
		key := occ.Expression.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		exprs = append(exprs, occ.Expression)
	}
	return exprs
}

// Scan walks every container of every part in the document's fixed traversal
// order and discovers all token occurrences, coalescing tokens whose
// characters are split across adjacent spans. Tokens never cross container
// boundaries; a '{{' left open when its container ends is reported as a soft
// warning and left untouched. Scanning performs no mutation and always
// produces the same occurrence set for the same tree.
func Scan(doc *doctree.Document) (*ScanResult, error) {
	result := &ScanResult{}
	ordinal := 0

	for _, part := range doc.Parts() {
		for ci, container := range part.Containers() {
			occs, warns, err := scanContainer(part.Name(), ci, container, ordinal)
			if err != nil {
				return nil, err
			}
			result.Occurrences = append(result.Occurrences, occs...)
			result.Warnings = append(result.Warnings, warns...)
			ordinal += len(occs)
		}
	}

	return result, nil
}

// scanContainer concatenates the container's span texts, recording each
// span's start offset, and runs a linear delimiter scan over the result.
func scanContainer(partName string, containerIndex int, container *doctree.Container, startOrdinal int) ([]TokenOccurrence, []Warning, error) {
	spans := container.Spans()
	if len(spans) == 0 {
		return nil, nil, nil
	}

	var text strings.Builder
	starts := make([]int, len(spans))
	for i, s := range spans {
		starts[i] = text.Len()
		text.WriteString(s.Text())
	}
	full := text.String()

	locate := func(offset int) (span, rel int) {
		span = len(spans) - 1
		for i := 1; i < len(spans); i++ {
			if offset < starts[i] {
				span = i - 1
				break
			}
		}
		return span, offset - starts[span]
	}

	occurrences := make([]TokenOccurrence, 0)
	warnings := make([]Warning, 0)
	ordinal := startOrdinal
	pos := 0

	for {
		open := strings.Index(full[pos:], TokenPrefix)
		if open < 0 {
			break
		}
		open += pos

		close := strings.Index(full[open+len(TokenPrefix):], TokenSuffix)
		if close < 0 {
			warnings = append(warnings, Warning{
				Code: WarnUnterminatedToken,
				Message: fmt.Sprintf("unterminated token in %s, container %d: '%s'",
					partName, containerIndex, clip(full[open:], 40)),
			})
			break
		}
		close += open + len(TokenPrefix)
		end := close + len(TokenSuffix)

		inner := full[open+len(TokenPrefix) : close]
		expr, err := ParseToken(inner)
		if err != nil {
			return nil, nil, err
		}

		startSpan, startOffset := locate(open)
		endSpan, endOffsetLast := locate(end - 1)

		occurrences = append(occurrences, TokenOccurrence{
			Expression: expr,
			Raw:        full[open:end],
			Location: Location{
				Part:        partName,
				Container:   containerIndex,
				StartSpan:   startSpan,
				StartOffset: startOffset,
				EndSpan:     endSpan,
				EndOffset:   endOffsetLast + 1,
				Ordinal:     ordinal,
			},
		})
		ordinal++
		pos = end
	}

	return occurrences, warnings, nil
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
