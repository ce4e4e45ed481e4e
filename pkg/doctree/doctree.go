// Package doctree exposes word-processing and presentation documents as a
// uniform tree of text-bearing parts, containers and spans.
//
// A Part is a scoped region of the package (document body, header, footer,
// slide, master, layout). A Container groups the spans of one paragraph or
// table cell. A Span is the smallest uniformly-styled text unit (a DOCX run
// or a PPTX text run). Scanning and substitution code operates on this
// abstraction only and never sees format-specific XML.
//
// Span text is addressed by byte offsets into the original part XML, so
// writing a document back only splices the changed text ranges and leaves
// every other byte of the package untouched.
package doctree

import (
	"strings"
)

// Format identifies the document family of an opened package.
type Format int

const (
	FormatDocx Format = iota
	FormatPptx
)

func (f Format) String() string {
	switch f {
	case FormatDocx:
		return "docx"
	case FormatPptx:
		return "pptx"
	default:
		return "unknown"
	}
}

// Options controls which scoped regions of a package are exposed.
type Options struct {
	// ScanHeadersFooters includes DOCX header and footer parts.
	ScanHeadersFooters bool
	// ScanMasters includes PPTX slide masters and layouts.
	ScanMasters bool
	// ScanNotes includes PPTX notes slides.
	ScanNotes bool
}

// DefaultOptions mirrors the scanning defaults of the batch tool: headers,
// footers, masters and notes are all visible.
func DefaultOptions() Options {
	return Options{
		ScanHeadersFooters: true,
		ScanMasters:        true,
		ScanNotes:          true,
	}
}

// Document is one opened package. It owns its tree exclusively; no state is
// shared between Document instances, so each batch row can hold its own.
type Document struct {
	format Format
	source []byte
	parts  []*Part
}

// Format returns the document family.
func (d *Document) Format() Format {
	return d.format
}

// Parts returns the token-bearing parts in deterministic traversal order:
// body, then headers, then footers for DOCX; slides, then notes, then
// masters, then layouts for PPTX.
func (d *Document) Parts() []*Part {
	return d.parts
}

// Part is one scoped region backed by a single XML part of the package.
type Part struct {
	name       string
	raw        []byte
	containers []*Container
}

// Name returns the part path inside the package, e.g. "word/document.xml".
func (p *Part) Name() string {
	return p.name
}

// Containers returns the part's containers in document order.
func (p *Part) Containers() []*Container {
	return p.containers
}

// Container is one paragraph-level grouping of spans. Tokens never cross a
// container boundary.
type Container struct {
	spans []*Span
}

// Spans returns the container's spans in document order.
func (c *Container) Spans() []*Span {
	return c.spans
}

// Text returns the concatenated text of all live spans.
func (c *Container) Text() string {
	var b strings.Builder
	for _, s := range c.spans {
		if !s.removed {
			b.WriteString(s.text)
		}
	}
	return b.String()
}

// Span is the smallest text-bearing unit of a container.
type Span struct {
	text string

	// Byte ranges into the owning part's raw XML. textStart/textEnd bound
	// the character content of the text element; elemStart/elemEnd bound
	// the whole enclosing run element; tagStart is where the text element's
	// opening tag begins (it ends at textStart).
	textStart, textEnd int64
	elemStart, elemEnd int64
	tagStart           int64

	// preserveSpace records an xml:space="preserve" attribute on the text
	// element. Without it a conforming consumer trims edge whitespace, so
	// writes that leave leading or trailing spaces must add the attribute.
	preserveSpace bool

	// structural marks runs that carry non-text content (breaks, tabs,
	// drawings, field chars). Such runs are never deleted outright.
	structural bool
	// removable is set when deleting the whole run element is safe: the
	// run holds exactly one text element and nothing structural.
	removable bool

	dirty   bool
	removed bool
}

// Text returns the span's current text.
func (s *Span) Text() string {
	if s.removed {
		return ""
	}
	return s.text
}

// SetText replaces the span's text. The change is applied to the package on
// the next write.
func (s *Span) SetText(text string) {
	if s.removed {
		return
	}
	if text == s.text && s.dirty {
		return
	}
	s.text = text
	s.dirty = true
}

// Structural reports whether the span's run carries non-text content.
func (s *Span) Structural() bool {
	return s.structural
}

// Remove deletes the span. Runs that anchor structural content are kept and
// only emptied of text.
func (s *Span) Remove() {
	if s.removed {
		return
	}
	if s.removable {
		s.removed = true
		return
	}
	s.SetText("")
}
