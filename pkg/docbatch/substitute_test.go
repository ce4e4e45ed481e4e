package docbatch

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbatch/docbatch/pkg/doctree"
)

func substituteDocx(t *testing.T, row RowValues, strict bool, paragraphs ...[]string) (*doctree.Document, *SubstituteStats, error) {
	t.Helper()
	doc := buildDocx(t, paragraphs...)
	scan, err := Scan(doc)
	require.NoError(t, err)
	stats, err := Substitute(doc, scan, NewResolver(nil, false), row, strict)
	return doc, stats, err
}

func TestSubstituteSingleSpan(t *testing.T) {
	doc, stats, err := substituteDocx(t, RowValues{"Name": "Ana"}, false,
		[]string{"Hello {{Name}}!"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Replaced)
	assert.Equal(t, []string{"Hello Ana!"}, containerTexts(doc))
}

// A token split over runs is absorbed into its first span; text outside the
// token survives on both sides.
func TestSubstituteAcrossSpans(t *testing.T) {
	doc, stats, err := substituteDocx(t, RowValues{"X": "1"}, false,
		[]string{"A {{X", "}} B"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Replaced)
	assert.Equal(t, []string{"A 1 B"}, containerTexts(doc))

	spans := doc.Parts()[0].Containers()[0].Spans()
	assert.Equal(t, "A 1", spans[0].Text())
	assert.Equal(t, " B", spans[1].Text())
}

// Spans fully covered by the token are dropped; the value lives in the
// first span only.
func TestSubstituteRemovesCoveredSpans(t *testing.T) {
	doc, _, err := substituteDocx(t, RowValues{"X": "value"}, false,
		[]string{"{{X", "ignored", "}}"})
	require.NoError(t, err)
	assert.Equal(t, []string{"value"}, containerTexts(doc))
}

func TestSubstituteMultipleTokensOneContainer(t *testing.T) {
	doc, stats, err := substituteDocx(t,
		RowValues{"A": "uno", "B": "dos", "C": "tres"}, false,
		[]string{"{{A}}-{{B}}-{{C}}"})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Replaced)
	assert.Equal(t, []string{"uno-dos-tres"}, containerTexts(doc))
}

func TestSubstituteValueMayContainDelimiters(t *testing.T) {
	doc, _, err := substituteDocx(t, RowValues{"X": "{{not a token}}"}, false,
		[]string{"value: {{X}}"})
	require.NoError(t, err)
	assert.Equal(t, []string{"value: {{not a token}}"}, containerTexts(doc))
}

func TestSubstituteFiltersAndDefaults(t *testing.T) {
	doc, _, err := substituteDocx(t,
		RowValues{"Name": "  ana  "}, false,
		[]string{"{{Name|trim|upper}} owes {{Amount|currency?:1234.5}}"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ANA owes 1,234.50"}, containerTexts(doc))
}

// All-or-nothing: under strict mode a missing required field aborts before
// any mutation, leaving every container untouched.
func TestSubstituteStrictAbortsWithoutMutation(t *testing.T) {
	doc := buildDocx(t, []string{"{{Present}} then {{Absent}}"})
	scan, err := Scan(doc)
	require.NoError(t, err)

	_, err = Substitute(doc, scan, NewResolver(nil, false), RowValues{"Present": "x"}, true)
	require.Error(t, err)
	assert.True(t, IsResolveError(err))
	assert.Equal(t, []string{"{{Present}} then {{Absent}}"}, containerTexts(doc))
}

func TestSubstituteLenientMissingBecomesEmpty(t *testing.T) {
	doc, stats, err := substituteDocx(t, RowValues{}, false,
		[]string{"[{{Absent}}]"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Replaced)
	assert.Equal(t, []string{"[]"}, containerTexts(doc))
}

func TestSubstituteCollectsWarnings(t *testing.T) {
	_, stats, err := substituteDocx(t,
		RowValues{"Name": "Ana", "Amount": "abc"}, false,
		[]string{"{{Name|sparkle}} {{Amount|currency}}"})
	require.NoError(t, err)
	require.Len(t, stats.Warnings, 2)
	codes := []WarningCode{stats.Warnings[0].Code, stats.Warnings[1].Code}
	assert.Contains(t, codes, WarnUnknownFilter)
	assert.Contains(t, codes, WarnUnparsableInput)
}

// Substituted documents must still open as valid packages, with the
// replaced text in place and non-token paragraphs byte-identical.
func TestSubstituteWriteRoundTrip(t *testing.T) {
	doc, _, err := substituteDocx(t,
		RowValues{"Name": "Ana & Co <official>"}, false,
		[]string{"Dear {{Na", "me}},"},
		[]string{"kind regards"})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = doc.WriteTo(&buf)
	require.NoError(t, err)

	reopened, err := doctree.Read(bytes.NewReader(buf.Bytes()), int64(buf.Len()), doctree.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Dear Ana & Co <official>,", "kind regards"}, containerTexts(reopened))
}

// When a cross-span replacement leaves edge whitespace in a text element
// that never declared xml:space="preserve", the writer must add the
// attribute, or a conforming consumer trims the space and "A 1 B" renders
// as "A 1B".
func TestSubstituteMarksEdgeWhitespacePreserved(t *testing.T) {
	doc, _, err := substituteDocx(t, RowValues{"X": "1"}, false,
		[]string{"A {{X", "}} B"})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = doc.WriteTo(&buf)
	require.NoError(t, err)

	raw := packagePart(t, buf.Bytes(), "word/document.xml")
	assert.Contains(t, raw, `<w:t xml:space="preserve"> B</w:t>`)
	// The first span ends without edge whitespace and stays unmarked.
	assert.Contains(t, raw, `<w:t>A 1</w:t>`)

	reopened, err := doctree.Read(bytes.NewReader(buf.Bytes()), int64(buf.Len()), doctree.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"A 1 B"}, containerTexts(reopened))
}

// Rendering the same row twice from fresh trees produces identical bytes.
func TestSubstituteDeterministicOutput(t *testing.T) {
	row := RowValues{"Name": "Ana", "Amount": "42"}
	render := func() []byte {
		doc, _, err := substituteDocx(t, row, false,
			[]string{"{{Name}}: {{Amount|currency}}"})
		require.NoError(t, err)
		var buf bytes.Buffer
		_, err = doc.WriteTo(&buf)
		require.NoError(t, err)
		return buf.Bytes()
	}
	assert.Equal(t, render(), render())
}
