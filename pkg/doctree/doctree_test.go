package doctree

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func zipPackage(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := zw.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readDoc(t *testing.T, data []byte, opts Options) *Document {
	t.Helper()
	doc, err := Read(bytes.NewReader(data), int64(len(data)), opts)
	require.NoError(t, err)
	return doc
}

func wordDocument(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document ` + wordNS + `><w:body>` + body + `</w:body></w:document>`
}

func TestReadDetectsFormat(t *testing.T) {
	docx := zipPackage(t, map[string]string{
		"word/document.xml": wordDocument(""),
	})
	doc := readDoc(t, docx, DefaultOptions())
	assert.Equal(t, FormatDocx, doc.Format())

	pptx := zipPackage(t, map[string]string{
		"ppt/presentation.xml": `<p:presentation xmlns:p="x"/>`,
	})
	doc = readDoc(t, pptx, DefaultOptions())
	assert.Equal(t, FormatPptx, doc.Format())
}

func TestReadRejectsUnknownPackage(t *testing.T) {
	data := zipPackage(t, map[string]string{"random.txt": "hello"})
	_, err := Read(bytes.NewReader(data), int64(len(data)), DefaultOptions())
	require.Error(t, err)

	_, err = Read(bytes.NewReader([]byte("not a zip")), 9, DefaultOptions())
	require.Error(t, err)
}

func TestParseContainersAndSpans(t *testing.T) {
	data := zipPackage(t, map[string]string{
		"word/document.xml": wordDocument(
			`<w:p><w:r><w:t>first</w:t></w:r><w:r><w:t> second</w:t></w:r></w:p>` +
				`<w:p><w:r><w:t>third</w:t></w:r></w:p>`),
	})
	doc := readDoc(t, data, DefaultOptions())

	require.Len(t, doc.Parts(), 1)
	part := doc.Parts()[0]
	assert.Equal(t, "word/document.xml", part.Name())
	require.Len(t, part.Containers(), 2)

	first := part.Containers()[0]
	require.Len(t, first.Spans(), 2)
	assert.Equal(t, "first", first.Spans()[0].Text())
	assert.Equal(t, " second", first.Spans()[1].Text())
	assert.Equal(t, "first second", first.Text())

	assert.Equal(t, "third", part.Containers()[1].Text())
}

// Runs inside hyperlinks still belong to the enclosing paragraph.
func TestParseNestedRunContainers(t *testing.T) {
	data := zipPackage(t, map[string]string{
		"word/document.xml": wordDocument(
			`<w:p><w:r><w:t>see </w:t></w:r>` +
				`<w:hyperlink><w:r><w:t>the link</w:t></w:r></w:hyperlink></w:p>`),
	})
	doc := readDoc(t, data, DefaultOptions())
	require.Len(t, doc.Parts()[0].Containers(), 1)
	assert.Equal(t, "see the link", doc.Parts()[0].Containers()[0].Text())
}

// Formatting properties (rPr and its children) do not make a run
// structural; actual non-text content does.
func TestStructuralRuns(t *testing.T) {
	data := zipPackage(t, map[string]string{
		"word/document.xml": wordDocument(
			`<w:p>` +
				`<w:r><w:rPr><w:b/><w:i/></w:rPr><w:t>styled</w:t></w:r>` +
				`<w:r><w:t>line</w:t><w:br/></w:r>` +
				`<w:r><w:tab/><w:t>tabbed</w:t></w:r>` +
				`</w:p>`),
	})
	doc := readDoc(t, data, DefaultOptions())
	spans := doc.Parts()[0].Containers()[0].Spans()
	require.Len(t, spans, 3)

	assert.False(t, spans[0].Structural(), "rPr children must not mark a run structural")
	assert.True(t, spans[1].Structural(), "br makes the run structural")
	assert.True(t, spans[2].Structural(), "tab makes the run structural")
}

// Removing a plain span deletes its run; removing a structural span only
// empties its text so breaks and tabs survive.
func TestRemoveRespectsStructure(t *testing.T) {
	data := zipPackage(t, map[string]string{
		"word/document.xml": wordDocument(
			`<w:p>` +
				`<w:r><w:t>plain</w:t></w:r>` +
				`<w:r><w:t>keep me</w:t><w:br/></w:r>` +
				`</w:p>`),
	})
	doc := readDoc(t, data, DefaultOptions())
	spans := doc.Parts()[0].Containers()[0].Spans()

	spans[0].Remove()
	spans[1].Remove()
	assert.Equal(t, "", spans[0].Text())
	assert.Equal(t, "", spans[1].Text())

	var buf bytes.Buffer
	_, err := doc.WriteTo(&buf)
	require.NoError(t, err)

	raw := partContent(t, buf.Bytes(), "word/document.xml")
	assert.NotContains(t, raw, "plain")
	assert.NotContains(t, raw, "keep me")
	assert.Contains(t, raw, "<w:br/>", "structural content must survive removal")
}

func TestSetTextSplicesOnlyChangedRange(t *testing.T) {
	original := wordDocument(
		`<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>old</w:t></w:r></w:p>` +
			`<w:p><w:r><w:t>untouched</w:t></w:r></w:p>`)
	data := zipPackage(t, map[string]string{"word/document.xml": original})
	doc := readDoc(t, data, DefaultOptions())

	doc.Parts()[0].Containers()[0].Spans()[0].SetText("new & improved")

	var buf bytes.Buffer
	_, err := doc.WriteTo(&buf)
	require.NoError(t, err)

	raw := partContent(t, buf.Bytes(), "word/document.xml")
	assert.Equal(t,
		bytes.ReplaceAll([]byte(original), []byte(">old<"), []byte(">new &amp; improved<")),
		[]byte(raw),
		"only the text range may change")
}

// Writes that leave edge whitespace add xml:space="preserve" to text
// elements that lack it; elements already carrying the attribute are left
// alone, and text without edge whitespace never gains it.
func TestWritePreservesEdgeWhitespace(t *testing.T) {
	data := zipPackage(t, map[string]string{
		"word/document.xml": wordDocument(
			`<w:p>` +
				`<w:r><w:t>bare</w:t></w:r>` +
				`<w:r><w:t xml:space="preserve">kept</w:t></w:r>` +
				`<w:r><w:t>tight</w:t></w:r>` +
				`</w:p>`),
	})
	doc := readDoc(t, data, DefaultOptions())
	spans := doc.Parts()[0].Containers()[0].Spans()

	spans[0].SetText(" padded ")
	spans[1].SetText(" also padded ")
	spans[2].SetText("trimmed")

	var buf bytes.Buffer
	_, err := doc.WriteTo(&buf)
	require.NoError(t, err)

	raw := partContent(t, buf.Bytes(), "word/document.xml")
	assert.Contains(t, raw, `<w:t xml:space="preserve"> padded </w:t>`)
	assert.Contains(t, raw, `<w:t xml:space="preserve"> also padded </w:t>`)
	assert.Contains(t, raw, `<w:t>trimmed</w:t>`)
	assert.NotContains(t, raw, `preserve" xml:space`, "the attribute must not be doubled")

	reopened := readDoc(t, buf.Bytes(), DefaultOptions())
	assert.Equal(t, " padded  also padded trimmed", reopened.Parts()[0].Containers()[0].Text())
}

// A document written without edits is byte-identical part for part.
func TestWriteWithoutEditsPreservesBytes(t *testing.T) {
	original := wordDocument(`<w:p><w:r><w:t>stable</w:t></w:r></w:p>`)
	data := zipPackage(t, map[string]string{
		"word/document.xml":        original,
		"word/_rels/document.rels": `<Relationships/>`,
	})
	doc := readDoc(t, data, DefaultOptions())

	var buf bytes.Buffer
	_, err := doc.WriteTo(&buf)
	require.NoError(t, err)

	assert.Equal(t, original, partContent(t, buf.Bytes(), "word/document.xml"))
	assert.Equal(t, `<Relationships/>`, partContent(t, buf.Bytes(), "word/_rels/document.rels"))
}

func TestEscapedTextRoundTrip(t *testing.T) {
	data := zipPackage(t, map[string]string{
		"word/document.xml": wordDocument(`<w:p><w:r><w:t>a &amp; b &lt;c&gt;</w:t></w:r></w:p>`),
	})
	doc := readDoc(t, data, DefaultOptions())
	assert.Equal(t, "a & b <c>", doc.Parts()[0].Containers()[0].Text())
}

func TestDocxPartOrder(t *testing.T) {
	files := map[string]string{
		"word/document.xml": wordDocument(`<w:p><w:r><w:t>body</w:t></w:r></w:p>`),
		"word/footer1.xml":  wordDocument(`<w:p><w:r><w:t>f1</w:t></w:r></w:p>`),
		"word/header2.xml":  wordDocument(`<w:p><w:r><w:t>h2</w:t></w:r></w:p>`),
		"word/header1.xml":  wordDocument(`<w:p><w:r><w:t>h1</w:t></w:r></w:p>`),
	}
	doc := readDoc(t, zipPackage(t, files), DefaultOptions())

	names := make([]string, 0, len(doc.Parts()))
	for _, p := range doc.Parts() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{
		"word/document.xml",
		"word/header1.xml",
		"word/header2.xml",
		"word/footer1.xml",
	}, names)

	// Headers and footers can be excluded.
	doc = readDoc(t, zipPackage(t, files), Options{})
	require.Len(t, doc.Parts(), 1)
	assert.Equal(t, "word/document.xml", doc.Parts()[0].Name())
}

func TestPptxPartOrder(t *testing.T) {
	slide := func(text string) string {
		return `<p:sld xmlns:p="p" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">` +
			`<a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:sld>`
	}
	files := map[string]string{
		"ppt/presentation.xml":              `<p:presentation xmlns:p="x"/>`,
		"ppt/slides/slide10.xml":            slide("s10"),
		"ppt/slides/slide2.xml":             slide("s2"),
		"ppt/slides/slide1.xml":             slide("s1"),
		"ppt/notesSlides/notesSlide1.xml":   slide("n1"),
		"ppt/slideMasters/slideMaster1.xml": slide("m1"),
		"ppt/slideLayouts/slideLayout1.xml": slide("l1"),
	}
	doc := readDoc(t, zipPackage(t, files), DefaultOptions())

	var texts []string
	for _, p := range doc.Parts() {
		for _, c := range p.Containers() {
			texts = append(texts, c.Text())
		}
	}
	// Numeric part order: slide2 before slide10; notes, then masters and
	// layouts after all slides.
	assert.Equal(t, []string{"s1", "s2", "s10", "n1", "m1", "l1"}, texts)

	doc = readDoc(t, zipPackage(t, files), Options{})
	require.Len(t, doc.Parts(), 3)
}

func partContent(t *testing.T, pkg []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(pkg), int64(len(pkg)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(data)
	}
	t.Fatalf("part %s not found in package", name)
	return ""
}
