package docbatch

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docbatch/docbatch/pkg/doctree"
)

// buildDocx assembles a minimal DOCX package in memory. Each paragraph is a
// list of run texts, so token splits across runs can be modeled directly.
func buildDocx(t *testing.T, paragraphs ...[]string) *doctree.Document {
	t.Helper()
	data := buildDocxBytes(t, paragraphs...)
	doc, err := doctree.Read(bytes.NewReader(data), int64(len(data)), doctree.DefaultOptions())
	require.NoError(t, err)
	return doc
}

func buildDocxBytes(t *testing.T, paragraphs ...[]string) []byte {
	t.Helper()
	var body strings.Builder
	for _, runs := range paragraphs {
		body.WriteString("<w:p>")
		for _, text := range runs {
			body.WriteString(`<w:r><w:rPr><w:b/></w:rPr><w:t>`)
			body.WriteString(escapeXML(t, text))
			body.WriteString("</w:t></w:r>")
		}
		body.WriteString("</w:p>")
	}

	documentXML := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body>` + body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = fw.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func escapeXML(t *testing.T, s string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, xml.EscapeText(&buf, []byte(s)))
	return buf.String()
}

// packagePart extracts one part's raw XML from a serialized package.
func packagePart(t *testing.T, pkg []byte, name string) string {
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

// containerTexts flattens the document to one string per container.
func containerTexts(doc *doctree.Document) []string {
	var out []string
	for _, part := range doc.Parts() {
		for _, c := range part.Containers() {
			out = append(out, c.Text())
		}
	}
	return out
}
