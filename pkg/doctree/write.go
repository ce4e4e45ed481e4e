package doctree

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

type edit struct {
	start, end  int64
	replacement []byte
}

// editsFor collects the byte splices a part needs: removed runs drop their
// whole element range, changed spans replace their text content range. A
// change that leaves edge whitespace in a text element lacking
// xml:space="preserve" also rewrites the opening tag to add the attribute,
// otherwise a conforming consumer would trim the space.
func editsFor(part *Part) []edit {
	edits := make([]edit, 0)
	for _, c := range part.containers {
		for _, s := range c.spans {
			switch {
			case s.removed:
				edits = append(edits, edit{start: s.elemStart, end: s.elemEnd})
			case s.dirty:
				if !s.preserveSpace && needsPreserve(s.text) {
					if repl, ok := preservingTag(part.raw[s.tagStart:s.textStart]); ok {
						edits = append(edits, edit{start: s.tagStart, end: s.textStart, replacement: repl})
					}
				}
				edits = append(edits, edit{
					start:       s.textStart,
					end:         s.textEnd,
					replacement: escapeText(s.text),
				})
			}
		}
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	return edits
}

// needsPreserve reports whether text would lose characters to whitespace
// trimming without xml:space="preserve".
func needsPreserve(text string) bool {
	return text != "" && strings.TrimSpace(text) != text
}

// preservingTag rebuilds an opening tag with xml:space="preserve" appended
// to its attributes.
func preservingTag(tag []byte) ([]byte, bool) {
	if !bytes.HasSuffix(tag, []byte(">")) || bytes.HasSuffix(tag, []byte("/>")) {
		return nil, false
	}
	repl := make([]byte, 0, len(tag)+22)
	repl = append(repl, tag[:len(tag)-1]...)
	repl = append(repl, ` xml:space="preserve">`...)
	return repl, true
}

func escapeText(s string) []byte {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.Bytes()
}

func splice(raw []byte, edits []edit) ([]byte, error) {
	out := make([]byte, 0, len(raw))
	var cursor int64
	for _, e := range edits {
		if e.start < cursor || e.end > int64(len(raw)) {
			return nil, fmt.Errorf("overlapping or out-of-range edit [%d,%d)", e.start, e.end)
		}
		out = append(out, raw[cursor:e.start]...)
		out = append(out, e.replacement...)
		cursor = e.end
	}
	out = append(out, raw[cursor:]...)
	return out, nil
}

// WriteTo serializes the document with all span edits applied. Parts without
// edits are copied from the source package byte for byte.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	edited := make(map[string][]byte)
	for _, part := range d.parts {
		edits := editsFor(part)
		if len(edits) == 0 {
			continue
		}
		raw, err := splice(part.raw, edits)
		if err != nil {
			return 0, fmt.Errorf("failed to rewrite part %s: %w", part.name, err)
		}
		edited[part.name] = raw
	}

	zipReader, err := zip.NewReader(bytes.NewReader(d.source), int64(len(d.source)))
	if err != nil {
		return 0, fmt.Errorf("failed to read source package: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, file := range zipReader.File {
		fw, err := zw.Create(file.Name)
		if err != nil {
			return 0, fmt.Errorf("failed to create %s: %w", file.Name, err)
		}
		if raw, ok := edited[file.Name]; ok {
			if _, err := fw.Write(raw); err != nil {
				return 0, fmt.Errorf("failed to write %s: %w", file.Name, err)
			}
			continue
		}
		fr, err := file.Open()
		if err != nil {
			return 0, fmt.Errorf("failed to open %s: %w", file.Name, err)
		}
		_, err = io.Copy(fw, fr)
		fr.Close()
		if err != nil {
			return 0, fmt.Errorf("failed to copy %s: %w", file.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to close package writer: %w", err)
	}

	return buf.WriteTo(w)
}

// WriteFile serializes the document to a file on disk.
func (d *Document) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := d.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
