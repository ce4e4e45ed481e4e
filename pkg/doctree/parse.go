package doctree

import (
	"bytes"
	"encoding/xml"
	"io"
)

const (
	wordMLNamespace    = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	drawingMLNamespace = "http://schemas.openxmlformats.org/drawingml/2006/main"
)

// partVocabulary names the container, run and text elements of one format.
type partVocabulary struct {
	namespace string
	paragraph string
	run       string
	text      string
}

func vocabularyFor(format Format) partVocabulary {
	switch format {
	case FormatPptx:
		return partVocabulary{
			namespace: drawingMLNamespace,
			paragraph: "p",
			run:       "r",
			text:      "t",
		}
	default:
		return partVocabulary{
			namespace: wordMLNamespace,
			paragraph: "p",
			run:       "r",
			text:      "t",
		}
	}
}

func (v partVocabulary) matches(name xml.Name, local string) bool {
	if name.Local != local {
		return false
	}
	return name.Space == "" || name.Space == v.namespace
}

// parsePart walks one XML part and records every text span with its byte
// offsets. Paragraph elements never nest in OOXML, and runs inside
// hyperlinks or table cells show up in stream order, so a flat walk yields
// containers in document order.
func parsePart(format Format, name string, raw []byte) (*Part, error) {
	vocab := vocabularyFor(format)
	decoder := xml.NewDecoder(bytes.NewReader(raw))

	part := &Part{name: name, raw: raw}

	var (
		container *Container
		span      *Span
		runDepth  int
		runStart  int64
		runSpans  []*Span
		runTexts  int
		runOther  bool
		text      bytes.Buffer
		inText    bool
	)

	for {
		before := decoder.InputOffset()
		token, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		after := decoder.InputOffset()

		switch t := token.(type) {
		case xml.StartElement:
			switch {
			case container == nil && vocab.matches(t.Name, vocab.paragraph):
				container = &Container{}
			case container != nil && runDepth == 0 && vocab.matches(t.Name, vocab.run):
				runDepth = 1
				runStart = before
				runSpans = runSpans[:0]
				runTexts = 0
				runOther = false
			case runDepth > 0:
				runDepth++
				if runDepth != 2 {
					break
				}
				if vocab.matches(t.Name, vocab.text) {
					inText = true
					text.Reset()
					span = &Span{tagStart: before, textStart: after}
					for _, a := range t.Attr {
						if a.Name.Local == "space" && a.Value == "preserve" {
							span.preserveSpace = true
						}
					}
					runTexts++
				} else if t.Name.Local != "rPr" {
					runOther = true
				}
			}
		case xml.EndElement:
			switch {
			case inText && vocab.matches(t.Name, vocab.text):
				inText = false
				runDepth--
				span.textEnd = before
				span.text = text.String()
				runSpans = append(runSpans, span)
				container.spans = append(container.spans, span)
				span = nil
			case runDepth > 1:
				runDepth--
			case runDepth == 1 && vocab.matches(t.Name, vocab.run):
				runDepth = 0
				for _, s := range runSpans {
					s.elemStart = runStart
					s.elemEnd = after
					s.structural = runOther
					s.removable = runTexts == 1 && !runOther
				}
			case container != nil && runDepth == 0 && vocab.matches(t.Name, vocab.paragraph):
				part.containers = append(part.containers, container)
				container = nil
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		}
	}

	return part, nil
}
