package doctree

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
)

const (
	docxMainPart = "word/document.xml"
	pptxMainPart = "ppt/presentation.xml"
)

var (
	headerPartPattern = regexp.MustCompile(`^word/header(\d+)\.xml$`)
	footerPartPattern = regexp.MustCompile(`^word/footer(\d+)\.xml$`)
	slidePartPattern  = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	notesPartPattern  = regexp.MustCompile(`^ppt/notesSlides/notesSlide(\d+)\.xml$`)
	masterPartPattern = regexp.MustCompile(`^ppt/slideMasters/slideMaster(\d+)\.xml$`)
	layoutPartPattern = regexp.MustCompile(`^ppt/slideLayouts/slideLayout(\d+)\.xml$`)
)

// Open reads a DOCX or PPTX package from disk.
func Open(path string, opts Options) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	doc, err := Read(bytes.NewReader(content), int64(len(content)), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Read parses a DOCX or PPTX package from an in-memory reader. The format is
// detected from the package contents.
func Read(r io.ReaderAt, size int64, opts Options) (*Document, error) {
	zipReader, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read zip package: %w", err)
	}

	parts := make(map[string]*zip.File, len(zipReader.File))
	for _, file := range zipReader.File {
		parts[file.Name] = file
	}

	var format Format
	switch {
	case parts[docxMainPart] != nil:
		format = FormatDocx
	case parts[pptxMainPart] != nil:
		format = FormatPptx
	default:
		return nil, fmt.Errorf("not a recognized OOXML package: missing %s and %s", docxMainPart, pptxMainPart)
	}

	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	ordered := partOrder(format, names, opts)

	source := make([]byte, size)
	if _, err := r.ReadAt(source, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to buffer package: %w", err)
	}

	doc := &Document{
		format: format,
		source: source,
		parts:  make([]*Part, 0, len(ordered)),
	}

	for _, name := range ordered {
		file, ok := parts[name]
		if !ok {
			continue
		}
		raw, err := readZipFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read part %s: %w", name, err)
		}
		part, err := parsePart(format, name, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse part %s: %w", name, err)
		}
		doc.parts = append(doc.parts, part)
	}

	return doc, nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

type orderedPart struct {
	name  string
	index int
}

func collectNumbered(names []string, pattern *regexp.Regexp) []orderedPart {
	found := make([]orderedPart, 0)
	for _, name := range names {
		matches := pattern.FindStringSubmatch(name)
		if len(matches) != 2 {
			continue
		}
		idx, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		found = append(found, orderedPart{name: name, index: idx})
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].index == found[j].index {
			return found[i].name < found[j].name
		}
		return found[i].index < found[j].index
	})
	return found
}

// partOrder fixes the deterministic traversal order of scoped regions.
func partOrder(format Format, names []string, opts Options) []string {
	ordered := make([]string, 0, len(names))

	appendAll := func(parts []orderedPart) {
		for _, p := range parts {
			ordered = append(ordered, p.name)
		}
	}

	switch format {
	case FormatDocx:
		ordered = append(ordered, docxMainPart)
		if opts.ScanHeadersFooters {
			appendAll(collectNumbered(names, headerPartPattern))
			appendAll(collectNumbered(names, footerPartPattern))
		}
	case FormatPptx:
		appendAll(collectNumbered(names, slidePartPattern))
		if opts.ScanNotes {
			appendAll(collectNumbered(names, notesPartPattern))
		}
		if opts.ScanMasters {
			appendAll(collectNumbered(names, masterPartPattern))
			appendAll(collectNumbered(names, layoutPartPattern))
		}
	}

	return ordered
}
