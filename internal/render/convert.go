package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ooxmlTargets maps supported template extensions to the OOXML extension
// they are normalized to before any scanning or substitution.
var ooxmlTargets = map[string]string{
	".docx": ".docx",
	".pptx": ".pptx",
	".doc":  ".docx",
	".ppt":  ".pptx",
	".odt":  ".docx",
	".odp":  ".pptx",
	".rtf":  ".docx",
}

// SupportedTemplateExt reports whether ext (with dot) is a known template
// format.
func SupportedTemplateExt(ext string) bool {
	_, ok := ooxmlTargets[strings.ToLower(ext)]
	return ok
}

// Converter normalizes legacy template formats (.doc/.ppt/.odt/.odp/.rtf)
// to OOXML once per template and caches the result for the lifetime of a
// batch, so a template reused by many rows is converted a single time.
type Converter struct {
	lo *LibreOffice

	mu     sync.Mutex
	cache  map[string]string
	tmpDir string
}

// NewConverter creates a converter backed by a LibreOffice engine.
func NewConverter(lo *LibreOffice) *Converter {
	return &Converter{lo: lo, cache: make(map[string]string)}
}

// ToOOXML returns a path to an OOXML version of the template. Templates
// already in .docx/.pptx form are returned unchanged.
func (c *Converter) ToOOXML(ctx context.Context, templatePath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(templatePath))
	target, ok := ooxmlTargets[ext]
	if !ok {
		return "", fmt.Errorf("unsupported template extension: %s", ext)
	}
	if ext == target {
		return templatePath, nil
	}
	if c.lo == nil {
		return "", fmt.Errorf("template %s requires conversion to OOXML but no conversion engine is configured", templatePath)
	}

	abs, err := filepath.Abs(templatePath)
	if err != nil {
		abs = templatePath
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if converted, ok := c.cache[abs]; ok {
		return converted, nil
	}
	if c.tmpDir == "" {
		dir, err := os.MkdirTemp("", "docbatch-convert-")
		if err != nil {
			return "", fmt.Errorf("failed to create conversion directory: %w", err)
		}
		c.tmpDir = dir
	}

	converted, err := c.lo.Convert(ctx, templatePath, c.tmpDir, strings.TrimPrefix(target, "."))
	if err != nil {
		return "", fmt.Errorf("conversion of %s to OOXML failed: %w", templatePath, err)
	}
	c.cache[abs] = converted
	return converted, nil
}

// Close removes the converter's scratch directory.
func (c *Converter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tmpDir == "" {
		return nil
	}
	err := os.RemoveAll(c.tmpDir)
	c.tmpDir = ""
	c.cache = make(map[string]string)
	return err
}
