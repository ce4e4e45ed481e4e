package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// LibreOffice renders documents through a headless soffice process.
// Argument order matters: --convert-to must come before --outdir.
type LibreOffice struct {
	// Bin is the soffice executable; empty means "soffice" from PATH.
	Bin string
	// Filter is the conversion filter, normally "pdf". FilterOpts are
	// appended after a colon when set, e.g. "SelectPdfVersion=1".
	Filter     string
	FilterOpts string
	// Retries is the number of extra attempts after a failed export.
	Retries int

	logger *zap.Logger
}

// NewLibreOffice creates a LibreOffice renderer. A nil logger is replaced
// with a no-op one.
func NewLibreOffice(bin, filterOpts string, retries int, logger *zap.Logger) *LibreOffice {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LibreOffice{
		Bin:        bin,
		Filter:     "pdf",
		FilterOpts: filterOpts,
		Retries:    retries,
		logger:     logger,
	}
}

func (lo *LibreOffice) Name() string { return "libreoffice" }

// Reentrant is false: a shared LibreOffice profile cannot run concurrent
// conversions reliably.
func (lo *LibreOffice) Reentrant() bool { return false }

func (lo *LibreOffice) command() string {
	if lo.Bin != "" {
		return lo.Bin
	}
	return "soffice"
}

// Probe checks that soffice can be executed and returns its version line.
func (lo *LibreOffice) Probe(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, lo.command(), "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("soffice not available: %v", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Render exports inputPath to a PDF in outDir, retrying on failure. The
// conversion goes through a private temp directory so half-written files
// never land in outDir.
func (lo *LibreOffice) Render(ctx context.Context, inputPath, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= lo.Retries+1; attempt++ {
		pdfPath, err := lo.renderOnce(ctx, inputPath, outDir)
		if err == nil {
			return pdfPath, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lo.logger.Warn("PDF export attempt failed",
			zap.Int("attempt", attempt),
			zap.String("input", inputPath),
			zap.Error(err))
	}
	return "", lastErr
}

func (lo *LibreOffice) renderOnce(ctx context.Context, inputPath, outDir string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "docbatch-pdf-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := lo.convert(ctx, inputPath, tmpDir, lo.Filter, lo.FilterOpts); err != nil {
		return "", err
	}

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	produced := filepath.Join(tmpDir, stem+".pdf")
	if _, err := os.Stat(produced); err != nil {
		return "", fmt.Errorf("no PDF produced by LibreOffice for %s", inputPath)
	}

	target := filepath.Join(outDir, stem+".pdf")
	if err := moveFile(produced, target); err != nil {
		return "", fmt.Errorf("failed to move PDF into place: %w", err)
	}
	return target, nil
}

// Convert converts inputPath to the given target extension (without dot,
// e.g. "docx") inside outDir and returns the produced file path. Used to
// normalize legacy template formats to OOXML.
func (lo *LibreOffice) Convert(ctx context.Context, inputPath, outDir, targetExt string) (string, error) {
	if err := lo.convert(ctx, inputPath, outDir, targetExt, ""); err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	produced := filepath.Join(outDir, stem+"."+targetExt)
	if _, err := os.Stat(produced); err != nil {
		return "", fmt.Errorf("conversion to %s produced no output for %s", targetExt, inputPath)
	}
	return produced, nil
}

func (lo *LibreOffice) convert(ctx context.Context, inputPath, outDir, filter, filterOpts string) error {
	conv := filter
	if filterOpts != "" {
		conv = filter + ":" + filterOpts
	}
	cmd := exec.CommandContext(ctx, lo.command(),
		"--headless",
		"--convert-to", conv,
		"--outdir", outDir,
		inputPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("soffice convert failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// moveFile renames, falling back to copy across filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}
