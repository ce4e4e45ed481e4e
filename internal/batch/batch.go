// Package batch drives one pass per data row: token resolution,
// substitution, delegation to the external renderer and per-row status
// capture. Row processing is independent; only report ordering depends on
// source order.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docbatch/docbatch/internal/render"
	"github.com/docbatch/docbatch/internal/report"
	"github.com/docbatch/docbatch/internal/table"
	"github.com/docbatch/docbatch/pkg/docbatch"
	"github.com/docbatch/docbatch/pkg/doctree"
)

// Options configures one batch run.
type Options struct {
	TemplateDir     string
	OutputDir       string
	FilenamePattern string
	// DefaultTemplate is used when a row's TEMPLATE cell is empty.
	DefaultTemplate string

	Strict bool
	DryRun bool
	// FailOnMissingColumns aborts the batch when preflight finds tokens
	// without matching data columns.
	FailOnMissingColumns bool
	MatchCase            bool

	// RowFrom/RowTo bound processing to an inclusive zero-based row index
	// range; -1 leaves the bound open.
	RowFrom int
	RowTo   int
	Where   []Predicate

	// Jobs is the number of concurrent row workers; values below 2 mean
	// sequential processing.
	Jobs int
	// RowTimeout bounds each renderer invocation; an expired row is marked
	// ERROR instead of hanging the batch.
	RowTimeout time.Duration

	Scan doctree.Options
}

// Summary is the outcome of a batch run.
type Summary struct {
	Records   []report.Record
	Preflight docbatch.PreflightResult
}

// Counts tallies records by status.
func (s *Summary) Counts() map[report.Status]int {
	counts := make(map[report.Status]int)
	for _, r := range s.Records {
		counts[r.Status]++
	}
	return counts
}

// Runner executes batches.
type Runner struct {
	opts      Options
	renderer  render.Renderer
	converter *render.Converter
	resolver  *docbatch.Resolver
	logger    *zap.Logger
}

// templateScan caches one template's normalized path and scan output for
// the lifetime of a batch. Rescanning per row would only repeat work: the
// scan is deterministic over the same bytes.
type templateScan struct {
	ooxmlPath string
	scan      *docbatch.ScanResult
	err       error
}

// NewRunner creates a batch runner. The renderer may be nil for dry runs.
func NewRunner(opts Options, renderer render.Renderer, converter *render.Converter, registry *docbatch.Registry, logger *zap.Logger) (*Runner, error) {
	if opts.TemplateDir == "" {
		return nil, fmt.Errorf("template directory is required")
	}
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if opts.FilenamePattern == "" {
		return nil, fmt.Errorf("filename pattern is required")
	}
	if renderer == nil && !opts.DryRun {
		return nil, fmt.Errorf("a renderer is required unless running in dry-run mode")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer != nil {
		renderer = render.Serialized(renderer)
	}
	return &Runner{
		opts:      opts,
		renderer:  renderer,
		converter: converter,
		resolver:  docbatch.NewResolver(registry, opts.MatchCase),
		logger:    logger,
	}, nil
}

// Run processes the table and writes the JSON and CSV reports into the
// output directory. Cancellation is honored between rows, never in the
// middle of a document substitution.
func (r *Runner) Run(ctx context.Context, tbl *table.Table) (*Summary, error) {
	if !tbl.HasColumn(docbatch.TemplateColumn) && r.opts.DefaultTemplate == "" {
		return nil, fmt.Errorf("data has no %s column and no default template is configured", docbatch.TemplateColumn)
	}
	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	selected := r.selectRows(tbl)
	r.logger.Info("rows to process", zap.Int("count", len(selected)), zap.Int("total", len(tbl.Rows)))

	scans, preflight, err := r.preflight(ctx, tbl, selected)
	if err != nil {
		return nil, err
	}

	records := r.processRows(ctx, tbl, selected, scans)

	summary := &Summary{Records: records, Preflight: preflight}
	if err := r.writeReports(records); err != nil {
		return summary, err
	}
	return summary, nil
}

// selectRows applies the row range bounds and the predicate filter,
// returning zero-based source row indices.
func (r *Runner) selectRows(tbl *table.Table) []int {
	selected := make([]int, 0, len(tbl.Rows))
	for i, row := range tbl.Rows {
		if r.opts.RowFrom >= 0 && i < r.opts.RowFrom {
			continue
		}
		if r.opts.RowTo >= 0 && i > r.opts.RowTo {
			continue
		}
		if !MatchAll(r.opts.Where, row, r.opts.MatchCase) {
			continue
		}
		selected = append(selected, i)
	}
	return selected
}

// preflight scans every template used by the selected rows once and
// cross-checks the discovered tokens against the data columns.
func (r *Runner) preflight(ctx context.Context, tbl *table.Table, selected []int) (map[string]*templateScan, docbatch.PreflightResult, error) {
	scans := make(map[string]*templateScan)
	perTemplate := make(map[string][]docbatch.TokenExpression)

	for _, i := range selected {
		name := r.templateName(tbl.Rows[i])
		if name == "" {
			continue
		}
		if _, ok := scans[name]; ok {
			continue
		}
		scans[name] = r.scanTemplate(ctx, name)
	}

	for name, ts := range scans {
		if ts.err != nil {
			r.logger.Warn("template blocked", zap.String("template", name), zap.Error(ts.err))
			continue
		}
		perTemplate[name] = ts.scan.Expressions()
		for _, w := range ts.scan.Warnings {
			r.logger.Warn("scan warning", zap.String("template", name), zap.String("warning", w.String()))
		}
	}

	result := docbatch.Preflight(perTemplate, tbl.Columns, docbatch.PreflightOptions{MatchCase: r.opts.MatchCase})
	if len(result.MissingColumns) > 0 {
		r.logger.Warn("tokens without matching data columns", zap.Strings("fields", result.MissingColumns))
	}
	if len(result.UnusedColumns) > 0 {
		r.logger.Info("data columns not used by any token", zap.Strings("columns", result.UnusedColumns))
	}
	if r.opts.FailOnMissingColumns && len(result.MissingColumns) > 0 {
		return nil, result, fmt.Errorf("missing data columns for tokens: %s", strings.Join(result.MissingColumns, ", "))
	}
	return scans, result, nil
}

func (r *Runner) scanTemplate(ctx context.Context, name string) *templateScan {
	path, err := r.resolveTemplatePath(name)
	if err != nil {
		return &templateScan{err: err}
	}
	ooxmlPath := path
	if r.converter != nil {
		ooxmlPath, err = r.converter.ToOOXML(ctx, path)
		if err != nil {
			return &templateScan{err: err}
		}
	} else if !strings.EqualFold(filepath.Ext(path), ".docx") && !strings.EqualFold(filepath.Ext(path), ".pptx") {
		return &templateScan{err: fmt.Errorf("template %s requires conversion but no converter is configured", name)}
	}

	doc, err := doctree.Open(ooxmlPath, r.opts.Scan)
	if err != nil {
		return &templateScan{err: docbatch.NewDocumentError("open", ooxmlPath, err)}
	}
	scan, err := docbatch.Scan(doc)
	if err != nil {
		return &templateScan{err: err}
	}
	return &templateScan{ooxmlPath: ooxmlPath, scan: scan}
}

// resolveTemplatePath validates that the TEMPLATE cell is a bare filename
// and resolves it against the template directory.
func (r *Runner) resolveTemplatePath(name string) (string, error) {
	if strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("template must be a filename without directories: %q", name)
	}
	if !render.SupportedTemplateExt(filepath.Ext(name)) {
		return "", fmt.Errorf("unsupported template extension: %s", filepath.Ext(name))
	}
	path := filepath.Join(r.opts.TemplateDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("template file not found: %s", path)
	}
	return path, nil
}

func (r *Runner) templateName(row docbatch.RowValues) string {
	name, _ := row.Lookup(docbatch.TemplateColumn, false)
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.opts.DefaultTemplate
	}
	return name
}

// processRows runs the per-row loop, sequentially or on a bounded worker
// pool. Records come back in source row order either way.
func (r *Runner) processRows(ctx context.Context, tbl *table.Table, selected []int, scans map[string]*templateScan) []report.Record {
	records := make([]report.Record, len(selected))

	if r.opts.Jobs < 2 {
		for pos, i := range selected {
			if ctx.Err() != nil {
				records[pos] = report.Record{Row: i, Status: report.StatusError, Error: ctx.Err().Error()}
				continue
			}
			records[pos] = r.processRow(ctx, i, tbl.Rows[i], scans)
		}
		return records
	}

	type job struct {
		pos, row int
	}
	jobs := make(chan job)
	var wg sync.WaitGroup
	for w := 0; w < r.opts.Jobs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					records[j.pos] = report.Record{Row: j.row, Status: report.StatusError, Error: ctx.Err().Error()}
					continue
				}
				records[j.pos] = r.processRow(ctx, j.row, tbl.Rows[j.row], scans)
			}
		}()
	}
	for pos, i := range selected {
		jobs <- job{pos: pos, row: i}
	}
	close(jobs)
	wg.Wait()

	return records
}

func (r *Runner) processRow(ctx context.Context, rowIndex int, row docbatch.RowValues, scans map[string]*templateScan) report.Record {
	rec := report.Record{Row: rowIndex}

	if skip, _ := row.Lookup(docbatch.SkipColumn, false); isSkipValue(skip) {
		rec.Status = report.StatusSkipped
		r.logRow(rec)
		return rec
	}

	name := r.templateName(row)
	rec.Template = name
	if name == "" {
		rec.Status = report.StatusError
		rec.Error = fmt.Sprintf("%s cell is empty and no default template is configured", docbatch.TemplateColumn)
		r.logRow(rec)
		return rec
	}

	ts, ok := scans[name]
	if !ok {
		ts = r.scanTemplate(ctx, name)
	}
	if ts.err != nil {
		rec.Status = report.StatusError
		rec.Error = ts.err.Error()
		r.logRow(rec)
		return rec
	}

	pdfName, err := ExpandPattern(r.opts.FilenamePattern, row, rowIndex, r.opts.MatchCase)
	if err != nil {
		rec.Status = report.StatusError
		rec.Error = err.Error()
		r.logRow(rec)
		return rec
	}
	pdfName = SanitizeFilename(pdfName)
	if !strings.HasSuffix(strings.ToLower(pdfName), ".pdf") {
		pdfName += ".pdf"
	}

	targetDir := r.opts.OutputDir
	if sub, _ := row.Lookup(docbatch.OutputColumn, false); strings.TrimSpace(sub) != "" {
		targetDir = filepath.Join(targetDir, SanitizeFilename(sub))
	}
	rec.Output = filepath.Join(targetDir, pdfName)

	for _, w := range ts.scan.Warnings {
		rec.Warnings = append(rec.Warnings, w.String())
	}

	if r.opts.DryRun {
		rec.Status = report.StatusDryRun
		r.logRow(rec)
		return rec
	}

	if err := r.renderRow(ctx, ts, row, targetDir, pdfName, &rec); err != nil {
		rec.Status = report.StatusError
		rec.Error = err.Error()
		r.logRow(rec)
		return rec
	}

	if info, err := os.Stat(rec.Output); err == nil {
		rec.Bytes = info.Size()
	}
	rec.Status = report.StatusOK
	r.logRow(rec)
	return rec
}

// renderRow fills a fresh copy of the template tree and hands it to the
// renderer. Substitution is all-or-nothing: nothing is written unless every
// occurrence resolved.
func (r *Runner) renderRow(ctx context.Context, ts *templateScan, row docbatch.RowValues, targetDir, pdfName string, rec *report.Record) error {
	doc, err := doctree.Open(ts.ooxmlPath, r.opts.Scan)
	if err != nil {
		return docbatch.NewDocumentError("open", ts.ooxmlPath, err)
	}

	stats, err := docbatch.Substitute(doc, ts.scan, r.resolver, row, r.opts.Strict)
	if err != nil {
		return err
	}
	for _, w := range stats.Warnings {
		rec.Warnings = append(rec.Warnings, w.String())
	}

	tmpDir, err := os.MkdirTemp("", "docbatch-row-")
	if err != nil {
		return fmt.Errorf("failed to create row temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	// The filled document takes the PDF stem so the renderer produces the
	// final name directly.
	stem := strings.TrimSuffix(pdfName, filepath.Ext(pdfName))
	filled := filepath.Join(tmpDir, stem+filepath.Ext(ts.ooxmlPath))
	if err := doc.WriteFile(filled); err != nil {
		return docbatch.NewDocumentError("write", filled, err)
	}

	renderCtx := ctx
	if r.opts.RowTimeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, r.opts.RowTimeout)
		defer cancel()
	}
	if _, err := r.renderer.Render(renderCtx, filled, targetDir); err != nil {
		return fmt.Errorf("render failed: %v", err)
	}
	return nil
}

func (r *Runner) writeReports(records []report.Record) error {
	jsonPath := filepath.Join(r.opts.OutputDir, "_report.json")
	if err := report.WriteJSON(jsonPath, records); err != nil {
		return err
	}
	csvPath := filepath.Join(r.opts.OutputDir, "_report.csv")
	if err := report.WriteCSV(csvPath, records); err != nil {
		return err
	}
	r.logger.Info("reports written", zap.String("json", jsonPath), zap.String("csv", csvPath))
	return nil
}

func (r *Runner) logRow(rec report.Record) {
	r.logger.Info("row processed",
		zap.Int("row", rec.Row),
		zap.String("status", string(rec.Status)),
		zap.String("template", rec.Template),
		zap.String("output", rec.Output))
}

// isSkipValue mirrors the truthy markers accepted in the SKIP column.
func isSkipValue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "sí", "si", "x", "y", "yes":
		return true
	default:
		return false
	}
}
