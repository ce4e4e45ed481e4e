// Package run provides the batch execution command.
package run

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/docbatch/docbatch/internal/batch"
	"github.com/docbatch/docbatch/internal/config"
	"github.com/docbatch/docbatch/internal/render"
	"github.com/docbatch/docbatch/internal/report"
	"github.com/docbatch/docbatch/internal/table"
	"github.com/docbatch/docbatch/pkg/docbatch"
	"github.com/docbatch/docbatch/pkg/doctree"
)

type runOptions struct {
	data            string
	sheet           string
	templates       string
	output          string
	filenamePattern string
	defaultTemplate string
	sofficeBin      string

	strict        bool
	dryRun        bool
	failOnMissing bool
	matchCase     bool

	from  int
	to    int
	where []string

	jobs       int
	rowTimeout time.Duration
}

// NewCmdRun creates the run command.
func NewCmdRun() *cobra.Command {
	opts := &runOptions{from: -1, to: -1}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fill templates for every data row and export PDFs",
		Example: `  # Fill templates/ from data.csv into output/
  docbatch run --data data.csv

  # Name outputs after a column, two parallel workers
  docbatch run --data data.csv --pattern "{Client}-{index}.pdf" --jobs 2

  # Resolve and name everything without rendering
  docbatch run --data data.csv --dry-run

  # Only rows 10..20 where Estado is "pendiente"
  docbatch run --data data.csv --from 10 --to 20 --where Estado=pendiente`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "data file (CSV or XLSX)")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "worksheet name for workbook data files")
	cmd.Flags().StringVarP(&opts.templates, "templates", "t", "", "template directory")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output directory")
	cmd.Flags().StringVarP(&opts.filenamePattern, "pattern", "p", "", "output filename pattern, e.g. \"{Client}-{index}.pdf\"")
	cmd.Flags().StringVar(&opts.defaultTemplate, "template", "", "template used when a row has no TEMPLATE value")
	cmd.Flags().StringVar(&opts.sofficeBin, "soffice", "", "path to the soffice executable")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail a row when a token has no column and no default")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "resolve and name outputs without writing or rendering")
	cmd.Flags().BoolVar(&opts.failOnMissing, "fail-on-missing-columns", false, "abort the batch when preflight finds tokens without columns")
	cmd.Flags().BoolVar(&opts.matchCase, "match-case", false, "match token fields to columns case-sensitively")
	cmd.Flags().IntVar(&opts.from, "from", -1, "first row to process (zero-based, inclusive)")
	cmd.Flags().IntVar(&opts.to, "to", -1, "last row to process (zero-based, inclusive)")
	cmd.Flags().StringArrayVar(&opts.where, "where", nil, "only process rows matching Column=Value or Column!=Value (repeatable)")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 0, "number of parallel row workers")
	cmd.Flags().DurationVar(&opts.rowTimeout, "row-timeout", 0, "per-row render timeout")

	return cmd
}

func runBatch(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	noColor, _ := cmd.Flags().GetBool("no-color")
	if noColor {
		color.NoColor = true
	}
	logger, err := newLogger(verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	where := make([]batch.Predicate, 0, len(opts.where))
	for _, w := range opts.where {
		p, err := batch.ParsePredicate(w)
		if err != nil {
			return err
		}
		where = append(where, p)
	}

	tbl, err := table.Load(cfg.Data, cfg.Sheet)
	if err != nil {
		return err
	}

	registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	var renderer render.Renderer
	var converter *render.Converter
	if !cfg.DryRun {
		lo := render.NewLibreOffice(cfg.SofficeBin, cfg.PDFFilterOpts, cfg.ExportRetries, logger)
		if _, err := lo.Probe(cmd.Context()); err != nil {
			return err
		}
		renderer = lo
		converter = render.NewConverter(lo)
		defer converter.Close()
	}

	runner, err := batch.NewRunner(batch.Options{
		TemplateDir:          cfg.Templates,
		OutputDir:            cfg.Output,
		FilenamePattern:      cfg.FilenamePattern,
		DefaultTemplate:      cfg.DefaultTemplate,
		Strict:               cfg.Strict,
		DryRun:               cfg.DryRun,
		FailOnMissingColumns: cfg.FailOnMissingColumns,
		MatchCase:            cfg.MatchCase,
		RowFrom:              opts.from,
		RowTo:                opts.to,
		Where:                where,
		Jobs:                 cfg.Jobs,
		RowTimeout:           time.Duration(cfg.RowTimeout),
		Scan: doctree.Options{
			ScanHeadersFooters: cfg.ScanHeadersFooters,
			ScanMasters:        cfg.ScanMasters,
			ScanNotes:          cfg.ScanNotes,
		},
	}, renderer, converter, registry, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runner.Run(ctx, tbl)
	if summary != nil {
		printSummary(summary)
	}
	if err != nil {
		return err
	}
	if n := summary.Counts()[report.StatusError]; n > 0 {
		return fmt.Errorf("%d row(s) failed", n)
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

// applyFlags overlays explicitly set flags onto the config, so a flag beats
// both the environment and the file.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts *runOptions) {
	if opts.data != "" {
		cfg.Data = opts.data
	}
	if opts.sheet != "" {
		cfg.Sheet = opts.sheet
	}
	if opts.templates != "" {
		cfg.Templates = opts.templates
	}
	if opts.output != "" {
		cfg.Output = opts.output
	}
	if opts.filenamePattern != "" {
		cfg.FilenamePattern = opts.filenamePattern
	}
	if opts.defaultTemplate != "" {
		cfg.DefaultTemplate = opts.defaultTemplate
	}
	if opts.sofficeBin != "" {
		cfg.SofficeBin = opts.sofficeBin
	}
	if cmd.Flags().Changed("strict") {
		cfg.Strict = opts.strict
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = opts.dryRun
	}
	if cmd.Flags().Changed("fail-on-missing-columns") {
		cfg.FailOnMissingColumns = opts.failOnMissing
	}
	if cmd.Flags().Changed("match-case") {
		cfg.MatchCase = opts.matchCase
	}
	if opts.jobs > 0 {
		cfg.Jobs = opts.jobs
	}
	if opts.rowTimeout > 0 {
		cfg.RowTimeout = config.Duration(opts.rowTimeout)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func newRegistry(cfg *config.Config) (*docbatch.Registry, error) {
	fopts := docbatch.DefaultFormatOptions()
	if cfg.Locale != "" {
		tag, err := language.Parse(cfg.Locale)
		if err != nil {
			return nil, fmt.Errorf("invalid locale %q: %w", cfg.Locale, err)
		}
		fopts.Locale = tag
	}
	if len(cfg.DateInputLayouts) > 0 {
		fopts.DateInputLayouts = cfg.DateInputLayouts
	}
	if cfg.DateOutputLayout != "" {
		fopts.DateOutputLayout = cfg.DateOutputLayout
	}
	return docbatch.NewRegistry(fopts), nil
}

func printSummary(s *batch.Summary) {
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	for _, rec := range s.Records {
		var status string
		switch rec.Status {
		case report.StatusOK:
			status = ok(string(rec.Status))
		case report.StatusError:
			status = bad(string(rec.Status))
		case report.StatusSkipped:
			status = dim(string(rec.Status))
		case report.StatusDryRun:
			status = warn(string(rec.Status))
		}
		line := fmt.Sprintf("row %d  %s", rec.Row, status)
		if rec.Output != "" {
			line += "  " + rec.Output
		}
		if rec.Error != "" {
			line += "  " + rec.Error
		}
		fmt.Println(line)
	}

	counts := s.Counts()
	fmt.Printf("\n%s ok, %s failed, %s skipped, %s dry-run\n",
		ok(counts[report.StatusOK]),
		bad(counts[report.StatusError]),
		dim(counts[report.StatusSkipped]),
		warn(counts[report.StatusDryRun]))
}
