// Package check provides the environment and template validation command.
package check

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/docbatch/docbatch/internal/render"
	"github.com/docbatch/docbatch/internal/table"
	"github.com/docbatch/docbatch/pkg/docbatch"
	"github.com/docbatch/docbatch/pkg/doctree"
)

type checkOptions struct {
	data       string
	sheet      string
	templates  string
	sofficeBin string
	matchCase  bool
}

// NewCmdCheck creates the check command.
func NewCmdCheck() *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the environment, templates and data without rendering",
		Long: `check probes the LibreOffice installation, scans every OOXML template
in the template directory for tokens, and cross-checks the tokens against
the data columns. Nothing is written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "data file to cross-check columns against")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "worksheet name for workbook data files")
	cmd.Flags().StringVarP(&opts.templates, "templates", "t", "templates", "template directory")
	cmd.Flags().StringVar(&opts.sofficeBin, "soffice", "", "path to the soffice executable")
	cmd.Flags().BoolVar(&opts.matchCase, "match-case", false, "match token fields to columns case-sensitively")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *checkOptions) error {
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		color.NoColor = true
	}
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()

	failed := false

	lo := render.NewLibreOffice(opts.sofficeBin, "", 0, nil)
	if ver, err := lo.Probe(cmd.Context()); err != nil {
		fmt.Printf("%s LibreOffice: %v\n", bad("✗"), err)
		failed = true
	} else {
		fmt.Printf("%s LibreOffice: %s\n", ok("✓"), ver)
	}

	perTemplate, scanFailed := scanTemplates(opts.templates, ok, bad, warn)
	failed = failed || scanFailed

	if opts.data != "" {
		tbl, err := table.Load(opts.data, opts.sheet)
		if err != nil {
			fmt.Printf("%s data: %v\n", bad("✗"), err)
			return fmt.Errorf("check failed")
		}
		fmt.Printf("%s data: %d columns, %d rows\n", ok("✓"), len(tbl.Columns), len(tbl.Rows))

		result := docbatch.Preflight(perTemplate, tbl.Columns, docbatch.PreflightOptions{MatchCase: opts.matchCase})
		for _, missing := range result.MissingColumns {
			fmt.Printf("%s token field %q has no matching data column\n", warn("!"), missing)
		}
		for _, unused := range result.UnusedColumns {
			fmt.Printf("%s column %q is not used by any token\n", warn("!"), unused)
		}
		if len(result.MissingColumns) == 0 && len(result.UnusedColumns) == 0 {
			fmt.Printf("%s tokens and columns line up\n", ok("✓"))
		}
	}

	if failed {
		return fmt.Errorf("check failed")
	}
	return nil
}

// scanTemplates scans every OOXML template in dir and prints one line per
// template. Legacy formats are listed but not scanned; they are normalized
// at run time.
func scanTemplates(dir string, ok, bad, warn func(...interface{}) string) (map[string][]docbatch.TokenExpression, bool) {
	perTemplate := make(map[string][]docbatch.TokenExpression)
	failed := false

	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Printf("%s templates: %v\n", bad("✗"), err)
		return perTemplate, true
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !render.SupportedTemplateExt(filepath.Ext(e.Name())) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".docx" && ext != ".pptx" {
			fmt.Printf("%s %s: legacy format, converted at run time\n", warn("!"), name)
			continue
		}
		doc, err := doctree.Open(filepath.Join(dir, name), doctree.DefaultOptions())
		if err != nil {
			fmt.Printf("%s %s: %v\n", bad("✗"), name, err)
			failed = true
			continue
		}
		scan, err := docbatch.Scan(doc)
		if err != nil {
			fmt.Printf("%s %s: %v\n", bad("✗"), name, err)
			failed = true
			continue
		}
		exprs := scan.Expressions()
		perTemplate[name] = exprs
		fmt.Printf("%s %s: %d distinct token(s)\n", ok("✓"), name, len(exprs))
		for _, w := range scan.Warnings {
			fmt.Printf("  %s %s\n", warn("!"), w.String())
		}
	}

	if len(names) == 0 {
		fmt.Printf("%s templates: no template files in %s\n", warn("!"), dir)
	}
	return perTemplate, failed
}
