// Package root provides the root command for the docbatch CLI.
package root

import (
	"github.com/spf13/cobra"

	"github.com/docbatch/docbatch/internal/cmd/check"
	"github.com/docbatch/docbatch/internal/cmd/run"
	"github.com/docbatch/docbatch/internal/version"
)

// NewCmdRoot creates the root command for docbatch.
func NewCmdRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docbatch",
		Short: "Fill Office templates from tabular data and export PDFs in batch",
		Long: `docbatch fills Word and PowerPoint templates with values from a data
table, one output document per row, and exports each filled document to
PDF through a headless LibreOffice.

Templates use {{Column}} tokens, optionally with filters and defaults:
{{Amount|currency}}, {{Notes?:n/a}}, {{Name|trim|upper}}.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
	}

	// Global flags
	cmd.PersistentFlags().StringP("config", "c", "", "config file (YAML)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	cmd.SetVersionTemplate("docbatch version {{.Version}} (commit: " + version.Commit + ", built: " + version.Date + ")\n")

	cmd.AddCommand(run.NewCmdRun())
	cmd.AddCommand(check.NewCmdCheck())

	return cmd
}
