// Package config loads batch settings from a YAML file and DOCBATCH_*
// environment variables. Precedence is flags over environment over file
// over defaults; the command layer applies flag overrides on top of the
// Config returned here.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can use "90s" notation,
// which yaml.v3 does not decode natively.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds all batch run settings.
type Config struct {
	// Data is the path to the tabular data file.
	Data string `yaml:"data"`
	// Sheet selects the worksheet for workbook data files; empty means the
	// first sheet.
	Sheet string `yaml:"sheet"`
	// Templates is the directory holding template files.
	Templates string `yaml:"templates"`
	// Output is the directory PDFs and reports are written to.
	Output          string `yaml:"output"`
	FilenamePattern string `yaml:"filename_pattern"`
	DefaultTemplate string `yaml:"default_template"`

	SofficeBin    string `yaml:"soffice_bin"`
	PDFFilterOpts string `yaml:"pdf_filter_opts"`
	ExportRetries int    `yaml:"export_retries"`

	Strict               bool `yaml:"strict"`
	DryRun               bool `yaml:"dry_run"`
	FailOnMissingColumns bool `yaml:"fail_on_missing_columns"`
	MatchCase            bool `yaml:"match_case"`

	ScanHeadersFooters bool `yaml:"scan_headers_footers"`
	ScanMasters        bool `yaml:"scan_masters"`
	ScanNotes          bool `yaml:"scan_notes"`

	Jobs       int      `yaml:"jobs"`
	RowTimeout Duration `yaml:"row_timeout"`

	Locale           string   `yaml:"locale"`
	DateInputLayouts []string `yaml:"date_input_layouts"`
	DateOutputLayout string   `yaml:"date_output_layout"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Templates:          "templates",
		Output:             "output",
		FilenamePattern:    "{index}.pdf",
		ExportRetries:      2,
		ScanHeadersFooters: true,
		ScanMasters:        true,
		ScanNotes:          true,
		Jobs:               1,
		RowTimeout:         Duration(2 * time.Minute),
		Locale:             "en",
	}
}

// Load reads a YAML config file on top of the defaults. A missing file is
// an error; callers decide whether a config file is optional.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv overlays DOCBATCH_* environment variables onto cfg.
func LoadFromEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("DOCBATCH_DATA", &cfg.Data)
	setString("DOCBATCH_SHEET", &cfg.Sheet)
	setString("DOCBATCH_TEMPLATES", &cfg.Templates)
	setString("DOCBATCH_OUTPUT", &cfg.Output)
	setString("DOCBATCH_FILENAME_PATTERN", &cfg.FilenamePattern)
	setString("DOCBATCH_DEFAULT_TEMPLATE", &cfg.DefaultTemplate)
	setString("DOCBATCH_SOFFICE_BIN", &cfg.SofficeBin)
	setString("DOCBATCH_PDF_FILTER_OPTS", &cfg.PDFFilterOpts)
	setString("DOCBATCH_LOCALE", &cfg.Locale)
	setInt("DOCBATCH_EXPORT_RETRIES", &cfg.ExportRetries)
	setInt("DOCBATCH_JOBS", &cfg.Jobs)
	setBool("DOCBATCH_STRICT", &cfg.Strict)
	setBool("DOCBATCH_DRY_RUN", &cfg.DryRun)
	setBool("DOCBATCH_FAIL_ON_MISSING_COLUMNS", &cfg.FailOnMissingColumns)
	setBool("DOCBATCH_MATCH_CASE", &cfg.MatchCase)

	if v, ok := os.LookupEnv("DOCBATCH_ROW_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RowTimeout = Duration(d)
		}
	}
}

// Validate checks the settings needed before a run can start.
func (c *Config) Validate() error {
	var problems []string
	if c.Data == "" {
		problems = append(problems, "data file is required")
	}
	if c.Templates == "" {
		problems = append(problems, "template directory is required")
	}
	if c.Output == "" {
		problems = append(problems, "output directory is required")
	}
	if c.FilenamePattern == "" {
		problems = append(problems, "filename pattern is required")
	}
	if c.ExportRetries < 0 {
		problems = append(problems, "export_retries must not be negative")
	}
	if c.Jobs < 1 {
		problems = append(problems, "jobs must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
