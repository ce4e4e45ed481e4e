// Package report writes the per-row batch status records in both a
// record-oriented (JSON) and a line-delimited tabular (CSV) serialization.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Status is the outcome of one row.
type Status string

const (
	StatusOK      Status = "OK"
	StatusError   Status = "ERROR"
	StatusSkipped Status = "SKIPPED"
	StatusDryRun  Status = "DRY-RUN"
)

// Record is one row's status entry. Every processed row yields exactly one
// record regardless of failure.
type Record struct {
	Row      int      `json:"row"`
	Status   Status   `json:"status"`
	Template string   `json:"template,omitempty"`
	Output   string   `json:"output,omitempty"`
	Bytes    int64    `json:"bytes,omitempty"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(path string, records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}
	return nil
}

// WriteCSV writes records as CSV with a fixed header.
func WriteCSV(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"row", "status", "template", "output", "bytes", "error", "warnings"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range records {
		row := []string{
			strconv.Itoa(r.Row),
			string(r.Status),
			r.Template,
			r.Output,
			strconv.FormatInt(r.Bytes, 10),
			r.Error,
			strings.Join(r.Warnings, "; "),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV report: %w", err)
	}
	return nil
}
