// Package table loads the tabular data source that drives a batch: an
// ordered sequence of rows plus the declared column set, with headers and
// cells trimmed and every cell stringified uniformly.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/docbatch/docbatch/pkg/docbatch"
)

// Table is one loaded data source.
type Table struct {
	// Columns preserves the declared header order and case.
	Columns []string
	Rows    []docbatch.RowValues
}

// Load reads a data file by extension. CSV and XLSX are supported natively;
// sheet selects the worksheet for workbook formats, empty meaning the first
// sheet. Other spreadsheet formats must be converted first.
func Load(path, sheet string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".xlsx", ".xlsm":
		return LoadXLSX(path, sheet)
	case ".xls", ".ods":
		return nil, fmt.Errorf("spreadsheet input %s is not supported directly: export it to CSV or XLSX first", path)
	default:
		return nil, fmt.Errorf("unsupported data file extension: %s", filepath.Ext(path))
	}
}

// LoadCSV reads a CSV file with a header row.
func LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses CSV content with a header row into a Table.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("data file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	records := make([][]string, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", len(records)+1, err)
		}
		records = append(records, record)
	}

	return fromRecords(header, records), nil
}

// LoadXLSX reads one worksheet of an Excel workbook, first row as header.
// Cell values arrive already stringified by the workbook reader.
func LoadXLSX(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q has no header row", sheet)
	}
	return fromRecords(rows[0], rows[1:]), nil
}

// fromRecords assembles a Table from a header and data records. Headers and
// cells are trimmed; short records expose every declared column as empty.
func fromRecords(header []string, records [][]string) *Table {
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	t := &Table{Columns: columns}
	for _, record := range records {
		row := make(docbatch.RowValues, len(columns))
		for i, col := range columns {
			if col == "" {
				continue
			}
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			row[col] = value
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// HasColumn reports whether a column exists, case-insensitively.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}
