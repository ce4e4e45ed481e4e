package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	return []Record{
		{Row: 0, Status: StatusOK, Template: "letter.docx", Output: "out/ana.pdf", Bytes: 1234},
		{Row: 1, Status: StatusSkipped},
		{Row: 2, Status: StatusError, Template: "letter.docx", Error: "render failed"},
		{Row: 3, Status: StatusDryRun, Template: "letter.docx", Output: "out/bea.pdf",
			Warnings: []string{"[UNKNOWN_FILTER] unknown filter 'sparkle'", "[UNPARSABLE_INPUT] cannot parse 'x' as a number"}},
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "_report.json")
	require.NoError(t, WriteJSON(path, sampleRecords()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got []Record
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, sampleRecords(), got)
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "_report.csv")
	require.NoError(t, WriteCSV(path, sampleRecords()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"row", "status", "template", "output", "bytes", "error", "warnings"}, rows[0])
	assert.Equal(t, []string{"0", "OK", "letter.docx", "out/ana.pdf", "1234", "", ""}, rows[1])
	assert.Equal(t, "SKIPPED", rows[2][1])
	assert.Equal(t, "render failed", rows[3][5])
	assert.Equal(t, "[UNKNOWN_FILTER] unknown filter 'sparkle'; [UNPARSABLE_INPUT] cannot parse 'x' as a number", rows[4][6])
}

func TestWriteEmptyRecords(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteJSON(filepath.Join(dir, "_report.json"), nil))
	require.NoError(t, WriteCSV(filepath.Join(dir, "_report.csv"), nil))
}
