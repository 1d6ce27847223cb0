package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Beach Cleanup attendance",
		Headers: []string{"Roll No", "Name", "Hours"},
		Rows: []map[string]string{
			{"Roll No": "CS23B1001", "Name": "Asha", "Hours": "4"},
			{"Roll No": "CS23B1002", "Name": "Ravi, K", "Hours": "4.5"},
		},
	}
}

func TestForFormat(t *testing.T) {
	for format, ext := range map[string]string{"": "csv", "CSV": "csv", "pdf": "pdf", " xlsx ": "xlsx"} {
		exporter, err := ForFormat(format)
		require.NoError(t, err)
		assert.Equal(t, ext, exporter.Extension())
	}
	_, err := ForFormat("docx")
	assert.Error(t, err)
}

func TestCSVExporter(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Roll No,Name,Hours", lines[0])
	assert.Equal(t, `CS23B1002,"Ravi, K",4.5`, lines[2])

	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporter(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXExporter(t *testing.T) {
	out, err := NewXLSXExporter().Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Roll No", "Name", "Hours"}, rows[0])
	assert.Equal(t, []string{"CS23B1001", "Asha", "4"}, rows[1])
}
