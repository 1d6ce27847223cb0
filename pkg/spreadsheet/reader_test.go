package spreadsheet

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseWorkbook(t *testing.T) {
	content := workbook(t, [][]interface{}{
		{"Name", " RollNo "},
		{"Asha", "cs23b1001"},
		{"", ""},
		{"Ravi", " CS23B1002"},
		{"Nobody", ""},
	})

	table, err := Parse(content)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", table.Format)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, Row{Number: 2, RollNo: "cs23b1001", Values: map[string]string{"Name": "Asha", "RollNo": "cs23b1001"}}, table.Rows[0])
	assert.Equal(t, 3, table.Rows[1].Number)
	assert.Equal(t, "CS23B1002", table.Rows[1].RollNo)
	assert.Equal(t, "", table.Rows[2].RollNo)
	assert.Equal(t, 4, table.Rows[2].Number)
}

func TestParseCSV(t *testing.T) {
	content := []byte("\xef\xbb\xbfrollNo,hours\nCS23B1001,99\n,\nBADROLL,1\n")

	table, err := Parse(content)
	require.NoError(t, err)
	assert.Equal(t, "csv", table.Format)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "CS23B1001", table.Rows[0].RollNo)
	assert.Equal(t, "BADROLL", table.Rows[1].RollNo)
	assert.Equal(t, 3, table.Rows[1].Number)
}

func TestParseStructuralErrors(t *testing.T) {
	cases := map[string]struct {
		content []byte
		err     error
	}{
		"empty payload":  {content: []byte("   "), err: ErrEmptySheet},
		"header only":    {content: []byte("rollNo\n"), err: ErrEmptySheet},
		"missing column": {content: []byte("name,email\nAsha,a@x.edu\n"), err: ErrMissingColumn},
		"empty workbook": {content: workbook(t, nil), err: ErrEmptySheet},
		"binary":         {content: []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}, err: ErrUnsupportedFormat},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(tc.content)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	content, err := Template()
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{TemplateSheet}, f.GetSheetList())

	table, err := Parse(content)
	require.NoError(t, err)
	assert.Equal(t, []string{RollNoColumn}, table.Header)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "CS23B1001", table.Rows[0].RollNo)
	assert.Equal(t, "CS23B1002", table.Rows[1].RollNo)
}
