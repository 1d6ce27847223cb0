// Package spreadsheet reads attendance sheets uploaded by administrators and
// renders the blank template they fill in.
package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

// RollNoColumn is the only header an attendance sheet must carry.
const RollNoColumn = "rollNo"

// firstDataRow is the sheet row number of the first record below the header.
const firstDataRow = 2

var (
	// ErrEmptySheet is returned when the sheet has no header or no data rows.
	ErrEmptySheet = errors.New("excel file is empty or has no valid data")
	// ErrMissingColumn is returned when the header row lacks rollNo.
	ErrMissingColumn = errors.New("missing required columns: rollNo")
	// ErrUnsupportedFormat is returned for payloads that are neither xlsx nor text.
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
)

// Row is one non-blank record of the sheet.
type Row struct {
	Number int
	RollNo string
	Values map[string]string
}

// Table is the parsed content of the first sheet.
type Table struct {
	Format string
	Header []string
	Rows   []Row
}

// Parse decodes an xlsx workbook or a CSV document. Only the first worksheet
// of a workbook is read. Fully blank rows are dropped before numbering.
func Parse(content []byte) (*Table, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, ErrEmptySheet
	}

	var (
		records [][]string
		format  string
		err     error
	)
	detected := mimetype.Detect(content)
	switch {
	case hasAncestor(detected, "application/zip"):
		format = "xlsx"
		records, err = readWorkbook(content)
	case hasAncestor(detected, "text/plain"):
		format = "csv"
		records, err = readCSV(content)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, detected.String())
	}
	if err != nil {
		return nil, err
	}

	return buildTable(format, records)
}

func hasAncestor(m *mimetype.MIME, target string) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is(target) {
			return true
		}
	}
	return false
}

func readWorkbook(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(content []byte) ([][]string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func buildTable(format string, records [][]string) (*Table, error) {
	records = dropBlank(records)
	if len(records) == 0 {
		return nil, ErrEmptySheet
	}

	header := make([]string, len(records[0]))
	rollIdx := -1
	for i, cell := range records[0] {
		header[i] = strings.TrimSpace(cell)
		if rollIdx < 0 && strings.EqualFold(header[i], RollNoColumn) {
			rollIdx = i
		}
	}
	if len(records) == 1 {
		return nil, ErrEmptySheet
	}
	if rollIdx < 0 {
		return nil, ErrMissingColumn
	}

	table := &Table{Format: format, Header: header, Rows: make([]Row, 0, len(records)-1)}
	for i, record := range records[1:] {
		row := Row{Number: i + firstDataRow, Values: make(map[string]string, len(header))}
		for col, name := range header {
			if name == "" || col >= len(record) {
				continue
			}
			row.Values[name] = strings.TrimSpace(record[col])
		}
		if rollIdx < len(record) {
			row.RollNo = strings.TrimSpace(record[rollIdx])
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func dropBlank(records [][]string) [][]string {
	out := records[:0]
	for _, record := range records {
		for _, cell := range record {
			if strings.TrimSpace(cell) != "" {
				out = append(out, record)
				break
			}
		}
	}
	return out
}
