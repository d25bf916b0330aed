package table

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX reads one worksheet of a workbook; the first sheet when sheet is empty.
// The first row is the header and short rows are padded with empty cells.
// Numeric cells come back as stored, ignoring number formats.
func ReadXLSX(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	// stored values, not the display text of the cell's number format
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, errors.New("missing header row")
	}

	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = strings.TrimSpace(cell)
	}

	t := &Table{Columns: header}
	for i, row := range rows[1:] {
		if len(row) > len(header) {
			return nil, fmt.Errorf("sheet %s row %d has %d cells, header has %d", sheet, i+2, len(row), len(header))
		}
		if isBlank(row) {
			continue
		}
		padded := make([]string, len(header))
		copy(padded, row)
		t.Rows = append(t.Rows, padded)
	}

	return t, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
