package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned by Load for file extensions it cannot read
var ErrUnsupportedFormat = errors.New("unsupported table format")

// Table is a header plus string cells, one slice per row
type Table struct {
	Columns []string
	Rows    [][]string
}

// New creates a table with the given header and no rows
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of data rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of a column or -1 when absent
func (t *Table) Index(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// Append adds a row; it must match the header width
func (t *Table) Append(row ...string) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("row has %d cells, header has %d", len(row), len(t.Columns))
	}
	t.Rows = append(t.Rows, append([]string(nil), row...))
	return nil
}

// Column returns a copy of every cell in the named column
func (t *Table) Column(name string) ([]string, bool) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, false
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, true
}

// WithColumnFirst returns a new table with name placed as the first column.
// An existing column of the same name is dropped; the others keep their order.
func (t *Table) WithColumnFirst(name string, values []string) (*Table, error) {
	if len(values) != len(t.Rows) {
		return nil, fmt.Errorf("column %s has %d values, table has %d rows", name, len(values), len(t.Rows))
	}

	existing := t.Index(name)
	columns := make([]string, 0, len(t.Columns)+1)
	columns = append(columns, name)
	for i, col := range t.Columns {
		if i != existing {
			columns = append(columns, col)
		}
	}

	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]string, 0, len(columns))
		out = append(out, values[r])
		for i, cell := range row {
			if i != existing {
				out = append(out, cell)
			}
		}
		rows[r] = out
	}

	return &Table{Columns: columns, Rows: rows}, nil
}

// Load reads a table from disk, picking the reader by file extension
func Load(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()

		t, err := ReadCSV(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return t, nil
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, "")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ReadCSV parses a comma-separated table with a mandatory header row
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &Table{Columns: header}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, header has %d", line, len(record), len(header))
		}
		t.Rows = append(t.Rows, record)
	}

	return t, nil
}

// WriteCSV writes the header and every row to w
func WriteCSV(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
