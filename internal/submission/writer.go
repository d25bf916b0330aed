// Package submission turns a prediction table into a competition submission file.
package submission

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	fsio "github.com/sawpanic/firescore/internal/io"
	"github.com/sawpanic/firescore/internal/table"
)

const (
	// DefaultPath is where Create writes when no path is configured
	DefaultPath = "submission.csv"

	// IDColumn is the identifier column added in front of the predictions
	IDColumn = "ID"

	previewRows = 5
)

// WithIDs returns a copy of t with a zero-based row number as the first column.
// An existing ID column is replaced.
func WithIDs(t *table.Table) (*table.Table, error) {
	ids := make([]string, t.Len())
	for i := range ids {
		ids[i] = strconv.Itoa(i)
	}
	return t.WithColumnFirst(IDColumn, ids)
}

// Create assigns IDs and writes the table as CSV to path (DefaultPath when empty)
func Create(t *table.Table, path string) error {
	if path == "" {
		path = DefaultPath
	}

	out, err := WithIDs(t)
	if err != nil {
		return fmt.Errorf("assign ids: %w", err)
	}

	for i := 0; i < out.Len() && i < previewRows; i++ {
		log.Debug().Strs("columns", out.Columns).Strs("row", out.Rows[i]).Msg("Submission preview")
	}

	if err := fsio.WriteCSVAtomic(path, out); err != nil {
		return fmt.Errorf("save submission: %w", err)
	}

	log.Info().Str("path", path).Int("rows", out.Len()).Msg("Submission file saved")
	return nil
}
