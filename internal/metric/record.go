package metric

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sawpanic/firescore/internal/table"
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrDuplicateKey  = errors.New("duplicate solution key")
	ErrBadValue      = errors.New("bad value")
)

// Role tells RecordsFromTable which parsing rules apply to the value column
type Role int

const (
	RoleSolution Role = iota
	RoleSubmission
)

func (r Role) String() string {
	if r == RoleSubmission {
		return "submission"
	}
	return "solution"
}

// Columns names the table columns that carry the join key and the value
type Columns struct {
	ID    string `yaml:"id" json:"id"`
	State string `yaml:"state" json:"state" validate:"required"`
	Month string `yaml:"month" json:"month" validate:"required"`
	Value string `yaml:"value" json:"value" validate:"required"`
}

// DefaultColumns returns the competition's column names
func DefaultColumns() Columns {
	return Columns{
		ID:    "ID",
		State: "STATE",
		Month: "month",
		Value: "total_fire_size",
	}
}

// Key identifies a (state, month) cell
type Key struct {
	State string
	Month string
}

// NewKey builds a normalised key; integral months compare equal regardless of padding
func NewKey(state, month string) Key {
	return Key{State: strings.TrimSpace(state), Month: NormalizeMonth(month)}
}

func (k Key) String() string {
	return k.State + "_" + k.Month
}

// NormalizeMonth trims the value and rewrites base-10 integers in canonical form
func NormalizeMonth(month string) string {
	month = strings.TrimSpace(month)
	if n, err := strconv.ParseInt(month, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return month
}

// Record is one row of a solution or submission table
type Record struct {
	ID       string
	State    string
	Month    string
	Value    float64
	HasValue bool
}

// Key returns the join key of the record
func (r Record) Key() Key {
	return NewKey(r.State, r.Month)
}

type recordJSON struct {
	ID    string          `json:"ID,omitempty"`
	State string          `json:"STATE"`
	Month json.RawMessage `json:"month"`
	Value *float64        `json:"total_fire_size"`
}

// MarshalJSON writes the record with the competition's column names
func (r Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{ID: r.ID, State: r.State}
	if n, err := strconv.ParseInt(r.Month, 10, 64); err == nil {
		out.Month = json.RawMessage(strconv.FormatInt(n, 10))
	} else {
		quoted, err := json.Marshal(r.Month)
		if err != nil {
			return nil, err
		}
		out.Month = quoted
	}
	if r.HasValue {
		v := r.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts month as a number or a string and a null value as missing
func (r *Record) UnmarshalJSON(data []byte) error {
	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	month, err := parseJSONMonth(in.Month)
	if err != nil {
		return err
	}

	*r = Record{ID: in.ID, State: in.State, Month: month}
	if in.Value != nil {
		r.Value = *in.Value
		r.HasValue = true
	}
	return nil
}

func parseJSONMonth(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("%w: month is required", ErrBadValue)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: month %s", ErrBadValue, string(raw))
	}
	return n.String(), nil
}

// RecordsFromTable converts table rows into records.
// Solution values must be finite numbers. Submission cells that are empty or NaN
// become records without a value.
func RecordsFromTable(t *table.Table, cols Columns, role Role) ([]Record, error) {
	stateIdx, err := requireColumn(t, cols.State, role)
	if err != nil {
		return nil, err
	}
	monthIdx, err := requireColumn(t, cols.Month, role)
	if err != nil {
		return nil, err
	}
	valueIdx, err := requireColumn(t, cols.Value, role)
	if err != nil {
		return nil, err
	}
	idIdx := -1
	if cols.ID != "" {
		idIdx = t.Index(cols.ID)
	}

	records := make([]Record, 0, t.Len())
	for i, row := range t.Rows {
		rec := Record{
			State: row[stateIdx],
			Month: row[monthIdx],
		}
		if idIdx >= 0 {
			rec.ID = row[idIdx]
		}

		cell := strings.TrimSpace(row[valueIdx])
		if cell != "" {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s row %d column %s: %q", ErrBadValue, role, i+1, cols.Value, cell)
			}
			if !math.IsNaN(v) {
				rec.Value = v
				rec.HasValue = true
			}
		}

		if role == RoleSolution && (!rec.HasValue || math.IsInf(rec.Value, 0)) {
			return nil, fmt.Errorf("%w: %s row %d column %s: %q", ErrBadValue, role, i+1, cols.Value, cell)
		}

		records = append(records, rec)
	}

	return records, nil
}

func requireColumn(t *table.Table, name string, role Role) (int, error) {
	idx := t.Index(name)
	if idx < 0 {
		return -1, fmt.Errorf("%w: %s table has no %q column", ErrMissingColumn, role, name)
	}
	return idx, nil
}
