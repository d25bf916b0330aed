package metric

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/firescore/internal/table"
)

func TestNormalizeMonth(t *testing.T) {
	cases := map[string]string{
		"1":    "1",
		"01":   "1",
		" 12 ": "12",
		"-0":   "0",
		"1.0":  "1.0",
		"Jan":  "Jan",
		"":     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeMonth(in), "input %q", in)
	}
}

func TestRecordsFromTable(t *testing.T) {
	cols := DefaultColumns()

	t.Run("solution", func(t *testing.T) {
		tbl := table.New("ID", "STATE", "month", "total_fire_size")
		require.NoError(t, tbl.Append("CA_1", "CA", "1", "100"))
		require.NoError(t, tbl.Append("TX_2", "TX", "2", " 2.5e3 "))

		records, err := RecordsFromTable(tbl, cols, RoleSolution)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, Record{ID: "CA_1", State: "CA", Month: "1", Value: 100, HasValue: true}, records[0])
		assert.Equal(t, 2500.0, records[1].Value)
	})

	t.Run("solution without id column", func(t *testing.T) {
		tbl := table.New("STATE", "month", "total_fire_size")
		require.NoError(t, tbl.Append("CA", "1", "100"))

		records, err := RecordsFromTable(tbl, cols, RoleSolution)
		require.NoError(t, err)
		assert.Empty(t, records[0].ID)
	})

	t.Run("solution empty value", func(t *testing.T) {
		tbl := table.New("STATE", "month", "total_fire_size")
		require.NoError(t, tbl.Append("CA", "1", ""))

		_, err := RecordsFromTable(tbl, cols, RoleSolution)
		assert.ErrorIs(t, err, ErrBadValue)
	})

	t.Run("submission empty and nan are missing", func(t *testing.T) {
		tbl := table.New("STATE", "month", "total_fire_size")
		require.NoError(t, tbl.Append("CA", "1", ""))
		require.NoError(t, tbl.Append("CA", "2", "NaN"))
		require.NoError(t, tbl.Append("CA", "3", "-4"))

		records, err := RecordsFromTable(tbl, cols, RoleSubmission)
		require.NoError(t, err)
		assert.False(t, records[0].HasValue)
		assert.False(t, records[1].HasValue)
		assert.True(t, records[2].HasValue)
		assert.Equal(t, -4.0, records[2].Value)
	})

	t.Run("submission garbage value", func(t *testing.T) {
		tbl := table.New("STATE", "month", "total_fire_size")
		require.NoError(t, tbl.Append("CA", "1", "lots"))

		_, err := RecordsFromTable(tbl, cols, RoleSubmission)
		require.ErrorIs(t, err, ErrBadValue)
		assert.Contains(t, err.Error(), "submission row 1")
	})

	t.Run("missing column", func(t *testing.T) {
		tbl := table.New("STATE", "total_fire_size")

		_, err := RecordsFromTable(tbl, cols, RoleSubmission)
		require.ErrorIs(t, err, ErrMissingColumn)
		assert.Contains(t, err.Error(), `"month"`)
	})
}

func TestRecordJSON(t *testing.T) {
	t.Run("numeric month and null value", func(t *testing.T) {
		var r Record
		require.NoError(t, json.Unmarshal([]byte(`{"STATE":"CA","month":7,"total_fire_size":null}`), &r))
		assert.Equal(t, "7", r.Month)
		assert.False(t, r.HasValue)
	})

	t.Run("string month", func(t *testing.T) {
		var r Record
		require.NoError(t, json.Unmarshal([]byte(`{"ID":"CA_07","STATE":"CA","month":"07","total_fire_size":3.5}`), &r))
		assert.Equal(t, Key{State: "CA", Month: "7"}, r.Key())
		assert.Equal(t, 3.5, r.Value)
	})

	t.Run("month required", func(t *testing.T) {
		var r Record
		err := json.Unmarshal([]byte(`{"STATE":"CA","total_fire_size":1}`), &r)
		assert.ErrorIs(t, err, ErrBadValue)
	})

	t.Run("marshal", func(t *testing.T) {
		data, err := json.Marshal(Record{State: "CA", Month: "07", Value: 2, HasValue: true})
		require.NoError(t, err)
		assert.JSONEq(t, `{"STATE":"CA","month":7,"total_fire_size":2}`, string(data))
	})
}
