// Package dataset implements the immutable, columnar in-memory table derived
// from one uploaded spreadsheet. Columns are Arrow arrays built once at
// ingestion; queries never re-parse the raw spreadsheet.
package dataset

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/mobilityedgeai/chatplanilha/pkg/models"
)

// Dataset is an immutable-after-load table. A Dataset is reference counted
// the way Arrow arrays are: the session holds the initial reference, readers
// pin it with Retain, and the backing buffers are freed only when the last
// reference is released. Eviction therefore never frees data out from under
// an in-flight query.
type Dataset struct {
	columns []models.Column
	arrays  []arrow.Array
	byName  map[string]int
	rows    int
	refs    atomic.Int64
}

// New assembles a Dataset from finalized column metadata and Arrow arrays.
// The arrays are owned by the Dataset from this point on. The caller holds
// the initial reference.
func New(columns []models.Column, arrays []arrow.Array, rows int) *Dataset {
	byName := make(map[string]int, len(columns))
	for i, c := range columns {
		byName[c.Name] = i
	}
	d := &Dataset{
		columns: columns,
		arrays:  arrays,
		byName:  byName,
		rows:    rows,
	}
	d.refs.Store(1)
	return d
}

// RowCount returns the number of rows.
func (d *Dataset) RowCount() int {
	return d.rows
}

// Columns returns the ordered column metadata.
func (d *Dataset) Columns() []models.Column {
	return d.columns
}

// Column looks up column metadata by name.
func (d *Dataset) Column(name string) (models.Column, bool) {
	i, ok := d.byName[name]
	if !ok {
		return models.Column{}, false
	}
	return d.columns[i], true
}

// ColumnIndex returns the position of a named column.
func (d *Dataset) ColumnIndex(name string) (int, bool) {
	i, ok := d.byName[name]
	return i, ok
}

// IsNull reports whether the cell at (row, col) is null.
func (d *Dataset) IsNull(row, col int) bool {
	return d.arrays[col].IsNull(row)
}

// Value returns the typed Go value at (row, col), or nil for null cells.
// Integer cells yield int64, float cells float64, date cells time.Time,
// boolean cells bool, text and categorical cells string.
func (d *Dataset) Value(row, col int) interface{} {
	arr := d.arrays[col]
	if arr.IsNull(row) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(row)
	case *array.Float64:
		return a.Value(row)
	case *array.Boolean:
		return a.Value(row)
	case *array.String:
		return a.Value(row)
	case *array.Timestamp:
		return time.UnixMilli(int64(a.Value(row))).UTC()
	}
	return nil
}

// Float64 returns the cell as a float64 for numeric and date columns.
// Dates are exposed as Unix milliseconds so range predicates stay ordered.
// The second return is false for null cells and non-numeric columns.
func (d *Dataset) Float64(row, col int) (float64, bool) {
	arr := d.arrays[col]
	if arr.IsNull(row) {
		return 0, false
	}
	switch a := arr.(type) {
	case *array.Int64:
		return float64(a.Value(row)), true
	case *array.Float64:
		return a.Value(row), true
	case *array.Timestamp:
		return float64(a.Value(row)), true
	}
	return 0, false
}

// String renders the cell as a display string; null cells render empty.
func (d *Dataset) String(row, col int) string {
	v := d.Value(row, col)
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format("2006-01-02")
	}
	return ""
}

// Retain adds a reference so a reader can keep using the Dataset across a
// concurrent eviction. Every Retain must be paired with a Release.
func (d *Dataset) Retain() {
	d.refs.Add(1)
}

// Release drops one reference. The Arrow buffers backing every column are
// freed when the last reference is dropped; the Dataset must not be used
// after that.
func (d *Dataset) Release() {
	if d.refs.Add(-1) != 0 {
		return
	}
	for _, arr := range d.arrays {
		if arr != nil {
			arr.Release()
		}
	}
	d.arrays = nil
	d.rows = 0
}
