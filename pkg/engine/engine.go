// Package engine executes validated query plans against a dataset.
// Execution order is fixed: filter, group/aggregate, sort, limit. All
// operations are read-only over the dataset and fully deterministic:
// identical plan and dataset always produce identical results, including
// tie-break order.
package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/mobilityedgeai/chatplanilha/pkg/dataset"
	"github.com/mobilityedgeai/chatplanilha/pkg/errors"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
	"github.com/mobilityedgeai/chatplanilha/pkg/schema"
)

// DefaultMaxDisplayRows bounds how many result rows an answer may embed.
const DefaultMaxDisplayRows = 200

// Options tunes execution output.
type Options struct {
	// MaxDisplayRows truncates the result for display; the total matched
	// count is preserved. Zero means DefaultMaxDisplayRows.
	MaxDisplayRows int
}

// Execute runs a plan against a dataset.
func Execute(plan models.QueryPlan, ds *dataset.Dataset, opts Options) (*models.ExecutionResult, error) {
	maxRows := opts.MaxDisplayRows
	if maxRows <= 0 {
		maxRows = DefaultMaxDisplayRows
	}

	matched, err := applyFilters(plan.Filters, ds)
	if err != nil {
		return nil, err
	}

	aggs := plan.Aggregations
	if len(aggs) == 0 && len(plan.GroupBy) > 0 {
		// A grouped plan with no explicit metric counts rows per group.
		aggs = []models.Aggregation{{Operator: models.AggCount}}
	}

	var result *models.ExecutionResult
	if len(aggs) > 0 {
		result, err = aggregate(plan.GroupBy, aggs, matched, ds)
	} else {
		result, err = project(matched, ds)
	}
	if err != nil {
		return nil, err
	}

	if plan.Sort != nil {
		if err := sortResult(result, *plan.Sort); err != nil {
			return nil, err
		}
	}

	if plan.Limit > 0 && len(result.Rows) > plan.Limit {
		result.Rows = result.Rows[:plan.Limit]
	}
	result.TotalMatched = len(result.Rows)
	if len(aggs) == 0 {
		// For plain projections the matched count reflects filter hits,
		// not the display window.
		result.TotalMatched = len(matched)
		if plan.Limit > 0 && result.TotalMatched > plan.Limit {
			result.TotalMatched = plan.Limit
		}
	}

	if len(result.Rows) > maxRows {
		result.Rows = result.Rows[:maxRows]
		result.Truncated = true
	}

	return result, nil
}

// applyFilters returns the indices of rows matching every predicate, in row
// order. Null cells never match any predicate.
func applyFilters(filters []models.Filter, ds *dataset.Dataset) ([]int, error) {
	n := ds.RowCount()
	matched := make([]int, 0, n)

	evals := make([]func(row int) bool, 0, len(filters))
	for _, f := range filters {
		eval, err := compilePredicate(f, ds)
		if err != nil {
			return nil, err
		}
		evals = append(evals, eval)
	}

	for row := 0; row < n; row++ {
		ok := true
		for _, eval := range evals {
			if !eval(row) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

func compilePredicate(f models.Filter, ds *dataset.Dataset) (func(row int) bool, error) {
	col, ok := ds.ColumnIndex(f.Column)
	if !ok {
		return nil, errors.ErrUnresolvableQuery.WithDetail("column", f.Column)
	}
	colType, _ := ds.Column(f.Column)

	switch f.Operator {
	case models.OpEq, models.OpNeq:
		eq, err := compileEquality(f, ds, col, colType.Type)
		if err != nil {
			return nil, err
		}
		if f.Operator == models.OpNeq {
			return func(row int) bool { return !ds.IsNull(row, col) && !eq(row) }, nil
		}
		return eq, nil

	case models.OpGt, models.OpGte, models.OpLt, models.OpLte:
		target, err := numericLiteral(f.Value, colType.Type)
		if err != nil {
			return nil, err
		}
		op := f.Operator
		return func(row int) bool {
			v, ok := ds.Float64(row, col)
			if !ok {
				return false
			}
			switch op {
			case models.OpGt:
				return v > target
			case models.OpGte:
				return v >= target
			case models.OpLt:
				return v < target
			default:
				return v <= target
			}
		}, nil

	case models.OpContains:
		needle := strings.ToLower(f.Value)
		return func(row int) bool {
			if ds.IsNull(row, col) {
				return false
			}
			return strings.Contains(strings.ToLower(ds.String(row, col)), needle)
		}, nil
	}

	return nil, errors.ErrUnresolvableQuery.WithDetail("operator", f.Operator)
}

func compileEquality(f models.Filter, ds *dataset.Dataset, col int, colType models.ColumnType) (func(row int) bool, error) {
	switch colType {
	case models.TypeInteger, models.TypeFloat, models.TypeDate:
		target, err := numericLiteral(f.Value, colType)
		if err != nil {
			return nil, err
		}
		return func(row int) bool {
			v, ok := ds.Float64(row, col)
			return ok && v == target
		}, nil
	default:
		want := f.Value
		return func(row int) bool {
			if ds.IsNull(row, col) {
				return false
			}
			return strings.EqualFold(ds.String(row, col), want)
		}, nil
	}
}

// numericLiteral parses a filter literal for a numeric or date column.
// Dates become Unix milliseconds, matching Dataset.Float64.
func numericLiteral(value string, colType models.ColumnType) (float64, error) {
	if colType == models.TypeDate {
		if t, ok := schema.ParseDateValue(value); ok {
			return float64(t.UnixMilli()), nil
		}
		return 0, errors.ErrUnresolvableQuery.WithDetail("value", value)
	}
	if v, ok := schema.ParseNumericValue(value); ok {
		return v, nil
	}
	return 0, errors.ErrUnresolvableQuery.WithDetail("value", value)
}

// project returns the matched rows across every dataset column.
func project(matched []int, ds *dataset.Dataset) (*models.ExecutionResult, error) {
	cols := ds.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	rows := make([][]interface{}, 0, len(matched))
	for _, row := range matched {
		cells := make([]interface{}, len(cols))
		for col := range cols {
			cells[col] = ds.Value(row, col)
		}
		rows = append(rows, cells)
	}

	return &models.ExecutionResult{Columns: names, Rows: rows}, nil
}

type group struct {
	labels []interface{}
	rows   []int
}

// aggregate groups matched rows and applies every aggregation per group.
// Groups appear in first-occurrence order; with no group-by columns a single
// group covers all matched rows, yielding zero result rows when nothing
// matched (empty but valid, never an error).
func aggregate(groupBy []string, aggs []models.Aggregation, matched []int, ds *dataset.Dataset) (*models.ExecutionResult, error) {
	groupCols := make([]int, len(groupBy))
	for i, name := range groupBy {
		idx, ok := ds.ColumnIndex(name)
		if !ok {
			return nil, errors.ErrUnresolvableQuery.WithDetail("column", name)
		}
		groupCols[i] = idx
	}

	var groups []*group
	if len(groupCols) == 0 {
		if len(matched) > 0 {
			groups = []*group{{rows: matched}}
		}
	} else {
		byKey := make(map[string]*group)
		for _, row := range matched {
			var key strings.Builder
			labels := make([]interface{}, len(groupCols))
			for i, col := range groupCols {
				labels[i] = ds.Value(row, col)
				key.WriteString(ds.String(row, col))
				key.WriteByte(0)
			}
			g, ok := byKey[key.String()]
			if !ok {
				g = &group{labels: labels}
				byKey[key.String()] = g
				groups = append(groups, g)
			}
			g.rows = append(g.rows, row)
		}
	}

	names := make([]string, 0, len(groupBy)+len(aggs))
	names = append(names, groupBy...)
	for _, a := range aggs {
		names = append(names, AggregationAlias(a))
	}

	rows := make([][]interface{}, 0, len(groups))
	for _, g := range groups {
		cells := make([]interface{}, 0, len(names))
		cells = append(cells, g.labels...)
		for _, a := range aggs {
			v, err := aggregateGroup(a, g.rows, ds)
			if err != nil {
				return nil, err
			}
			cells = append(cells, v)
		}
		rows = append(rows, cells)
	}

	return &models.ExecutionResult{Columns: names, Rows: rows}, nil
}

// AggregationAlias returns the output column name for an aggregation.
func AggregationAlias(a models.Aggregation) string {
	if a.Alias != "" {
		return a.Alias
	}
	if a.Column == "" {
		return a.Operator
	}
	return a.Operator + "_" + a.Column
}

// aggregateGroup computes one aggregate over a group's rows. Null cells are
// skipped; a group whose cells are all null yields nil, never zero.
func aggregateGroup(a models.Aggregation, rows []int, ds *dataset.Dataset) (interface{}, error) {
	if a.Operator == models.AggCount {
		if a.Column == "" {
			return int64(len(rows)), nil
		}
		col, ok := ds.ColumnIndex(a.Column)
		if !ok {
			return nil, errors.ErrUnresolvableQuery.WithDetail("column", a.Column)
		}
		n := int64(0)
		for _, row := range rows {
			if !ds.IsNull(row, col) {
				n++
			}
		}
		return n, nil
	}

	col, ok := ds.ColumnIndex(a.Column)
	if !ok {
		return nil, errors.ErrUnresolvableQuery.WithDetail("column", a.Column)
	}
	meta, _ := ds.Column(a.Column)

	var sum, min, max float64
	count := 0
	for _, row := range rows {
		v, ok := ds.Float64(row, col)
		if !ok {
			continue
		}
		if count == 0 || v < min {
			min = v
		}
		if count == 0 || v > max {
			max = v
		}
		sum += v
		count++
	}
	if count == 0 {
		return nil, nil
	}

	var out float64
	switch a.Operator {
	case models.AggSum:
		out = sum
	case models.AggAvg:
		return sum / float64(count), nil
	case models.AggMin:
		out = min
	case models.AggMax:
		out = max
	default:
		return nil, errors.ErrUnresolvableQuery.WithDetail("operator", a.Operator)
	}

	switch meta.Type {
	case models.TypeInteger:
		return int64(out), nil
	case models.TypeDate:
		return time.UnixMilli(int64(out)).UTC(), nil
	default:
		return out, nil
	}
}

// sortResult orders result rows by one output column. The sort is stable, so
// ties keep first-occurrence order and reruns reproduce byte-identical
// output. Null cells always sort last.
func sortResult(result *models.ExecutionResult, spec models.SortSpec) error {
	col := -1
	for i, name := range result.Columns {
		if strings.EqualFold(name, spec.Column) {
			col = i
			break
		}
	}
	if col == -1 {
		return errors.ErrUnresolvableQuery.WithDetail("sort_column", spec.Column)
	}

	desc := spec.Descending
	sort.SliceStable(result.Rows, func(i, j int) bool {
		a, b := result.Rows[i][col], result.Rows[j][col]
		// Nulls sort last regardless of direction.
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		less, ok := compareCells(a, b)
		if !ok {
			return false
		}
		if desc {
			return !less
		}
		return less
	})
	return nil
}

// compareCells reports a < b for non-null cells. The second return is false
// for equal values, letting the stable sort keep first-occurrence order.
func compareCells(a, b interface{}) (bool, bool) {
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		if af == bf {
			return false, false
		}
		return af < bf, true
	}
	as, bs := cellString(a), cellString(b)
	if strings.EqualFold(as, bs) {
		return false, false
	}
	return strings.ToLower(as) < strings.ToLower(bs), true
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case time.Time:
		return float64(t.UnixMilli()), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func cellString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
