package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilityedgeai/chatplanilha/pkg/dataset"
	"github.com/mobilityedgeai/chatplanilha/pkg/errors"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
	"github.com/mobilityedgeai/chatplanilha/pkg/schema"
)

func tripDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	headers := []string{"driver", "km", "events", "date"}
	rows := [][]string{
		{"Ana", "10", "0", "2026-01-02"},
		{"Bruno", "25", "2", "2026-01-02"},
		{"Ana", "", "1", "2026-01-03"},
		{"Carla", "30", "0", "2026-01-04"},
		{"Bruno", "15", "", "2026-01-05"},
		{"Ana", "20", "0", "2026-01-05"},
	}
	ds, err := schema.Infer(headers, rows, schema.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(ds.Release)
	return ds
}

func TestExecute_ProjectionWithFilter(t *testing.T) {
	ds := tripDataset(t)

	result, err := Execute(models.QueryPlan{
		Filters: []models.Filter{{Column: "driver", Operator: models.OpEq, Value: "ana"}},
	}, ds, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"driver", "km", "events", "date"}, result.Columns)
	assert.Len(t, result.Rows, 3)
	assert.Equal(t, 3, result.TotalMatched)
	assert.False(t, result.Truncated)
	for _, row := range result.Rows {
		assert.Equal(t, "Ana", row[0])
	}
}

func TestExecute_RangeFilterSkipsNulls(t *testing.T) {
	ds := tripDataset(t)

	result, err := Execute(models.QueryPlan{
		Filters: []models.Filter{{Column: "km", Operator: models.OpGte, Value: "20"}},
	}, ds, Options{})
	require.NoError(t, err)

	// The null km row never matches.
	assert.Equal(t, 3, result.TotalMatched)
}

func TestExecute_DateFilter(t *testing.T) {
	ds := tripDataset(t)

	result, err := Execute(models.QueryPlan{
		Filters: []models.Filter{{Column: "date", Operator: models.OpGt, Value: "2026-01-03"}},
	}, ds, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalMatched)
}

func TestExecute_GroupCountFirstOccurrenceOrder(t *testing.T) {
	ds := tripDataset(t)

	result, err := Execute(models.QueryPlan{
		GroupBy: []string{"driver"},
	}, ds, Options{})
	require.NoError(t, err)

	require.Equal(t, []string{"driver", "count"}, result.Columns)
	require.Len(t, result.Rows, 3)
	assert.Equal(t, []interface{}{"Ana", int64(3)}, result.Rows[0])
	assert.Equal(t, []interface{}{"Bruno", int64(2)}, result.Rows[1])
	assert.Equal(t, []interface{}{"Carla", int64(1)}, result.Rows[2])
}

func TestExecute_AvgSkipsNulls(t *testing.T) {
	ds, err := schema.Infer([]string{"km"}, [][]string{{"10"}, {""}, {"30"}}, schema.DefaultOptions())
	require.NoError(t, err)
	defer ds.Release()

	result, err := Execute(models.QueryPlan{
		Aggregations: []models.Aggregation{{Column: "km", Operator: models.AggAvg}},
	}, ds, Options{})
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, 20.0, result.Rows[0][0])
}

func TestExecute_AllNullAggregateIsNil(t *testing.T) {
	ds, err := schema.Infer([]string{"driver", "km"}, [][]string{{"Ana", ""}, {"Ana", "n/a"}}, schema.DefaultOptions())
	require.NoError(t, err)
	defer ds.Release()

	result, err := Execute(models.QueryPlan{
		GroupBy:      []string{"driver"},
		Aggregations: []models.Aggregation{{Column: "km", Operator: models.AggSum}},
	}, ds, Options{})
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Nil(t, result.Rows[0][1], "all-null group must yield nil, not zero")
}

func TestExecute_IntegerAggregatesKeepType(t *testing.T) {
	ds := tripDataset(t)

	result, err := Execute(models.QueryPlan{
		GroupBy: []string{"driver"},
		Aggregations: []models.Aggregation{
			{Column: "km", Operator: models.AggSum, Alias: "total_km"},
			{Column: "date", Operator: models.AggMax, Alias: "last_trip"},
		},
	}, ds, Options{})
	require.NoError(t, err)

	require.Equal(t, []string{"driver", "total_km", "last_trip"}, result.Columns)
	ana := result.Rows[0]
	assert.Equal(t, int64(30), ana[1])
	last, ok := ana[2].(time.Time)
	require.True(t, ok)
	assert.Equal(t, "2026-01-05", last.Format("2006-01-02"))
}

func TestExecute_TopDrivers(t *testing.T) {
	headers := []string{"driver"}
	var rows [][]string
	for i := 0; i < 10; i++ {
		rows = append(rows, []string{"A"})
	}
	for i := 0; i < 25; i++ {
		rows = append(rows, []string{"B"})
	}
	for i := 0; i < 7; i++ {
		rows = append(rows, []string{"C"})
	}
	ds, err := schema.Infer(headers, rows, schema.DefaultOptions())
	require.NoError(t, err)
	defer ds.Release()

	result, err := Execute(models.QueryPlan{
		GroupBy:      []string{"driver"},
		Aggregations: []models.Aggregation{{Operator: models.AggCount}},
		Sort:         &models.SortSpec{Column: "count", Descending: true},
	}, ds, Options{})
	require.NoError(t, err)

	require.Len(t, result.Rows, 3)
	assert.Equal(t, []interface{}{"B", int64(25)}, result.Rows[0])
	assert.Equal(t, []interface{}{"A", int64(10)}, result.Rows[1])
	assert.Equal(t, []interface{}{"C", int64(7)}, result.Rows[2])
}

func TestExecute_SortStableTiesKeepOrder(t *testing.T) {
	ds, err := schema.Infer([]string{"driver", "km"},
		[][]string{{"A", "10"}, {"B", "10"}, {"C", "5"}}, schema.DefaultOptions())
	require.NoError(t, err)
	defer ds.Release()

	result, err := Execute(models.QueryPlan{
		Sort: &models.SortSpec{Column: "km", Descending: true},
	}, ds, Options{})
	require.NoError(t, err)

	assert.Equal(t, "A", result.Rows[0][0])
	assert.Equal(t, "B", result.Rows[1][0])
	assert.Equal(t, "C", result.Rows[2][0])
}

func TestExecute_SortNullsLast(t *testing.T) {
	ds, err := schema.Infer([]string{"driver", "km"},
		[][]string{{"A", ""}, {"B", "5"}, {"C", "10"}}, schema.DefaultOptions())
	require.NoError(t, err)
	defer ds.Release()

	for _, desc := range []bool{true, false} {
		result, err := Execute(models.QueryPlan{
			Sort: &models.SortSpec{Column: "km", Descending: desc},
		}, ds, Options{})
		require.NoError(t, err)
		assert.Equal(t, "A", result.Rows[2][0], "null km must sort last (descending=%v)", desc)
	}
}

func TestExecute_LimitAndDisplayTruncation(t *testing.T) {
	var rows [][]string
	for i := 0; i < 50; i++ {
		rows = append(rows, []string{"x"})
	}
	ds, err := schema.Infer([]string{"route"}, rows, schema.DefaultOptions())
	require.NoError(t, err)
	defer ds.Release()

	result, err := Execute(models.QueryPlan{Limit: 40}, ds, Options{MaxDisplayRows: 10})
	require.NoError(t, err)

	assert.Len(t, result.Rows, 10)
	assert.True(t, result.Truncated)
	assert.Equal(t, 40, result.TotalMatched)
}

func TestExecute_EmptyMatchAggregateIsEmptyNotError(t *testing.T) {
	ds := tripDataset(t)

	result, err := Execute(models.QueryPlan{
		Filters:      []models.Filter{{Column: "driver", Operator: models.OpEq, Value: "nobody"}},
		GroupBy:      []string{"driver"},
		Aggregations: []models.Aggregation{{Operator: models.AggCount}},
	}, ds, Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}

func TestExecute_UnknownColumnFails(t *testing.T) {
	ds := tripDataset(t)

	_, err := Execute(models.QueryPlan{
		Filters: []models.Filter{{Column: "velocidade", Operator: models.OpEq, Value: "1"}},
	}, ds, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsUnresolvableQuery(err))
}

func TestExecute_Idempotent(t *testing.T) {
	ds := tripDataset(t)
	plan := models.QueryPlan{
		GroupBy:      []string{"driver"},
		Aggregations: []models.Aggregation{{Column: "km", Operator: models.AggAvg, Alias: "avg_km"}},
		Sort:         &models.SortSpec{Column: "avg_km", Descending: true},
	}

	first, err := Execute(plan, ds, Options{})
	require.NoError(t, err)
	second, err := Execute(plan, ds, Options{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
