package report

import (
	"math"
	"sort"
	"time"

	"github.com/mobilityedgeai/chatplanilha/pkg/dataset"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
)

// scoreMetric describes one input to the composite driver score. Inverted
// metrics reward lower totals, such as safety events.
type scoreMetric struct {
	role     Role
	alias    string
	inverted bool
}

var scoreMetrics = []scoreMetric{
	{role: RoleDistance, alias: "total_distance"},
	{role: RoleDuration, alias: "total_duration"},
	{role: RoleEvents, alias: "total_events", inverted: true},
}

// scoreTables computes a 0 to 100 composite score per driver. Each bound
// metric total is min-max normalized across drivers, inverted metrics are
// flipped, and a driver's score is the mean of their available metrics.
func (a *Assembler) scoreTables(ds *dataset.Dataset, b Bindings) ([]models.NamedTable, error) {
	driver, ok := b[RoleDriver]
	if !ok {
		return nil, insufficient(models.ReportScores, RoleDriver)
	}

	plan := models.QueryPlan{
		GroupBy: []string{driver},
	}
	var active []scoreMetric
	for _, m := range scoreMetrics {
		if col, ok := b[m.role]; ok {
			plan.Aggregations = append(plan.Aggregations,
				models.Aggregation{Column: col, Operator: models.AggSum, Alias: m.alias})
			active = append(active, m)
		}
	}
	if len(active) == 0 {
		return nil, insufficient(models.ReportScores, RoleDistance, RoleEvents)
	}

	totals, err := a.run(plan, ds)
	if err != nil {
		return nil, err
	}

	scored := scoreDrivers(totals, active)
	return []models.NamedTable{{Name: "driver_scores", Result: *scored}}, nil
}

// scoreDrivers derives the score column from the per-driver totals table.
// The totals table has the driver label in column 0 followed by one total
// per active metric, in order.
func scoreDrivers(totals *models.ExecutionResult, active []scoreMetric) *models.ExecutionResult {
	type span struct{ min, max float64 }
	spans := make([]span, len(active))
	for i := range spans {
		spans[i] = span{min: math.Inf(1), max: math.Inf(-1)}
	}
	for _, row := range totals.Rows {
		for i := range active {
			if v, ok := asFloat(row[i+1]); ok {
				if v < spans[i].min {
					spans[i].min = v
				}
				if v > spans[i].max {
					spans[i].max = v
				}
			}
		}
	}

	out := &models.ExecutionResult{
		Columns: append(append([]string{}, totals.Columns...), "score"),
	}
	for _, row := range totals.Rows {
		var sum float64
		var n int
		for i, m := range active {
			v, ok := asFloat(row[i+1])
			if !ok {
				continue
			}
			s := 100.0
			if spans[i].max > spans[i].min {
				s = 100 * (v - spans[i].min) / (spans[i].max - spans[i].min)
			}
			if m.inverted {
				s = 100 - s
			}
			sum += s
			n++
		}
		var score interface{}
		if n > 0 {
			score = math.Round(sum/float64(n)*10) / 10
		}
		out.Rows = append(out.Rows, append(append([]interface{}{}, row...), score))
	}

	// Highest score first; drivers with no score sink to the bottom.
	sort.SliceStable(out.Rows, func(i, j int) bool {
		a, aok := out.Rows[i][len(out.Columns)-1].(float64)
		b, bok := out.Rows[j][len(out.Columns)-1].(float64)
		if !aok {
			return false
		}
		if !bok {
			return true
		}
		return a > b
	})

	out.TotalMatched = totals.TotalMatched
	out.Truncated = totals.Truncated
	return out
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case time.Time:
		return float64(t.UnixMilli()), true
	}
	return 0, false
}
