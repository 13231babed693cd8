package resolver

import (
	"strings"

	"github.com/mobilityedgeai/chatplanilha/pkg/dataset"
	"github.com/mobilityedgeai/chatplanilha/pkg/engine"
	"github.com/mobilityedgeai/chatplanilha/pkg/errors"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
)

// ValidatePlan checks a plan against the dataset it was resolved for: every
// referenced column must exist and every operator must be compatible with
// its column's type. Invalid plans are rejected, never coerced.
func ValidatePlan(plan models.QueryPlan, ds *dataset.Dataset) error {
	for _, f := range plan.Filters {
		col, ok := ds.Column(f.Column)
		if !ok {
			return unknownColumn(f.Column)
		}
		switch f.Operator {
		case models.OpEq, models.OpNeq:
			// Compatible with every type.
		case models.OpGt, models.OpGte, models.OpLt, models.OpLte:
			if !col.Type.IsNumeric() && col.Type != models.TypeDate {
				return incompatible(f.Operator, col)
			}
		case models.OpContains:
			if col.Type != models.TypeText && col.Type != models.TypeCategorical {
				return incompatible(f.Operator, col)
			}
		default:
			return errors.ErrUnresolvableQuery.WithDetail("operator", f.Operator)
		}
	}

	for _, name := range plan.GroupBy {
		if _, ok := ds.Column(name); !ok {
			return unknownColumn(name)
		}
	}

	for _, a := range plan.Aggregations {
		if a.Operator == models.AggCount {
			if a.Column != "" {
				if _, ok := ds.Column(a.Column); !ok {
					return unknownColumn(a.Column)
				}
			}
			continue
		}
		col, ok := ds.Column(a.Column)
		if !ok {
			return unknownColumn(a.Column)
		}
		switch a.Operator {
		case models.AggSum, models.AggAvg:
			if !col.Type.IsNumeric() {
				return incompatible(a.Operator, col)
			}
		case models.AggMin, models.AggMax:
			if !col.Type.IsNumeric() && col.Type != models.TypeDate {
				return incompatible(a.Operator, col)
			}
		default:
			return errors.ErrUnresolvableQuery.WithDetail("operator", a.Operator)
		}
	}

	if plan.Sort != nil {
		if !sortColumnKnown(plan, ds) {
			return errors.ErrUnresolvableQuery.WithDetail("sort_column", plan.Sort.Column)
		}
	}

	if plan.Limit < 0 {
		return errors.ErrUnresolvableQuery.WithDetail("limit", plan.Limit)
	}

	return nil
}

// sortColumnKnown checks the sort target against the plan's output columns:
// group-by columns and aggregation aliases for aggregate plans, dataset
// columns for plain projections.
func sortColumnKnown(plan models.QueryPlan, ds *dataset.Dataset) bool {
	target := plan.Sort.Column

	aggs := plan.Aggregations
	if len(aggs) == 0 && len(plan.GroupBy) > 0 {
		aggs = []models.Aggregation{{Operator: models.AggCount}}
	}

	if len(aggs) == 0 {
		_, ok := ds.Column(target)
		return ok
	}
	for _, name := range plan.GroupBy {
		if strings.EqualFold(name, target) {
			return true
		}
	}
	for _, a := range aggs {
		if strings.EqualFold(engine.AggregationAlias(a), target) {
			return true
		}
	}
	return false
}

func unknownColumn(name string) error {
	return errors.ErrUnresolvableQuery.WithDetail("unknown_column", name)
}

func incompatible(op string, col models.Column) error {
	return errors.Newf(errors.CodeUnresolvableQuery,
		"operator %s is not valid for %s column %q", op, col.Type, col.Name)
}
