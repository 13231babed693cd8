// Package report assembles the structured tables behind the canonical report
// layouts. Column bindings are resolved per dataset, so the same report type
// works across spreadsheets with Portuguese or English headers.
package report

import (
	"time"

	"github.com/mobilityedgeai/chatplanilha/pkg/dataset"
	"github.com/mobilityedgeai/chatplanilha/pkg/engine"
	cperrors "github.com/mobilityedgeai/chatplanilha/pkg/errors"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
)

// PlanVersion tags assembled reports with the canonical plan revision that
// produced them. Bump it whenever a report's plan set changes shape.
const PlanVersion = 1

// Options configures report assembly.
type Options struct {
	// MaxDisplayRows bounds each table, same ceiling as ad hoc queries.
	MaxDisplayRows int
}

// Assembler turns a dataset into the table set for a report type.
type Assembler struct {
	opts Options
}

// New creates an assembler.
func New(opts Options) *Assembler {
	if opts.MaxDisplayRows <= 0 {
		opts.MaxDisplayRows = engine.DefaultMaxDisplayRows
	}
	return &Assembler{opts: opts}
}

// Assemble builds the tables for the given report type. Missing required
// columns produce an InsufficientData error naming the gap.
func (a *Assembler) Assemble(typ models.ReportType, ds *dataset.Dataset) (*models.ReportTables, error) {
	bindings := BindColumns(ds)

	var (
		tables []models.NamedTable
		err    error
	)
	switch typ {
	case models.ReportGeneral:
		tables, err = a.generalTables(ds, bindings)
	case models.ReportDriver:
		tables, err = a.driverTables(ds, bindings)
	case models.ReportTrip:
		tables, err = a.tripTables(ds, bindings)
	case models.ReportScores:
		tables, err = a.scoreTables(ds, bindings)
	default:
		return nil, cperrors.Newf(cperrors.CodeInvalidRequest, "unknown report type %q", typ)
	}
	if err != nil {
		return nil, err
	}

	return &models.ReportTables{
		Type:        typ,
		PlanVersion: PlanVersion,
		Tables:      tables,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// generalTables summarizes the whole sheet: row volume plus totals for every
// bound numeric role.
func (a *Assembler) generalTables(ds *dataset.Dataset, b Bindings) ([]models.NamedTable, error) {
	overview := models.QueryPlan{
		Aggregations: []models.Aggregation{{Operator: models.AggCount, Alias: "total_rows"}},
	}
	for _, role := range []Role{RoleDistance, RoleDuration, RoleFuel, RoleEvents} {
		if col, ok := b[role]; ok {
			overview.Aggregations = append(overview.Aggregations,
				models.Aggregation{Column: col, Operator: models.AggSum, Alias: "total_" + string(role)},
				models.Aggregation{Column: col, Operator: models.AggAvg, Alias: "avg_" + string(role)},
			)
		}
	}
	tables := []models.NamedTable{}
	res, err := a.run(overview, ds)
	if err != nil {
		return nil, err
	}
	tables = append(tables, models.NamedTable{Name: "overview", Result: *res})

	if driver, ok := b[RoleDriver]; ok {
		perDriver := models.QueryPlan{
			GroupBy:      []string{driver},
			Aggregations: []models.Aggregation{{Operator: models.AggCount, Alias: "trips"}},
			Sort:         &models.SortSpec{Column: "trips", Descending: true},
		}
		res, err := a.run(perDriver, ds)
		if err != nil {
			return nil, err
		}
		tables = append(tables, models.NamedTable{Name: "trips_per_driver", Result: *res})
	}
	return tables, nil
}

// driverTables breaks every bound metric down per driver.
func (a *Assembler) driverTables(ds *dataset.Dataset, b Bindings) ([]models.NamedTable, error) {
	driver, ok := b[RoleDriver]
	if !ok {
		return nil, insufficient(models.ReportDriver, RoleDriver)
	}

	plan := models.QueryPlan{
		GroupBy:      []string{driver},
		Aggregations: []models.Aggregation{{Operator: models.AggCount, Alias: "trips"}},
		Sort:         &models.SortSpec{Column: "trips", Descending: true},
	}
	for _, role := range []Role{RoleDistance, RoleDuration, RoleFuel, RoleEvents} {
		if col, ok := b[role]; ok {
			plan.Aggregations = append(plan.Aggregations,
				models.Aggregation{Column: col, Operator: models.AggSum, Alias: "total_" + string(role)},
				models.Aggregation{Column: col, Operator: models.AggAvg, Alias: "avg_" + string(role)},
			)
		}
	}
	res, err := a.run(plan, ds)
	if err != nil {
		return nil, err
	}
	return []models.NamedTable{{Name: "driver_summary", Result: *res}}, nil
}

// tripTables lists the trip rows themselves, most recent first when a date
// column is bound.
func (a *Assembler) tripTables(ds *dataset.Dataset, b Bindings) ([]models.NamedTable, error) {
	plan := models.QueryPlan{}
	if date, ok := b[RoleDate]; ok {
		plan.Sort = &models.SortSpec{Column: date, Descending: true}
	}
	res, err := a.run(plan, ds)
	if err != nil {
		return nil, err
	}
	return []models.NamedTable{{Name: "trips", Result: *res}}, nil
}

// run executes one canonical plan against the dataset.
func (a *Assembler) run(plan models.QueryPlan, ds *dataset.Dataset) (*models.ExecutionResult, error) {
	return engine.Execute(plan, ds, engine.Options{MaxDisplayRows: a.opts.MaxDisplayRows})
}

func insufficient(typ models.ReportType, missing ...Role) error {
	return cperrors.Newf(cperrors.CodeInsufficientData,
		"report %q requires columns that were not found: %s", typ, joinRoles(missing))
}

func joinRoles(roles []Role) string {
	s := ""
	for i, r := range roles {
		if i > 0 {
			s += ", "
		}
		s += string(r)
	}
	return s
}
