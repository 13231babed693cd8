// Package models contains the data structures shared across the core.
package models

import "time"

// ColumnType is the inferred type of a dataset column, fixed at ingestion.
type ColumnType string

const (
	TypeBoolean     ColumnType = "boolean"
	TypeInteger     ColumnType = "integer"
	TypeFloat       ColumnType = "float"
	TypeDate        ColumnType = "date"
	TypeCategorical ColumnType = "categorical"
	TypeText        ColumnType = "text"
)

// IsNumeric reports whether the type supports numeric aggregation.
func (t ColumnType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// ValueCount is one categorical value with its occurrence count.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ColumnStats holds per-column summary statistics, recomputed wholesale on
// load and never mutated afterwards.
type ColumnStats struct {
	NullRatio     float64      `json:"null_ratio"`
	Min           *float64     `json:"min,omitempty"`
	Max           *float64     `json:"max,omitempty"`
	Mean          *float64     `json:"mean,omitempty"`
	DistinctCount int          `json:"distinct_count,omitempty"`
	TopValues     []ValueCount `json:"top_values,omitempty"`
	// LowConfidence marks columns with more than 90% null values. They are
	// retained so the resolver can still reference them if asked.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// Column describes one dataset column.
type Column struct {
	Name  string      `json:"name"`
	Type  ColumnType  `json:"type"`
	Stats ColumnStats `json:"stats"`
}

// DatasetSummary is returned to the upload handler after a successful ingest.
type DatasetSummary struct {
	SessionID string    `json:"session_id"`
	RowCount  int       `json:"row_count"`
	Columns   []Column  `json:"columns"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// Filter operators understood by the execution engine.
const (
	OpEq       = "eq"
	OpNeq      = "neq"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpContains = "contains"
)

// Aggregation operators understood by the execution engine.
const (
	AggCount = "count"
	AggSum   = "sum"
	AggAvg   = "avg"
	AggMin   = "min"
	AggMax   = "max"
)

// Filter is a single predicate over one column.
type Filter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Aggregation applies an operator to a column within each group. Column may
// be empty for count, which then counts rows.
type Aggregation struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Alias    string `json:"alias,omitempty"`
}

// SortSpec orders the result by one output column.
type SortSpec struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending"`
}

// QueryPlan is the validated, executable representation of a question.
// Produced by the resolver, consumed only by the engine, immutable once built.
// Execution order is fixed: filter, group/aggregate, sort, limit.
type QueryPlan struct {
	Filters      []Filter      `json:"filters,omitempty"`
	GroupBy      []string      `json:"group_by,omitempty"`
	Aggregations []Aggregation `json:"aggregations,omitempty"`
	Sort         *SortSpec     `json:"sort,omitempty"`
	Limit        int           `json:"limit,omitempty"`
}

// ExecutionResult is the bounded output of running a plan. Rows hold typed Go
// values (int64, float64, string, bool, time.Time) or nil for null cells.
type ExecutionResult struct {
	Columns      []string        `json:"columns"`
	Rows         [][]interface{} `json:"rows"`
	TotalMatched int             `json:"total_matched"`
	Truncated    bool            `json:"truncated"`
}

// Answer is the final response to one question: prose framing from the
// language model plus the execution result embedded verbatim.
type Answer struct {
	Text   string           `json:"text"`
	Result *ExecutionResult `json:"result,omitempty"`
	Failed bool             `json:"failed,omitempty"`
}

// HistoryEntry is one (question, answer) pair in a session's append-only history.
type HistoryEntry struct {
	Question string    `json:"question"`
	Answer   Answer    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}

// ReportType identifies one of the canonical report layouts.
type ReportType string

const (
	ReportGeneral ReportType = "general"
	ReportDriver  ReportType = "driver"
	ReportTrip    ReportType = "trip"
	ReportScores  ReportType = "scores"
)

// NamedTable is one table inside an assembled report.
type NamedTable struct {
	Name   string          `json:"name"`
	Result ExecutionResult `json:"result"`
}

// ReportTables is the structured output of report assembly. An external
// renderer turns it into PDF or Excel bytes; the core never renders.
type ReportTables struct {
	Type        ReportType   `json:"type"`
	PlanVersion int          `json:"plan_version"`
	Tables      []NamedTable `json:"tables"`
	GeneratedAt time.Time    `json:"generated_at"`
}
