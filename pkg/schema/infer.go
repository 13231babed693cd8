// Package schema derives column names, types, and summary statistics from
// raw spreadsheet rows. Types are inferred once at ingestion and never
// re-inferred per query.
package schema

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	arrowmem "github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/mobilityedgeai/chatplanilha/pkg/dataset"
	"github.com/mobilityedgeai/chatplanilha/pkg/errors"
	"github.com/mobilityedgeai/chatplanilha/pkg/infrastructure/memory"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
)

// Options controls type inference.
type Options struct {
	// CategoricalThreshold is the maximum distinct count for a text column
	// to be classified as categorical.
	CategoricalThreshold int
	// TopValues is how many most-frequent values to keep per categorical column.
	TopValues int
	// LowConfidenceNullRatio flags columns whose null ratio exceeds it.
	LowConfidenceNullRatio float64
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		CategoricalThreshold:   100,
		TopValues:              10,
		LowConfidenceNullRatio: 0.9,
	}
}

// Infer builds a finalized Dataset from header labels and raw rows.
// It fails with a schema error when headers are missing or duplicated, or
// when the sheet has no data rows.
func Infer(headers []string, rows [][]string, opts Options) (*dataset.Dataset, error) {
	if opts.CategoricalThreshold <= 0 {
		opts = DefaultOptions()
	}

	if len(headers) == 0 {
		return nil, errors.ErrMissingHeaders
	}
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, errors.ErrMissingHeaders.WithDetail("reason", "blank header label")
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, errors.ErrDuplicateHeader.WithDetail("header", name)
		}
		seen[key] = true
	}
	if len(rows) == 0 {
		return nil, errors.ErrEmptySheet
	}

	columns := make([]models.Column, len(headers))
	arrays := make([]arrow.Array, len(headers))
	alloc := memory.Default()

	for i, h := range headers {
		colType := inferColumnType(rows, i, opts)
		arr, stats := buildColumn(alloc, rows, i, colType, opts)
		columns[i] = models.Column{
			Name:  strings.TrimSpace(h),
			Type:  colType,
			Stats: stats,
		}
		arrays[i] = arr
	}

	return dataset.New(columns, arrays, len(rows)), nil
}

// inferColumnType scans every value in a column and settles on the narrowest
// compatible type, in priority order boolean, integer, float, date,
// categorical, text. A single unparseable non-null value downgrades the
// column to the next broader type.
func inferColumnType(rows [][]string, col int, opts Options) models.ColumnType {
	boolOK, intOK, floatOK, dateOK := true, true, true, true
	distinct := make(map[string]struct{})
	nonNull := 0

	for _, row := range rows {
		raw := cellAt(row, col)
		if isNullToken(raw) {
			continue
		}
		nonNull++
		distinct[raw] = struct{}{}

		if boolOK {
			if _, ok := parseBool(raw); !ok {
				boolOK = false
			}
		}
		if intOK {
			if _, ok := parseInt(raw); !ok {
				intOK = false
			}
		}
		if floatOK {
			if _, ok := parseFloat(raw); !ok {
				floatOK = false
			}
		}
		if dateOK {
			if _, ok := parseDate(raw); !ok {
				dateOK = false
			}
		}
		if !boolOK && !intOK && !floatOK && !dateOK && len(distinct) > opts.CategoricalThreshold {
			return models.TypeText
		}
	}

	if nonNull == 0 {
		// All-null columns carry no type signal; keep them as text so they
		// remain referenceable.
		return models.TypeText
	}

	switch {
	case boolOK:
		return models.TypeBoolean
	case intOK:
		return models.TypeInteger
	case floatOK:
		return models.TypeFloat
	case dateOK:
		return models.TypeDate
	case len(distinct) <= opts.CategoricalThreshold:
		return models.TypeCategorical
	default:
		return models.TypeText
	}
}

// buildColumn materializes one column as an Arrow array and computes its
// statistics in the same pass over the finalized type.
func buildColumn(alloc arrowmem.Allocator, rows [][]string, col int, colType models.ColumnType, opts Options) (arrow.Array, models.ColumnStats) {
	var stats models.ColumnStats
	nulls := 0

	var sum float64
	var min, max float64
	numerics := 0
	counts := make(map[string]int)

	appendNumeric := func(v float64) {
		if numerics == 0 || v < min {
			min = v
		}
		if numerics == 0 || v > max {
			max = v
		}
		sum += v
		numerics++
	}

	var arr arrow.Array

	switch colType {
	case models.TypeBoolean:
		b := array.NewBooleanBuilder(alloc)
		defer b.Release()
		for _, row := range rows {
			raw := cellAt(row, col)
			v, ok := parseBool(raw)
			if isNullToken(raw) || !ok {
				b.AppendNull()
				nulls++
				continue
			}
			b.Append(v)
		}
		arr = b.NewArray()

	case models.TypeInteger:
		b := array.NewInt64Builder(alloc)
		defer b.Release()
		for _, row := range rows {
			raw := cellAt(row, col)
			v, ok := parseInt(raw)
			if isNullToken(raw) || !ok {
				b.AppendNull()
				nulls++
				continue
			}
			b.Append(v)
			appendNumeric(float64(v))
		}
		arr = b.NewArray()

	case models.TypeFloat:
		b := array.NewFloat64Builder(alloc)
		defer b.Release()
		for _, row := range rows {
			raw := cellAt(row, col)
			v, ok := parseFloat(raw)
			if isNullToken(raw) || !ok {
				b.AppendNull()
				nulls++
				continue
			}
			b.Append(v)
			appendNumeric(v)
		}
		arr = b.NewArray()

	case models.TypeDate:
		b := array.NewTimestampBuilder(alloc, &arrow.TimestampType{Unit: arrow.Millisecond})
		defer b.Release()
		for _, row := range rows {
			raw := cellAt(row, col)
			v, ok := parseDate(raw)
			if isNullToken(raw) || !ok {
				b.AppendNull()
				nulls++
				continue
			}
			b.Append(arrow.Timestamp(v.UnixMilli()))
		}
		arr = b.NewArray()

	default: // categorical and text
		b := array.NewStringBuilder(alloc)
		defer b.Release()
		for _, row := range rows {
			raw := cellAt(row, col)
			if isNullToken(raw) {
				b.AppendNull()
				nulls++
				continue
			}
			b.Append(raw)
			counts[raw]++
		}
		arr = b.NewArray()
	}

	total := len(rows)
	if total > 0 {
		stats.NullRatio = float64(nulls) / float64(total)
	}
	stats.LowConfidence = stats.NullRatio > opts.LowConfidenceNullRatio

	if numerics > 0 {
		mn, mx, mean := min, max, sum/float64(numerics)
		stats.Min = &mn
		stats.Max = &mx
		stats.Mean = &mean
	}

	if colType == models.TypeCategorical || colType == models.TypeText {
		stats.DistinctCount = len(counts)
		stats.TopValues = topValues(counts, opts.TopValues)
	}

	return arr, stats
}

// topValues returns the most frequent values, ordered by count descending
// with value ascending as the deterministic tie-break.
func topValues(counts map[string]int, n int) []models.ValueCount {
	if len(counts) == 0 {
		return nil
	}
	out := make([]models.ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, models.ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func cellAt(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func isNullToken(s string) bool {
	switch strings.ToLower(s) {
	case "", "null", "n/a", "na", "-", "nan":
		return true
	}
	return false
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "yes", "sim":
		return true, true
	case "false", "no", "nao", "não":
		return false, true
	}
	return false, false
}

// thousandsPattern matches numbers whose commas all sit in thousands
// positions, e.g. "1,234" or "12,345.67". A comma anywhere else is a decimal
// comma, and the value must stay non-numeric so the column downgrades to
// text instead of silently shifting magnitude.
var thousandsPattern = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)

func stripThousands(s string) (string, bool) {
	if !strings.Contains(s, ",") {
		return s, true
	}
	if !thousandsPattern.MatchString(s) {
		return "", false
	}
	return strings.ReplaceAll(s, ",", ""), true
}

func parseInt(s string) (int64, bool) {
	s, ok := stripThousands(s)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseFloat(s string) (float64, bool) {
	for _, prefix := range []string{"R$", "$", "€", "£"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimSpace(s)
	s, ok := stripThousands(s)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"02/01/2006 15:04",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseNumericValue parses a literal the way numeric cells are parsed at
// ingestion, so filter literals and stored values agree.
func ParseNumericValue(s string) (float64, bool) {
	return parseFloat(strings.TrimSpace(s))
}

// ParseDateValue parses a literal with the same layouts accepted at ingestion.
func ParseDateValue(s string) (time.Time, bool) {
	return parseDate(strings.TrimSpace(s))
}
