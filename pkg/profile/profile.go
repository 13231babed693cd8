// Package profile renders a bounded textual summary of a dataset for use as
// language-model context. Profile size is a function of column count, never
// row count, and identical datasets always yield byte-identical profiles.
package profile

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mobilityedgeai/chatplanilha/pkg/dataset"
	"github.com/mobilityedgeai/chatplanilha/pkg/models"
)

// SampleRows is how many leading rows are included as representative values.
const SampleRows = 5

// maxCellChars bounds each rendered sample cell so free-text columns cannot
// blow up the profile.
const maxCellChars = 40

// Build renders the dataset profile. All truncation is deterministic: top
// categorical values come pre-sorted from the stats, numeric statistics use
// fixed precision, and the sample is always the first rows in load order.
func Build(ds *dataset.Dataset) string {
	var b strings.Builder

	fmt.Fprintf(&b, "rows: %d\n", ds.RowCount())
	fmt.Fprintf(&b, "columns: %d\n\n", len(ds.Columns()))

	b.WriteString("COLUMNS:\n")
	for _, col := range ds.Columns() {
		fmt.Fprintf(&b, "- %q type=%s", col.Name, col.Type)
		describeStats(&b, col)
		b.WriteString("\n")
	}

	b.WriteString("\nSAMPLE (first rows):\n")
	writeSample(&b, ds)

	return b.String()
}

func describeStats(b *strings.Builder, col models.Column) {
	s := col.Stats
	if s.NullRatio > 0 {
		fmt.Fprintf(b, " null_ratio=%.2f", s.NullRatio)
	}
	if s.LowConfidence {
		b.WriteString(" low_confidence")
	}
	if s.Min != nil && s.Max != nil && s.Mean != nil {
		if col.Type == models.TypeInteger {
			fmt.Fprintf(b, " min=%.0f max=%.0f mean=%.2f", *s.Min, *s.Max, *s.Mean)
		} else {
			fmt.Fprintf(b, " min=%.2f max=%.2f mean=%.2f", *s.Min, *s.Max, *s.Mean)
		}
	}
	if s.DistinctCount > 0 {
		fmt.Fprintf(b, " distinct=%d", s.DistinctCount)
	}
	if len(s.TopValues) > 0 {
		vals := make([]string, 0, len(s.TopValues))
		for _, tv := range s.TopValues {
			vals = append(vals, fmt.Sprintf("%s(%d)", truncateCell(tv.Value), tv.Count))
		}
		fmt.Fprintf(b, " top=[%s]", strings.Join(vals, ", "))
	}
}

func writeSample(b *strings.Builder, ds *dataset.Dataset) {
	cols := ds.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	fmt.Fprintf(b, "%s\n", strings.Join(names, " | "))

	n := ds.RowCount()
	if n > SampleRows {
		n = SampleRows
	}
	for row := 0; row < n; row++ {
		cells := make([]string, len(cols))
		for col := range cols {
			cells[col] = truncateCell(ds.String(row, col))
		}
		fmt.Fprintf(b, "%s\n", strings.Join(cells, " | "))
	}
}

// truncateCell bounds a cell to maxCellChars runes. Cutting on runes rather
// than bytes keeps accented values valid UTF-8 after truncation.
func truncateCell(s string) string {
	if utf8.RuneCountInString(s) <= maxCellChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxCellChars]) + "…"
}
