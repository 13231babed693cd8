// Package ingest parses uploaded spreadsheet bytes into header labels and
// raw rows for schema inference. Only the first sheet of a workbook is read,
// matching the original upload behavior.
package ingest

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/mobilityedgeai/chatplanilha/pkg/errors"
)

// Format is the declared spreadsheet format of an upload.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// DetectFormat derives the upload format from the file name extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	}
	return "", errors.Newf(errors.CodeInvalidRequest, "unsupported file type %q, expected .xlsx or .xls", filepath.Ext(filename))
}

// Parse decodes raw spreadsheet bytes into headers and data rows.
// The header row is the first non-empty row of the first sheet.
func Parse(raw []byte, format Format) ([]string, [][]string, error) {
	switch format {
	case FormatXLSX:
		return parseXLSX(raw)
	case FormatXLS:
		return parseXLS(raw)
	default:
		return nil, nil, errors.Newf(errors.CodeInvalidRequest, "unsupported format %q", format)
	}
}

func parseXLSX(raw []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeSchemaError, "failed to open xlsx workbook")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.ErrMissingHeaders.WithDetail("reason", "workbook has no sheets")
	}

	iter, err := f.Rows(sheets[0])
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.CodeSchemaError, "failed to read sheet %s", sheets[0])
	}
	defer func() { _ = iter.Close() }()

	var headers []string
	var rows [][]string
	for iter.Next() {
		row, err := iter.Columns()
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.CodeSchemaError, "failed to read row")
		}
		if headers == nil {
			if isEmptyRow(row) {
				continue // leading blank rows before the header
			}
			headers = row
			continue
		}
		if isEmptyRow(row) {
			continue
		}
		rows = append(rows, row)
	}
	if err := iter.Error(); err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeSchemaError, "failed while iterating rows")
	}
	if headers == nil {
		return nil, nil, errors.ErrMissingHeaders
	}
	return headers, rows, nil
}

func parseXLS(raw []byte) ([]string, [][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(raw), "utf-8")
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeSchemaError, "failed to open xls workbook")
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, nil, errors.ErrMissingHeaders.WithDetail("reason", "workbook has no sheets")
	}

	var headers []string
	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		r := sheet.Row(i)
		if r == nil {
			continue
		}
		row := make([]string, 0, r.LastCol()+1)
		for j := 0; j <= r.LastCol(); j++ {
			row = append(row, r.Col(j))
		}
		if headers == nil {
			if isEmptyRow(row) {
				continue
			}
			headers = row
			continue
		}
		if isEmptyRow(row) {
			continue
		}
		rows = append(rows, row)
	}
	if headers == nil {
		return nil, nil, errors.ErrMissingHeaders
	}
	return headers, rows, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
