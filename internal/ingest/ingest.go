// Package ingest reads the schedule workbook (xlsx or csv) and turns its rows
// into records for a full reload.
package ingest

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"psurops/internal/errors"
	"psurops/internal/record"
)

// ErrNoSheets is returned for a workbook without readable sheets.
var ErrNoSheets = stderrors.New("workbook has no readable sheets")

// Table is one parsed sheet. Raw maps headers to cell text.
type Table struct {
	Sheet   string
	Header  []string
	Raw     []map[string]string
	Columns ColumnMap
	// Date1904 is set for workbooks using the 1904 date system.
	Date1904 bool
}

// Missing lists mapped headers absent from the sheet.
func (t *Table) Missing() []string {
	have := make(map[string]bool, len(t.Header))
	for _, h := range t.Header {
		have[h] = true
	}
	var out []string
	for _, h := range t.Columns.Headers() {
		if !have[h] {
			out = append(out, h)
		}
	}
	return out
}

// Records canonicalizes every non-blank row.
func (t *Table) Records() []*record.Record {
	out := make([]*record.Record, 0, len(t.Raw))
	for _, raw := range t.Raw {
		if r := Canonicalize(raw, t.Columns, t.Date1904); r != nil {
			out = append(out, r)
		}
	}
	return out
}

// score counts how many mapped headers appear in header.
func score(header []string, cols ColumnMap) int {
	want := make(map[string]bool, len(cols))
	for _, h := range cols {
		want[h] = true
	}
	n := 0
	for _, h := range header {
		if want[strings.TrimSpace(h)] {
			n++
		}
	}
	return n
}

// ReadXLSX parses a workbook. With sheet set only that sheet is read;
// otherwise the sheet whose first row carries the most mapped headers wins,
// ties going to the earlier sheet.
func ReadXLSX(r io.Reader, cols ColumnMap, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.NewValidationError("failed to parse workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if sheet != "" {
		sheets = []string{sheet}
	}
	props, err := f.GetWorkbookProps()
	date1904 := err == nil && props.Date1904 != nil && *props.Date1904

	var best *Table
	bestScore := -1
	for _, name := range sheets {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			if sheet != "" {
				return nil, errors.NewValidationError("sheet %q: %v", sheet, err)
			}
			continue
		}
		if len(rows) == 0 {
			continue
		}
		if s := score(rows[0], cols); s > bestScore {
			best = newTable(name, rows, cols)
			bestScore = s
		}
	}
	if best == nil {
		return nil, ErrNoSheets
	}
	best.Date1904 = date1904
	return best, nil
}

// ReadCSV parses comma-separated text with a header row.
func ReadCSV(r io.Reader, cols ColumnMap) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.NewValidationError("failed to parse csv: %v", err)
	}
	if len(rows) == 0 {
		return nil, errors.NewValidationError("csv has no header row")
	}
	rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	return newTable("csv", rows, cols), nil
}

func newTable(sheet string, rows [][]string, cols ColumnMap) *Table {
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	t := &Table{Sheet: sheet, Header: header, Columns: cols}
	for _, row := range rows[1:] {
		raw := make(map[string]string, len(header))
		for i, h := range header {
			if h == "" || i >= len(row) {
				continue
			}
			raw[h] = row[i]
		}
		t.Raw = append(t.Raw, raw)
	}
	return t
}

// Canonicalize converts one raw row into a record using cols. Date cells may
// hold spreadsheet serial numbers. The due date column is ignored since the
// due date is always derived. A row with no mapped values yields nil.
func Canonicalize(raw map[string]string, cols ColumnMap, date1904 bool) *record.Record {
	r := &record.Record{}
	values := map[string]interface{}{}
	for name, header := range cols {
		v := strings.TrimSpace(raw[header])
		if v == "" {
			continue
		}
		f, ok := record.Lookup(name)
		if !ok {
			continue
		}
		switch {
		case f.Name == "identifier":
			r.Identifier = record.NormalizeIdentifier(v)
		case f.Name == "notes":
			r.Notes = v
		case f.Kind == record.Date:
			values[f.Name] = serialDate(v, date1904)
		case f.Writable():
			values[f.Name] = v
		}
	}
	if r.Identifier == "" && r.Notes == "" && len(values) == 0 {
		return nil
	}
	if patch, err := record.ParsePatch(values); err == nil {
		patch.Apply(r)
	}
	return r
}

// serialDate converts an Excel serial day number to a date string and
// leaves any other text alone.
func serialDate(v string, date1904 bool) string {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 {
		return v
	}
	t, err := excelize.ExcelDateToTime(n, date1904)
	if err != nil {
		return v
	}
	return record.FormatDate(t)
}

// readByExt picks the parser by file extension.
func readByExt(name string, r io.Reader, cols ColumnMap, sheet string) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".xlsx", ".xlsm":
		return ReadXLSX(r, cols, sheet)
	case ".csv":
		return ReadCSV(r, cols)
	default:
		return nil, errors.NewValidationError("unsupported source format %q (want .xlsx or .csv)", ext)
	}
}

// Describe summarizes a table for logs and CLI output.
func (t *Table) Describe() string {
	return fmt.Sprintf("sheet %q: %d rows, %d/%d mapped headers", t.Sheet, len(t.Raw), len(t.Columns)-len(t.Missing()), len(t.Columns))
}
