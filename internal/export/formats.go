package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"

	"psurops/internal/record"
)

const sheetName = "PSUR Schedule"

func row(r *record.Record, cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i], _ = r.Get(c.Field)
	}
	return out
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, rs []*record.Record) error {
	cols := Columns()
	cw := csv.NewWriter(w)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Header
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rs {
		if err := cw.Write(row(r, cols)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a single-sheet workbook with a styled, frozen header row.
func WriteXLSX(w io.Writer, rs []*record.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	cols := Columns()
	header := make([]interface{}, len(cols))
	for i, c := range cols {
		header[i] = c.Header
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, name, name, c.Width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(cols), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	for i, r := range rs {
		values := row(r, cols)
		cells := make([]interface{}, len(values))
		for j, v := range values {
			cells[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if len(rs) > 0 {
		end, _ := excelize.CoordinatesToCellName(len(cols), len(rs)+1)
		if err := f.AutoFilter(sheetName, "A1:"+end, nil); err != nil {
			return fmt.Errorf("failed to add filter: %w", err)
		}
	}
	_, err = f.WriteTo(w)
	return err
}

// WriteICS writes one all-day event per record on its due date. Records
// without a due date are placed on today's date. Repeated identifiers get
// the row id folded into their UID so calendar clients keep both events.
func WriteICS(w io.Writer, rs []*record.Record, now time.Time) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//PSUR OPS//Schedule//EN")
	cal.SetName("PSUR Schedule")

	seen := map[string]bool{}
	for _, r := range rs {
		due, ok := r.Due()
		if !ok {
			due = record.Today(now)
		}
		uid := r.Identifier + "@psur-ops"
		if seen[uid] {
			uid = fmt.Sprintf("%s-%d@psur-ops", r.Identifier, r.RowID)
		}
		seen[uid] = true

		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(now.UTC())
		ev.SetAllDayStartAt(due)
		ev.SetAllDayEndAt(due.AddDate(0, 0, 1))
		ev.SetSummary(strings.TrimSpace(r.Identifier + " " + r.ProductName))
		ev.SetDescription(describe(r))
	}
	_, err := io.WriteString(w, cal.Serialize())
	return err
}

func describe(r *record.Record) string {
	var b strings.Builder
	for _, kv := range [][2]string{
		{"PSUR", r.ReportNumber},
		{"Class", r.Classification},
		{"Writer", r.Writer},
		{"Status", r.Status},
		{"End Period", r.PeriodEnd},
	} {
		if kv[1] == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(kv[0] + ": " + kv[1])
	}
	return b.String()
}

// WriteSnapshot writes the records as an indented JSON document.
func WriteSnapshot(w io.Writer, rs []*record.Record, now time.Time) error {
	if rs == nil {
		rs = []*record.Record{}
	}
	snap := Snapshot{
		Metadata: SnapshotMetadata{
			Version:   SnapshotVersion,
			Generated: now.UTC().Format(time.RFC3339),
			Count:     len(rs),
		},
		Records: rs,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// ReadSnapshot parses a document written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Metadata.Version > SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d is newer than supported %d", snap.Metadata.Version, SnapshotVersion)
	}
	return &snap, nil
}

// Render produces the bytes for format.
func Render(format string, rs []*record.Record, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatCSV:
		err = WriteCSV(&buf, rs)
	case FormatXLSX:
		err = WriteXLSX(&buf, rs)
	case FormatICS:
		err = WriteICS(&buf, rs, now)
	case FormatSnapshot:
		err = WriteSnapshot(&buf, rs, now)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
