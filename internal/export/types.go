// Package export renders record sets as CSV, Excel, iCalendar or a JSON
// snapshot and writes the result to a blob store.
package export

import (
	"psurops/internal/record"
)

// Format names accepted by Exporter.Export.
const (
	FormatCSV      = "csv"
	FormatXLSX     = "xlsx"
	FormatICS      = "ics"
	FormatSnapshot = "json"
)

// SnapshotVersion is bumped when the snapshot layout changes.
const SnapshotVersion = 1

// Snapshot is the JSON export document.
type Snapshot struct {
	Metadata SnapshotMetadata `json:"metadata"`
	Records  []*record.Record `json:"records"`
}

// SnapshotMetadata describes a snapshot.
type SnapshotMetadata struct {
	Version   int    `json:"version"`
	Generated string `json:"generated"` // RFC 3339
	Count     int    `json:"count"`
}

// Column is one exported column.
type Column struct {
	Field  string
	Header string
	Width  float64
}

// Columns lists the exported columns in field order. Headers match the
// workbook headers ingest reads, so an export can be reloaded as-is.
func Columns() []Column {
	var cols []Column
	for _, f := range record.Fields() {
		if f.Label == "" {
			continue
		}
		cols = append(cols, Column{Field: f.Name, Header: f.Label, Width: width(f)})
	}
	return cols
}

func width(f *record.Field) float64 {
	switch {
	case f.Kind == record.Log:
		return 60
	case f.Kind == record.Date || f.Kind == record.Derived:
		return 14
	case len(f.Label) > 18:
		return float64(len(f.Label)) + 2
	default:
		return 20
	}
}
