package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"psurops/internal/errors"
	"psurops/internal/notify"
	"psurops/internal/record"
)

func TestArgsInt(t *testing.T) {
	a := Args{
		"float":  float64(12),
		"int64":  int64(7),
		"number": json.Number("30"),
		"text":   " 45 ",
		"blank":  "",
		"bad":    "ten",
		"obj":    map[string]interface{}{},
	}
	tests := []struct {
		key     string
		want    int
		wantErr bool
	}{
		{"float", 12, false},
		{"int64", 7, false},
		{"number", 30, false},
		{"text", 45, false},
		{"blank", 99, false},
		{"absent", 99, false},
		{"bad", 0, true},
		{"obj", 0, true},
	}
	for _, tt := range tests {
		got, err := a.Int(tt.key, 99)
		if (err != nil) != tt.wantErr {
			t.Errorf("Int(%s) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("Int(%s) = %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestArgsRequire(t *testing.T) {
	a := Args{"row_id": "TD001", "field_name": "  "}
	if err := a.Require("row_id"); err != nil {
		t.Fatalf("Require(row_id) = %v", err)
	}
	err := a.Require("row_id", "field_name", "field_value")
	if errors.CodeOf(err) != errors.ValidationError {
		t.Fatalf("Require() = %v", err)
	}
	resp := Respond(nil, err)
	if resp["error"] != "field_name and field_value required" {
		t.Errorf("message = %q", resp["error"])
	}
	details := resp["details"].(map[string]interface{})
	if !reflect.DeepEqual(details["missing"], []string{"field_name", "field_value"}) {
		t.Errorf("details = %v", details)
	}
}

func TestArgsStringsAndBool(t *testing.T) {
	a := Args{
		"list":   []interface{}{"writer", " ", "Due Date"},
		"csv":    "writer, status,",
		"yes":    "Yes",
		"truthy": true,
		"no":     "nope",
	}
	list, _ := a.Strings("list")
	if !reflect.DeepEqual(list, []string{"writer", "Due Date"}) {
		t.Errorf("Strings(list) = %v", list)
	}
	csv, _ := a.Strings("csv")
	if !reflect.DeepEqual(csv, []string{"writer", "status"}) {
		t.Errorf("Strings(csv) = %v", csv)
	}
	if _, err := (Args{"x": 3.0}).Strings("x"); err == nil {
		t.Error("Strings(number) succeeded")
	}
	if !a.Bool("yes") || !a.Bool("truthy") || a.Bool("no") || a.Bool("absent") {
		t.Error("Bool() mismatch")
	}
}

func TestParseCriteria(t *testing.T) {
	c, err := parseCriteria(map[string]interface{}{
		"Class":        "III",
		"owner":        "Jeff",
		"product_name": "Stent",
		"within_days":  "30",
		"overdue_only": "yes",
		"due_year":     float64(2025),
	})
	if err != nil {
		t.Fatalf("parseCriteria() = %v", err)
	}
	if c.Classification != "III" || c.Writer != "Jeff" || c.Product != "Stent" || !c.OverdueOnly || c.DueYear != 2025 {
		t.Errorf("criteria = %+v", c)
	}
	if c.WithinDays == nil || *c.WithinDays != 30 {
		t.Errorf("within_days = %v", c.WithinDays)
	}

	_, err = parseCriteria(map[string]interface{}{"colour": "red", "size": 1, "writer": "x"})
	if errors.CodeOf(err) != errors.ValidationError {
		t.Fatalf("unknown keys = %v", err)
	}
	if got := Respond(nil, err)["error"]; got != "unknown filter key(s): colour, size" {
		t.Errorf("message = %q", got)
	}
	if _, err := parseCriteria(map[string]interface{}{"within_days": -1}); err == nil {
		t.Error("negative within_days accepted")
	}
}

type fakeExporter struct {
	format string
	name   string
	count  int
	err    error
}

func (e *fakeExporter) Export(ctx context.Context, format string, rs []*record.Record, name string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.format, e.name, e.count = format, name, len(rs)
	return "file:///exports/" + name, nil
}

type fakeSource struct {
	rs  []*record.Record
	err error
}

func (s fakeSource) Load(ctx context.Context) ([]*record.Record, error) {
	return s.rs, s.err
}

func TestExportOperations(t *testing.T) {
	exp := &fakeExporter{}
	f := newFixture(t, nil, Options{Exporter: exp})
	f.add(map[string]interface{}{"writer": "Jeff", "end_period": "2025-06-01"})
	f.add(map[string]interface{}{"writer": "Ana", "end_period": "2025-12-01"})

	resp := f.mustCall("export_csv", map[string]interface{}{"filter": map[string]interface{}{"writer": "jeff"}})
	if resp["file_url"] != "file:///exports/psur_export.csv" || resp["count"] != 1 || exp.format != FormatCSV {
		t.Errorf("export_csv = %v", resp)
	}
	f.mustCall("export_calendar", map[string]interface{}{"filename": "due", "within_days": 30})
	if exp.name != "due.ics" || exp.count != 1 || exp.format != FormatICS {
		t.Errorf("export_calendar wrote %s (%d rows, %s)", exp.name, exp.count, exp.format)
	}
	f.mustCall("export_excel", nil)
	if exp.name != "psur_export.xlsx" || exp.count != 2 {
		t.Errorf("export_excel wrote %s (%d rows)", exp.name, exp.count)
	}

	if r := f.call("export_snapshot", map[string]interface{}{"filename": "../etc/passwd"}); r.Code() != errors.ValidationError {
		t.Errorf("path filename = %v", r)
	}
	exp.err = fmt.Errorf("bucket gone")
	if r := f.call("export_csv", nil); r.Code() != errors.BackendUnavailable {
		t.Errorf("exporter failure = %v", r)
	}

	unconfigured := newFixture(t, nil, Options{})
	if r := unconfigured.call("export_csv", nil); r.Code() != errors.InternalError {
		t.Errorf("no exporter = %v", r)
	}
}

func TestReloadFromSource(t *testing.T) {
	src := fakeSource{rs: []*record.Record{
		{Identifier: "TD010", PeriodEnd: "2025-01-01"},
		{Identifier: ""},
	}}
	f := newFixture(t, nil, Options{Source: src})
	f.add(map[string]interface{}{"td_number": "TD001"})

	resp := f.mustCall("reload_from_excel", nil)
	if resp["loaded_count"] != 2 {
		t.Errorf("loaded_count = %v", resp["loaded_count"])
	}
	if r := f.call("get_report", map[string]interface{}{"row_id": "TD001"}); r.Code() != errors.NotFound {
		t.Errorf("old row survived reload: %v", r)
	}
	got := recordOf(f.mustCall("get_report", map[string]interface{}{"row_id": "TD010"}))
	if got["due_date"] != "2025-01-31" {
		t.Errorf("reloaded due_date = %v", got["due_date"])
	}
	kinds := f.events.kinds()
	if kinds[len(kinds)-1] != notify.EventReload {
		t.Errorf("last event = %s", kinds[len(kinds)-1])
	}

	failing := newFixture(t, nil, Options{Source: fakeSource{err: fmt.Errorf("locked")}})
	if r := failing.call("reload_from_source", nil); r.Code() != errors.BackendUnavailable {
		t.Errorf("source failure = %v", r)
	}
	invalid := newFixture(t, nil, Options{Source: fakeSource{err: errors.NewValidationError("missing TD Number column")}})
	if r := invalid.call("reload_from_source", nil); r.Code() != errors.ValidationError {
		t.Errorf("source validation = %v", r)
	}
}
