package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"psurops/internal/auth"
)

// run executes the CLI with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "-q"))
	err := cmd.Execute()
	return out.String(), err
}

// workspace creates a root with a SQLite-backed config.
func workspace(t *testing.T, extra string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, ".psurops")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	cfg := `{"version": 1, "storage": {"driver": "sqlite", "path": "schedule.db", "timeoutMs": 5000` + extra + `}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestCallAndStats(t *testing.T) {
	root := workspace(t, "")

	out, err := run(t, "", "call", "add_psur_item", `{"writer": "Jeff", "end_period": "2025-06-30", "status": "Drafting"}`, "--root", root)
	if err != nil {
		t.Fatalf("call add_psur_item: %v\n%s", err, out)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if resp["ok"] != true || resp["td_number"] != "TD001" {
		t.Errorf("response = %v", resp)
	}

	out, err = run(t, `{"row_id": "td 1"}`, "call", "get_report", "-", "--root", root)
	if err != nil || !strings.Contains(out, `"due_date": "2025-07-30"`) {
		t.Errorf("get_report from stdin = %v\n%s", err, out)
	}

	out, err = run(t, "", "call", "get_report", `{"row_id": "TD404"}`, "--root", root)
	if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") || !strings.Contains(out, `"code": "NOT_FOUND"`) {
		t.Errorf("missing report: err = %v\n%s", err, out)
	}

	out, err = run(t, "", "stats", "--root", root)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	for _, want := range []string{"Reports:        1", "Drafting", "Jeff"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "", "call", "get_report", "{not json", "--root", root); err == nil {
		t.Error("malformed arguments accepted")
	}
}

func TestImportAndExport(t *testing.T) {
	root := workspace(t, "")
	csvPath := filepath.Join(root, "schedule.csv")
	csv := "TD Number,Writer,End Period,Status\nTD010,Ana,2025-03-31,Assigned\nTD011,Bob,2025-09-30,Drafting\n"
	if err := os.WriteFile(csvPath, []byte(csv), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "", "import", csvPath, "--dry-run", "--root", root)
	if err != nil || !strings.Contains(out, "2 records (dry run") {
		t.Fatalf("dry run = %v\n%s", err, out)
	}
	out, err = run(t, "", "stats", "--json", "--root", root)
	if err != nil || !strings.Contains(out, `"total": 0`) {
		t.Errorf("dry run wrote records: %v\n%s", err, out)
	}

	out, err = run(t, "", "import", "schedule.csv", "--root", root)
	if err != nil || !strings.Contains(out, "Imported 2 records") {
		t.Fatalf("import = %v\n%s", err, out)
	}

	out, err = run(t, "", "export", "csv", "--filter", "writer=Ana", "--root", root)
	if err != nil || !strings.Contains(out, "Exported 1 records") {
		t.Fatalf("export = %v\n%s", err, out)
	}
	data, err := os.ReadFile(filepath.Join(root, ".psurops", "exports", "psur_export.csv"))
	if err != nil {
		t.Fatalf("export file: %v", err)
	}
	if !strings.Contains(string(data), "TD010") || strings.Contains(string(data), "TD011") {
		t.Errorf("export contents:\n%s", data)
	}

	if _, err := run(t, "", "export", "pdf", "--root", root); err == nil {
		t.Error("unknown export format accepted")
	}
}

func TestSeedFile(t *testing.T) {
	root := workspace(t, `, "seedFile": "seed.csv"`)
	seed := "TD Number,Writer\nTD001,Ana\nTD002,Bob\nTD002,Cy\n"
	if err := os.WriteFile(filepath.Join(root, "seed.csv"), []byte(seed), 0644); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "", "stats", "--root", root)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "Reports:        3") || !strings.Contains(out, "TD002") {
		t.Errorf("seeded stats:\n%s", out)
	}

	// The seed only applies to an empty store, and reload re-reads it.
	if _, err := run(t, "", "call", "delete_report", `{"row_id": "TD001"}`, "--root", root); err != nil {
		t.Fatal(err)
	}
	out, _ = run(t, "", "stats", "--json", "--root", root)
	if !strings.Contains(out, `"total": 2`) {
		t.Errorf("after delete:\n%s", out)
	}
	out, err = run(t, "", "call", "reload_from_source", "--root", root)
	if err != nil || !strings.Contains(out, `"loaded_count": 3`) {
		t.Errorf("reload = %v\n%s", err, out)
	}
}

func TestToolsCommand(t *testing.T) {
	out, err := run(t, "", "tools")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "* add_psur_item") || !strings.Contains(out, "  get_report") {
		t.Errorf("tools output:\n%s", out)
	}

	out, err = run(t, "", "tools", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var listed struct {
		Tools []struct {
			Name        string                 `json:"name"`
			InputSchema map[string]interface{} `json:"inputSchema"`
		} `json:"tools"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatal(err)
	}
	if listed.Count != len(listed.Tools) || listed.Count == 0 || listed.Tools[0].InputSchema == nil {
		t.Errorf("tools --json = %+v", listed)
	}
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, "", "token")
	if err != nil {
		t.Fatal(err)
	}
	var token, hash string
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, "Token: "); ok {
			token = v
		}
		if v, ok := strings.CutPrefix(line, "Hash:  "); ok {
			hash = v
		}
	}
	if !auth.IsValidTokenFormat(token) || !auth.VerifyToken(token, hash) {
		t.Errorf("token %q does not verify against %q", token, hash)
	}

	root := workspace(t, "")
	if _, err := run(t, "", "token", "--save", "--root", root); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, "", "config", "show", "--root", root)
	if err != nil || !strings.Contains(out, `"authTokenHash": "********"`) {
		t.Errorf("config show = %v\n%s", err, out)
	}

	if _, err := run(t, "", "token", "hash", "not-a-token"); err == nil {
		t.Error("hash accepted a malformed token")
	}
}

func TestConfigInit(t *testing.T) {
	root := t.TempDir()
	out, err := run(t, "", "config", "init", "--format", "yaml", "--root", root)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	path := filepath.Join(root, ".psurops", "config.yaml")
	if !strings.Contains(out, path) {
		t.Errorf("output = %s", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "", "config", "init", "--format", "yaml", "--root", root); err == nil {
		t.Error("existing config overwritten without --force")
	}
	if _, err := run(t, "", "config", "init", "--format", "ini", "--root", t.TempDir()); err == nil {
		t.Error("unsupported format accepted")
	}

	out, err = run(t, "", "config", "show", "--root", root)
	if err != nil || !strings.Contains(out, `"driver": "sqlite"`) {
		t.Errorf("config show = %v\n%s", err, out)
	}
}

func TestClassifyCommand(t *testing.T) {
	out, err := run(t, "", "classify", "when", "is", "td", "45", "due")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"intent": "GET_DUE_DATE"`) || !strings.Contains(out, `"td_number": "TD045"`) {
		t.Errorf("classify output:\n%s", out)
	}

	root := workspace(t, "")
	if _, err := run(t, "", "call", "add_psur_item", `{"td_number": "TD045", "writer": "Jeff"}`, "--root", root); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, "", "classify", "--execute", "--root", root, "who owns td 45")
	if err != nil || !strings.Contains(out, `"field_value": "Jeff"`) {
		t.Errorf("classify --execute = %v\n%s", err, out)
	}
	if _, err := run(t, "", "classify", "--execute", "xyzzy"); err == nil {
		t.Error("unknown intent executed")
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		stdin   string
		args    []string
		want    int
		wantErr bool
	}{
		{"none", "", nil, 0, false},
		{"inline", "", []string{`{"a": 1, "b": "x"}`}, 2, false},
		{"stdin", `{"a": 1}`, []string{"-"}, 1, false},
		{"blank stdin", "  \n", []string{"-"}, 0, false},
		{"array", "", []string{`[1, 2]`}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(strings.NewReader(tt.stdin), tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(got) != tt.want {
				t.Errorf("got %v", got)
			}
		})
	}
}
