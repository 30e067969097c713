package blob

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"psurops/internal/config"
)

func TestSanitizeKey(t *testing.T) {
	good := map[string]string{
		"a.csv":         "a.csv",
		"exports/a.csv": "exports/a.csv",
		"x//y/./z.ics":  "x/y/z.ics",
	}
	for in, want := range good {
		if got, err := sanitizeKey(in); err != nil || got != want {
			t.Errorf("sanitizeKey(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "  ", "/etc/passwd", "..", "../up", "a/../../b", "a/.."} {
		if _, err := sanitizeKey(bad); err == nil {
			t.Errorf("sanitizeKey(%q) accepted", bad)
		}
	}
}

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	info, err := s.Put(ctx, "reports/psur_export.csv", strings.NewReader("a,b\n"), PutOptions{Metadata: map[string]string{"count": "1"}})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Size != 4 || info.ContentType != "text/csv" || len(info.ETag) != 64 {
		t.Errorf("info = %+v", info)
	}
	want := "file://" + filepath.ToSlash(filepath.Join(s.Root(), "reports", "psur_export.csv"))
	if info.URL != want {
		t.Errorf("url = %q, want %q", info.URL, want)
	}

	// Put replaces.
	if _, err := s.Put(ctx, "reports/psur_export.csv", strings.NewReader("c\n"), PutOptions{}); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	got, rc, err := s.Get(ctx, "reports/psur_export.csv")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "c\n" || got.Size != 2 {
		t.Errorf("Get() = %q (%+v)", body, got)
	}

	if _, err := s.Put(ctx, "due.ics", strings.NewReader("BEGIN:VCALENDAR"), PutOptions{}); err != nil {
		t.Fatal(err)
	}
	list, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Key != "due.ics" || list[1].Key != "reports/psur_export.csv" {
		t.Errorf("List() = %+v", list)
	}
	if list[0].ContentType != "text/calendar" {
		t.Errorf("ics content type = %q", list[0].ContentType)
	}
	if list, _ := s.List(ctx, "reports/"); len(list) != 1 {
		t.Errorf("List(reports/) = %d entries", len(list))
	}

	if ok, err := s.Delete(ctx, "due.ics"); !ok || err != nil {
		t.Errorf("Delete() = %v, %v", ok, err)
	}
	if ok, _ := s.Delete(ctx, "due.ics"); ok {
		t.Error("second Delete() reported true")
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "due.ics.meta")); !os.IsNotExist(err) {
		t.Error("meta sidecar left behind")
	}
	if _, _, err := s.Get(ctx, "due.ics"); !stderrors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) error = %v", err)
	}
}

func TestOpen(t *testing.T) {
	root := t.TempDir()
	s, err := Open(context.Background(), config.BlobConfig{Driver: "fs", Dir: "out"}, root)
	if err != nil {
		t.Fatalf("Open(fs) error = %v", err)
	}
	fs, ok := s.(*FSStore)
	if !ok || fs.Root() != filepath.Join(root, "out") {
		t.Fatalf("Open(fs) = %#v", s)
	}

	s, err = Open(context.Background(), config.BlobConfig{}, root)
	if err != nil || s.(*FSStore).Root() != filepath.Join(root, config.DirName, "exports") {
		t.Errorf("Open(default) = %v, %v", s, err)
	}

	if _, err := Open(context.Background(), config.BlobConfig{Driver: "gcs"}, root); err == nil {
		t.Error("unknown driver accepted")
	}
	if _, err := Open(context.Background(), config.BlobConfig{Driver: "s3"}, root); err == nil {
		t.Error("s3 without bucket accepted")
	}
}
