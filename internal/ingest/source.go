package ingest

import (
	"context"
	"log/slog"
	"os"

	"psurops/internal/errors"
	"psurops/internal/record"
	"psurops/internal/slogutil"
)

// FileSource loads records from a workbook on disk. It satisfies
// dispatch.Source, so reload_from_source re-reads the file on every call.
type FileSource struct {
	Path    string
	Columns ColumnMap
	Sheet   string
	Logger  *slog.Logger
}

// NewFileSource builds a source for path. A non-empty columnsFile overrides
// the default header mapping; its sheet setting applies unless sheet is set.
func NewFileSource(path, columnsFile, sheet string, logger *slog.Logger) (*FileSource, error) {
	cols := DefaultColumns()
	if columnsFile != "" {
		var fileSheet string
		var err error
		cols, fileSheet, err = LoadColumnMap(columnsFile)
		if err != nil {
			return nil, err
		}
		if sheet == "" {
			sheet = fileSheet
		}
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &FileSource{Path: path, Columns: cols, Sheet: sheet, Logger: logger}, nil
}

// Read parses the file into a table.
func (s *FileSource) Read(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Path == "" {
		return nil, errors.NewValidationError("no source file configured")
	}
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewValidationError("source file %s does not exist", s.Path)
		}
		return nil, err
	}
	defer f.Close()

	t, err := readByExt(s.Path, f, s.Columns, s.Sheet)
	if err != nil {
		return nil, err
	}
	if missing := t.Missing(); len(missing) > 0 {
		s.Logger.Warn("source is missing mapped headers", "path", s.Path, "sheet", t.Sheet, "missing", missing)
	}
	s.Logger.Info("read source", "path", s.Path, "summary", t.Describe())
	return t, nil
}

// Load implements dispatch.Source.
func (s *FileSource) Load(ctx context.Context) ([]*record.Record, error) {
	t, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	return t.Records(), nil
}
