package ingest

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"psurops/internal/record"
)

// ColumnMap maps canonical field names to the exact sheet headers that carry
// them.
type ColumnMap map[string]string

// DefaultColumns maps every labelled field to its spreadsheet header.
func DefaultColumns() ColumnMap {
	cols := ColumnMap{}
	for _, f := range record.Fields() {
		if f.Label != "" {
			cols[f.Name] = f.Label
		}
	}
	return cols
}

// Headers returns the mapped headers in canonical-name order.
func (c ColumnMap) Headers() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = c[name]
	}
	return out
}

// Clone copies the map.
func (c ColumnMap) Clone() ColumnMap {
	out := make(ColumnMap, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

type columnsFile struct {
	Sheet   string            `toml:"sheet"`
	Columns map[string]string `toml:"columns"`
}

// LoadColumnMap reads a TOML file of the form
//
//	sheet = "Schedule"
//	[columns]
//	identifier = "TD #"
//	writer = "Owner"
//
// and merges it over DefaultColumns. Keys may be canonical names or aliases.
// It also returns the preferred sheet, if any.
func LoadColumnMap(path string) (ColumnMap, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var f columnsFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parse column map %s: %w", path, err)
	}
	cols := DefaultColumns()
	for key, header := range f.Columns {
		field, ok := record.Lookup(key)
		if !ok || field.Label == "" {
			return nil, "", fmt.Errorf("column map %s: unknown field %q", path, key)
		}
		header = strings.TrimSpace(header)
		if header == "" {
			delete(cols, field.Name)
			continue
		}
		cols[field.Name] = header
	}
	return cols, strings.TrimSpace(f.Sheet), nil
}
