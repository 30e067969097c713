// Package projection holds the single, stateless implementation of record
// matching, ordering and due-date windows. The store, statistics, exports and
// reporting views all go through it so they cannot disagree.
package projection

import (
	"sort"
	"strings"
	"time"

	"psurops/internal/record"
)

// Criteria selects records. Zero values mean "no constraint"; textual
// criteria match case-insensitively as substrings.
type Criteria struct {
	Writer         string `json:"writer,omitempty"`
	Classification string `json:"classification,omitempty"`
	Status         string `json:"status,omitempty"`
	ReportType     string `json:"report_type,omitempty"`
	Product        string `json:"product,omitempty"`
	WithinDays     *int   `json:"within_days,omitempty"`
	OverdueOnly    bool   `json:"overdue_only,omitempty"`
	DueYear        int    `json:"due_year,omitempty"`
}

// IsZero reports whether the criteria select everything.
func (c Criteria) IsZero() bool {
	return c.Writer == "" && c.Classification == "" && c.Status == "" && c.ReportType == "" &&
		c.Product == "" && c.WithinDays == nil && !c.OverdueOnly && c.DueYear == 0
}

// Days is a convenience for building a WithinDays pointer.
func Days(n int) *int {
	return &n
}

// SearchFields are the attributes Search matches against.
var SearchFields = []string{"identifier", "report_number", "product_name", "catalog_number", "writer", "classification", "status"}

// Less orders by due date ascending with absent dates last, then identifier,
// then insertion order.
func Less(a, b *record.Record) bool {
	da, okA := a.Due()
	db, okB := b.Due()
	switch {
	case okA && !okB:
		return true
	case !okA && okB:
		return false
	case okA && okB && !da.Equal(db):
		return da.Before(db)
	}
	if a.Identifier != b.Identifier {
		return a.Identifier < b.Identifier
	}
	return a.RowID < b.RowID
}

// Sort orders records in place using Less.
func Sort(rs []*record.Record) {
	sort.SliceStable(rs, func(i, j int) bool { return Less(rs[i], rs[j]) })
}

// IsOverdue reports a due date strictly before today. Absent dates are never overdue.
func IsOverdue(r *record.Record, today time.Time) bool {
	due, ok := r.Due()
	return ok && due.Before(record.Today(today))
}

// InWindow reports today <= due <= today+days. Absent dates are excluded.
func InWindow(r *record.Record, today time.Time, days int) bool {
	due, ok := r.Due()
	if !ok {
		return false
	}
	start := record.Today(today)
	end := start.AddDate(0, 0, days)
	return !due.Before(start) && !due.After(end)
}

// Match applies c to r as of now.
func Match(r *record.Record, c Criteria, now time.Time) bool {
	if !contains(r.Writer, c.Writer) || !contains(r.Classification, c.Classification) ||
		!contains(r.Status, c.Status) || !contains(r.ReportType, c.ReportType) ||
		!contains(r.ProductName, c.Product) {
		return false
	}
	if c.OverdueOnly && !IsOverdue(r, now) {
		return false
	}
	if c.WithinDays != nil && !InWindow(r, now, *c.WithinDays) {
		return false
	}
	if c.DueYear != 0 {
		due, ok := r.Due()
		if !ok || due.Year() != c.DueYear {
			return false
		}
	}
	return true
}

// Apply returns the matching records in projection order. The input slice is
// not modified.
func Apply(rs []*record.Record, c Criteria, now time.Time) []*record.Record {
	out := make([]*record.Record, 0, len(rs))
	for _, r := range rs {
		if Match(r, c, now) {
			out = append(out, r)
		}
	}
	Sort(out)
	return out
}

// Search matches text case-insensitively against SearchFields. Results are
// ordered by identifier then insertion order and truncated to limit (<= 0
// means unlimited).
func Search(rs []*record.Record, text string, limit int) []*record.Record {
	needle := strings.ToLower(strings.TrimSpace(text))
	var out []*record.Record
	for _, r := range rs {
		if needle == "" || searchHit(r, needle) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Identifier != out[j].Identifier {
			return out[i].Identifier < out[j].Identifier
		}
		return out[i].RowID < out[j].RowID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func searchHit(r *record.Record, needle string) bool {
	for _, f := range SearchFields {
		v, _ := r.Get(f)
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

// ForYear returns the records due in year in projection order. Undated
// records belong to the current year's schedule.
func ForYear(rs []*record.Record, year int, now time.Time) []*record.Record {
	out := make([]*record.Record, 0, len(rs))
	for _, r := range rs {
		due, ok := r.Due()
		if ok && due.Year() == year || !ok && year == record.Today(now).Year() {
			out = append(out, r)
		}
	}
	Sort(out)
	return out
}

// Page slices rs by offset and limit (limit <= 0 means the rest).
func Page(rs []*record.Record, offset, limit int) []*record.Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rs) {
		return []*record.Record{}
	}
	rs = rs[offset:]
	if limit > 0 && len(rs) > limit {
		rs = rs[:limit]
	}
	return rs
}

// Missing reports records where any of fields is blank after trimming, in
// input order.
func Missing(rs []*record.Record, fields []string) []MissingEntry {
	var out []MissingEntry
	for _, r := range rs {
		var blank []string
		for _, f := range fields {
			v, _ := r.Get(f)
			if strings.TrimSpace(v) == "" {
				blank = append(blank, f)
			}
		}
		if len(blank) > 0 {
			out = append(out, MissingEntry{Record: r, Fields: blank})
		}
	}
	return out
}

// MissingEntry pairs a record with the fields it lacks.
type MissingEntry struct {
	Record *record.Record
	Fields []string
}

// Stats is the aggregate view over a record set.
type Stats struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"counts_by_status"`
	ByClass     map[string]int `json:"counts_by_classification"`
	ByWriter    map[string]int `json:"counts_by_writer"`
	Overdue     int            `json:"overdue_count"`
	DueWithin30 int            `json:"due_within_30_days_count"`
	MissingDue  int            `json:"missing_due_count"`
	Duplicates  []string       `json:"duplicate_identifiers"`
}

// Summarize computes Stats. Blank status and class count as "Unknown",
// blank writer as "Unassigned".
func Summarize(rs []*record.Record, now time.Time) Stats {
	s := Stats{
		Total:      len(rs),
		ByStatus:   map[string]int{},
		ByClass:    map[string]int{},
		ByWriter:   map[string]int{},
		Duplicates: Duplicates(rs),
	}
	for _, r := range rs {
		s.ByStatus[orDefault(r.Status, "Unknown")]++
		s.ByClass[orDefault(r.Classification, "Unknown")]++
		s.ByWriter[orDefault(r.Writer, "Unassigned")]++
		if IsOverdue(r, now) {
			s.Overdue++
		}
		if InWindow(r, now, 30) {
			s.DueWithin30++
		}
		if _, ok := r.Due(); !ok {
			s.MissingDue++
		}
	}
	return s
}

// Duplicates returns identifiers held by more than one record, sorted.
func Duplicates(rs []*record.Record) []string {
	counts := map[string]int{}
	for _, r := range rs {
		if r.Identifier != "" {
			counts[r.Identifier]++
		}
	}
	dups := []string{}
	for id, n := range counts {
		if n > 1 {
			dups = append(dups, id)
		}
	}
	sort.Strings(dups)
	return dups
}

func contains(value, filter string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(filter))
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
