// Package record defines the report-cycle record, its closed field set and the
// due-date derivation every read and write funnels through.
package record

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DueOffset is the gap between the end of a reporting period and the date
// the report is due.
const DueOffset = 30 * 24 * time.Hour

// IdentifierPrefix is used for generated identifiers (TD001, TD002, ...).
const IdentifierPrefix = "TD"

// Record is one report cycle. Identifier is deliberately not unique; RowID is
// the backend's insertion sequence and disambiguates duplicates.
type Record struct {
	RowID          int64             `json:"row_id"`
	Identifier     string            `json:"identifier"`
	ReportNumber   string            `json:"report_number,omitempty"`
	Classification string            `json:"classification,omitempty"`
	ReportType     string            `json:"report_type,omitempty"`
	ProductName    string            `json:"product_name,omitempty"`
	CatalogNumber  string            `json:"catalog_number,omitempty"`
	Writer         string            `json:"writer,omitempty"`
	Contact        string            `json:"contact,omitempty"`
	PeriodStart    string            `json:"period_start,omitempty"`
	PeriodEnd      string            `json:"period_end,omitempty"`
	Cadence        string            `json:"cadence,omitempty"`
	DueDate        string            `json:"due_date,omitempty"`
	Status         string            `json:"status,omitempty"`
	SecondaryFlags map[string]string `json:"secondary_flags,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.SecondaryFlags != nil {
		c.SecondaryFlags = make(map[string]string, len(r.SecondaryFlags))
		for k, v := range r.SecondaryFlags {
			c.SecondaryFlags[k] = v
		}
	}
	return &c
}

// DerivedDue returns the due date implied by PeriodEnd, or "" when PeriodEnd
// is absent or malformed.
func (r *Record) DerivedDue() string {
	end, ok := ParseDate(r.PeriodEnd)
	if !ok {
		return ""
	}
	return FormatDate(end.Add(DueOffset))
}

// Derive recomputes DueDate from PeriodEnd and reports whether it changed.
func (r *Record) Derive() bool {
	due := r.DerivedDue()
	if due == r.DueDate {
		return false
	}
	r.DueDate = due
	return true
}

// Due returns the parsed due date.
func (r *Record) Due() (time.Time, bool) {
	return ParseDate(r.DueDate)
}

// AppendNote adds a "[YYYY-MM-DD HH:MM] text" line to the notes log.
func (r *Record) AppendNote(at time.Time, text string) {
	line := fmt.Sprintf("[%s] %s", at.Format("2006-01-02 15:04"), text)
	if strings.TrimSpace(r.Notes) == "" {
		r.Notes = line
		return
	}
	r.Notes = r.Notes + "\n" + line
}

// Flag returns a secondary flag value.
func (r *Record) Flag(key string) string {
	if r.SecondaryFlags == nil {
		return ""
	}
	return r.SecondaryFlags[key]
}

// SetFlag sets or, with an empty value, removes a secondary flag.
func (r *Record) SetFlag(key, value string) {
	if value == "" {
		delete(r.SecondaryFlags, key)
		return
	}
	if r.SecondaryFlags == nil {
		r.SecondaryFlags = make(map[string]string)
	}
	r.SecondaryFlags[key] = value
}

// Map renders the record as a flat field map, as returned to callers.
func (r *Record) Map() map[string]interface{} {
	m := map[string]interface{}{
		"row_id":     r.RowID,
		"version":    r.Version,
		"created_at": r.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at": r.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for _, f := range stringFields {
		v, _ := r.Get(f.Name)
		m[f.Name] = v
	}
	flags := make(map[string]string, len(r.SecondaryFlags))
	for k, v := range r.SecondaryFlags {
		flags[k] = v
	}
	m["secondary_flags"] = flags
	return m
}

var generatedID = regexp.MustCompile(`^(?i)` + IdentifierPrefix + `(\d+)$`)

// NextIdentifier returns PREFIX + (max numeric suffix + 1), zero-padded to three
// digits. Identifiers that do not match PREFIX<digits> are ignored.
func NextIdentifier(existing []string) string {
	max := 0
	for _, id := range existing {
		m := generatedID.FindStringSubmatch(strings.TrimSpace(id))
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%03d", IdentifierPrefix, max+1)
}

// SortedFlagKeys returns the flag keys in lexical order.
func (r *Record) SortedFlagKeys() []string {
	keys := make([]string, 0, len(r.SecondaryFlags))
	for k := range r.SecondaryFlags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
