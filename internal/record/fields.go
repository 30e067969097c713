package record

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"psurops/internal/errors"
)

// Kind classifies how a field may be written.
type Kind int

const (
	// Text is a free-form mutable attribute.
	Text Kind = iota
	// Date is a mutable date attribute, normalized on write.
	Date
	// Flag is stored in SecondaryFlags under the field name.
	Flag
	// Derived is recomputed on every read and write.
	Derived
	// Audit is maintained by the store (identity, version, timestamps).
	Audit
	// Log is the append-only notes field.
	Log
)

// Field describes one member of the closed field set.
type Field struct {
	Name    string
	Label   string
	Kind    Kind
	Aliases []string
	get     func(*Record) string
	set     func(*Record, string)
}

// Writable reports whether a plain update may assign the field.
func (f *Field) Writable() bool {
	return f.Kind == Text || f.Kind == Date || f.Kind == Flag
}

var fields = []*Field{
	{Name: "identifier", Label: "TD Number", Kind: Audit, Aliases: []string{"td_number", "td", "id"},
		get: func(r *Record) string { return r.Identifier }, set: func(r *Record, v string) { r.Identifier = v }},
	{Name: "report_number", Label: "PSURNumber", Kind: Text, Aliases: []string{"psur_number", "psurnumber", "psur"},
		get: func(r *Record) string { return r.ReportNumber }, set: func(r *Record, v string) { r.ReportNumber = v }},
	{Name: "classification", Label: "Class", Kind: Text, Aliases: []string{"class", "class_type"},
		get: func(r *Record) string { return r.Classification }, set: func(r *Record, v string) { r.Classification = v }},
	{Name: "report_type", Label: "Type", Kind: Text, Aliases: []string{"type"},
		get: func(r *Record) string { return r.ReportType }, set: func(r *Record, v string) { r.ReportType = v }},
	{Name: "product_name", Label: "Product Name", Kind: Text, Aliases: []string{"product", "products"},
		get: func(r *Record) string { return r.ProductName }, set: func(r *Record, v string) { r.ProductName = v }},
	{Name: "catalog_number", Label: "Catalog Number", Kind: Text, Aliases: []string{"catalog"},
		get: func(r *Record) string { return r.CatalogNumber }, set: func(r *Record, v string) { r.CatalogNumber = v }},
	{Name: "writer", Label: "Writer", Kind: Text, Aliases: []string{"writer_name", "owner"},
		get: func(r *Record) string { return r.Writer }, set: func(r *Record, v string) { r.Writer = v }},
	{Name: "contact", Label: "Email", Kind: Text, Aliases: []string{"email", "writer_email"},
		get: func(r *Record) string { return r.Contact }, set: func(r *Record, v string) { r.Contact = v }},
	{Name: "period_start", Label: "Start Period", Kind: Date, Aliases: []string{"start_period", "start"},
		get: func(r *Record) string { return r.PeriodStart }, set: func(r *Record, v string) { r.PeriodStart = v }},
	{Name: "period_end", Label: "End Period", Kind: Date, Aliases: []string{"end_period", "end", "data_lock_point"},
		get: func(r *Record) string { return r.PeriodEnd }, set: func(r *Record, v string) { r.PeriodEnd = v }},
	{Name: "cadence", Label: "Frequency", Kind: Text, Aliases: []string{"frequency"},
		get: func(r *Record) string { return r.Cadence }, set: func(r *Record, v string) { r.Cadence = v }},
	{Name: "due_date", Label: "Due Date", Kind: Derived, Aliases: []string{"due"},
		get: func(r *Record) string { return r.DueDate }, set: func(r *Record, v string) { r.DueDate = v }},
	{Name: "status", Label: "Status", Kind: Text, Aliases: []string{"state"},
		get: func(r *Record) string { return r.Status }, set: func(r *Record, v string) { r.Status = v }},
	{Name: "canada_needed", Label: "Canada Summary Report Needed", Kind: Flag, Aliases: []string{"canada_summary_report_needed"}},
	{Name: "canada_status", Label: "Canada Summary Report Status", Kind: Flag, Aliases: []string{"canada_summary_report_status"}},
	{Name: "notes", Label: "Comments", Kind: Log, Aliases: []string{"comments", "comment"},
		get: func(r *Record) string { return r.Notes }, set: func(r *Record, v string) { r.Notes = v }},
	{Name: "version", Kind: Audit},
	{Name: "created_at", Kind: Audit},
	{Name: "updated_at", Kind: Audit},
	{Name: "row_id", Kind: Audit},
}

var (
	byKey        = map[string]*Field{}
	stringFields []*Field
)

func init() {
	for _, f := range fields {
		f := f
		if f.Kind == Flag {
			name := f.Name
			f.get = func(r *Record) string { return r.Flag(name) }
			f.set = func(r *Record, v string) { r.SetFlag(name, v) }
		}
		byKey[f.Name] = f
		for _, a := range f.Aliases {
			byKey[a] = f
		}
		if f.Label != "" {
			byKey[fold(f.Label)] = f
		}
		if f.get != nil && f.Kind != Flag {
			stringFields = append(stringFields, f)
		}
	}
}

func fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(s)
}

// Lookup resolves a canonical name, alias or spreadsheet header.
func Lookup(name string) (*Field, bool) {
	f, ok := byKey[fold(name)]
	return f, ok
}

// Fields returns the closed field set in declaration order.
func Fields() []*Field {
	return fields
}

// FieldNames returns the canonical names of fields a caller can read.
func FieldNames() []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return names
}

// WritableFieldNames returns names accepted by update operations.
func WritableFieldNames() []string {
	var names []string
	for _, f := range fields {
		if f.Writable() {
			names = append(names, f.Name)
		}
	}
	return names
}

// Get reads a field by any accepted name. Audit integers are rendered as text.
func (r *Record) Get(name string) (string, bool) {
	f, ok := Lookup(name)
	if !ok {
		return "", false
	}
	switch f.Name {
	case "version":
		return strconv.FormatInt(r.Version, 10), true
	case "row_id":
		return strconv.FormatInt(r.RowID, 10), true
	case "created_at":
		return r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), true
	case "updated_at":
		return r.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"), true
	}
	return f.get(r), true
}

// Patch is a canonicalized set of field assignments.
type Patch struct {
	Values map[string]string
	Flags  map[string]string
}

// ParsePatch canonicalizes caller-supplied keys. Unknown keys fail with a
// validation error; protected keys are kept so the caller can decide whether
// to strip or reject them. A "secondary_flags" object is merged into Flags.
func ParsePatch(in map[string]interface{}) (*Patch, error) {
	p := &Patch{Values: map[string]string{}, Flags: map[string]string{}}
	var unknown []string
	for k, v := range in {
		if fold(k) == "secondary_flags" {
			flags, ok := v.(map[string]interface{})
			if !ok && v != nil {
				return nil, errors.NewValidationError("secondary_flags must be an object")
			}
			for fk, fv := range flags {
				p.Flags[strings.TrimSpace(fk)] = Stringify(fv)
			}
			continue
		}
		f, ok := Lookup(k)
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		if f.Kind == Flag {
			p.Flags[f.Name] = Stringify(v)
			continue
		}
		p.Values[f.Name] = Stringify(v)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errors.NewValidationError("unknown field(s): %s", strings.Join(unknown, ", ")).
			WithDetails(map[string]interface{}{"unknown": unknown, "known": FieldNames()})
	}
	return p, nil
}

// StripProtected removes every non-writable assignment and returns the
// removed names in sorted order.
func (p *Patch) StripProtected() []string {
	var removed []string
	for name := range p.Values {
		if f, _ := Lookup(name); !f.Writable() {
			removed = append(removed, name)
			delete(p.Values, name)
		}
	}
	sort.Strings(removed)
	return removed
}

// Empty reports whether the patch assigns nothing.
func (p *Patch) Empty() bool {
	return len(p.Values) == 0 && len(p.Flags) == 0
}

// Keys lists the assigned names, flags last.
func (p *Patch) Keys() []string {
	keys := make([]string, 0, len(p.Values)+len(p.Flags))
	for k := range p.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	flags := make([]string, 0, len(p.Flags))
	for k := range p.Flags {
		flags = append(flags, "secondary_flags."+k)
	}
	sort.Strings(flags)
	return append(keys, flags...)
}

// Apply assigns the patch onto r. Dates are normalized; DueDate is not
// touched here, callers re-derive after applying.
func (p *Patch) Apply(r *Record) {
	for name, v := range p.Values {
		f, _ := Lookup(name)
		v = strings.TrimSpace(v)
		if f.Kind == Date {
			v = NormalizeDate(v)
		}
		f.set(r, v)
	}
	for k, v := range p.Flags {
		r.SetFlag(k, strings.TrimSpace(v))
	}
}

// Stringify renders a decoded JSON value as field text.
func Stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
