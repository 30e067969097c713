package dispatch

import (
	"encoding/json"
	"strconv"
	"strings"

	"psurops/internal/errors"
	"psurops/internal/projection"
	"psurops/internal/record"
)

// Args are the decoded arguments of one call.
type Args map[string]interface{}

// String returns the trimmed text form of key, or "" when absent.
func (a Args) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(record.Stringify(v))
}

// First returns the first non-blank value among keys.
func (a Args) First(keys ...string) string {
	for _, k := range keys {
		if v := a.String(k); v != "" {
			return v
		}
	}
	return ""
}

// Has reports whether key was supplied, even as an empty string.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// Require fails with a validation error naming every blank key.
func (a Args) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if a.String(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return errors.NewValidationError("%s required", strings.Join(missing, " and ")).
		WithDetails(map[string]interface{}{"missing": missing})
}

// Int reads an integer argument, accepting JSON numbers and numeric strings.
func (a Args) Int(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, errors.NewValidationError("%s must be an integer", key)
		}
		return int(n), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return def, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, errors.NewValidationError("%s must be an integer, got %q", key, t)
		}
		return n, nil
	default:
		return 0, errors.NewValidationError("%s must be an integer", key)
	}
}

// Bool reads a boolean argument; "yes", "true" and "1" are true.
func (a Args) Bool(key string) bool {
	switch t := a[key].(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true
		}
	case float64:
		return t != 0
	}
	return false
}

// Object reads a nested object argument.
func (a Args) Object(key string) (map[string]interface{}, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.NewValidationError("%s must be an object", key)
	}
	return m, nil
}

// Strings reads a list of strings. A single string is split on commas.
func (a Args) Strings(key string) ([]string, error) {
	var out []string
	switch t := a[key].(type) {
	case nil:
		return nil, nil
	case []interface{}:
		for _, v := range t {
			if s := strings.TrimSpace(record.Stringify(v)); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	default:
		return nil, errors.NewValidationError("%s must be a list of strings", key)
	}
	return out, nil
}

// criteriaKeys maps accepted filter keys onto Criteria fields.
var criteriaKeys = map[string]string{
	"writer":         "writer",
	"owner":          "writer",
	"classification": "classification",
	"class":          "classification",
	"class_type":     "classification",
	"status":         "status",
	"type":           "report_type",
	"report_type":    "report_type",
	"product":        "product",
	"product_name":   "product",
	"within_days":    "within_days",
	"overdue_only":   "overdue_only",
	"due_year":       "due_year",
}

// parseCriteria turns a filter object into projection criteria. Unknown
// keys are rejected rather than ignored.
func parseCriteria(m map[string]interface{}) (projection.Criteria, error) {
	var c projection.Criteria
	a := Args(m)
	var unknown []string
	for k := range m {
		target, ok := criteriaKeys[strings.ToLower(strings.TrimSpace(k))]
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		switch target {
		case "writer":
			c.Writer = a.String(k)
		case "classification":
			c.Classification = a.String(k)
		case "status":
			c.Status = a.String(k)
		case "report_type":
			c.ReportType = a.String(k)
		case "product":
			c.Product = a.String(k)
		case "within_days":
			if !a.Has(k) || a.String(k) == "" {
				continue
			}
			n, err := a.Int(k, 0)
			if err != nil {
				return c, err
			}
			if n < 0 {
				return c, errors.NewValidationError("within_days must not be negative")
			}
			c.WithinDays = projection.Days(n)
		case "overdue_only":
			c.OverdueOnly = a.Bool(k)
		case "due_year":
			n, err := a.Int(k, 0)
			if err != nil {
				return c, err
			}
			c.DueYear = n
		}
	}
	if len(unknown) > 0 {
		return c, errors.NewValidationError("unknown filter key(s): %s", strings.Join(sortedCopy(unknown), ", "))
	}
	return c, nil
}

// identifierArg reads and normalizes a TD identifier from the first
// non-blank of keys.
func identifierArg(a Args, keys ...string) (string, error) {
	raw := a.First(keys...)
	if raw == "" {
		return "", errors.NewValidationError("%s required", keys[0])
	}
	return record.NormalizeIdentifier(raw), nil
}
