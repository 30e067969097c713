package dispatch

import (
	"context"
	"strings"
	"time"

	"psurops/internal/errors"
	"psurops/internal/record"
	"psurops/internal/storage"
)

// cadenceRules map cadence wording to a year offset. The first rule with a
// matching token wins; anything unmatched is annual.
var cadenceRules = []struct {
	years  int
	tokens []string
}{
	{2, []string{"bienn", "2 year", "2-year", "two year", "every 2", "iia", "ii a"}},
	{5, []string{"five", "quinquenn", "5"}},
	{1, []string{"annual", "yearly", "year", "1"}},
}

// CadenceYears returns the reporting interval implied by cadence.
func CadenceYears(cadence string) int {
	c := strings.ToLower(strings.TrimSpace(cadence))
	for _, rule := range cadenceRules {
		for _, tok := range rule.tokens {
			if strings.Contains(c, tok) {
				return rule.years
			}
		}
	}
	return 1
}

// ExpectedDue adds the cadence interval and bufferDays to end. A day of
// month that does not exist in the target year (Feb 29) clamps to the 28th.
func ExpectedDue(end time.Time, cadence string, bufferDays int) time.Time {
	years := CadenceYears(cadence)
	y, m, day := end.Date()
	target := time.Date(y+years, m, 1, 0, 0, 0, 0, time.UTC)
	if day > daysIn(target) {
		day = 28
	}
	return time.Date(y+years, m, day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, bufferDays)
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

// classPolicies pin classifications to the cadence they must carry.
var classPolicies = []struct {
	classes []string
	accept  []string
	issue   string
}{
	{[]string{"iii", "iib"}, []string{"ann", "1"}, "Class IIb/III should be annual; frequency mismatch."},
	{[]string{"iia", "ii a"}, []string{"bienn", "2"}, "Class IIa should be biennial; frequency mismatch."},
}

// ValidateRow lists compliance issues for r. An empty result means compliant.
func ValidateRow(r *record.Record) []string {
	issues := []string{}
	class := strings.ToLower(strings.TrimSpace(r.Classification))
	cadence := strings.ToLower(strings.TrimSpace(r.Cadence))
	for _, p := range classPolicies {
		if containsAny(class, p.classes) && !containsAny(cadence, p.accept) {
			issues = append(issues, p.issue)
		}
	}
	if strings.TrimSpace(r.DueDate) == "" {
		issues = append(issues, "Missing Due Date; compute from End Period & Frequency.")
	}
	if strings.TrimSpace(r.Writer) == "" {
		issues = append(issues, "Missing Writer/owner.")
	}
	return issues
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) registerCompliance() {
	d.register(&Operation{
		Name:        "compute_expected_due_date",
		Description: "Expected due date from End Period and Frequency (annual +1y, biennial +2y, five-year +5y, otherwise +1y) plus buffer_days.",
		InputSchema: object(props{
			"end_period":  str("End of the surveillance period"),
			"frequency":   str("Cadence, e.g. annual or biennial"),
			"buffer_days": integer("Days added after the year offset", 0),
		}, "end_period", "frequency"),
	}, d.computeExpectedDueDate)

	d.register(&Operation{
		Name:        "validate_row",
		Description: "Compliance checks for one row: class/frequency policy, missing due date, missing writer. Does not modify the row.",
		InputSchema: object(props{"row_id": str("TD Number"), "psur_id": str("PSURNumber")}),
	}, d.validateRow)

	d.register(&Operation{
		Name:        "compare_due_dates",
		Description: "Contrast the stored due date with the cadence-expected one. Does not modify the row.",
		InputSchema: object(props{"row_id": str("TD Number"), "psur_id": str("PSURNumber")}),
	}, d.compareDueDates)
}

func (d *Dispatcher) computeExpectedDueDate(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("end_period", "frequency"); err != nil {
		return nil, err
	}
	buffer, err := args.Int("buffer_days", 0)
	if err != nil {
		return nil, err
	}
	p := Payload{"years": CadenceYears(args.String("frequency")), "expected_due_date": nil}
	if end, ok := record.ParseDate(args.String("end_period")); ok {
		p["expected_due_date"] = record.FormatDate(ExpectedDue(end, args.String("frequency"), buffer))
	}
	return p, nil
}

// target resolves the row named by row_id or psur_id without healing it.
func (d *Dispatcher) target(ctx context.Context, args Args) (*record.Record, error) {
	switch {
	case args.String("row_id") != "":
		return d.store.ReadByIdentifier(ctx, record.NormalizeIdentifier(args.String("row_id")), storage.Pure())
	case args.String("psur_id") != "":
		return d.store.ReadBySecondaryKey(ctx, record.NormalizeReportNumber(args.String("psur_id")), storage.Pure())
	default:
		return nil, errors.NewValidationError("row_id or psur_id required")
	}
}

func (d *Dispatcher) validateRow(ctx context.Context, args Args) (Payload, error) {
	r, err := d.target(ctx, args)
	if err != nil {
		return nil, err
	}
	issues := ValidateRow(r)
	return Payload{"identifier": r.Identifier, "issues": issues, "compliant": len(issues) == 0}, nil
}

func (d *Dispatcher) compareDueDates(ctx context.Context, args Args) (Payload, error) {
	r, err := d.target(ctx, args)
	if err != nil {
		return nil, err
	}
	p := Payload{"identifier": r.Identifier, "stored": r.DueDate, "expected": nil, "matches": false}
	if end, ok := record.ParseDate(r.PeriodEnd); ok {
		expected := record.FormatDate(ExpectedDue(end, r.Cadence, 0))
		p["expected"] = expected
		p["matches"] = expected == r.DueDate
	}
	return p, nil
}
