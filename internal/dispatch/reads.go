package dispatch

import (
	"context"
	"strings"

	"psurops/internal/errors"
	"psurops/internal/projection"
	"psurops/internal/record"
)

// DefaultDueWindow is the look-ahead of list_due_items when within_days is
// omitted.
const DefaultDueWindow = 60

const (
	defaultSearchLimit = 50
	defaultPageLimit   = 100
)

func (d *Dispatcher) registerReads() {
	d.register(&Operation{
		Name:        "list_operations",
		Description: "List every operation with its description.",
	}, d.listOperations)

	d.register(&Operation{
		Name:        "normalize_id",
		Description: "Normalize mentions like 'psur-045' or 'td 45' to canonical identifiers (PSUR045, TD045).",
		InputSchema: object(props{"query": str("Free text containing a TD or PSUR mention")}, "query"),
	}, d.normalizeID)

	d.register(&Operation{
		Name:        "get_report",
		Description: "Fetch a single row by TD Number (e.g. 'TD045'). With duplicates, the oldest row is returned.",
		InputSchema: object(props{"row_id": str("TD Number")}, "row_id"),
	}, d.getReport)

	d.register(&Operation{
		Name:        "get_report_by_psur",
		Description: "Fetch a single row by PSURNumber (e.g. 'PSUR045').",
		InputSchema: object(props{"psur_id": str("PSURNumber")}, "psur_id"),
	}, d.getReportByPSUR)

	d.register(&Operation{
		Name:        "get_all_duplicates",
		Description: "Get all rows sharing a TD Number, in insertion order.",
		InputSchema: object(props{"td_number": str("TD Number")}, "td_number"),
	}, d.getAllDuplicates)

	d.register(&Operation{
		Name:        "get_field_value",
		Description: "Get one field of a row. Accepts canonical names or spreadsheet headers.",
		InputSchema: object(props{"row_id": str("TD Number"), "field_name": str("Field name")}, "row_id", "field_name"),
	}, d.getFieldValue)

	d.register(&Operation{
		Name:        "find_reports",
		Description: "Case-insensitive search across TD Number, PSURNumber, Product Name, Catalog Number, Writer, Class and Status.",
		InputSchema: object(props{
			"query": str("Search text"),
			"limit": integer("Maximum results", defaultSearchLimit),
		}, "query"),
	}, d.findReports)

	d.register(&Operation{
		Name:        "list_reports",
		Description: "List rows matching optional filters, sorted by due date, with pagination.",
		InputSchema: object(props{
			"offset":  integer("Rows to skip", 0),
			"limit":   integer("Page size", defaultPageLimit),
			"filters": filterSchema(),
		}),
	}, d.listReports)

	d.register(&Operation{
		Name:        "list_due_items",
		Description: "Items due between today and today+within_days; optional filters.",
		InputSchema: object(props{
			"within_days":    integer("Window in days", DefaultDueWindow),
			"classification": str("Class filter"),
			"writer":         str("Writer filter"),
			"status":         str("Status filter"),
			"type":           str("Report type filter"),
		}),
	}, d.listDueItems)

	d.register(&Operation{
		Name:        "list_overdue_items",
		Description: "Items whose due date is before today; optional filters.",
		InputSchema: object(props{
			"classification": str("Class filter"),
			"writer":         str("Writer filter"),
			"status":         str("Status filter"),
		}),
	}, d.listOverdueItems)

	d.register(&Operation{
		Name:        "list_by_writer",
		Description: "List items for a writer; optional status filter.",
		InputSchema: object(props{"writer": str("Writer"), "status": str("Status filter")}, "writer"),
	}, d.listByWriter)

	d.register(&Operation{
		Name:        "list_by_class_type",
		Description: "List by Class and/or Type; optional status filter.",
		InputSchema: object(props{
			"classification": str("Class"),
			"type":           str("Report type"),
			"status":         str("Status filter"),
		}),
	}, d.listByClassType)

	d.register(&Operation{
		Name:        "list_by_status",
		Description: "List all rows with a status.",
		InputSchema: object(props{"status": str("Status")}, "status"),
	}, d.listByStatus)

	d.register(&Operation{
		Name:        "list_by_product",
		Description: "List all rows for a product name.",
		InputSchema: object(props{"product_name": str("Product name or part of it")}, "product_name"),
	}, d.listByProduct)

	d.register(&Operation{
		Name:        "list_missing_fields",
		Description: "Rows where any of the given fields is blank.",
		InputSchema: object(props{"fields": stringList("Field names or headers")}, "fields"),
	}, d.listMissingFields)

	d.register(&Operation{
		Name:        "list_duplicates",
		Description: "TD Numbers held by more than one row.",
	}, d.listDuplicates)

	d.register(&Operation{
		Name:        "get_stats",
		Description: "Counts by status, class and writer plus overdue, due-within-30-days, missing due dates and duplicates.",
	}, d.getStats)

	d.register(&Operation{
		Name:        "get_schedule_for_year",
		Description: "Rows due in a calendar year, sorted by due date. Undated rows are listed under the current year.",
		InputSchema: object(props{"year": integer("Calendar year", 0)}, "year"),
	}, d.getScheduleForYear)
}

func (d *Dispatcher) listOperations(ctx context.Context, args Args) (Payload, error) {
	ops := make([]map[string]interface{}, 0, len(d.order))
	for _, op := range d.Operations() {
		ops = append(ops, map[string]interface{}{
			"name":        op.Name,
			"description": op.Description,
			"mutating":    op.Mutating,
		})
	}
	return Payload{"operations": ops, "count": len(ops), "vocabulary_version": VocabularyVersion}, nil
}

func (d *Dispatcher) normalizeID(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("query"); err != nil {
		return nil, err
	}
	q := args.String("query")
	td, psur := record.Mentions(q)
	if td == "" && psur == "" {
		// Mentions need word boundaries; "td045a" still normalizes by prefix.
		if n := record.NormalizeIdentifier(q); n != q && strings.HasPrefix(n, record.IdentifierPrefix) {
			td = n
		}
		if n := record.NormalizeReportNumber(q); n != q && strings.HasPrefix(n, "PSUR") {
			psur = n
		}
	}
	p := Payload{"query": q}
	if td != "" {
		p["td_number"] = td
	}
	if psur != "" {
		p["psur_number"] = psur
	}
	return p, nil
}

func (d *Dispatcher) getReport(ctx context.Context, args Args) (Payload, error) {
	id, err := identifierArg(args, "row_id", "td_number")
	if err != nil {
		return nil, err
	}
	r, err := d.store.ReadByIdentifier(ctx, id)
	if err != nil {
		return nil, err
	}
	return Payload{"record": r.Map()}, nil
}

func (d *Dispatcher) getReportByPSUR(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("psur_id"); err != nil {
		return nil, err
	}
	r, err := d.store.ReadBySecondaryKey(ctx, record.NormalizeReportNumber(args.String("psur_id")))
	if err != nil {
		return nil, err
	}
	return Payload{"record": r.Map()}, nil
}

func (d *Dispatcher) getAllDuplicates(ctx context.Context, args Args) (Payload, error) {
	id, err := identifierArg(args, "td_number", "row_id")
	if err != nil {
		return nil, err
	}
	rs, err := d.store.ReadAllByIdentifier(ctx, id)
	if err != nil {
		return nil, err
	}
	p := list(rs)
	p["td_number"] = id
	return p, nil
}

func (d *Dispatcher) getFieldValue(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("row_id", "field_name"); err != nil {
		return nil, err
	}
	f, ok := record.Lookup(args.String("field_name"))
	if !ok {
		return nil, errors.NewValidationError("unknown field: %s", args.String("field_name"))
	}
	id := record.NormalizeIdentifier(args.String("row_id"))
	r, err := d.store.ReadByIdentifier(ctx, id)
	if err != nil {
		return nil, err
	}
	v, _ := r.Get(f.Name)
	return Payload{"identifier": r.Identifier, "field_name": f.Name, "field_value": v}, nil
}

func (d *Dispatcher) findReports(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("query"); err != nil {
		return nil, err
	}
	limit, err := args.Int("limit", defaultSearchLimit)
	if err != nil {
		return nil, err
	}
	rs, err := d.store.Search(ctx, args.String("query"), limit)
	if err != nil {
		return nil, err
	}
	return list(rs), nil
}

func (d *Dispatcher) listReports(ctx context.Context, args Args) (Payload, error) {
	offset, err := args.Int("offset", 0)
	if err != nil {
		return nil, err
	}
	limit, err := args.Int("limit", defaultPageLimit)
	if err != nil {
		return nil, err
	}
	if offset < 0 || limit < 0 {
		return nil, errors.NewValidationError("offset and limit must not be negative")
	}
	filters, err := args.Object("filters")
	if err != nil {
		return nil, err
	}
	c, err := parseCriteria(filters)
	if err != nil {
		return nil, err
	}
	rs, err := d.store.Filter(ctx, c)
	if err != nil {
		return nil, err
	}
	p := list(projection.Page(rs, offset, limit))
	p["total"] = len(rs)
	p["offset"] = offset
	return p, nil
}

func (d *Dispatcher) filtered(ctx context.Context, c projection.Criteria) (Payload, error) {
	rs, err := d.store.Filter(ctx, c)
	if err != nil {
		return nil, err
	}
	return list(rs), nil
}

func (d *Dispatcher) listDueItems(ctx context.Context, args Args) (Payload, error) {
	days, err := args.Int("within_days", DefaultDueWindow)
	if err != nil {
		return nil, err
	}
	if days < 0 {
		return nil, errors.NewValidationError("within_days must not be negative")
	}
	p, err := d.filtered(ctx, projection.Criteria{
		Classification: args.First("classification", "class"),
		Writer:         args.String("writer"),
		Status:         args.String("status"),
		ReportType:     args.String("type"),
		WithinDays:     projection.Days(days),
	})
	if err != nil {
		return nil, err
	}
	p["within_days"] = days
	return p, nil
}

func (d *Dispatcher) listOverdueItems(ctx context.Context, args Args) (Payload, error) {
	return d.filtered(ctx, projection.Criteria{
		Classification: args.First("classification", "class"),
		Writer:         args.String("writer"),
		Status:         args.String("status"),
		OverdueOnly:    true,
	})
}

func (d *Dispatcher) listByWriter(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("writer"); err != nil {
		return nil, err
	}
	return d.filtered(ctx, projection.Criteria{Writer: args.String("writer"), Status: args.String("status")})
}

func (d *Dispatcher) listByClassType(ctx context.Context, args Args) (Payload, error) {
	return d.filtered(ctx, projection.Criteria{
		Classification: args.First("classification", "class"),
		ReportType:     args.String("type"),
		Status:         args.String("status"),
	})
}

func (d *Dispatcher) listByStatus(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("status"); err != nil {
		return nil, err
	}
	return d.filtered(ctx, projection.Criteria{Status: args.String("status")})
}

func (d *Dispatcher) listByProduct(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("product_name"); err != nil {
		return nil, err
	}
	return d.filtered(ctx, projection.Criteria{Product: args.String("product_name")})
}

func (d *Dispatcher) listMissingFields(ctx context.Context, args Args) (Payload, error) {
	fields, err := args.Strings("fields")
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errors.NewValidationError("fields required")
	}
	entries, err := d.store.FindMissing(ctx, fields)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]interface{}, len(entries))
	for i, e := range entries {
		m := e.Record.Map()
		m["missing_fields"] = e.Fields
		items[i] = m
	}
	return Payload{"items": items, "count": len(items)}, nil
}

func (d *Dispatcher) listDuplicates(ctx context.Context, args Args) (Payload, error) {
	ids, err := d.store.DuplicateIdentifiers(ctx)
	if err != nil {
		return nil, err
	}
	return Payload{"identifiers": ids, "count": len(ids)}, nil
}

func (d *Dispatcher) getStats(ctx context.Context, args Args) (Payload, error) {
	s, err := d.store.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	return Payload{
		"total":                    s.Total,
		"counts_by_status":         s.ByStatus,
		"counts_by_classification": s.ByClass,
		"counts_by_writer":         s.ByWriter,
		"overdue_count":            s.Overdue,
		"due_within_30_days_count": s.DueWithin30,
		"missing_due_count":        s.MissingDue,
		"duplicate_identifiers":    s.Duplicates,
	}, nil
}

func (d *Dispatcher) getScheduleForYear(ctx context.Context, args Args) (Payload, error) {
	year, err := args.Int("year", 0)
	if err != nil {
		return nil, err
	}
	if year < 1900 || year > 9999 {
		return nil, errors.NewValidationError("year required (1900-9999)")
	}
	rs, err := d.store.All(ctx)
	if err != nil {
		return nil, err
	}
	p := list(projection.ForYear(rs, year, d.store.Now()))
	p["year"] = year
	return p, nil
}
