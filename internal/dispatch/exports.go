package dispatch

import (
	"context"
	stderrors "errors"
	"path"
	"strings"

	"psurops/internal/errors"
	"psurops/internal/notify"
	"psurops/internal/projection"
)

// Export formats understood by the Exporter.
const (
	FormatCSV      = "csv"
	FormatXLSX     = "xlsx"
	FormatICS      = "ics"
	FormatSnapshot = "json"
)

func (d *Dispatcher) registerExports() {
	exportOp := func(name, format, def, description string, window bool) {
		p := props{
			"filter":   filterSchema(),
			"filename": map[string]interface{}{"type": "string", "default": def, "description": "Output file name"},
		}
		if window {
			p["within_days"] = integer("Only items due within N days", 0)
		}
		d.register(&Operation{
			Name:        name,
			Description: description,
			InputSchema: object(p),
		}, func(ctx context.Context, args Args) (Payload, error) {
			return d.export(ctx, args, format, def)
		})
	}
	exportOp("export_csv", FormatCSV, "psur_export.csv", "Export matching rows as CSV; returns the file location.", false)
	exportOp("export_excel", FormatXLSX, "psur_export.xlsx", "Export matching rows as an Excel workbook; returns the file location.", false)
	exportOp("export_calendar", FormatICS, "psur_schedule.ics", "Export matching rows as all-day calendar events on their due dates.", true)
	exportOp("export_snapshot", FormatSnapshot, "psur_snapshot.json", "Export matching rows as a JSON snapshot.", false)

	d.register(&Operation{
		Name:        "reload_from_source",
		Description: "Replace every row with the contents of the configured source workbook.",
		Mutating:    true,
	}, d.reloadFromSource)
	d.register(&Operation{
		Name:        "reload_from_excel",
		Description: "Alias of reload_from_source.",
		Mutating:    true,
	}, d.reloadFromSource)
}

func (d *Dispatcher) export(ctx context.Context, args Args, format, def string) (Payload, error) {
	if d.exporter == nil {
		return nil, errors.NewInternalError("export is not configured", nil)
	}
	name := args.String("filename")
	if name == "" {
		name = def
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, errors.NewValidationError("filename must be a plain file name, got %q", name)
	}
	if path.Ext(name) == "" {
		name += path.Ext(def)
	}

	filter, err := args.Object("filter")
	if err != nil {
		return nil, err
	}
	c, err := parseCriteria(filter)
	if err != nil {
		return nil, err
	}
	if args.String("within_days") != "" {
		days, err := args.Int("within_days", 0)
		if err != nil {
			return nil, err
		}
		c.WithinDays = projection.Days(days)
	}

	rs, err := d.store.Filter(ctx, c)
	if err != nil {
		return nil, err
	}
	location, err := d.exporter.Export(ctx, format, rs, name)
	if err != nil {
		return nil, errors.NewBackendUnavailableError("export", err)
	}
	d.logger.Info("exported records", "format", format, "count", len(rs), "location", location)
	return Payload{"file_url": location, "format": format, "count": len(rs)}, nil
}

func (d *Dispatcher) reloadFromSource(ctx context.Context, args Args) (Payload, error) {
	if d.source == nil {
		return nil, errors.NewInternalError("no reload source is configured", nil)
	}
	rs, err := d.source.Load(ctx)
	if err != nil {
		var oe *errors.OpsError
		if stderrors.As(err, &oe) {
			return nil, err
		}
		return nil, errors.NewBackendUnavailableError("reading reload source", err)
	}
	n, err := d.store.Reload(ctx, rs)
	if err != nil {
		return nil, err
	}
	d.publish(notify.EventReload, map[string]interface{}{"count": n})
	return Payload{"loaded_count": n}, nil
}
