package dispatch

import (
	"context"

	"psurops/internal/errors"
	"psurops/internal/notify"
	"psurops/internal/record"
	"psurops/internal/storage"
)

const bulkNote = " Rows are updated one at a time; the batch is not atomic and a failed row does not stop the rest."

func (d *Dispatcher) registerBulk() {
	d.register(&Operation{
		Name:        "bulk_update_status",
		Description: "Set the status of every row matching filter." + bulkNote,
		InputSchema: object(props{"filter": filterSchema(), "new_status": str("New status")}, "filter", "new_status"),
		Mutating:    true,
	}, d.bulkUpdateStatus)

	d.register(&Operation{
		Name:        "bulk_update_writer",
		Description: "Reassign every row matching filter." + bulkNote,
		InputSchema: object(props{
			"filter":     filterSchema(),
			"new_writer": str("New writer"),
			"new_email":  str("New contact email"),
		}, "filter", "new_writer"),
		Mutating: true,
	}, d.bulkUpdateWriter)

	d.register(&Operation{
		Name:        "bulk_update_field",
		Description: "Set one writable field on every row matching filter." + bulkNote,
		InputSchema: object(props{
			"filter":      filterSchema(),
			"field_name":  str("Field name or header"),
			"field_value": str("New value"),
		}, "filter", "field_name", "field_value"),
		Mutating: true,
	}, d.bulkUpdateField)
}

// bulk resolves targets through the projection filter and patches each row
// independently. Failures are counted, never raised.
func (d *Dispatcher) bulk(ctx context.Context, args Args, fields map[string]interface{}, event map[string]interface{}) (Payload, error) {
	if !args.Has("filter") {
		return nil, errors.NewValidationError("filter required")
	}
	filter, err := args.Object("filter")
	if err != nil {
		return nil, err
	}
	c, err := parseCriteria(filter)
	if err != nil {
		return nil, err
	}
	patch, err := record.ParsePatch(fields)
	if err != nil {
		return nil, err
	}
	if removed := patch.StripProtected(); patch.Empty() {
		return nil, errors.NewImmutableFieldError(removed...)
	}

	targets, err := d.store.Filter(ctx, c, storage.Pure())
	if err != nil {
		return nil, err
	}
	updated := 0
	var failed []map[string]interface{}
	for _, r := range targets {
		if _, err := d.store.UpdateRow(ctx, r.RowID, patch); err != nil {
			d.logger.Warn("bulk update skipped row", "td_number", r.Identifier, "row_id", r.RowID, "error", err)
			failed = append(failed, map[string]interface{}{
				"td_number": r.Identifier,
				"row_id":    r.RowID,
				"code":      string(errors.CodeOf(err)),
			})
			continue
		}
		updated++
	}

	if updated > 0 {
		event["filter"] = filter
		event["count"] = updated
		d.publish(notify.EventBulkUpdate, event)
	}
	p := Payload{"updated_count": updated, "matched_count": len(targets)}
	if len(failed) > 0 {
		p["warning"] = string(errors.PartialBulkFailure)
		p["failed"] = failed
	}
	return p, nil
}

func (d *Dispatcher) bulkUpdateStatus(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("new_status"); err != nil {
		return nil, err
	}
	status := args.String("new_status")
	return d.bulk(ctx, args, map[string]interface{}{"status": status}, map[string]interface{}{"new_status": status})
}

func (d *Dispatcher) bulkUpdateWriter(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("new_writer"); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{"writer": args.String("new_writer")}
	if email := args.String("new_email"); email != "" {
		fields["contact"] = email
	}
	return d.bulk(ctx, args, fields, map[string]interface{}{"writer": args.String("new_writer")})
}

func (d *Dispatcher) bulkUpdateField(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("field_name"); err != nil {
		return nil, err
	}
	if !args.Has("field_value") {
		return nil, errors.NewValidationError("field_value required")
	}
	f, err := writableField(args.String("field_name"))
	if err != nil {
		return nil, err
	}
	value := args.String("field_value")
	return d.bulk(ctx, args, map[string]interface{}{f.Name: value}, map[string]interface{}{"field": f.Name, "value": value})
}
