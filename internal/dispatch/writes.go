package dispatch

import (
	"context"
	"strings"

	"psurops/internal/errors"
	"psurops/internal/notify"
	"psurops/internal/record"
	"psurops/internal/storage"
)

func (d *Dispatcher) registerWrites() {
	itemProps := props{}
	for _, f := range record.Fields() {
		if f.Writable() || f.Name == "identifier" || f.Name == "notes" {
			itemProps[f.Name] = str(f.Label)
		}
	}
	d.register(&Operation{
		Name: "add_psur_item",
		Description: "Create a row. Without td_number the next TD Number is generated, so a retried call may create a second row; " +
			"pass td_number to make retries safe. due_date is derived from end_period and cannot be set.",
		InputSchema: object(itemProps),
		Mutating:    true,
	}, d.addItem)

	d.register(&Operation{
		Name:        "update_schedule_row",
		Description: "Update the first row of a TD Number with {field: value}. Accepts canonical names or spreadsheet headers; identity, audit, due_date and notes are ignored and listed in ignored_fields; use add_comment for notes.",
		InputSchema: object(props{"row_id": str("TD Number"), "updates": anyObject("Field assignments")}, "row_id"),
		Mutating:    true,
	}, d.updateScheduleRow)

	d.register(&Operation{
		Name:        "update_field",
		Description: "Set one writable field on the first row of a TD Number.",
		InputSchema: object(props{
			"row_id":      str("TD Number"),
			"field_name":  str("Field name or header"),
			"field_value": str("New value"),
		}, "row_id", "field_name", "field_value"),
		Mutating: true,
	}, d.updateField)

	d.register(&Operation{
		Name:        "update_status",
		Description: "Set the status of a row.",
		InputSchema: object(props{"row_id": str("TD Number"), "status": str("New status")}, "row_id", "status"),
		Mutating:    true,
	}, d.updateStatus)

	d.register(&Operation{
		Name:        "update_writer",
		Description: "Reassign the writer, optionally with a contact email.",
		InputSchema: object(props{"row_id": str("TD Number"), "writer": str("Writer"), "email": str("Contact email")}, "row_id", "writer"),
		Mutating:    true,
	}, d.updateWriter)

	d.register(&Operation{
		Name:        "update_periods",
		Description: "Update start and/or end period. The due date follows end_period.",
		InputSchema: object(props{"row_id": str("TD Number"), "start_period": str("Start date"), "end_period": str("End date")}, "row_id"),
		Mutating:    true,
	}, d.updatePeriods)

	flagsOp := &Operation{
		Name:        "update_secondary_flags",
		Description: "Update jurisdiction flags such as the Canada summary report fields.",
		InputSchema: object(props{
			"row_id":        str("TD Number"),
			"canada_needed": str("Canada Summary Report Needed"),
			"canada_status": str("Canada Summary Report Status"),
			"flags":         anyObject("Other secondary flags; an empty value removes the flag"),
		}, "row_id"),
		Mutating: true,
	}
	d.register(flagsOp, d.updateSecondaryFlags)
	d.register(&Operation{
		Name:        "update_canada_flags",
		Description: "Alias of update_secondary_flags.",
		InputSchema: flagsOp.InputSchema,
		Mutating:    true,
	}, d.updateSecondaryFlags)

	d.register(&Operation{
		Name:        "clear_field",
		Description: "Blank out one writable field.",
		InputSchema: object(props{"row_id": str("TD Number"), "field_name": str("Field name or header")}, "row_id", "field_name"),
		Mutating:    true,
	}, d.clearField)

	d.register(&Operation{
		Name:        "add_comment",
		Description: "Append a timestamped comment. Existing comments are never overwritten.",
		InputSchema: object(props{"row_id": str("TD Number"), "comment": str("Comment text")}, "row_id", "comment"),
		Mutating:    true,
	}, d.addComment)

	d.register(&Operation{
		Name:        "link_references",
		Description: "Attach MasterControl and/or SharePoint URLs as a comment.",
		InputSchema: object(props{
			"row_id":            str("TD Number"),
			"mastercontrol_url": str("MasterControl URL"),
			"sharepoint_url":    str("SharePoint URL"),
		}, "row_id"),
		Mutating: true,
	}, d.linkReferences)

	d.register(&Operation{
		Name:        "clone_report",
		Description: "Copy a row's fields into a new row with new_td or a generated TD Number, applying modifications.",
		InputSchema: object(props{
			"source_td":     str("TD Number to copy"),
			"new_td":        str("TD Number of the copy"),
			"modifications": anyObject("Field overrides for the copy"),
		}, "source_td"),
		Mutating: true,
	}, d.cloneReport)

	d.register(&Operation{
		Name:        "delete_report",
		Description: "Delete a TD Number. Removes ALL rows carrying it.",
		InputSchema: object(props{"row_id": str("TD Number")}, "row_id"),
		Mutating:    true,
	}, d.deleteReport)

	d.register(&Operation{
		Name:        "delete_row",
		Description: "Delete a single row by its internal row id, leaving duplicates of its TD Number in place.",
		InputSchema: object(props{"internal_row_id": integer("row_id field of the row", 0)}, "internal_row_id"),
		Mutating:    true,
	}, d.deleteRow)
}

func (d *Dispatcher) addItem(ctx context.Context, args Args) (Payload, error) {
	fields := make(map[string]interface{}, len(args))
	var identifier, note string
	for k, v := range args {
		if f, ok := record.Lookup(k); ok {
			switch f.Name {
			case "identifier":
				identifier = strings.TrimSpace(record.Stringify(v))
				continue
			case "notes":
				note = strings.TrimSpace(record.Stringify(v))
				continue
			}
		}
		fields[k] = v
	}
	patch, err := record.ParsePatch(fields)
	if err != nil {
		return nil, err
	}
	ignored := patch.StripProtected()

	r := &record.Record{}
	if identifier != "" {
		r.Identifier = record.NormalizeIdentifier(identifier)
	}
	patch.Apply(r)
	if note != "" {
		r.AppendNote(d.store.Now(), note)
	}

	created, err := d.store.Create(ctx, r)
	if err != nil {
		return nil, err
	}
	d.publish(notify.EventAdd, map[string]interface{}{"td_number": created.Identifier, "record": created.Map()})

	p := Payload{"td_number": created.Identifier, "record": created.Map()}
	if len(ignored) > 0 {
		p["ignored_fields"] = ignored
	}
	return p, nil
}

// update applies fields to the first row of identifier and publishes the change.
func (d *Dispatcher) update(ctx context.Context, identifier string, fields map[string]interface{}, event map[string]interface{}) (Payload, error) {
	r, err := d.store.Update(ctx, identifier, fields)
	if err != nil {
		return nil, err
	}
	if event == nil {
		event = map[string]interface{}{"updates": fields}
	}
	event["td_number"] = r.Identifier
	event["row_id"] = r.RowID
	event["version"] = r.Version
	d.publish(notify.EventUpdate, event)
	p := Payload{"td_number": r.Identifier, "version": r.Version, "record": r.Map()}
	if ignored := ignoredFields(fields); len(ignored) > 0 {
		p["ignored_fields"] = ignored
	}
	return p, nil
}

// ignoredFields names the assignments an update drops: identity, audit,
// derived and notes fields. Notes only change through add_comment.
func ignoredFields(fields map[string]interface{}) []string {
	patch, err := record.ParsePatch(fields)
	if err != nil {
		return nil
	}
	return patch.StripProtected()
}

func (d *Dispatcher) updateScheduleRow(ctx context.Context, args Args) (Payload, error) {
	id, err := identifierArg(args, "row_id", "td_number")
	if err != nil {
		return nil, err
	}
	updates, err := args.Object("updates")
	if err != nil {
		return nil, err
	}
	if updates == nil {
		updates = make(map[string]interface{})
		for k, v := range args {
			switch k {
			case "row_id", "td_number", "updates":
				continue
			}
			if v != nil {
				updates[k] = v
			}
		}
	}
	return d.update(ctx, id, updates, nil)
}

// writableField resolves name and rejects fields callers may not assign.
func writableField(name string) (*record.Field, error) {
	f, ok := record.Lookup(name)
	if !ok {
		return nil, errors.NewValidationError("unknown field: %s", name).
			WithDetails(map[string]interface{}{"writable": record.WritableFieldNames()})
	}
	if !f.Writable() {
		return nil, errors.NewImmutableFieldError(f.Name)
	}
	return f, nil
}

func (d *Dispatcher) updateField(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("row_id", "field_name"); err != nil {
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
	return d.update(ctx, record.NormalizeIdentifier(args.String("row_id")),
		map[string]interface{}{f.Name: value},
		map[string]interface{}{"field": f.Name, "value": value})
}

func (d *Dispatcher) updateStatus(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("row_id", "status"); err != nil {
		return nil, err
	}
	status := args.String("status")
	return d.update(ctx, record.NormalizeIdentifier(args.String("row_id")),
		map[string]interface{}{"status": status},
		map[string]interface{}{"status": status})
}

func (d *Dispatcher) updateWriter(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("row_id", "writer"); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{"writer": args.String("writer")}
	if email := args.String("email"); email != "" {
		fields["contact"] = email
	}
	return d.update(ctx, record.NormalizeIdentifier(args.String("row_id")), fields, nil)
}

func (d *Dispatcher) updatePeriods(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("row_id"); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{}
	if v := args.String("start_period"); v != "" {
		fields["period_start"] = v
	}
	if v := args.String("end_period"); v != "" {
		fields["period_end"] = v
	}
	if len(fields) == 0 {
		return nil, errors.NewValidationError("start_period or end_period required")
	}
	return d.update(ctx, record.NormalizeIdentifier(args.String("row_id")), fields, nil)
}

func (d *Dispatcher) updateSecondaryFlags(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("row_id"); err != nil {
		return nil, err
	}
	flags := map[string]interface{}{}
	extra, err := args.Object("flags")
	if err != nil {
		return nil, err
	}
	for k, v := range extra {
		flags[k] = v
	}
	for _, k := range []string{"canada_needed", "canada_status"} {
		if args.Has(k) {
			flags[k] = args.String(k)
		}
	}
	if len(flags) == 0 {
		return nil, errors.NewValidationError("canada_needed, canada_status or flags required")
	}
	return d.update(ctx, record.NormalizeIdentifier(args.String("row_id")),
		map[string]interface{}{"secondary_flags": flags},
		map[string]interface{}{"secondary_flags": flags})
}

func (d *Dispatcher) clearField(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("row_id", "field_name"); err != nil {
		return nil, err
	}
	f, err := writableField(args.String("field_name"))
	if err != nil {
		return nil, err
	}
	return d.update(ctx, record.NormalizeIdentifier(args.String("row_id")),
		map[string]interface{}{f.Name: ""},
		map[string]interface{}{"cleared_field": f.Name})
}

func (d *Dispatcher) appendNote(ctx context.Context, identifier, text string, kind notify.EventKind, event map[string]interface{}) (Payload, error) {
	r, err := d.store.AppendNote(ctx, identifier, text)
	if err != nil {
		return nil, err
	}
	event["td_number"] = r.Identifier
	event["version"] = r.Version
	d.publish(kind, event)
	return Payload{"td_number": r.Identifier, "version": r.Version, "notes": r.Notes}, nil
}

func (d *Dispatcher) addComment(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("row_id", "comment"); err != nil {
		return nil, err
	}
	comment := args.String("comment")
	return d.appendNote(ctx, record.NormalizeIdentifier(args.String("row_id")), comment,
		notify.EventComment, map[string]interface{}{"comment": comment})
}

func (d *Dispatcher) linkReferences(ctx context.Context, args Args) (Payload, error) {
	if err := args.Require("row_id"); err != nil {
		return nil, err
	}
	mc, sp := args.String("mastercontrol_url"), args.String("sharepoint_url")
	var parts []string
	if mc != "" {
		parts = append(parts, "MC: "+mc)
	}
	if sp != "" {
		parts = append(parts, "SP: "+sp)
	}
	if len(parts) == 0 {
		return nil, errors.NewValidationError("mastercontrol_url or sharepoint_url required")
	}
	return d.appendNote(ctx, record.NormalizeIdentifier(args.String("row_id")), strings.Join(parts, " | "),
		notify.EventLink, map[string]interface{}{"urls": map[string]interface{}{"mc": mc, "sp": sp}})
}

func (d *Dispatcher) cloneReport(ctx context.Context, args Args) (Payload, error) {
	source, err := identifierArg(args, "source_td")
	if err != nil {
		return nil, err
	}
	mods, err := args.Object("modifications")
	if err != nil {
		return nil, err
	}
	patch, err := record.ParsePatch(mods)
	if err != nil {
		return nil, err
	}
	ignored := patch.StripProtected()

	src, err := d.store.ReadByIdentifier(ctx, source, storage.Pure())
	if err != nil {
		return nil, err
	}
	c := src.Clone()
	c.RowID = 0
	c.Identifier = ""
	c.Version = 0
	c.Notes = ""
	c.DueDate = ""
	if newTD := args.String("new_td"); newTD != "" {
		c.Identifier = record.NormalizeIdentifier(newTD)
	}
	patch.Apply(c)

	created, err := d.store.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	d.publish(notify.EventAdd, map[string]interface{}{
		"td_number":   created.Identifier,
		"cloned_from": src.Identifier,
		"record":      created.Map(),
	})
	p := Payload{"td_number": created.Identifier, "cloned_from": src.Identifier, "record": created.Map()}
	if len(ignored) > 0 {
		p["ignored_fields"] = ignored
	}
	return p, nil
}

func (d *Dispatcher) deleteReport(ctx context.Context, args Args) (Payload, error) {
	id, err := identifierArg(args, "row_id", "td_number")
	if err != nil {
		return nil, err
	}
	n, err := d.store.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	d.publish(notify.EventDelete, map[string]interface{}{"td_number": id, "deleted_count": n})
	return Payload{"td_number": id, "deleted_count": n}, nil
}

func (d *Dispatcher) deleteRow(ctx context.Context, args Args) (Payload, error) {
	rowID, err := args.Int("internal_row_id", 0)
	if err != nil {
		return nil, err
	}
	if rowID <= 0 {
		return nil, errors.NewValidationError("internal_row_id required")
	}
	r, err := d.store.ReadRow(ctx, int64(rowID), storage.Pure())
	if err != nil {
		return nil, err
	}
	if err := d.store.DeleteRow(ctx, r.RowID); err != nil {
		return nil, err
	}
	d.publish(notify.EventDelete, map[string]interface{}{"td_number": r.Identifier, "row_id": r.RowID, "deleted_count": 1})
	return Payload{"td_number": r.Identifier, "row_id": r.RowID, "deleted_count": 1}, nil
}
