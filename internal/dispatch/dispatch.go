// Package dispatch exposes the record store through a fixed vocabulary of
// named operations. Each operation declares an input schema, validates its
// arguments before touching the store, and answers with either
// {ok: true, ...payload} or {error, code}. Successful mutations are
// published to the change notifier after the store has committed them.
package dispatch

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"psurops/internal/errors"
	"psurops/internal/notify"
	"psurops/internal/record"
	"psurops/internal/slogutil"
	"psurops/internal/storage"
)

// VocabularyVersion changes whenever an operation is added, removed or
// changes its arguments.
const VocabularyVersion = 3

// Payload is the body of a successful operation.
type Payload map[string]interface{}

// Response is what transports return to callers.
type Response map[string]interface{}

// OK reports whether the response is a success.
func (r Response) OK() bool {
	ok, _ := r["ok"].(bool)
	return ok
}

// Code returns the error code of a failed response.
func (r Response) Code() errors.ErrorCode {
	c, _ := r["code"].(string)
	return errors.ErrorCode(c)
}

// HandlerFunc implements one operation.
type HandlerFunc func(ctx context.Context, args Args) (Payload, error)

// Operation is a named, schema-described entry of the vocabulary.
type Operation struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	Mutating    bool                   `json:"mutating"`
	handler     HandlerFunc
}

// Publisher receives change events. *notify.Notifier satisfies it.
type Publisher interface {
	Publish(kind notify.EventKind, payload map[string]interface{}) notify.Event
}

// Exporter renders records in a format and stores the result, returning
// where it was written.
type Exporter interface {
	Export(ctx context.Context, format string, rs []*record.Record, name string) (string, error)
}

// Source loads the full record set for a reload.
type Source interface {
	Load(ctx context.Context) ([]*record.Record, error)
}

// Options wires optional collaborators.
type Options struct {
	Logger    *slog.Logger
	Publisher Publisher
	Exporter  Exporter
	Source    Source
	// OnCall observes every dispatched call with its outcome ("ok" or the
	// lower-cased error code).
	OnCall func(operation, outcome string, elapsed time.Duration)
}

// Dispatcher routes named operations to the store.
type Dispatcher struct {
	store     *storage.Store
	logger    *slog.Logger
	publisher Publisher
	exporter  Exporter
	source    Source
	onCall    func(string, string, time.Duration)
	ops       map[string]*Operation
	order     []string
}

// New builds a dispatcher over store.
func New(store *storage.Store, opts Options) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		logger:    opts.Logger,
		publisher: opts.Publisher,
		exporter:  opts.Exporter,
		source:    opts.Source,
		onCall:    opts.OnCall,
		ops:       make(map[string]*Operation),
	}
	if d.logger == nil {
		d.logger = slogutil.NewDiscardLogger()
	}
	d.logger = d.logger.With("component", "dispatch")
	d.registerReads()
	d.registerCompliance()
	d.registerWrites()
	d.registerBulk()
	d.registerExports()
	return d
}

func (d *Dispatcher) register(op *Operation, h HandlerFunc) {
	op.handler = h
	if op.InputSchema == nil {
		op.InputSchema = object(nil)
	}
	d.ops[op.Name] = op
	d.order = append(d.order, op.Name)
}

// Operations returns the vocabulary in registration order.
func (d *Dispatcher) Operations() []*Operation {
	out := make([]*Operation, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.ops[name])
	}
	return out
}

// Lookup returns a single operation definition.
func (d *Dispatcher) Lookup(name string) (*Operation, bool) {
	op, ok := d.ops[name]
	return op, ok
}

// Store returns the underlying store.
func (d *Dispatcher) Store() *storage.Store { return d.store }

// Call runs an operation and renders its response.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]interface{}) Response {
	p, err := d.Execute(ctx, name, args)
	return Respond(p, err)
}

// Execute runs an operation and returns its raw payload. Errors are always
// *errors.OpsError.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]interface{}) (p Payload, err error) {
	name = strings.TrimSpace(name)
	op, ok := d.ops[name]
	if !ok {
		d.observe(name, time.Now(), errors.NewUnknownOperationError(name))
		return nil, errors.NewUnknownOperationError(name)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("operation panicked", "operation", name, "panic", r)
			p, err = nil, errors.NewInternalError("operation "+name+" failed", nil)
		}
		d.observe(name, start, err)
	}()

	p, err = op.handler(ctx, Args(args))
	if err != nil {
		var oe *errors.OpsError
		if !stderrors.As(err, &oe) {
			err = errors.NewInternalError("operation "+name+" failed", err)
		}
		return nil, err
	}
	return p, nil
}

func (d *Dispatcher) observe(name string, start time.Time, err error) {
	elapsed := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(errors.CodeOf(err)))
		d.logger.Debug("operation failed", "operation", name, "error", err, "elapsed", elapsed)
	} else {
		d.logger.Debug("operation completed", "operation", name, "elapsed", elapsed)
	}
	if d.onCall != nil {
		d.onCall(name, outcome, elapsed)
	}
}

// Respond renders a payload or an error into the wire shape.
func Respond(p Payload, err error) Response {
	if err != nil {
		resp := Response{"error": err.Error(), "code": string(errors.CodeOf(err))}
		var oe *errors.OpsError
		if stderrors.As(err, &oe) {
			resp["error"] = oe.Message
			if oe.Details != nil {
				resp["details"] = oe.Details
			}
			if len(oe.SuggestedFixes) > 0 {
				resp["suggested_fixes"] = oe.SuggestedFixes
			}
		}
		return resp
	}
	resp := make(Response, len(p)+1)
	for k, v := range p {
		resp[k] = v
	}
	resp["ok"] = true
	return resp
}

// PublishHeal announces a due date a read corrected and persisted. It is
// meant for storage.Options.OnHeal, so observers see that write too.
func (d *Dispatcher) PublishHeal(r *record.Record) {
	d.publish(notify.EventUpdate, map[string]interface{}{
		"td_number": r.Identifier,
		"row_id":    r.RowID,
		"version":   r.Version,
		"updates":   map[string]interface{}{"due_date": r.DueDate},
		"healed":    true,
	})
}

func (d *Dispatcher) publish(kind notify.EventKind, payload map[string]interface{}) {
	if d.publisher == nil {
		return
	}
	d.publisher.Publish(kind, payload)
}

func records(rs []*record.Record) []map[string]interface{} {
	out := make([]map[string]interface{}, len(rs))
	for i, r := range rs {
		out[i] = r.Map()
	}
	return out
}

func list(rs []*record.Record) Payload {
	return Payload{"items": records(rs), "count": len(rs)}
}
