package storage

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"psurops/internal/errors"
	"psurops/internal/projection"
	"psurops/internal/record"
	"psurops/internal/slogutil"
)

// DefaultTimeout bounds each backend call when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// maxCASAttempts bounds optimistic retries when a row changes between the
// read and the conditional write of a mutation.
const maxCASAttempts = 8

// Options configures a Store.
type Options struct {
	Timeout time.Duration
	Logger  *slog.Logger
	Clock   func() time.Time
	// OnHeal is called after a read persisted a corrected due date.
	OnHeal func(r *record.Record)
}

// ReadOption adjusts a read.
type ReadOption func(*readConfig)

type readConfig struct {
	pure bool
}

// Pure makes a read side-effect free: the due date is corrected in the
// returned copy only and nothing is written.
func Pure() ReadOption {
	return func(c *readConfig) { c.pure = true }
}

// Store is the record store. By default reads are healing: a row whose
// stored due date disagrees with its period end is rewritten (bumping its
// version) before being returned. Pass Pure() to suppress the write.
type Store struct {
	backend Backend
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
	onHeal  func(*record.Record)
}

// NewStore wraps backend.
func NewStore(backend Backend, opts Options) *Store {
	s := &Store{
		backend: backend,
		logger:  opts.Logger,
		timeout: opts.Timeout,
		now:     opts.Clock,
		onHeal:  opts.OnHeal,
	}
	if s.logger == nil {
		s.logger = slogutil.NewDiscardLogger()
	}
	s.logger = s.logger.With("component", "store")
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Backend returns the wrapped backend.
func (s *Store) Backend() Backend { return s.backend }

// Now returns the store clock's current time.
func (s *Store) Now() time.Time { return s.now() }

// Close closes the backend.
func (s *Store) Close() error { return s.backend.Close() }

// Ping checks the backend within the store timeout.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.backend.Ping(ctx); err != nil {
		return errors.NewBackendUnavailableError("ping", err)
	}
	return nil
}

// call runs fn against the backend under the store timeout and converts any
// failure other than ErrRowNotFound into BackendUnavailable.
func (s *Store) call(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := fn(ctx)
	if err == nil || stderrors.Is(err, ErrRowNotFound) {
		return err
	}
	var oe *errors.OpsError
	if stderrors.As(err, &oe) {
		return err
	}
	s.logger.Warn("backend call failed", "op", op, "error", err)
	return errors.NewBackendUnavailableError(op, err)
}

// Create inserts a new record. A blank identifier is replaced by the next
// generated one, allocated by the backend in the same step as the insert.
// That path is not retry-safe: a retried call after a lost response
// allocates a second identifier.
func (s *Store) Create(ctx context.Context, r *record.Record) (*record.Record, error) {
	r = r.Clone()
	r.Identifier = strings.TrimSpace(r.Identifier)
	now := s.now().UTC()
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Derive()

	err := s.call(ctx, "create", func(ctx context.Context) error {
		if r.Identifier != "" {
			id, err := s.backend.Insert(ctx, r)
			r.RowID = id
			return err
		}
		id, identifier, err := s.backend.InsertNext(ctx, r, record.NextIdentifier)
		r.RowID, r.Identifier = id, identifier
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("record created", "identifier", r.Identifier, "row_id", r.RowID)
	return r, nil
}

func (s *Store) list(ctx context.Context) ([]*record.Record, error) {
	var rs []*record.Record
	err := s.call(ctx, "list", func(ctx context.Context) error {
		var err error
		rs, err = s.backend.List(ctx)
		return err
	})
	return rs, err
}

// ReadByIdentifier returns the oldest row carrying identifier.
func (s *Store) ReadByIdentifier(ctx context.Context, identifier string, opts ...ReadOption) (*record.Record, error) {
	rs, err := s.rowsFor(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, errors.NewNotFoundError("record", identifier)
	}
	return s.settle(ctx, rs[0], opts)
}

// ReadAllByIdentifier returns every row carrying identifier in insertion
// order. No match yields an empty slice.
func (s *Store) ReadAllByIdentifier(ctx context.Context, identifier string, opts ...ReadOption) ([]*record.Record, error) {
	rs, err := s.rowsFor(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return s.settleAll(ctx, rs, opts)
}

func (s *Store) rowsFor(ctx context.Context, identifier string) ([]*record.Record, error) {
	var rs []*record.Record
	err := s.call(ctx, "read", func(ctx context.Context) error {
		var err error
		rs, err = s.backend.ListByIdentifier(ctx, identifier)
		return err
	})
	return rs, err
}

// ReadBySecondaryKey returns the oldest row whose report number matches key.
func (s *Store) ReadBySecondaryKey(ctx context.Context, key string, opts ...ReadOption) (*record.Record, error) {
	var r *record.Record
	err := s.call(ctx, "read", func(ctx context.Context) error {
		var err error
		r, err = s.backend.FindBySecondaryKey(ctx, key)
		return err
	})
	if stderrors.Is(err, ErrRowNotFound) {
		return nil, errors.NewNotFoundError("report number", key)
	}
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, r, opts)
}

// ReadRow returns a row by its internal id.
func (s *Store) ReadRow(ctx context.Context, rowID int64, opts ...ReadOption) (*record.Record, error) {
	var r *record.Record
	err := s.call(ctx, "read", func(ctx context.Context) error {
		var err error
		r, err = s.backend.Get(ctx, rowID)
		return err
	})
	if stderrors.Is(err, ErrRowNotFound) {
		return nil, errors.NewNotFoundError("row", formatRowID(rowID))
	}
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, r, opts)
}

// All returns every record in insertion order.
func (s *Store) All(ctx context.Context, opts ...ReadOption) ([]*record.Record, error) {
	rs, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	return s.settleAll(ctx, rs, opts)
}

// Search matches text against the searchable attributes.
func (s *Store) Search(ctx context.Context, text string, limit int, opts ...ReadOption) ([]*record.Record, error) {
	rs, err := s.All(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return projection.Search(rs, text, limit), nil
}

// Filter returns records matching c in projection order.
func (s *Store) Filter(ctx context.Context, c projection.Criteria, opts ...ReadOption) ([]*record.Record, error) {
	rs, err := s.All(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return projection.Apply(rs, c, s.now()), nil
}

// FindMissing returns records with any of fields blank.
func (s *Store) FindMissing(ctx context.Context, fields []string, opts ...ReadOption) ([]projection.MissingEntry, error) {
	canonical := make([]string, 0, len(fields))
	for _, f := range fields {
		fd, ok := record.Lookup(f)
		if !ok {
			return nil, errors.NewValidationError("unknown field: %s", f)
		}
		canonical = append(canonical, fd.Name)
	}
	rs, err := s.All(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return projection.Missing(rs, canonical), nil
}

// DuplicateIdentifiers lists identifiers held by more than one row, sorted.
func (s *Store) DuplicateIdentifiers(ctx context.Context) ([]string, error) {
	rs, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	return projection.Duplicates(rs), nil
}

// Statistics aggregates over every record.
func (s *Store) Statistics(ctx context.Context, opts ...ReadOption) (projection.Stats, error) {
	rs, err := s.All(ctx, opts...)
	if err != nil {
		return projection.Stats{}, err
	}
	return projection.Summarize(rs, s.now()), nil
}

// Update applies fields to the oldest row carrying identifier. Identity,
// audit, derived and log fields are silently dropped; a request that names
// nothing else fails with ImmutableField. Duplicates beyond the first row are
// left untouched.
func (s *Store) Update(ctx context.Context, identifier string, fields map[string]interface{}) (*record.Record, error) {
	patch, err := record.ParsePatch(fields)
	if err != nil {
		return nil, err
	}
	removed := patch.StripProtected()
	if patch.Empty() {
		if len(removed) > 0 {
			return nil, errors.NewImmutableFieldError(removed...)
		}
		return nil, errors.NewValidationError("no fields to update")
	}
	if len(removed) > 0 {
		s.logger.Debug("dropped protected fields", "identifier", identifier, "fields", removed)
	}

	rs, err := s.rowsFor(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, errors.NewNotFoundError("record", identifier)
	}
	return s.UpdateRow(ctx, rs[0].RowID, patch)
}

// UpdateRow applies patch to a single row.
func (s *Store) UpdateRow(ctx context.Context, rowID int64, patch *record.Patch) (*record.Record, error) {
	return s.Mutate(ctx, rowID, func(r *record.Record) error {
		patch.Apply(r)
		return nil
	})
}

// AppendNote adds a timestamped line to the oldest row carrying identifier.
func (s *Store) AppendNote(ctx context.Context, identifier, text string) (*record.Record, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.NewValidationError("note text is required")
	}
	rs, err := s.rowsFor(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, errors.NewNotFoundError("record", identifier)
	}
	at := s.now()
	return s.Mutate(ctx, rs[0].RowID, func(r *record.Record) error {
		r.AppendNote(at, text)
		return nil
	})
}

// Mutate performs an atomic read-modify-write of one row. fn sees a private
// copy; the due date is re-derived afterwards, the version goes up by exactly
// one and updated_at is stamped. Concurrent writers are serialized by a
// version check and retried.
func (s *Store) Mutate(ctx context.Context, rowID int64, fn func(*record.Record) error) (*record.Record, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		var cur *record.Record
		err := s.call(ctx, "update", func(ctx context.Context) error {
			var err error
			cur, err = s.backend.Get(ctx, rowID)
			return err
		})
		if stderrors.Is(err, ErrRowNotFound) {
			return nil, errors.NewNotFoundError("row", formatRowID(rowID))
		}
		if err != nil {
			return nil, err
		}

		next := cur.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.RowID = cur.RowID
		next.Identifier = cur.Identifier
		next.CreatedAt = cur.CreatedAt
		next.Derive()
		next.Version = cur.Version + 1
		next.UpdatedAt = s.now().UTC()

		var ok bool
		err = s.call(ctx, "update", func(ctx context.Context) error {
			var err error
			ok, err = s.backend.Replace(ctx, next, cur.Version)
			return err
		})
		if err != nil {
			return nil, err
		}
		if ok {
			return next, nil
		}
		s.logger.Debug("concurrent modification, retrying", "row_id", rowID, "attempt", attempt+1)
	}
	return nil, errors.NewBackendUnavailableError("update",
		stderrors.New("row kept changing during update of "+formatRowID(rowID)))
}

// Delete removes every row carrying identifier and returns how many went.
func (s *Store) Delete(ctx context.Context, identifier string) (int, error) {
	var n int
	err := s.call(ctx, "delete", func(ctx context.Context) error {
		var err error
		n, err = s.backend.DeleteByIdentifier(ctx, identifier)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errors.NewNotFoundError("record", identifier)
	}
	s.logger.Info("records deleted", "identifier", identifier, "rows", n)
	return n, nil
}

// DeleteRow removes one row by internal id, leaving duplicates alone.
func (s *Store) DeleteRow(ctx context.Context, rowID int64) error {
	var ok bool
	err := s.call(ctx, "delete", func(ctx context.Context) error {
		var err error
		ok, err = s.backend.DeleteRow(ctx, rowID)
		return err
	})
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewNotFoundError("row", formatRowID(rowID))
	}
	return nil
}

// Reload replaces the whole record set. Each record is stamped as freshly
// created and its due date derived; blank identifiers are generated.
func (s *Store) Reload(ctx context.Context, rs []*record.Record) (int, error) {
	now := s.now().UTC()
	var ids []string
	prepared := make([]*record.Record, 0, len(rs))
	for _, r := range rs {
		c := r.Clone()
		c.Identifier = strings.TrimSpace(c.Identifier)
		if c.Identifier != "" {
			ids = append(ids, c.Identifier)
		}
		prepared = append(prepared, c)
	}
	for _, c := range prepared {
		if c.Identifier == "" {
			c.Identifier = record.NextIdentifier(ids)
			ids = append(ids, c.Identifier)
		}
		c.Version = 1
		c.CreatedAt = now
		c.UpdatedAt = now
		c.Derive()
	}

	err := s.call(ctx, "reload", func(ctx context.Context) error {
		return s.backend.Reload(ctx, prepared)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("records reloaded", "rows", len(prepared))
	return len(prepared), nil
}

// settle returns r with a consistent due date, persisting the correction
// unless the read is pure.
func (s *Store) settle(ctx context.Context, r *record.Record, opts []ReadOption) (*record.Record, error) {
	var cfg readConfig
	for _, o := range opts {
		o(&cfg)
	}
	if r.DerivedDue() == r.DueDate {
		return r, nil
	}
	if cfg.pure {
		c := r.Clone()
		c.Derive()
		return c, nil
	}
	healed, err := s.Mutate(ctx, r.RowID, func(*record.Record) error { return nil })
	if err != nil {
		return nil, err
	}
	s.logger.Info("healed due date", "identifier", healed.Identifier, "row_id", healed.RowID, "due_date", healed.DueDate)
	if s.onHeal != nil {
		s.onHeal(healed)
	}
	return healed, nil
}

func (s *Store) settleAll(ctx context.Context, rs []*record.Record, opts []ReadOption) ([]*record.Record, error) {
	out := make([]*record.Record, 0, len(rs))
	for _, r := range rs {
		settled, err := s.settle(ctx, r, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, settled)
	}
	return out, nil
}

func formatRowID(id int64) string {
	return "#" + strconv.FormatInt(id, 10)
}
