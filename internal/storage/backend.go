// Package storage persists report-cycle records. A Backend is a dumb row
// store; Store layers due-date healing, identifier semantics, timeouts and
// version bumps on top of any Backend.
package storage

import (
	"context"
	stderrors "errors"

	"psurops/internal/record"
)

// ErrRowNotFound is returned by backends when a row lookup misses.
var ErrRowNotFound = stderrors.New("row not found")

// Backend is the persistence contract. Implementations must be safe for
// concurrent use. Rows are returned in insertion (row_id) order.
type Backend interface {
	// Insert stores r and returns the assigned row id. RowID on r is ignored.
	Insert(ctx context.Context, r *record.Record) (int64, error)
	// InsertNext sets r's identifier to next(every stored identifier) and
	// stores it, with no other write in between. It returns the row id and
	// the assigned identifier.
	InsertNext(ctx context.Context, r *record.Record, next func([]string) string) (int64, string, error)
	Get(ctx context.Context, rowID int64) (*record.Record, error)
	List(ctx context.Context) ([]*record.Record, error)
	ListByIdentifier(ctx context.Context, identifier string) ([]*record.Record, error)
	// FindBySecondaryKey returns the lowest row whose report number equals key
	// case-insensitively.
	FindBySecondaryKey(ctx context.Context, key string) (*record.Record, error)
	// Replace overwrites the row with r.RowID only if its stored version is
	// still prevVersion. It reports whether the write happened.
	Replace(ctx context.Context, r *record.Record, prevVersion int64) (bool, error)
	DeleteByIdentifier(ctx context.Context, identifier string) (int, error)
	DeleteRow(ctx context.Context, rowID int64) (bool, error)
	// Reload atomically replaces every row.
	Reload(ctx context.Context, rs []*record.Record) error
	Ping(ctx context.Context) error
	Name() string
	Close() error
}
