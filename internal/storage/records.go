package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"psurops/internal/record"
)

const recordColumns = `identifier, report_number, classification, report_type, product_name,
	catalog_number, writer, contact, period_start, period_end, cadence, due_date, status,
	secondary_flags, notes, version, created_at, updated_at`

const selectRecords = `SELECT row_id, ` + recordColumns + ` FROM psur_records`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s rowScanner) (*record.Record, error) {
	var (
		r                    record.Record
		flags                string
		createdAt, updatedAt string
	)
	err := s.Scan(&r.RowID, &r.Identifier, &r.ReportNumber, &r.Classification, &r.ReportType,
		&r.ProductName, &r.CatalogNumber, &r.Writer, &r.Contact, &r.PeriodStart, &r.PeriodEnd,
		&r.Cadence, &r.DueDate, &r.Status, &flags, &r.Notes, &r.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if flags != "" && flags != "{}" {
		if err := json.Unmarshal([]byte(flags), &r.SecondaryFlags); err != nil {
			return nil, fmt.Errorf("row %d: bad secondary_flags: %w", r.RowID, err)
		}
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &r, nil
}

func recordArgs(r *record.Record) ([]interface{}, error) {
	flags := []byte("{}")
	if len(r.SecondaryFlags) > 0 {
		var err error
		if flags, err = json.Marshal(r.SecondaryFlags); err != nil {
			return nil, err
		}
	}
	return []interface{}{
		r.Identifier, r.ReportNumber, r.Classification, r.ReportType, r.ProductName,
		r.CatalogNumber, r.Writer, r.Contact, r.PeriodStart, r.PeriodEnd, r.Cadence, r.DueDate, r.Status,
		string(flags), r.Notes, r.Version,
		r.CreatedAt.UTC().Format(time.RFC3339Nano), r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

type execQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (db *DB) insert(ctx context.Context, q execQuerier, r *record.Record) (int64, error) {
	args, err := recordArgs(r)
	if err != nil {
		return 0, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	query := db.rebind(`INSERT INTO psur_records (` + recordColumns + `) VALUES (` + placeholders + `) RETURNING row_id`)

	var id int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert record: %w", err)
	}
	return id, nil
}

// Insert stores r and returns its row id.
func (db *DB) Insert(ctx context.Context, r *record.Record) (int64, error) {
	return db.insert(ctx, db.conn, r)
}

// InsertNext allocates the identifier and inserts in one transaction. Postgres
// takes a self-conflicting table lock so concurrent allocators queue; SQLite
// runs on a single connection and is already serialized.
func (db *DB) InsertNext(ctx context.Context, r *record.Record, next func([]string) string) (int64, string, error) {
	var (
		id         int64
		identifier string
	)
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if db.dialect == dialectPostgres {
			if _, err := tx.ExecContext(ctx, `LOCK TABLE psur_records IN SHARE ROW EXCLUSIVE MODE`); err != nil {
				return fmt.Errorf("failed to lock records: %w", err)
			}
		}
		rows, err := tx.QueryContext(ctx, `SELECT identifier FROM psur_records`)
		if err != nil {
			return fmt.Errorf("failed to read identifiers: %w", err)
		}
		var ids []string
		for rows.Next() {
			var s string
			if err := rows.Scan(&s); err != nil {
				_ = rows.Close()
				return err
			}
			ids = append(ids, s)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		c := r.Clone()
		c.Identifier = next(ids)
		identifier = c.Identifier
		id, err = db.insert(ctx, tx, c)
		return err
	})
	if err != nil {
		return 0, "", err
	}
	return id, identifier, nil
}

// Get loads one row.
func (db *DB) Get(ctx context.Context, rowID int64) (*record.Record, error) {
	row := db.conn.QueryRowContext(ctx, db.rebind(selectRecords+` WHERE row_id = ?`), rowID)
	r, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrRowNotFound
	}
	return r, err
}

func (db *DB) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*record.Record, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// List returns every row in insertion order.
func (db *DB) List(ctx context.Context) ([]*record.Record, error) {
	return db.queryRecords(ctx, selectRecords+` ORDER BY row_id`)
}

// ListByIdentifier returns every row carrying identifier, oldest first.
func (db *DB) ListByIdentifier(ctx context.Context, identifier string) ([]*record.Record, error) {
	return db.queryRecords(ctx, selectRecords+` WHERE identifier = ? ORDER BY row_id`, identifier)
}

// FindBySecondaryKey returns the oldest row whose report number matches key.
func (db *DB) FindBySecondaryKey(ctx context.Context, key string) (*record.Record, error) {
	row := db.conn.QueryRowContext(ctx,
		db.rebind(selectRecords+` WHERE LOWER(report_number) = LOWER(?) ORDER BY row_id LIMIT 1`), key)
	r, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrRowNotFound
	}
	return r, err
}

// Replace writes r if the stored version still equals prevVersion.
func (db *DB) Replace(ctx context.Context, r *record.Record, prevVersion int64) (bool, error) {
	args, err := recordArgs(r)
	if err != nil {
		return false, err
	}
	cols := strings.Split(recordColumns, ",")
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = strings.TrimSpace(c) + " = ?"
	}
	query := db.rebind(`UPDATE psur_records SET ` + strings.Join(sets, ", ") + ` WHERE row_id = ? AND version = ?`)
	args = append(args, r.RowID, prevVersion)

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update row %d: %w", r.RowID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteByIdentifier removes every row carrying identifier.
func (db *DB) DeleteByIdentifier(ctx context.Context, identifier string) (int, error) {
	res, err := db.conn.ExecContext(ctx, db.rebind(`DELETE FROM psur_records WHERE identifier = ?`), identifier)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", identifier, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeleteRow removes a single row.
func (db *DB) DeleteRow(ctx context.Context, rowID int64) (bool, error) {
	res, err := db.conn.ExecContext(ctx, db.rebind(`DELETE FROM psur_records WHERE row_id = ?`), rowID)
	if err != nil {
		return false, fmt.Errorf("failed to delete row %d: %w", rowID, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Reload replaces every row inside one transaction.
func (db *DB) Reload(ctx context.Context, rs []*record.Record) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM psur_records`); err != nil {
			return fmt.Errorf("failed to clear records: %w", err)
		}
		for _, r := range rs {
			if _, err := db.insert(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}
