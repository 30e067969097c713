package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 1

// migrate creates the schema on an empty database and checks the version of
// an existing one. Later schema changes add a migrateToVN step per version.
func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	version, err := db.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	if version == 0 {
		db.logger.Info("Creating database schema", "source", db.source, "version", currentSchemaVersion)
		return db.WithTx(ctx, func(tx *sql.Tx) error {
			if err := db.createRecordsTable(ctx, tx); err != nil {
				return err
			}
			if err := db.createRecordIndexes(ctx, tx); err != nil {
				return err
			}
			return db.setSchemaVersion(ctx, tx, currentSchemaVersion)
		})
	}

	if version == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", "version", version)
		return nil
	}
	return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
}

func (db *DB) getSchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := db.conn.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

func (db *DB) setSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("failed to clear schema version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, db.rebind(`INSERT INTO schema_version (version) VALUES (?)`), version); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

func (db *DB) createRecordsTable(ctx context.Context, tx *sql.Tx) error {
	rowID := "row_id INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.dialect == dialectPostgres {
		rowID = "row_id BIGSERIAL PRIMARY KEY"
	}
	query := `
		CREATE TABLE IF NOT EXISTS psur_records (
			` + rowID + `,
			identifier      TEXT NOT NULL DEFAULT '',
			report_number   TEXT NOT NULL DEFAULT '',
			classification  TEXT NOT NULL DEFAULT '',
			report_type     TEXT NOT NULL DEFAULT '',
			product_name    TEXT NOT NULL DEFAULT '',
			catalog_number  TEXT NOT NULL DEFAULT '',
			writer          TEXT NOT NULL DEFAULT '',
			contact         TEXT NOT NULL DEFAULT '',
			period_start    TEXT NOT NULL DEFAULT '',
			period_end      TEXT NOT NULL DEFAULT '',
			cadence         TEXT NOT NULL DEFAULT '',
			due_date        TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL DEFAULT '',
			secondary_flags TEXT NOT NULL DEFAULT '{}',
			notes           TEXT NOT NULL DEFAULT '',
			version         BIGINT NOT NULL DEFAULT 1,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		)
	`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create psur_records table: %w", err)
	}
	return nil
}

// Identifiers are indexed but never unique: duplicates are a supported state.
func (db *DB) createRecordIndexes(ctx context.Context, tx *sql.Tx) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_psur_records_identifier ON psur_records(identifier)`,
		`CREATE INDEX IF NOT EXISTS idx_psur_records_report_number ON psur_records(report_number)`,
		`CREATE INDEX IF NOT EXISTS idx_psur_records_writer ON psur_records(writer)`,
		`CREATE INDEX IF NOT EXISTS idx_psur_records_status ON psur_records(status)`,
		`CREATE INDEX IF NOT EXISTS idx_psur_records_due_date ON psur_records(due_date)`,
	}
	for _, q := range indexes {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
