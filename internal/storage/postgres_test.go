package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psurops/internal/record"
)

func withMockOpen(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)

	openMu.Lock()
	prev := sqlOpen
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		assert.Equal(t, postgresDriver, driver)
		return conn, nil
	}
	openMu.Unlock()

	t.Cleanup(func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
		_ = conn.Close()
	})
	return mock
}

func expectSchemaVersion(mock sqlmock.Sqlmock, v int) {
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_version`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT MAX\(version\) FROM schema_version`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(v))
}

func TestOpenPostgres_FreshSchema(t *testing.T) {
	mock := withMockOpen(t)
	expectSchemaVersion(mock, 0)
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS psur_records \(\s*row_id BIGSERIAL PRIMARY KEY`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	for i := 0; i < 5; i++ {
		mock.ExpectExec(`CREATE INDEX IF NOT EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(`DELETE FROM schema_version`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_version \(version\) VALUES \(\$1\)`).
		WithArgs(currentSchemaVersion).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	db, err := OpenPostgres(context.Background(), "postgres://ops:secret@db/psur", nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres", db.Name())
	assert.Equal(t, "postgres://ops:xxxxx@db/psur", db.source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenPostgres_NewerSchemaRejected(t *testing.T) {
	mock := withMockOpen(t)
	expectSchemaVersion(mock, currentSchemaVersion+1)
	mock.ExpectClose()

	_, err := OpenPostgres(context.Background(), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestPostgres_Queries(t *testing.T) {
	mock := withMockOpen(t)
	expectSchemaVersion(mock, currentSchemaVersion)
	db, err := OpenPostgres(context.Background(), "postgres://db/psur", nil)
	require.NoError(t, err)
	ctx := context.Background()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &record.Record{Identifier: "TD001", Version: 1, CreatedAt: now, UpdatedAt: now}

	mock.ExpectQuery(`INSERT INTO psur_records \(.*\) VALUES \(\$1, .*\$18\) RETURNING row_id`).
		WillReturnRows(sqlmock.NewRows([]string{"row_id"}).AddRow(42))
	id, err := db.Insert(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	r.RowID = 42
	r.Version = 2
	mock.ExpectExec(`UPDATE psur_records SET identifier = \$1, .* WHERE row_id = \$19 AND version = \$20`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			int64(2), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(42), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err := db.Replace(ctx, r, 1)
	require.NoError(t, err)
	assert.False(t, ok, "zero rows affected means the version moved")

	cols := []string{"row_id", "identifier", "report_number", "classification", "report_type", "product_name",
		"catalog_number", "writer", "contact", "period_start", "period_end", "cadence", "due_date", "status",
		"secondary_flags", "notes", "version", "created_at", "updated_at"}
	mock.ExpectQuery(`WHERE identifier = \$1 ORDER BY row_id`).WithArgs("TD001").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(42, "TD001", "PSUR001", "III", "", "Stent", "", "Ana", "", "", "2024-06-30", "", "2024-07-30",
				"Done", `{"canada_needed":"No"}`, "", 3, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano)))
	rs, err := db.ListByIdentifier(ctx, "TD001")
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "No", rs[0].Flag("canada_needed"))
	assert.Equal(t, int64(3), rs[0].Version)
	assert.True(t, rs[0].CreatedAt.Equal(now))

	mock.ExpectQuery(`WHERE row_id = \$1`).WithArgs(int64(9)).WillReturnRows(sqlmock.NewRows(cols))
	_, err = db.Get(ctx, 9)
	assert.ErrorIs(t, err, ErrRowNotFound)

	mock.ExpectExec(`DELETE FROM psur_records WHERE identifier = \$1`).WithArgs("TD001").
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err := db.DeleteByIdentifier(ctx, "TD001")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertNextLocksBeforeAllocating(t *testing.T) {
	mock := withMockOpen(t)
	expectSchemaVersion(mock, currentSchemaVersion)
	db, err := OpenPostgres(context.Background(), "postgres://db/psur", nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`LOCK TABLE psur_records IN SHARE ROW EXCLUSIVE MODE`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT identifier FROM psur_records`).
		WillReturnRows(sqlmock.NewRows([]string{"identifier"}).AddRow("TD004").AddRow("X-9").AddRow("TD002"))
	mock.ExpectQuery(`INSERT INTO psur_records \(.*\) VALUES \(\$1, .*\) RETURNING row_id`).
		WithArgs("TD005", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"row_id"}).AddRow(7))
	mock.ExpectCommit()

	r := &record.Record{Version: 1}
	id, identifier, err := db.InsertNext(context.Background(), r, record.NextIdentifier)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, "TD005", identifier)
	assert.Empty(t, r.Identifier, "caller's record is not modified")
	assert.NoError(t, mock.ExpectationsWereMet())
}
