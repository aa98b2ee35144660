package sqlx_test

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	source "cachecompare/adapters/sqlx"
	"cachecompare/core"
)

func newMockSource(t *testing.T, driver source.Driver) (*source.Source, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	src := source.NewWithDB(libsqlx.NewDb(db, string(driver)), driver)
	cleanup := func() {
		_ = db.Close()
	}
	return src, mock, cleanup
}

func TestSQLMock_FetchUser_Postgres(t *testing.T) {
	src, mock, cleanup := newMockSource(t, source.DriverPostgres)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, name, email FROM users WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}).AddRow(7, "Ada", "ada@example.com"))

	rec, err := src.FetchUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, core.UserRecord{ID: 7, Name: "Ada", Email: "ada@example.com"}, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_FetchUser_MySQLPlaceholder(t *testing.T) {
	src, mock, cleanup := newMockSource(t, source.DriverMySQL)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, name, email FROM users WHERE id = \?`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}).AddRow(1, "Lin", "lin@example.com"))

	_, err := src.FetchUser(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_FetchUser_NotFound(t *testing.T) {
	src, mock, cleanup := newMockSource(t, source.DriverPostgres)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, name, email FROM users`).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}))

	_, err := src.FetchUser(context.Background(), 404)
	require.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_FetchUser_DriverError(t *testing.T) {
	src, mock, cleanup := newMockSource(t, source.DriverPostgres)
	defer cleanup()

	boom := errors.New("connection refused")
	mock.ExpectQuery(`SELECT id, name, email FROM users`).
		WithArgs(int64(1)).
		WillReturnError(boom)

	_, err := src.FetchUser(context.Background(), 1)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, core.ErrNotFound)
}

func TestSQLMock_Migrate(t *testing.T) {
	src, mock, cleanup := newMockSource(t, source.DriverMySQL)
	defer cleanup()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, src.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := source.New(source.Config{Driver: "oracle", DSN: "x"})
	require.Error(t, err)
	_, err = source.New(source.DefaultConfig(source.DriverPostgres))
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := source.DefaultConfig(source.DriverMySQL)
	assert.Equal(t, source.DriverMySQL, cfg.Driver)
	assert.Equal(t, 20, cfg.MaxOpenConns)
	assert.Empty(t, cfg.DSN)
}
