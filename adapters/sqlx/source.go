// Package sqlx provides the SQL user source behind the user cache.
package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"cachecompare/core"
	"cachecompare/engine"
)

type Driver string

const (
	DriverMySQL    Driver = "mysql"
	DriverPostgres Driver = "postgres"
)

// Config holds SQL connection settings.
type Config struct {
	Driver          Driver        `json:"driver" env:"CACHECOMPARE_SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"CACHECOMPARE_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"CACHECOMPARE_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"CACHECOMPARE_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"CACHECOMPARE_SQL_CONN_MAX_LIFETIME"`
}

// DefaultConfig returns pool defaults for driver. DSN must still be set.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Source reads user profiles from a users(id, name, email) table.
type Source struct {
	db     *sqlx.DB
	driver Driver
}

// New opens and pings the database.
func New(cfg Config) (*Source, error) {
	switch cfg.Driver {
	case DriverMySQL, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql driver: %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, errors.New("sql dsn is required")
	}
	db, err := sqlx.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}
	return &Source{db: db, driver: cfg.Driver}, nil
}

// NewWithDB wraps an existing handle (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Source {
	return &Source{db: db, driver: driver}
}

type userRow struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Email string `db:"email"`
}

// FetchUser loads one user. Unknown ids yield core.ErrNotFound.
func (s *Source) FetchUser(ctx context.Context, id core.UserID) (core.UserRecord, error) {
	var row userRow
	q := s.db.Rebind(`SELECT id, name, email FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, q, int64(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.UserRecord{}, fmt.Errorf("user %d: %w", id, core.ErrNotFound)
		}
		return core.UserRecord{}, fmt.Errorf("query user %d: %w", id, err)
	}
	return core.UserRecord{ID: core.UserID(row.ID), Name: row.Name, Email: row.Email}, nil
}

// Migrate creates the users table when it does not exist.
func (s *Source) Migrate(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS users (
	id BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	email VARCHAR(255) NOT NULL
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Source) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Source) Close() error { return s.db.Close() }

var _ engine.UserSource = (*Source)(nil)
