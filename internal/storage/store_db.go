package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver with database/sql
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver with database/sql
)

type dialect struct {
	name   string
	schema string
	get    string
	upsert string
}

var (
	postgresDialect = dialect{
		name: "postgres",
		schema: `
			CREATE TABLE IF NOT EXISTS kv (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		get: `SELECT value FROM kv WHERE key = $1`,
		upsert: `
			INSERT INTO kv (key, value)
			VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
	}

	sqliteDialect = dialect{
		name: "sqlite",
		schema: `
			CREATE TABLE IF NOT EXISTS kv (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		get: `SELECT value FROM kv WHERE key = ?`,
		upsert: `
			INSERT INTO kv (key, value)
			VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
	}
)

// SQLStore keeps slots in a two-column kv table.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, d: postgresDialect}
}

func NewSQLiteStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, d: sqliteDialect}
}

// OpenPostgres opens dsn with the pgx driver and ensures the kv table exists.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.OpenPostgres: %w", err)
	}
	s := NewPostgresStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens (or creates) the database file at path and ensures the kv
// table exists.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storage.OpenSQLite: %w", err)
	}
	// one writer keeps last-write-wins ordering on the single slot
	db.SetMaxOpenConns(1)

	s := NewSQLiteStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, s.d.schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage %s migrate: %w", s.d.name, err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, s.d.get, key).Scan(&v)
	})

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, s.d.upsert, key, value)
		return err
	})
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
