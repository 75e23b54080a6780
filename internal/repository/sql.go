package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/thirdeye/internal/domain"
)

// Dialect identifies the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements Store on database/sql, backed by SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// DetectDialect picks the backend from a DSN.
func DetectDialect(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// NewSQLStore opens the database named by dsn and runs migrations.
func NewSQLStore(dsn string) (*SQLStore, error) {
	dialect := DetectDialect(dsn)
	driver := "sqlite3"
	if dialect == DialectPostgres {
		driver = "pgx"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// For in-memory SQLite, multiple connections create separate databases.
		if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
		} else if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}

	store := &SQLStore{db: db, dialect: dialect}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Dialect returns the backend in use.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate() error {
	ts := "DATETIME"
	if s.dialect == DialectPostgres {
		ts = "TIMESTAMPTZ"
	}
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			route TEXT,
			route_name TEXT,
			created_at TS_TYPE NOT NULL,
			updated_at TS_TYPE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at)`,
		`CREATE TABLE IF NOT EXISTS session_context (
			session_id TEXT NOT NULL,
			ctx_key TEXT NOT NULL,
			value TEXT NOT NULL,
			source TEXT,
			added_at TS_TYPE NOT NULL,
			PRIMARY KEY (session_id, ctx_key)
		)`,
		`CREATE TABLE IF NOT EXISTS progress (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			eye TEXT NOT NULL,
			outcome TEXT NOT NULL,
			completed_at TS_TYPE NOT NULL,
			rerun BOOLEAN NOT NULL DEFAULT FALSE,
			reason TEXT,
			PRIMARY KEY (session_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS personas (
			eye TEXT NOT NULL,
			version INTEGER NOT NULL,
			content TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TS_TYPE NOT NULL,
			PRIMARY KEY (eye, version)
		)`,
		`CREATE TABLE IF NOT EXISTS routing (
			eye TEXT PRIMARY KEY,
			primary_provider TEXT NOT NULL,
			primary_model TEXT NOT NULL,
			fallback_provider TEXT,
			fallback_model TEXT,
			temperature DOUBLE PRECISION,
			max_tokens INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS routes (
			name TEXT PRIMARY KEY,
			steps TEXT NOT NULL,
			entry TEXT,
			updated_at TS_TYPE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS duels (
			duel_id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			eye TEXT NOT NULL,
			prompt TEXT,
			configs TEXT NOT NULL,
			results TEXT,
			ranking TEXT,
			status TEXT NOT NULL,
			iterations INTEGER NOT NULL DEFAULT 0,
			summary TEXT,
			error TEXT,
			created_at TS_TYPE NOT NULL,
			updated_at TS_TYPE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_duels_status ON duels(status)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			ts BIGINT NOT NULL,
			type TEXT NOT NULL,
			payload TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, ts)`,
	}

	for _, m := range migrations {
		m = strings.ReplaceAll(m, "TS_TYPE", ts)
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func marshalString(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func unmarshalEyes(ns sql.NullString) []domain.Eye {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var eyes []domain.Eye
	if err := json.Unmarshal([]byte(ns.String), &eyes); err != nil {
		return nil
	}
	return eyes
}

func now() time.Time {
	return time.Now().UTC()
}
