// Package database provides connection management for the Postgres (pgx) and
// SQLite (modernc) stores, including schema creation.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

// Config holds PostgreSQL connection settings read from environment variables.
type Config struct {
	Host     string `env:"DB_HOST"     envDefault:"localhost"`
	Port     string `env:"DB_PORT"     envDefault:"5432"`
	User     string `env:"DB_USER"     envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName   string `env:"DB_NAME"     envDefault:"activities"`
	SSLMode  string `env:"DB_SSLMODE"  envDefault:"disable"`
}

// DSN builds a libpq-compatible connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

const connectAttempts = 5

// NewPool creates and validates a pgxpool connection pool.
// It retries a few times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	for attempt := 1; attempt <= connectAttempts; attempt++ {
		var pool *pgxpool.Pool
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		logger.Warn("db connect attempt failed",
			"attempt", attempt,
			"max_attempts", connectAttempts,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("connect to postgres: %w", err)
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS activities (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	kind                    TEXT NOT NULL,
	capacity                INTEGER NOT NULL CHECK (capacity > 0),
	spots_left              INTEGER NOT NULL CHECK (spots_left >= 0 AND spots_left <= capacity),
	family_limit_kind       TEXT NOT NULL,
	family_limit_value      INTEGER NOT NULL DEFAULT 0,
	starts_at               TIMESTAMPTZ,
	registration_deadline   TIMESTAMPTZ,
	unregistration_deadline TIMESTAMPTZ,
	created_at              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS registrations (
	id            TEXT PRIMARY KEY,
	activity_id   TEXT NOT NULL REFERENCES activities(id),
	registrant_id TEXT NOT NULL,
	seats_held    INTEGER NOT NULL CHECK (seats_held > 0),
	created_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (activity_id, registrant_id)
);

CREATE TABLE IF NOT EXISTS waiting_list (
	activity_id   TEXT NOT NULL REFERENCES activities(id),
	position      INTEGER NOT NULL,
	registrant_id TEXT NOT NULL,
	party_size    INTEGER NOT NULL CHECK (party_size > 0),
	requested_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (activity_id, position)
);
`

// Migrate creates the Postgres schema if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS activities (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	kind                    TEXT NOT NULL,
	capacity                INTEGER NOT NULL CHECK (capacity > 0),
	spots_left              INTEGER NOT NULL CHECK (spots_left >= 0 AND spots_left <= capacity),
	family_limit_kind       TEXT NOT NULL,
	family_limit_value      INTEGER NOT NULL DEFAULT 0,
	starts_at               TEXT NOT NULL DEFAULT '',
	registration_deadline   TEXT NOT NULL DEFAULT '',
	unregistration_deadline TEXT NOT NULL DEFAULT '',
	created_at              TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS registrations (
	id            TEXT PRIMARY KEY,
	activity_id   TEXT NOT NULL REFERENCES activities(id),
	registrant_id TEXT NOT NULL,
	seats_held    INTEGER NOT NULL CHECK (seats_held > 0),
	created_at    TEXT NOT NULL,
	UNIQUE (activity_id, registrant_id)
);

CREATE TABLE IF NOT EXISTS waiting_list (
	activity_id   TEXT NOT NULL REFERENCES activities(id),
	position      INTEGER NOT NULL,
	registrant_id TEXT NOT NULL,
	party_size    INTEGER NOT NULL CHECK (party_size > 0),
	requested_at  TEXT NOT NULL,
	PRIMARY KEY (activity_id, position)
);
`

// OpenSQLite opens (creating if needed) the SQLite database at path with WAL
// journaling and foreign keys enforced, and applies the schema.
//
// Transactions begin IMMEDIATE, so a transaction holds the database write
// lock from its first read. Other connections, in this process or another,
// wait up to the busy timeout for it to finish.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path + "?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the store's transactions.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}
