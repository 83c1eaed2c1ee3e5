package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"natsume/internal/config"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrBindingExists = errors.New("binding already exists")
)

type DB struct {
	conn   *sql.DB
	driver string
}

// NewDB opens the store selected by cfg and creates the schema.
func NewDB(ctx context.Context, cfg *config.ServerConfig) (*DB, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return Open(ctx, config.DriverPostgres, cfg.PostgresDSN(), cfg.DBMaxConns)
	default:
		return Open(ctx, config.DriverSQLite, SQLiteDSN(cfg.DBPath, cfg.DBBusyTimeoutMS), cfg.DBMaxConns)
	}
}

// SQLiteDSN enables WAL so readers proceed during writes, and a bounded busy
// wait instead of failing immediately on lock contention.
func SQLiteDSN(path string, busyTimeoutMS int) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		path, busyTimeoutMS)
}

func Open(ctx context.Context, driver, dsn string, maxConns int) (*DB, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(maxConns)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn:   conn,
		driver: driver,
	}

	if err := db.createTables(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bindings (
			mac TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			ip TEXT NOT NULL DEFAULT '',
			client_version TEXT NOT NULL DEFAULT '',
			last_seen BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			password TEXT NOT NULL,
			synced INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bindings_id ON bindings(id)`,
		`CREATE INDEX IF NOT EXISTS idx_bindings_last_seen ON bindings(last_seen)`,
		`CREATE INDEX IF NOT EXISTS idx_credentials_synced ON credentials(synced)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s, error: %w", query, err)
		}
	}

	return nil
}

// withConn holds one pooled connection for the duration of fn.
func (db *DB) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return db.withConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// q rewrites ? placeholders into $n for PostgreSQL. Queries in this package
// never contain a literal question mark.
func (db *DB) q(query string) string {
	if db.driver != config.DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
