package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// DB is the process-wide handle. Queries run on a Session acquired per request.
type DB struct {
	conn   *sql.DB
	driver string
}

// Open connects with the given driver ("sqlite" or "pgx") and applies the schema.
func Open(driver, dsn string) (*DB, error) {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = sqliteSchema
	case DriverPostgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if driver == DriverSQLite {
		// One connection keeps :memory: databases coherent and serializes writers.
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting WAL mode: %w", err)
		}
		if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	}

	for _, stmt := range splitStatements(schema) {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return &DB{conn: conn, driver: driver}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Driver() string { return d.driver }

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// Session acquires a dedicated connection. Callers must Close it when done.
func (d *DB) Session(ctx context.Context) (*Session, error) {
	c, err := d.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	return &Session{conn: c, driver: d.driver}, nil
}

// WithSession runs fn on a fresh session and releases it afterwards.
func (d *DB) WithSession(ctx context.Context, fn func(*Session) error) error {
	s, err := d.Session(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func splitStatements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
