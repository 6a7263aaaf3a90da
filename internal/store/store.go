// Package store opens the relational database that generated queries run
// against.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
)

type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	// BusyTimeout applies to sqlite only.
	BusyTimeout time.Duration
}

func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	driverName, dsn, err := driverDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	idleTime, lifetime := cfg.ConnMaxIdleTime, cfg.ConnMaxLifetime
	if isInMemory(cfg) {
		// Every connection to an in-memory database sees its own copy, so
		// keep exactly one alive for the lifetime of the pool.
		maxOpen, maxIdle = 1, 1
		idleTime, lifetime = 0, 0
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if idleTime > 0 {
		db.SetConnMaxIdleTime(idleTime)
	}
	if lifetime > 0 {
		db.SetConnMaxLifetime(lifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s store: %w", cfg.Driver, err)
	}

	return db, nil
}

func driverDSN(cfg Config) (string, string, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite:
		if dsn == "" {
			return "", "", fmt.Errorf("store dsn is required")
		}
		return "sqlite3", sqliteDSN(dsn, cfg.BusyTimeout), nil
	case DriverPostgres:
		if dsn == "" {
			return "", "", fmt.Errorf("store dsn is required")
		}
		return "pgx", dsn, nil
	case DriverDuckDB:
		// An empty DSN opens an in-memory duckdb database.
		return "duckdb", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func sqliteDSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	opts := []string{
		fmt.Sprintf("_busy_timeout=%d", busyTimeout.Milliseconds()),
		"_foreign_keys=ON",
	}
	if !strings.Contains(path, ":memory:") {
		opts = append(opts, "_journal_mode=WAL")
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + strings.Join(opts, "&")
}

func isInMemory(cfg Config) bool {
	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite:
		return strings.Contains(cfg.DSN, ":memory:") || strings.Contains(cfg.DSN, "mode=memory")
	case DriverDuckDB:
		return strings.TrimSpace(cfg.DSN) == "" || strings.TrimSpace(cfg.DSN) == ":memory:"
	default:
		return false
	}
}
