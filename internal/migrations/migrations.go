// Package migrations creates the customers/orders schema for each supported
// store dialect from embedded sql/<dialect>/NNNNNN_name.{up,down}.sql files.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/observability"
)

//go:embed sql
var embeddedFS embed.FS

const versionTable = "sqlpilot_schema_migrations"

var fileNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

type Runner struct {
	Logger *slog.Logger

	fsys    fs.FS
	dir     string
	dialect string
}

func NewRunner(dialect string) (*Runner, error) {
	dir := path.Join("sql", dialect)
	if _, err := fs.Stat(embeddedFS, dir); err != nil {
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
	return &Runner{fsys: embeddedFS, dir: dir, dialect: dialect}, nil
}

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// VersionStatus describes one embedded migration against a live database.
type VersionStatus struct {
	Version int64
	Name    string
	Applied bool
}

// Up applies pending migrations in version order. steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	pending, err := r.pending(ctx, db)
	if err != nil {
		return 0, err
	}
	if steps > 0 && len(pending) > steps {
		pending = pending[:steps]
	}

	logger := observability.LoggerOrDiscard(r.Logger)
	for i, item := range pending {
		if err := r.inTx(ctx, db, item.UpSQL, `INSERT INTO `+versionTable+` (version) VALUES (`+r.placeholder()+`)`, item.Version); err != nil {
			return i, fmt.Errorf("apply migration %d: %w", item.Version, err)
		}
		logger.Info("applied migration", slog.Int64("version", item.Version), slog.String("name", item.Name), slog.String("dialect", r.dialect))
	}
	return len(pending), nil
}

// Down rolls back the most recent applied migrations. steps <= 0 means one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	known, err := loadMigrations(r.fsys, r.dir)
	if err != nil {
		return 0, err
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := appliedVersions(ctx, db, true)
	if err != nil {
		return 0, err
	}

	logger := observability.LoggerOrDiscard(r.Logger)
	rolledBack := 0
	for _, version := range applied {
		if rolledBack >= steps {
			break
		}
		idx := slices.IndexFunc(known, func(m migration) bool { return m.Version == version })
		if idx < 0 {
			return rolledBack, fmt.Errorf("applied migration %d is missing from source", version)
		}
		item := known[idx]
		if err := r.inTx(ctx, db, item.DownSQL, `DELETE FROM `+versionTable+` WHERE version = `+r.placeholder(), item.Version); err != nil {
			return rolledBack, fmt.Errorf("rollback migration %d: %w", item.Version, err)
		}
		logger.Info("rolled back migration", slog.Int64("version", item.Version), slog.String("name", item.Name), slog.String("dialect", r.dialect))
		rolledBack++
	}
	return rolledBack, nil
}

// Status lists every embedded migration with whether db has applied it.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]VersionStatus, error) {
	known, err := loadMigrations(r.fsys, r.dir)
	if err != nil {
		return nil, err
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db, false)
	if err != nil {
		return nil, err
	}
	out := make([]VersionStatus, 0, len(known))
	for _, item := range known {
		out = append(out, VersionStatus{Version: item.Version, Name: item.Name, Applied: slices.Contains(applied, item.Version)})
	}
	return out, nil
}

func (r *Runner) pending(ctx context.Context, db *sql.DB) ([]migration, error) {
	known, err := loadMigrations(r.fsys, r.dir)
	if err != nil {
		return nil, err
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db, false)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(known, func(m migration) bool { return slices.Contains(applied, m.Version) }), nil
}

func (r *Runner) placeholder() string {
	if r.dialect == "sqlite" {
		return "?"
	}
	return "$1"
}

// inTx runs script and the version bookkeeping statement atomically.
func (r *Runner) inTx(ctx context.Context, db *sql.DB, script, bookkeeping string, version int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+versionTable+` (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`)
	if err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB, descending bool) ([]int64, error) {
	order := "ASC"
	if descending {
		order = "DESC"
	}
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+versionTable+` ORDER BY version `+order)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	byVersion := map[int64]*migration{}
	for _, entry := range entries {
		matches := fileNamePattern.FindStringSubmatch(entry.Name())
		if entry.IsDir() || matches == nil {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version for %q: %w", entry.Name(), err)
		}
		script, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}

		item, ok := byVersion[version]
		if !ok {
			item = &migration{Version: version, Name: matches[2]}
			byVersion[version] = item
		}
		if matches[3] == "up" {
			item.UpSQL = string(script)
		} else {
			item.DownSQL = string(script)
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, item := range byVersion {
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", item.Version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", item.Version)
		}
		out = append(out, *item)
	}
	slices.SortFunc(out, func(a, b migration) int { return int(a.Version - b.Version) })
	return out, nil
}
