package migrations

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
)

func TestLoadMigrationsSortsAndPairsUpDown(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/sqlite/000002_two.up.sql":   {Data: []byte("SELECT 2;")},
		"sql/sqlite/000002_two.down.sql": {Data: []byte("SELECT -2;")},
		"sql/sqlite/000001_one.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/sqlite/000001_one.down.sql": {Data: []byte("SELECT -1;")},
	}

	items, err := loadMigrations(fsys, "sql/sqlite")
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected migration order: %+v", items)
	}
	if items[0].Name != "one" {
		t.Fatalf("Name = %q, want one", items[0].Name)
	}
}

func TestLoadMigrationsErrorsWhenDownMissing(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/sqlite/000001_one.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := loadMigrations(fsys, "sql/sqlite")
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "missing down SQL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmbeddedMigrationsLoadForEveryDialect(t *testing.T) {
	for _, dialect := range []string{"sqlite", "postgres", "duckdb"} {
		runner, err := NewRunner(dialect)
		if err != nil {
			t.Fatalf("NewRunner(%q) error = %v", dialect, err)
		}
		items, err := loadMigrations(runner.fsys, runner.dir)
		if err != nil {
			t.Fatalf("loadMigrations(%q) error = %v", dialect, err)
		}
		if len(items) == 0 {
			t.Fatalf("no migrations for %q", dialect)
		}
		for _, snippet := range []string{"CREATE TABLE customers", "CREATE TABLE orders", "REFERENCES customers (id)"} {
			if !strings.Contains(items[0].UpSQL, snippet) {
				t.Fatalf("%s migration missing %q", dialect, snippet)
			}
		}
	}
}

func TestNewRunnerRejectsUnknownDialect(t *testing.T) {
	if _, err := NewRunner("oracle"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}

func TestRunnerUpSkipsAppliedVersions(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	runner := &Runner{fsys: fstest.MapFS{
		"sql/sqlite/000001_one.up.sql":   {Data: []byte("CREATE TABLE one (id INTEGER)")},
		"sql/sqlite/000001_one.down.sql": {Data: []byte("DROP TABLE one")},
		"sql/sqlite/000002_two.up.sql":   {Data: []byte("CREATE TABLE two (id INTEGER)")},
		"sql/sqlite/000002_two.down.sql": {Data: []byte("DROP TABLE two")},
	}, dir: "sql/sqlite", dialect: "sqlite"}

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS sqlpilot_schema_migrations`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT version FROM sqlpilot_schema_migrations ORDER BY version ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(1)))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE two (id INTEGER)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sqlpilot_schema_migrations (version) VALUES (?)`)).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := runner.Up(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("Up() applied %d, want 1", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestRunnerAppliesAndRollsBackSQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	runner, err := NewRunner("sqlite")
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	ctx := context.Background()

	applied, err := runner.Up(ctx, db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied < 1 {
		t.Fatalf("Up() applied %d", applied)
	}
	again, err := runner.Up(ctx, db, 0)
	if err != nil || again != 0 {
		t.Fatalf("second Up() = %d, %v", again, err)
	}
	if _, err := db.Exec(`INSERT INTO customers (name, email) VALUES ('A', 'a@example.com')`); err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	status, err := runner.Status(ctx, db)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	for _, item := range status {
		if !item.Applied {
			t.Fatalf("migration %d (%s) not applied", item.Version, item.Name)
		}
	}

	rolledBack, err := runner.Down(ctx, db, 1)
	if err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if rolledBack != 1 {
		t.Fatalf("Down() rolled back %d", rolledBack)
	}
	if _, err := db.Exec(`SELECT 1 FROM customers`); err == nil {
		t.Fatal("customers table still exists after rollback")
	}
	status, err = runner.Status(ctx, db)
	if err != nil {
		t.Fatalf("Status() after rollback error = %v", err)
	}
	if status[len(status)-1].Applied {
		t.Fatal("latest migration still reported as applied")
	}
}

func TestRunnerUpHonoursSteps(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	runner := &Runner{fsys: fstest.MapFS{
		"sql/sqlite/000001_one.up.sql":   {Data: []byte("CREATE TABLE one (id INTEGER)")},
		"sql/sqlite/000001_one.down.sql": {Data: []byte("DROP TABLE one")},
		"sql/sqlite/000002_two.up.sql":   {Data: []byte("CREATE TABLE two (id INTEGER)")},
		"sql/sqlite/000002_two.down.sql": {Data: []byte("DROP TABLE two")},
	}, dir: "sql/sqlite", dialect: "sqlite"}

	applied, err := runner.Up(context.Background(), db, 1)
	if err != nil || applied != 1 {
		t.Fatalf("Up(steps=1) = %d, %v", applied, err)
	}
	if _, err := db.Exec(`SELECT 1 FROM two`); err == nil {
		t.Fatal("second migration applied despite steps=1")
	}
	applied, err = runner.Up(context.Background(), db, 0)
	if err != nil || applied != 1 {
		t.Fatalf("Up(steps=0) = %d, %v", applied, err)
	}
}
