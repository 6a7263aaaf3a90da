package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/sqlpilot/sqlpilot/internal/migrations"
	"github.com/sqlpilot/sqlpilot/internal/nl2sql"
	"github.com/sqlpilot/sqlpilot/internal/query"
	"github.com/sqlpilot/sqlpilot/internal/seed"
	"github.com/sqlpilot/sqlpilot/internal/store"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func openFixtureStore(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.Config{Driver: store.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	runner, err := migrations.NewRunner(store.DriverSQLite)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	if _, err := runner.Up(ctx, db, 0); err != nil {
		t.Fatalf("runner.Up() error = %v", err)
	}
	if _, err := (seed.Seeder{DB: db, Now: time.Now}).Run(ctx, seed.Minimal()); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	return db
}

func TestExecuteMaterializesRows(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db, query.StyleDollarPositional, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name FROM customers WHERE id = $1`)).
		WithArgs(float64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), []byte("Test Customer")))

	result := executor.Execute(context.Background(), "SELECT id, name FROM customers WHERE id = :customer_id;", query.Params{"customer_id": float64(1)})
	if !result.Success {
		t.Fatalf("Execute() error = %s", result.Error)
	}
	if !reflect.DeepEqual(result.Columns, []string{"id", "name"}) {
		t.Fatalf("Columns = %v", result.Columns)
	}
	if result.RowCount != 1 || result.Rows[0]["name"] != "Test Customer" {
		t.Fatalf("Rows = %#v", result.Rows)
	}
	assertSQLMock(t, mock)
}

func TestExecuteReportsAffectedRows(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db, query.StyleDollarPositional, nil)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE orders SET status = $1 WHERE customer_id = $2`)).
		WithArgs("delivered", float64(1)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	result := executor.Execute(context.Background(), "UPDATE orders SET status = :status WHERE customer_id = :customer_id", query.Params{"status": "delivered", "customer_id": float64(1)})
	if !result.Success || !result.Mutation {
		t.Fatalf("Execute() = %+v", result)
	}
	if result.AffectedRows != 2 || result.Message != "Query executed successfully. 2 rows affected." {
		t.Fatalf("Execute() = %+v", result)
	}
	assertSQLMock(t, mock)
}

func TestExecuteWrapsStoreErrors(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db, query.StyleDollarPositional, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM nope`)).
		WillReturnError(errors.New(`relation "nope" does not exist`))

	result := executor.Execute(context.Background(), "SELECT * FROM nope", nil)
	if result.Success || result.Error != `relation "nope" does not exist` {
		t.Fatalf("Execute() = %+v", result)
	}
	assertSQLMock(t, mock)
}

func TestExecuteMissingParameterFailsWithoutStoreCall(t *testing.T) {
	db, mock := newSQLMock(t)
	executor := NewExecutor(db, query.StyleNamed, nil)

	result := executor.Execute(context.Background(), "SELECT * FROM customers WHERE id = :id", query.Params{})
	if result.Success || !strings.Contains(result.Error, `"id"`) {
		t.Fatalf("Execute() = %+v", result)
	}
	assertSQLMock(t, mock)
}

func TestExecuteAgainstSQLiteFixture(t *testing.T) {
	db := openFixtureStore(t)
	executor := NewExecutor(db, query.StyleNamed, nil)
	ctx := context.Background()

	all := executor.Execute(ctx, "SELECT * FROM customers", nil)
	if !all.Success || all.RowCount != 2 {
		t.Fatalf("all customers = %+v", all)
	}
	names := map[any]bool{}
	for _, row := range all.Rows {
		names[row["name"]] = true
	}
	if !names["Test Customer"] || !names["Another Customer"] {
		t.Fatalf("names = %v", names)
	}

	sqlText, params := query.Bind("SELECT * FROM customers WHERE id = :customer_id", []nl2sql.Parameter{{Name: "customer_id", Value: "1", Type: nl2sql.ParamNumber}})
	one := executor.Execute(ctx, sqlText, params)
	if !one.Success || one.RowCount != 1 || one.Rows[0]["name"] != "Test Customer" {
		t.Fatalf("customer 1 = %+v", one)
	}
}

func TestExecuteSelectIsIdempotent(t *testing.T) {
	db := openFixtureStore(t)
	executor := NewExecutor(db, query.StyleNamed, nil)
	ctx := context.Background()
	sqlText := "SELECT id, total_amount, status FROM orders WHERE total_amount > :min ORDER BY id"
	params := query.Params{"min": float64(50)}

	first := executor.Execute(ctx, sqlText, params)
	second := executor.Execute(ctx, sqlText, params)
	if !first.Success || !second.Success {
		t.Fatalf("Execute() errors = %q, %q", first.Error, second.Error)
	}
	if first.RowCount != 3 || !reflect.DeepEqual(first.Rows, second.Rows) || first.RowCount != second.RowCount {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}
}

func TestExecuteMutationRoundTrip(t *testing.T) {
	db := openFixtureStore(t)
	executor := NewExecutor(db, query.StyleNamed, nil)
	ctx := context.Background()

	updated := executor.Execute(ctx, "UPDATE orders SET status = :status WHERE customer_id = :customer_id", query.Params{"status": "cancelled", "customer_id": float64(1)})
	if !updated.Success || updated.AffectedRows != 2 {
		t.Fatalf("update = %+v", updated)
	}

	check := executor.Execute(ctx, "SELECT COUNT(*) AS n FROM orders WHERE status = 'cancelled'", nil)
	if !check.Success || check.Rows[0]["n"] != int64(updated.AffectedRows) {
		t.Fatalf("follow-up count = %+v", check)
	}
}

func TestExecuteUnknownTableFails(t *testing.T) {
	db := openFixtureStore(t)
	executor := NewExecutor(db, query.StyleNamed, nil)

	result := executor.Execute(context.Background(), "SELECT * FROM nonexistent_table", nil)
	if result.Success || !strings.Contains(result.Error, "no such table") {
		t.Fatalf("Execute() = %+v", result)
	}
}

func TestExecuteNonNumericNumberFailsInStore(t *testing.T) {
	db := openFixtureStore(t)
	executor := NewExecutor(db, query.StyleNamed, nil)

	sqlText, params := query.Bind(
		"INSERT INTO orders (customer_id, order_date, total_amount, status) VALUES (:customer_id, :order_date, :total, :status)",
		[]nl2sql.Parameter{
			{Name: "customer_id", Value: "abc", Type: nl2sql.ParamNumber},
			{Name: "order_date", Value: "'2024-01-02'", Type: nl2sql.ParamDate},
			{Name: "total", Value: "10", Type: nl2sql.ParamNumber},
			{Name: "status", Value: "pending", Type: nl2sql.ParamString},
		},
	)
	if params["customer_id"] != "abc" {
		t.Fatalf("binder coerced non-numeric value: %#v", params["customer_id"])
	}

	result := executor.Execute(context.Background(), sqlText, params)
	if result.Success {
		t.Fatalf("Execute() = %+v, want failure", result)
	}
	if !strings.Contains(strings.ToLower(result.Error), "foreign key") {
		t.Fatalf("Error = %q", result.Error)
	}
}
