package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/observability"
	"github.com/sqlpilot/sqlpilot/internal/query"
	"github.com/sqlpilot/sqlpilot/internal/sqlguard"
)

// Executor runs bound statements through database/sql. Failures are reported
// inside the returned envelope, never as a Go error.
type Executor struct {
	DB     *sql.DB
	Style  query.Style
	Logger *slog.Logger
}

func NewExecutor(db *sql.DB, style query.Style, logger *slog.Logger) *Executor {
	return &Executor{DB: db, Style: style, Logger: logger}
}

func (e *Executor) Execute(ctx context.Context, sqlText string, params query.Params) query.Result {
	logger := observability.ComponentLogger(ctx, e.Logger, "executor")
	start := time.Now()

	result, err := e.execute(ctx, sqlText, params)
	if err != nil {
		logger.Error("query execution failed", slog.String("sql", sqlText), slog.Any("error", err))
		return query.Failed(err)
	}

	if result.Mutation {
		observability.ObserveQueryRows(0, result.AffectedRows)
		logger.Info("statement executed", slog.Int64("affected_rows", result.AffectedRows), slog.Duration("duration", time.Since(start)))
	} else {
		observability.ObserveQueryRows(result.RowCount, 0)
		logger.Info("query executed", slog.Int("row_count", result.RowCount), slog.Duration("duration", time.Since(start)))
	}
	return result
}

func (e *Executor) execute(ctx context.Context, sqlText string, params query.Params) (query.Result, error) {
	if e.DB == nil {
		return query.Result{}, fmt.Errorf("store is not configured")
	}
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}

	rendered, args, err := query.Render(sqlText, params, e.Style)
	if err != nil {
		return query.Result{}, err
	}

	if !sqlguard.ReturnsRows(sqlText) {
		res, err := e.DB.ExecContext(ctx, rendered, args...)
		if err != nil {
			return query.Result{}, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return query.Result{}, fmt.Errorf("rows affected: %w", err)
		}
		return query.MutationResult(affected), nil
	}

	rows, err := e.DB.QueryContext(ctx, rendered, args...)
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			record[column] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, record)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, err
	}

	return query.RowsResult(columns, resultRows), nil
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
