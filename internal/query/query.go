package query

import (
	"context"
	"encoding/json"
	"fmt"
)

// Params maps placeholder names to bound values: float64 for numbers that
// parse, string otherwise.
type Params map[string]any

// Result is the envelope returned by an executor. Exactly one of the row or
// mutation shapes is populated on success; Error is set on failure.
type Result struct {
	Success bool

	Columns  []string
	Rows     []map[string]any
	RowCount int

	Mutation     bool
	AffectedRows int64
	Message      string

	Error string
}

func Failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

func RowsResult(columns []string, rows []map[string]any) Result {
	if columns == nil {
		columns = []string{}
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return Result{Success: true, Columns: columns, Rows: rows, RowCount: len(rows)}
}

func MutationResult(affected int64) Result {
	return Result{
		Success:      true,
		Mutation:     true,
		AffectedRows: affected,
		Message:      fmt.Sprintf("Query executed successfully. %d rows affected.", affected),
	}
}

func (r Result) MarshalJSON() ([]byte, error) {
	switch {
	case !r.Success:
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}{Error: r.Error})
	case r.Mutation:
		return json.Marshal(struct {
			Success      bool   `json:"success"`
			AffectedRows int64  `json:"affected_rows"`
			Message      string `json:"message"`
		}{Success: true, AffectedRows: r.AffectedRows, Message: r.Message})
	default:
		return json.Marshal(struct {
			Success  bool             `json:"success"`
			Columns  []string         `json:"columns"`
			Rows     []map[string]any `json:"rows"`
			RowCount int              `json:"row_count"`
		}{Success: true, Columns: r.Columns, Rows: r.Rows, RowCount: r.RowCount})
	}
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		Success      bool             `json:"success"`
		Columns      []string         `json:"columns"`
		Rows         []map[string]any `json:"rows"`
		RowCount     int              `json:"row_count"`
		AffectedRows *int64           `json:"affected_rows"`
		Message      string           `json:"message"`
		Error        string           `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Result{
		Success:  raw.Success,
		Columns:  raw.Columns,
		Rows:     raw.Rows,
		RowCount: raw.RowCount,
		Message:  raw.Message,
		Error:    raw.Error,
	}
	if raw.AffectedRows != nil {
		r.Mutation = true
		r.AffectedRows = *raw.AffectedRows
	}
	return nil
}

type Executor interface {
	Execute(ctx context.Context, sqlText string, params Params) Result
}
