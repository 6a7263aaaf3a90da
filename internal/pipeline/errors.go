package pipeline

import "github.com/sqlpilot/sqlpilot/internal/nl2sql"

const rejectionPrefix = "Generated SQL query failed security validation: "

// GenerationError is the generator's own error type; it is re-exported so
// callers only need this package to classify failures.
type GenerationError = nl2sql.GenerationError

// RejectionError means the statement was refused before execution, either by
// the structural guard or by the model-backed validator.
type RejectionError struct {
	Analysis   string
	Structural bool
}

func (e *RejectionError) Error() string {
	return e.Detail()
}

func (e *RejectionError) Detail() string {
	return rejectionPrefix + e.Analysis
}

// ExecutionError carries the store's message for a failed statement.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// TimeoutError means the invocation deadline passed during Stage.
type TimeoutError struct {
	Stage Stage
	Err   error
}

func (e *TimeoutError) Error() string {
	return "query processing timed out while " + string(e.Stage)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}
