// Package pipeline sequences generation, validation, binding and execution
// for a single natural-language question.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/history"
	"github.com/sqlpilot/sqlpilot/internal/nl2sql"
	"github.com/sqlpilot/sqlpilot/internal/observability"
	"github.com/sqlpilot/sqlpilot/internal/query"
	"github.com/sqlpilot/sqlpilot/internal/sqlguard"
)

type Stage string

const (
	StageGenerating Stage = "generating"
	StageValidating Stage = "validating"
	StageExecuting  Stage = "executing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

const DefaultTimeout = 60 * time.Second

type Outcome struct {
	SQLQuery    string             `json:"sql_query"`
	Parameters  []nl2sql.Parameter `json:"parameters"`
	Explanation string             `json:"explanation"`
	Fallback    bool               `json:"fallback"`
	Results     query.Result       `json:"results"`
}

type Recorder interface {
	Record(ctx context.Context, entry history.Entry)
}

type Pipeline struct {
	Generator nl2sql.Generator
	Validator nl2sql.Validator
	// Guard is optional; when set it runs before Validator.
	Guard    *sqlguard.Guard
	Executor query.Executor
	Timeout  time.Duration
	Logger   *slog.Logger
	Recorder Recorder
}

func New(generator nl2sql.Generator, validator nl2sql.Validator, executor query.Executor) *Pipeline {
	return &Pipeline{
		Generator: generator,
		Validator: validator,
		Executor:  executor,
		Timeout:   DefaultTimeout,
	}
}

// Process runs every stage once. The returned error is one of
// *GenerationError, *RejectionError, *ExecutionError or *TimeoutError.
func (p *Pipeline) Process(ctx context.Context, question string) (Outcome, error) {
	if p.Generator == nil || p.Validator == nil || p.Executor == nil {
		return Outcome{}, fmt.Errorf("pipeline is not fully configured")
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := observability.ComponentLogger(ctx, p.Logger, "pipeline")
	start := time.Now()

	run := &invocation{pipeline: p, logger: logger, question: question}
	outcome, stage, err := run.execute(ctx)

	label := outcomeLabel(err)
	observability.ObservePipelineRun(label)
	if err != nil {
		logger.Warn("query processing failed", slog.String("stage", string(stage)), slog.String("outcome", label), slog.Any("error", err))
	} else {
		logger.Info("query processed", slog.Duration("duration", time.Since(start)))
	}

	if p.Recorder != nil {
		p.Recorder.Record(ctx, historyEntry(ctx, question, outcome, label, err, time.Since(start)))
	}
	return outcome, err
}

type invocation struct {
	pipeline *Pipeline
	logger   *slog.Logger
	question string
}

func (r *invocation) execute(ctx context.Context) (Outcome, Stage, error) {
	p := r.pipeline

	stageStart := time.Now()
	generated, err := p.Generator.Generate(ctx, r.question)
	observability.ObserveStage(string(StageGenerating), time.Since(stageStart))
	if err != nil {
		return Outcome{}, StageGenerating, classifyGenerationError(ctx, err)
	}
	outcome := Outcome{
		SQLQuery:    generated.SQL,
		Parameters:  generated.Parameters,
		Explanation: generated.Explanation,
		Fallback:    generated.Fallback,
	}
	if outcome.Parameters == nil {
		outcome.Parameters = []nl2sql.Parameter{}
	}
	r.logger.Debug("stage complete", slog.String("stage", string(StageGenerating)), slog.Bool("fallback", generated.Fallback))

	stageStart = time.Now()
	if p.Guard != nil {
		if err := p.Guard.Check(generated.SQL); err != nil {
			observability.ObserveStage(string(StageValidating), time.Since(stageStart))
			return outcome, StageValidating, &RejectionError{Analysis: err.Error(), Structural: true}
		}
	}
	verdict, err := p.Validator.Validate(ctx, generated.SQL)
	observability.ObserveStage(string(StageValidating), time.Since(stageStart))
	if err != nil {
		if ctx.Err() != nil {
			return outcome, StageValidating, &TimeoutError{Stage: StageValidating, Err: err}
		}
		return outcome, StageValidating, &RejectionError{Analysis: "Error during validation: " + err.Error()}
	}
	if !verdict.IsSafe {
		return outcome, StageValidating, &RejectionError{Analysis: verdict.Analysis}
	}

	stageStart = time.Now()
	sqlText, params := query.BindWithLogger(generated.SQL, generated.Parameters, r.logger)
	result := p.Executor.Execute(ctx, sqlText, params)
	observability.ObserveStage(string(StageExecuting), time.Since(stageStart))
	outcome.Results = result
	if !result.Success {
		if ctx.Err() != nil {
			return outcome, StageExecuting, &TimeoutError{Stage: StageExecuting, Err: ctx.Err()}
		}
		return outcome, StageExecuting, &ExecutionError{Message: result.Error}
	}
	return outcome, StageDone, nil
}

func classifyGenerationError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &TimeoutError{Stage: StageGenerating, Err: err}
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}
	return &GenerationError{Message: err.Error(), Err: err}
}

func outcomeLabel(err error) string {
	var (
		genErr       *GenerationError
		rejectionErr *RejectionError
		execErr      *ExecutionError
		timeoutErr   *TimeoutError
	)
	switch {
	case err == nil:
		return history.OutcomeSucceeded
	case errors.As(err, &timeoutErr):
		return history.OutcomeTimedOut
	case errors.As(err, &genErr):
		return history.OutcomeGenerationFailed
	case errors.As(err, &rejectionErr):
		return history.OutcomeRejected
	case errors.As(err, &execErr):
		return history.OutcomeExecutionFailed
	default:
		return "error"
	}
}

func historyEntry(ctx context.Context, question string, outcome Outcome, label string, err error, elapsed time.Duration) history.Entry {
	entry := history.Entry{
		TraceID:      observability.TraceIDFromContext(ctx),
		Question:     strings.TrimSpace(question),
		SQLQuery:     outcome.SQLQuery,
		Parameters:   outcome.Parameters,
		Explanation:  outcome.Explanation,
		Fallback:     outcome.Fallback,
		Outcome:      label,
		RowCount:     outcome.Results.RowCount,
		AffectedRows: outcome.Results.AffectedRows,
		Duration:     elapsed,
		CreatedAt:    time.Now().UTC(),
	}
	if err != nil {
		entry.Detail = err.Error()
	}
	return entry
}
