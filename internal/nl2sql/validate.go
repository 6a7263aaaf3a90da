package nl2sql

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/observability"
)

const validationSystemPrompt = "You are a SQL security expert. Analyze the SQL query for: " +
	"1. SQL injection vulnerabilities " +
	"2. Syntax errors " +
	"3. Potential performance issues " +
	"4. Data security concerns"

// unsafeMarkers are matched against the lower-cased analysis text. This is a
// coarse keyword heuristic, not a security boundary.
var unsafeMarkers = []string{"injection", "vulnerability"}

// HeuristicVerdict reports whether an analysis text reads as safe.
func HeuristicVerdict(analysis string) bool {
	lowered := strings.ToLower(analysis)
	for _, marker := range unsafeMarkers {
		if strings.Contains(lowered, marker) {
			return false
		}
	}
	return true
}

// Validate asks the model for a security review of sqlText. Backend failures
// produce an unsafe verdict rather than an error; an error is returned only
// when ctx itself is done.
func (c *OpenAIClient) Validate(ctx context.Context, sqlText string) (Verdict, error) {
	logger := observability.ComponentLogger(ctx, c.logger, "validator")

	resp, err := c.complete(ctx, map[string]any{
		"messages": []chatMessage{
			{Role: "system", Content: validationSystemPrompt},
			{Role: "user", Content: "Validate this SQL query for security and correctness: " + sqlText},
		},
	})
	observability.ObserveLLMRequest("validate", err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Verdict{}, ctxErr
		}
		logger.Error("sql validation failed", slog.Any("error", err))
		return Verdict{
			IsSafe:    false,
			Analysis:  "Error during validation: " + err.Error(),
			Performed: true,
		}, nil
	}

	analysis := messageContent(resp)
	verdict := Verdict{
		IsSafe:    HeuristicVerdict(analysis),
		Analysis:  analysis,
		Performed: true,
	}
	logger.Info("validated sql", slog.Bool("is_safe", verdict.IsSafe))
	return verdict, nil
}
