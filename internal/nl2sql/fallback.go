package nl2sql

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/observability"
)

const (
	FallbackSQL                = "SELECT * FROM customers LIMIT 5"
	FallbackExplanation        = "This is a mock response due to missing LLM configuration."
	FallbackValidationAnalysis = "This is a mock response. No validation was performed."
)

// placeholderKeys are sample values shipped in env templates and build images.
var placeholderKeys = map[string]struct{}{
	"your_openai_api_key": {},
	"dummy_key_for_build": {},
}

// HasUsableKey reports whether key looks like a real credential.
func HasUsableKey(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	_, placeholder := placeholderKeys[key]
	return !placeholder
}

// FallbackGenerator answers every question with a fixed statement. Its
// output is tagged Fallback and is not derived from the question.
type FallbackGenerator struct {
	Logger *slog.Logger
}

func (g FallbackGenerator) Generate(ctx context.Context, question string) (GeneratedQuery, error) {
	observability.IncrementFallback("generate")
	observability.ComponentLogger(ctx, g.Logger, "generator").
		Warn("no model configured, returning fallback query", slog.String("question", question))
	return GeneratedQuery{
		SQL:         FallbackSQL,
		Parameters:  []Parameter{},
		Explanation: FallbackExplanation,
		Fallback:    true,
		Provider:    "fallback",
	}, nil
}

// FallbackValidator approves everything without consulting a model.
type FallbackValidator struct {
	Logger *slog.Logger
}

func (v FallbackValidator) Validate(ctx context.Context, _ string) (Verdict, error) {
	observability.IncrementFallback("validate")
	observability.ComponentLogger(ctx, v.Logger, "validator").Warn("no model configured, skipping validation")
	return Verdict{IsSafe: true, Analysis: FallbackValidationAnalysis}, nil
}

// New picks the model-backed client when cfg can reach a model and the
// fallbacks otherwise. Text mode targets self-hosted backends and needs no key.
func New(cfg OpenAIConfig) (Generator, Validator, error) {
	if cfg.Mode != ModeText && !HasUsableKey(cfg.APIKey) {
		return FallbackGenerator{Logger: cfg.Logger}, FallbackValidator{Logger: cfg.Logger}, nil
	}
	client, err := NewOpenAIClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}
