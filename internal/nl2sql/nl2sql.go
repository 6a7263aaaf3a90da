package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type ParamType string

const (
	ParamString ParamType = "string"
	ParamNumber ParamType = "number"
	ParamDate   ParamType = "date"
)

// Parameter is a literal the generator lifted out of the question. Name must
// match a :name placeholder in the accompanying SQL.
type Parameter struct {
	Name  string    `json:"name"`
	Value string    `json:"value"`
	Type  ParamType `json:"type"`
}

// UnmarshalJSON accepts non-string literal values (models occasionally emit
// 1 instead of "1") and keeps their textual form.
func (p *Parameter) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
		Type  string          `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Name = strings.TrimSpace(raw.Name)
	p.Type = ParamType(strings.ToLower(strings.TrimSpace(raw.Type)))
	p.Value = ""

	trimmed := strings.TrimSpace(string(raw.Value))
	switch {
	case trimmed == "" || trimmed == "null":
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return fmt.Errorf("decode parameter %q value: %w", p.Name, err)
		}
		p.Value = s
	default:
		if _, err := strconv.ParseFloat(trimmed, 64); err != nil && trimmed != "true" && trimmed != "false" {
			return fmt.Errorf("unsupported value for parameter %q: %s", p.Name, trimmed)
		}
		p.Value = trimmed
	}
	return nil
}

type GeneratedQuery struct {
	SQL         string      `json:"sql_query"`
	Parameters  []Parameter `json:"parameters"`
	Explanation string      `json:"explanation"`
	// Fallback marks output produced without a configured model. It is not
	// correctness-verified.
	Fallback bool   `json:"fallback"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

type Verdict struct {
	IsSafe   bool   `json:"is_safe"`
	Analysis string `json:"analysis"`
	// Performed is false when no validation backend was consulted.
	Performed bool `json:"performed"`
}

type Generator interface {
	Generate(ctx context.Context, question string) (GeneratedQuery, error)
}

type Validator interface {
	Validate(ctx context.Context, sql string) (Verdict, error)
}

// GenerationError is returned by generators for every failure: transport,
// malformed model output or missing fields. Raw carries the model text when
// one was received.
type GenerationError struct {
	Message string
	Raw     string
	Err     error
}

func (e *GenerationError) Error() string {
	return e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func generationFailed(err error) *GenerationError {
	return &GenerationError{Message: err.Error(), Err: err}
}
