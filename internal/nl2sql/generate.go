package nl2sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/observability"
	"github.com/sqlpilot/sqlpilot/internal/schema"
)

const generationSystemPrompt = "You are a SQL expert that converts natural language queries into SQL. " +
	"Use the database schema provided to generate accurate SQL queries. " +
	"Always use parameterized queries to prevent SQL injection."

const textModePromptTemplate = `
As a SQL expert, convert the following natural language query to a SQL query.
Use parameterized queries with named parameters to prevent SQL injection.

Database Schema:
%s

Natural Language Query: %s

Return your answer in this JSON format:
{
  "sql_query": "SELECT * FROM ... WHERE ... = :param",
  "parameters": [
    {
      "name": "param",
      "value": "extracted_value",
      "type": "string|number|date"
    }
  ],
  "explanation": "This query retrieves..."
}
`

func (c *OpenAIClient) Generate(ctx context.Context, question string) (GeneratedQuery, error) {
	logger := observability.ComponentLogger(ctx, c.logger, "generator")
	logger.Info("generating sql", slog.String("question", question), slog.String("mode", string(c.mode)))

	var (
		generated GeneratedQuery
		err       error
	)
	switch c.mode {
	case ModeText:
		generated, err = c.generateFromText(ctx, question, logger)
	default:
		generated, err = c.generateWithFunctionCall(ctx, question, logger)
	}
	observability.ObserveLLMRequest("generate", err)
	if err != nil {
		logger.Error("sql generation failed", slog.Any("error", err))
		return GeneratedQuery{}, err
	}

	generated.Provider = "openai-compatible"
	generated.Model = c.model
	logger.Info("generated sql", slog.String("sql", generated.SQL), slog.Int("parameters", len(generated.Parameters)))
	return generated, nil
}

func (c *OpenAIClient) generateWithFunctionCall(ctx context.Context, question string, logger *slog.Logger) (GeneratedQuery, error) {
	schemaJSON, err := c.schema.JSON()
	if err != nil {
		return GeneratedQuery{}, generationFailed(err)
	}

	resp, err := c.complete(ctx, map[string]any{
		"messages": []chatMessage{
			{Role: "system", Content: generationSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Database schema: %s\n\nConvert this query to SQL: %s", schemaJSON, strings.TrimSpace(question))},
		},
		"tools": []map[string]any{
			{"type": "function", "function": schema.GenerateSQLFunction()},
		},
		"tool_choice": map[string]any{
			"type":     "function",
			"function": map[string]string{"name": schema.GenerateSQLFunctionName},
		},
	})
	if err != nil {
		return GeneratedQuery{}, generationFailed(err)
	}

	toolCalls := resp.Choices[0].Message.ToolCalls
	if len(toolCalls) == 0 {
		logger.Warn("no function call in response")
		return GeneratedQuery{}, &GenerationError{Message: "Failed to generate SQL query", Raw: messageContent(resp)}
	}

	arguments := toolCalls[0].Function.Arguments
	generated, err := decodeGenerated(arguments)
	if err != nil {
		return GeneratedQuery{}, &GenerationError{Message: err.Error(), Raw: arguments, Err: err}
	}
	return generated, nil
}

func (c *OpenAIClient) generateFromText(ctx context.Context, question string, logger *slog.Logger) (GeneratedQuery, error) {
	schemaJSON, err := c.schema.IndentedJSON()
	if err != nil {
		return GeneratedQuery{}, generationFailed(err)
	}

	resp, err := c.complete(ctx, map[string]any{
		"messages": []chatMessage{
			{Role: "user", Content: fmt.Sprintf(textModePromptTemplate, schemaJSON, strings.TrimSpace(question))},
		},
	})
	if err != nil {
		return GeneratedQuery{}, generationFailed(err)
	}

	content := messageContent(resp)
	logger.Debug("raw model response", slog.String("content", content))

	generated, err := decodeGenerated(ExtractJSON(content))
	if err != nil {
		return GeneratedQuery{}, &GenerationError{
			Message: "Failed to parse LLM response: " + err.Error(),
			Raw:     content,
			Err:     err,
		}
	}
	return generated, nil
}
