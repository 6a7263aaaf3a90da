package nl2sql

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const defaultExplanation = "SQL query generated from natural language."

var errMissingSQL = errors.New("missing sql_query in model response")

// ExtractJSON returns the JSON object embedded in free-form model output.
// Candidates in order: a ```json fenced block, any fenced block, the span
// between the first '{' and the last '}', the whole text.
func ExtractJSON(content string) string {
	if block, ok := fencedBlock(content, "```json"); ok {
		return block
	}
	if block, ok := fencedBlock(content, "```"); ok {
		// Drop a language tag such as ```javascript.
		if nl := strings.IndexByte(block, '\n'); nl >= 0 && !strings.ContainsAny(block[:nl], "{[") {
			block = strings.TrimSpace(block[nl+1:])
		}
		return block
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return strings.TrimSpace(content)
}

func fencedBlock(content, opener string) (string, bool) {
	start := strings.Index(content, opener)
	if start < 0 {
		return "", false
	}
	body := content[start+len(opener):]
	end := strings.Index(body, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:end]), true
}

// decodeGenerated parses generator output. Only sql_query is mandatory.
func decodeGenerated(raw string) (GeneratedQuery, error) {
	var payload struct {
		SQL         *string     `json:"sql_query"`
		Parameters  []Parameter `json:"parameters"`
		Explanation *string     `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return GeneratedQuery{}, fmt.Errorf("decode generated query: %w", err)
	}
	if payload.SQL == nil || strings.TrimSpace(*payload.SQL) == "" {
		return GeneratedQuery{}, errMissingSQL
	}

	out := GeneratedQuery{
		SQL:        strings.TrimSpace(*payload.SQL),
		Parameters: payload.Parameters,
	}
	if out.Parameters == nil {
		out.Parameters = []Parameter{}
	}
	out.Explanation = defaultExplanation
	if payload.Explanation != nil {
		out.Explanation = *payload.Explanation
	}
	return out, nil
}
