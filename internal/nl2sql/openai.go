package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/observability"
	"github.com/sqlpilot/sqlpilot/internal/schema"
)

type Mode string

const (
	// ModeFunction forces a generate_sql_query tool call.
	ModeFunction Mode = "function"
	// ModeText asks for JSON embedded in prose, for backends without tool calls.
	ModeText Mode = "text"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Mode        Mode
	Temperature float64
	Timeout     time.Duration
	Schema      schema.Descriptor
	Logger      *slog.Logger
	HTTPClient  *http.Client
}

// OpenAIClient generates and validates SQL through an OpenAI-compatible chat
// completions endpoint.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	mode        Mode
	temperature float64
	schema      schema.Descriptor
	logger      *slog.Logger
	client      *http.Client
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeFunction
	}
	if mode != ModeFunction && mode != ModeText {
		return nil, fmt.Errorf("unsupported mode %q", mode)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if mode == ModeFunction && apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if apiKey == "" {
		// Self-hosted backends ignore the key but some proxies insist on one.
		apiKey = "not-needed"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-3.5-turbo-1106"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	descriptor := cfg.Schema
	if len(descriptor.Tables) == 0 {
		descriptor = schema.Default()
	}
	return &OpenAIClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      apiKey,
		model:       model,
		mode:        mode,
		temperature: cfg.Temperature,
		schema:      descriptor,
		logger:      observability.LoggerOrDiscard(cfg.Logger),
		client:      client,
	}, nil
}

func (c *OpenAIClient) Mode() Mode {
	return c.mode
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatToolCall struct {
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   *string        `json:"content"`
			ToolCalls []chatToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) complete(ctx context.Context, payload map[string]any) (chatResponse, error) {
	payload["model"] = c.model
	payload["temperature"] = c.temperature

	body, err := json.Marshal(payload)
	if err != nil {
		return chatResponse{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return chatResponse{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return chatResponse{}, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return chatResponse{}, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return chatResponse{}, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(rawRespBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return chatResponse{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return chatResponse{}, fmt.Errorf("empty chat completion choices")
	}
	return parsed, nil
}

func messageContent(resp chatResponse) string {
	content := resp.Choices[0].Message.Content
	if content == nil {
		return ""
	}
	return *content
}
