package asker

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
)

type Service struct {
	cfg       Config
	log       *slog.Logger
	http      *http.Client
	questions *Questions
}

type processRequest struct {
	Query string `json:"query"`
}

type processResponse struct {
	SQLQuery string `json:"sql_query"`
	Fallback bool   `json:"fallback"`
	Results  struct {
		Success      bool  `json:"success"`
		RowCount     int   `json:"row_count"`
		AffectedRows int64 `json:"affected_rows"`
	} `json:"results"`
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
}

// Answer is the outcome of one question as seen by the client.
type Answer struct {
	Question  string
	Status    int
	SQLQuery  string
	RowCount  int
	ErrorCode string
	Detail    string
	Duration  time.Duration
}

func NewService(cfg Config, logger *slog.Logger, client *http.Client) (*Service, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	return &Service{
		cfg:       cfg,
		log:       observability.LoggerOrDiscard(logger),
		http:      client,
		questions: NewQuestions(cfg.Seed, cfg.CustomerIDRange, cfg.IncludeMutations),
	}, nil
}

// Run asks one question per interval until ctx ends or MaxQuestions have been
// asked. Rejections and execution failures are logged, not returned.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		answer, err := s.askOnce(ctx, s.questions.Next())
		switch {
		case err != nil:
			s.log.Error("failed to ask demo question", slog.Any("error", err))
		case answer.Status == http.StatusOK:
			s.log.Info("demo question answered",
				slog.String("question", answer.Question),
				slog.String("sql", answer.SQLQuery),
				slog.Int("row_count", answer.RowCount),
				slog.Duration("duration", answer.Duration),
			)
		default:
			s.log.Warn("demo question failed",
				slog.String("question", answer.Question),
				slog.Int("status", answer.Status),
				slog.String("error_code", answer.ErrorCode),
				slog.String("detail", answer.Detail),
			)
		}

		if s.cfg.MaxQuestions > 0 && s.questions.Count() >= int64(s.cfg.MaxQuestions) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) askOnce(ctx context.Context, question string) (Answer, error) {
	raw, err := json.Marshal(processRequest{Query: question})
	if err != nil {
		return Answer{}, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIBaseURL+"/api/v1/query/process", bytes.NewReader(raw))
	if err != nil {
		return Answer{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", s.cfg.APIKey)
	}

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		return Answer{}, fmt.Errorf("process request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Answer{}, err
	}
	answer := Answer{Question: question, Status: resp.StatusCode, Duration: time.Since(start)}

	var decoded processResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return answer, fmt.Errorf("decode response status %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return answer, fmt.Errorf("process request status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	answer.SQLQuery = decoded.SQLQuery
	answer.RowCount = decoded.Results.RowCount
	answer.ErrorCode = decoded.ErrorCode
	answer.Detail = decoded.Detail
	return answer, nil
}
