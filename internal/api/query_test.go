package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/auth"
	"github.com/sqlpilot/sqlpilot/internal/history"
	"github.com/sqlpilot/sqlpilot/internal/nl2sql"
	"github.com/sqlpilot/sqlpilot/internal/pipeline"
	"github.com/sqlpilot/sqlpilot/internal/query"
	"github.com/sqlpilot/sqlpilot/internal/query/sqlexec"
	"github.com/sqlpilot/sqlpilot/internal/sqlguard"
)

type scenario struct {
	handler  http.Handler
	executor *countingExecutor
	history  *history.Recorder
}

func newScenario(t *testing.T, gen nl2sql.Generator, val nl2sql.Validator) *scenario {
	t.Helper()
	db := openScenarioStore(t)
	executor := &countingExecutor{next: sqlexec.NewExecutor(db, query.StyleNamed, nil)}
	recorder := history.NewRecorder(10)

	p := pipeline.New(gen, val, executor)
	p.Guard = &sqlguard.Guard{AllowMutations: true}
	p.Recorder = recorder

	return &scenario{
		handler:  NewHandler(testConfig(t, nil), Dependencies{Pipeline: p, History: recorder}),
		executor: executor,
		history:  recorder,
	}
}

func (s *scenario) ask(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query/process", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func safeValidator() *fakeValidator {
	return &fakeValidator{verdict: nl2sql.Verdict{IsSafe: true, Analysis: "The query is safe.", Performed: true}}
}

func decodeOutcome(t *testing.T, rr *httptest.ResponseRecorder) pipeline.Outcome {
	t.Helper()
	var outcome pipeline.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode outcome %q: %v", rr.Body.String(), err)
	}
	return outcome
}

func TestProcessListsAllCustomers(t *testing.T) {
	s := newScenario(t, &fakeGenerator{generated: nl2sql.GeneratedQuery{
		SQL:         "SELECT * FROM customers",
		Parameters:  []nl2sql.Parameter{},
		Explanation: "This query retrieves all customers",
	}}, safeValidator())

	rr := s.ask(t, `{"query": "Show me all customers"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	outcome := decodeOutcome(t, rr)
	if outcome.SQLQuery != "SELECT * FROM customers" {
		t.Fatalf("sql_query = %q", outcome.SQLQuery)
	}
	if !outcome.Results.Success || outcome.Results.RowCount != 2 {
		t.Fatalf("results = %+v", outcome.Results)
	}
	names := map[any]bool{}
	for _, row := range outcome.Results.Rows {
		names[row["name"]] = true
	}
	if !names["Test Customer"] || !names["Another Customer"] {
		t.Fatalf("rows = %+v", outcome.Results.Rows)
	}
}

func TestProcessBindsNamedParameter(t *testing.T) {
	s := newScenario(t, &fakeGenerator{generated: nl2sql.GeneratedQuery{
		SQL:         "SELECT * FROM customers WHERE id = :customer_id",
		Parameters:  []nl2sql.Parameter{{Name: "customer_id", Value: "1", Type: nl2sql.ParamNumber}},
		Explanation: "This query retrieves the customer with ID 1",
	}}, safeValidator())

	rr := s.ask(t, `{"query": "Show me customer with ID 1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	outcome := decodeOutcome(t, rr)
	if !strings.Contains(outcome.SQLQuery, ":customer_id") {
		t.Fatalf("sql_query = %q", outcome.SQLQuery)
	}
	if len(outcome.Parameters) != 1 || outcome.Parameters[0].Name != "customer_id" {
		t.Fatalf("parameters = %+v", outcome.Parameters)
	}
	if outcome.Results.RowCount != 1 || outcome.Results.Rows[0]["name"] != "Test Customer" {
		t.Fatalf("results = %+v", outcome.Results)
	}
}

func TestProcessGenerationFailure(t *testing.T) {
	s := newScenario(t, &fakeGenerator{err: &nl2sql.GenerationError{Message: "LLM API Error"}}, safeValidator())

	rr := s.ask(t, `{"query": "Show me all customers"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["detail"] != "LLM API Error" || body["error_code"] != "GENERATION_FAILED" {
		t.Fatalf("body = %v", body)
	}
	if s.executor.calls != 0 {
		t.Fatalf("executor calls = %d, want none", s.executor.calls)
	}
	entries := s.history.Recent(1)
	if len(entries) != 1 || entries[0].Outcome != history.OutcomeGenerationFailed {
		t.Fatalf("history = %+v", entries)
	}
}

func TestProcessSecurityRejection(t *testing.T) {
	s := newScenario(t, &fakeGenerator{generated: nl2sql.GeneratedQuery{
		SQL:        "SELECT * FROM customers",
		Parameters: []nl2sql.Parameter{},
	}}, &fakeValidator{verdict: nl2sql.Verdict{IsSafe: false, Analysis: "Potential SQL injection vulnerability", Performed: true}})

	rr := s.ask(t, `{"query": "Show me all customers"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	detail, _ := body["detail"].(string)
	if !strings.Contains(detail, "security validation") || body["error_code"] != "SECURITY_VALIDATION_FAILED" {
		t.Fatalf("body = %v", body)
	}
	if s.executor.calls != 0 {
		t.Fatalf("executor calls = %d, want none", s.executor.calls)
	}
}

func TestProcessExecutionFailure(t *testing.T) {
	s := newScenario(t, &fakeGenerator{generated: nl2sql.GeneratedQuery{
		SQL:        "SELECT * FROM nonexistent_table",
		Parameters: []nl2sql.Parameter{},
	}}, safeValidator())

	rr := s.ask(t, `{"query": "Show me everything in the other table"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	detail, _ := body["detail"].(string)
	if !strings.Contains(detail, "no such table") || body["error_code"] != "QUERY_EXECUTION_FAILED" {
		t.Fatalf("body = %v", body)
	}
}

func TestProcessMutationReportsAffectedRows(t *testing.T) {
	s := newScenario(t, &fakeGenerator{generated: nl2sql.GeneratedQuery{
		SQL:        "UPDATE orders SET status = :status WHERE status = :old_status",
		Parameters: []nl2sql.Parameter{{Name: "status", Value: "archived", Type: nl2sql.ParamString}, {Name: "old_status", Value: "pending", Type: nl2sql.ParamString}},
	}}, safeValidator())

	rr := s.ask(t, `{"query": "Archive pending orders"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var raw struct {
		Results map[string]any `json:"results"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw.Results["success"] != true {
		t.Fatalf("results = %v", raw.Results)
	}
	if _, ok := raw.Results["affected_rows"]; !ok {
		t.Fatalf("results = %v", raw.Results)
	}
	if _, ok := raw.Results["rows"]; ok {
		t.Fatalf("mutation results must not carry rows: %v", raw.Results)
	}
}

func TestProcessRejectsBadRequests(t *testing.T) {
	s := newScenario(t, &fakeGenerator{generated: nl2sql.GeneratedQuery{SQL: "SELECT 1"}}, safeValidator())

	cases := []struct {
		name string
		body string
		code string
	}{
		{name: "not json", body: `query=customers`, code: "INVALID_JSON"},
		{name: "unknown field", body: `{"question": "customers"}`, code: "INVALID_JSON"},
		{name: "empty", body: `{"query": ""}`, code: "QUERY_REQUIRED"},
		{name: "blank", body: `{"query": "   "}`, code: "QUERY_REQUIRED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := s.ask(t, tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rr.Code)
			}
			if body := decodeBody(t, rr); body["error_code"] != tc.code {
				t.Fatalf("body = %v", body)
			}
		})
	}
	if s.executor.calls != 0 {
		t.Fatalf("executor calls = %d", s.executor.calls)
	}
}

func TestProcessRequiresQueryRunnerRole(t *testing.T) {
	cfg := testConfig(t, map[string]string{"SQLPILOT_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("reader:ops:history_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	p := pipeline.New(&fakeGenerator{generated: nl2sql.GeneratedQuery{SQL: "SELECT 1"}}, safeValidator(), &countingExecutor{})
	h := NewHandler(cfg, Dependencies{AuthMiddleware: auth.Middleware(nil, validator), Pipeline: p})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query/process", strings.NewReader(`{"query": "x"}`))
	req.Header.Set("X-API-Key", "reader")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestWritePipelineErrorMapsTimeout(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query/process", nil)
	writePipelineError(rr, req, &pipeline.TimeoutError{Stage: pipeline.StageGenerating, Err: context.DeadlineExceeded})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "PIPELINE_TIMEOUT" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}

	rr = httptest.NewRecorder()
	writePipelineError(rr, req, errors.New("pipeline is not fully configured"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProcessTimesOutSlowGenerator(t *testing.T) {
	db := openScenarioStore(t)
	p := pipeline.New(slowGenerator{}, safeValidator(), sqlexec.NewExecutor(db, query.StyleNamed, nil))
	p.Timeout = 20 * time.Millisecond
	h := NewHandler(testConfig(t, nil), Dependencies{Pipeline: p})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query/process", strings.NewReader(`{"query": "slow"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "PIPELINE_TIMEOUT" {
		t.Fatalf("body = %v", body)
	}
}

type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, _ string) (nl2sql.GeneratedQuery, error) {
	<-ctx.Done()
	return nl2sql.GeneratedQuery{}, &nl2sql.GenerationError{Message: ctx.Err().Error(), Err: ctx.Err()}
}
