package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticAPIKeyValidatorParsing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:dashboard:query_runner|history_reader, k2:cli:query_runner")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	identity, ok := validator.Validate(context.Background(), "k1")
	if !ok {
		t.Fatal("expected key to be valid")
	}
	if identity.Subject != "dashboard" {
		t.Fatalf("Subject = %q", identity.Subject)
	}
	if !identity.HasRole(RoleHistoryReader) || !identity.HasRole(RoleQueryRunner) {
		t.Fatalf("Roles = %v", identity.Roles)
	}
	second, ok := validator.Validate(context.Background(), "k2")
	if !ok || second.HasRole(RoleHistoryReader) {
		t.Fatalf("k2 identity = %+v, ok=%v", second, ok)
	}
	if _, ok := validator.Validate(context.Background(), "unknown"); ok {
		t.Fatal("unknown key must not validate")
	}
	if validator.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", validator.Len())
	}
}

func TestStaticAPIKeyValidatorRejectsBadSpec(t *testing.T) {
	for _, spec := range []string{"invalid", "k1::query_runner", "k1:cli:", "k1:a:query_runner,k1:b:query_runner"} {
		if _, err := NewStaticAPIKeyValidator(spec); err == nil {
			t.Fatalf("expected parse error for %q", spec)
		}
	}
}

func TestStaticAPIKeyValidatorEmptySpec(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("  ")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	if _, ok := validator.Validate(context.Background(), ""); ok {
		t.Fatal("empty validator must reject everything")
	}
}

func TestMiddlewareRequiresKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:cli:query_runner")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/query/process", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["detail"] != "missing API key" || body["error_code"] != "UNAUTHORIZED" {
		t.Fatalf("body = %v", body)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("missing WWW-Authenticate header")
	}
}

func TestMiddlewareRejectsUnknownKeyAndNonBearerScheme(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:cli:query_runner")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	handler := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))

	for _, header := range []string{"Bearer nope", "Basic k1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/schema", nil)
		req.Header.Set("Authorization", header)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%q: status = %d", header, rr.Code)
		}
	}
}

func TestAuthorize(t *testing.T) {
	if err := Authorize(context.Background(), RoleHistoryReader); err != nil {
		t.Fatalf("Authorize() without identity = %v", err)
	}

	runner := WithIdentity(context.Background(), Identity{Subject: "cli", Roles: []string{RoleQueryRunner}})
	if err := Authorize(runner, RoleQueryRunner); err != nil {
		t.Fatalf("Authorize() = %v", err)
	}
	err := Authorize(runner, RoleHistoryReader)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("Authorize() = %v, want ErrForbidden", err)
	}

	admin := WithIdentity(context.Background(), Identity{Subject: "ops", Roles: []string{RoleAll}})
	if err := Authorize(admin, RoleHistoryReader); err != nil {
		t.Fatalf("wildcard Authorize() = %v", err)
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:cli:query_runner")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(nil, validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.Subject != "cli" {
			t.Fatalf("Subject = %q", identity.Subject)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query/process", nil)
	req.Header.Set("Authorization", "Bearer k1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}
