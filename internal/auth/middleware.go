package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/observability"
)

type contextKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(Identity)
	return identity, ok
}

// Middleware rejects requests whose X-API-Key or bearer token is unknown and
// stores the resolved Identity in the request context.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	logger = observability.LoggerOrDiscard(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			apiKey, source := credentialFrom(r)
			if apiKey == "" {
				writeUnauthorized(ctx, w, "missing API key")
				return
			}

			identity, ok := validator.Validate(ctx, apiKey)
			if !ok {
				logger.WarnContext(ctx, "rejected api key",
					slog.String("source", source),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				)
				writeUnauthorized(ctx, w, "invalid API key")
				return
			}
			logger.DebugContext(ctx, "authenticated request",
				slog.String("subject", identity.Subject),
				slog.Any("roles", identity.Roles),
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			)

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func credentialFrom(r *http.Request) (string, string) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, "header"
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ""
	}
	return strings.TrimSpace(token), "bearer"
}

func writeUnauthorized(ctx context.Context, w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="sqlpilot"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"detail":     detail,
		"error_code": "UNAUTHORIZED",
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
