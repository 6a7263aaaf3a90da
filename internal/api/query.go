package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/auth"
	"github.com/sqlpilot/sqlpilot/internal/pipeline"
)

type processRequest struct {
	Query string `json:"query"`
}

func handleProcessQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "query pipeline is not configured", false)
		return
	}
	if err := auth.Authorize(r.Context(), auth.RoleQueryRunner); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false)
		return
	}

	var request processRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body: "+err.Error(), false)
		return
	}
	question := strings.TrimSpace(request.Query)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_REQUIRED", "query is required", false)
		return
	}

	outcome, err := deps.Pipeline.Process(r.Context(), question)
	if err != nil {
		writePipelineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// writePipelineError maps pipeline failures onto 400 responses whose detail is
// the message clients show to the user.
func writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		genErr       *pipeline.GenerationError
		rejectionErr *pipeline.RejectionError
		execErr      *pipeline.ExecutionError
		timeoutErr   *pipeline.TimeoutError
	)
	switch {
	case errors.As(err, &timeoutErr):
		writeError(r.Context(), w, http.StatusBadRequest, "PIPELINE_TIMEOUT", timeoutErr.Error(), true)
	case errors.As(err, &genErr):
		writeError(r.Context(), w, http.StatusBadRequest, "GENERATION_FAILED", genErr.Message, true)
	case errors.As(err, &rejectionErr):
		writeError(r.Context(), w, http.StatusBadRequest, "SECURITY_VALIDATION_FAILED", rejectionErr.Detail(), false)
	case errors.As(err, &execErr):
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", execErr.Message, false)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", err.Error(), false)
	}
}
