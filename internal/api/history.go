package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/auth"
	"github.com/sqlpilot/sqlpilot/internal/history"
	"github.com/sqlpilot/sqlpilot/internal/storage"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := auth.Authorize(r.Context(), auth.RoleQueryRunner); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false)
		return
	}
	if len(deps.Schema.Tables) == 0 {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema descriptor is not configured", false)
		return
	}
	writeJSON(w, http.StatusOK, deps.Schema)
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_DISABLED", "query history is disabled", false)
		return
	}
	if err := auth.Authorize(r.Context(), auth.RoleHistoryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", err.Error(), false)
		return
	}
	entries := deps.History.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func handleListArchives(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archive == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_DISABLED", "history archive is disabled", false)
		return
	}
	if err := auth.Authorize(r.Context(), auth.RoleHistoryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false)
		return
	}

	var day time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DATE", "date must be formatted as YYYY-MM-DD", false)
			return
		}
		day = parsed
	}

	objects, err := history.ListArchives(r.Context(), deps.Archive, archiveInstance(deps), day)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_LIST_FAILED", err.Error(), true)
		return
	}
	if objects == nil {
		objects = []storage.ObjectInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": objects})
}

func handleReadArchive(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archive == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_DISABLED", "history archive is disabled", false)
		return
	}
	if err := auth.Authorize(r.Context(), auth.RoleHistoryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false)
		return
	}

	key := r.PathValue("key")
	if err := storage.ValidateHistoryKey(key); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARCHIVE_KEY", err.Error(), false)
		return
	}
	entries, err := history.ReadArchive(r.Context(), deps.Archive, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "ARCHIVE_NOT_FOUND", "history archive was not found", false)
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_READ_FAILED", err.Error(), true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":     key,
		"entries": entries,
		"count":   len(entries),
	})
}

func archiveInstance(deps Dependencies) string {
	if deps.ArchiveInstance != "" {
		return deps.ArchiveInstance
	}
	return "default"
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, nil
}
