package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"datapilot/internal/core"
	"datapilot/internal/service"
)

type executeQueryRequest struct {
	NaturalLanguageQuery string  `json:"natural_language_query"`
	ConnectionID         *string `json:"connection_id"`
	DocumentID           *string `json:"document_id"`
}

type executeQueryResponse struct {
	QueryID         string           `json:"query_id"`
	SQLQuery        string           `json:"sql_query,omitempty"`
	Status          string           `json:"status"`
	Columns         []string         `json:"columns,omitempty"`
	Data            []map[string]any `json:"data,omitempty"`
	RowCount        *int             `json:"row_count,omitempty"`
	ExecutionTimeMs *int64           `json:"execution_time_ms,omitempty"`
}

// handleExecuteQuery runs the natural-language query pipeline end to end.
func (h *Handler) handleExecuteQuery(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	var req executeQueryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.NaturalLanguageQuery) == "" {
		writeError(w, http.StatusBadRequest, "Query text is required")
		return
	}

	record, result, err := h.executor.Execute(r.Context(), claims, service.ExecuteRequest{
		NaturalLanguageQuery: req.NaturalLanguageQuery,
		ConnectionID:         req.ConnectionID,
		DocumentID:           req.DocumentID,
	})
	if err != nil {
		h.writeQueryError(w, record, err)
		return
	}

	writeJSON(w, http.StatusOK, executeQueryResponse{
		QueryID:         record.ID,
		SQLQuery:        record.SQLQuery,
		Status:          record.Status,
		Columns:         result.Columns,
		Data:            result.Rows,
		RowCount:        record.RowCount,
		ExecutionTimeMs: record.ExecutionTimeMs,
	})
}

// writeQueryError maps the pipeline error taxonomy onto HTTP status codes.
func (h *Handler) writeQueryError(w http.ResponseWriter, record *core.Query, err error) {
	var (
		providerErr *core.ProviderError
		schemaErr   *core.SchemaError
		safetyErr   *core.SafetyError
		execErr     *core.ExecutionError
	)

	switch {
	case errors.Is(err, core.ErrTargetRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrConnectionNotFound),
		errors.Is(err, core.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrConnectionInactive):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrDocumentQueriesNotImplemented):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.As(err, &providerErr),
		errors.As(err, &schemaErr),
		errors.As(err, &safetyErr),
		errors.As(err, &execErr):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		if record != nil {
			h.log.Errorw("query execution failed unexpectedly", "query_id", record.ID, "error", err)
		} else {
			h.log.Errorw("query execution failed unexpectedly", "error", err)
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// handleListQueries returns the caller's query history, newest first.
func (h *Handler) handleListQueries(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	page := intParam(r, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := intParam(r, "page_size", 20)
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	savedOnly := r.URL.Query().Get("saved_only") == "true"

	queries, total, err := h.queries.ListForUser(claims.UserID, savedOnly, (page-1)*pageSize, pageSize)
	if err != nil {
		h.log.Errorw("listing queries failed", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if queries == nil {
		queries = []core.Query{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queries":   queries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (h *Handler) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	q, err := h.queries.GetForUser(chi.URLParam(r, "id"), claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Query not found")
			return
		}
		h.log.Errorw("getting query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, q)
}

type saveQueryRequest struct {
	Title string `json:"title"`
}

func (h *Handler) handleSaveQuery(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	var req saveQueryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.queries.Save(chi.URLParam(r, "id"), claims.UserID, req.Title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Query not found")
			return
		}
		h.log.Errorw("saving query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Query saved"})
}

func (h *Handler) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	if err := h.queries.Delete(chi.URLParam(r, "id"), claims.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Query not found")
			return
		}
		h.log.Errorw("deleting query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Query deleted"})
}

func intParam(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
