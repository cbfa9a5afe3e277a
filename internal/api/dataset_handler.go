package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"datapilot/internal/core"
)

func (h *Handler) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims.OrganizationID == nil {
		writeJSON(w, http.StatusOK, map[string]any{"datasets": []core.Dataset{}, "total": 0})
		return
	}

	datasets, err := h.datasets.ListByOrganization(*claims.OrganizationID)
	if err != nil {
		h.log.Errorw("listing datasets failed", "org_id", *claims.OrganizationID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if datasets == nil {
		datasets = []core.Dataset{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"datasets": datasets, "total": len(datasets)})
}

type datasetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	RowCount    int    `json:"row_count"`
	ColumnCount int    `json:"column_count"`
	FileSize    int64  `json:"file_size"`
}

func (h *Handler) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims.OrganizationID == nil {
		writeError(w, http.StatusBadRequest, "Datasets require an organization")
		return
	}

	var req datasetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Dataset name is required")
		return
	}

	d := &core.Dataset{
		ID:             uuid.NewString(),
		OrganizationID: *claims.OrganizationID,
		Name:           req.Name,
		Description:    req.Description,
		CreatedBy:      claims.UserID,
		RowCount:       req.RowCount,
		ColumnCount:    req.ColumnCount,
		FileSize:       req.FileSize,
		IsActive:       true,
	}

	if err := h.datasets.Create(d); err != nil {
		h.log.Errorw("creating dataset failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims.OrganizationID == nil {
		writeError(w, http.StatusNotFound, "Dataset not found")
		return
	}

	d, err := h.datasets.Get(chi.URLParam(r, "id"), *claims.OrganizationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Dataset not found")
			return
		}
		h.log.Errorw("getting dataset failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

type datasetPatchRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	RowCount    *int    `json:"row_count"`
	ColumnCount *int    `json:"column_count"`
	FileSize    *int64  `json:"file_size"`
	IsActive    *bool   `json:"is_active"`
}

func (h *Handler) handleUpdateDataset(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims.OrganizationID == nil {
		writeError(w, http.StatusNotFound, "Dataset not found")
		return
	}

	d, err := h.datasets.Get(chi.URLParam(r, "id"), *claims.OrganizationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Dataset not found")
			return
		}
		h.log.Errorw("getting dataset failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	var req datasetPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != nil {
		d.Name = *req.Name
	}
	if req.Description != nil {
		d.Description = *req.Description
	}
	if req.RowCount != nil {
		d.RowCount = *req.RowCount
	}
	if req.ColumnCount != nil {
		d.ColumnCount = *req.ColumnCount
	}
	if req.FileSize != nil {
		d.FileSize = *req.FileSize
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}

	if err := h.datasets.Update(d); err != nil {
		h.log.Errorw("updating dataset failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims.OrganizationID == nil {
		writeError(w, http.StatusNotFound, "Dataset not found")
		return
	}

	if err := h.datasets.Delete(chi.URLParam(r, "id"), *claims.OrganizationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Dataset not found")
			return
		}
		h.log.Errorw("deleting dataset failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Dataset deleted"})
}
