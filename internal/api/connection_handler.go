package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"datapilot/internal/core"
)

type connectionRequest struct {
	Name           string `json:"name"`
	ConnectionType string `json:"connection_type"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Database       string `json:"database"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	SSLEnabled     bool   `json:"ssl_enabled"`
	ShareWithOrg   bool   `json:"share_with_org"`
}

func (req *connectionRequest) validate() string {
	switch {
	case strings.TrimSpace(req.Name) == "":
		return "Connection name is required"
	case strings.TrimSpace(req.ConnectionType) == "":
		return "Connection type is required"
	case strings.TrimSpace(req.Database) == "":
		return "Database name is required"
	}
	return ""
}

func (req *connectionRequest) toModel() *core.DataConnection {
	return &core.DataConnection{
		Name:           req.Name,
		ConnectionType: req.ConnectionType,
		Host:           req.Host,
		Port:           req.Port,
		Database:       req.Database,
		Username:       req.Username,
		SSLEnabled:     req.SSLEnabled,
	}
}

// handleTestConnectionPayload tests connectivity for an unsaved connection
// payload. Nothing is persisted.
func (h *Handler) handleTestConnectionPayload(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	result := h.tester.Test(r.Context(), req.toModel(), req.Password)
	writeJSON(w, http.StatusOK, result)
}

// handleCreateConnection tests the connection live, then stores it with the
// password vault-encrypted. A failing test rejects the create.
func (h *Handler) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	var req connectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	conn := req.toModel()
	result := h.tester.Test(r.Context(), conn, req.Password)
	if !result.Success {
		writeError(w, http.StatusBadRequest, "Connection test failed: "+result.Error)
		return
	}

	encrypted, err := h.vault.Encrypt(req.Password)
	if err != nil {
		h.log.Errorw("encrypting connection password failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	now := time.Now().UTC()
	conn.ID = uuid.NewString()
	conn.UserID = claims.UserID
	conn.PasswordEnc = encrypted
	conn.IsActive = true
	conn.LastTestedAt = &now
	conn.LastTestStatus = "success"
	if req.ShareWithOrg {
		conn.OrganizationID = claims.OrganizationID
	}

	if err := h.connections.Create(conn); err != nil {
		h.log.Errorw("creating connection failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, conn)
}

func (h *Handler) handleListConnections(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	conns, err := h.connections.ListForUser(claims.UserID, claims.OrganizationID)
	if err != nil {
		h.log.Errorw("listing connections failed", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if conns == nil {
		conns = []core.DataConnection{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"connections": conns, "total": len(conns)})
}

func (h *Handler) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	conn, err := h.connections.GetForUser(chi.URLParam(r, "id"), claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Connection not found")
			return
		}
		h.log.Errorw("getting connection failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, conn)
}

// handleUpdateConnection rewrites the mutable fields. The password is
// write-only: it is re-encrypted when present and left untouched when empty.
func (h *Handler) handleUpdateConnection(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	conn, err := h.connections.GetForUser(chi.URLParam(r, "id"), claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Connection not found")
			return
		}
		h.log.Errorw("getting connection failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	var req connectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	conn.Name = req.Name
	conn.ConnectionType = req.ConnectionType
	conn.Host = req.Host
	conn.Port = req.Port
	conn.Database = req.Database
	conn.Username = req.Username
	conn.SSLEnabled = req.SSLEnabled

	if req.Password != "" {
		encrypted, err := h.vault.Encrypt(req.Password)
		if err != nil {
			h.log.Errorw("encrypting connection password failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		conn.PasswordEnc = encrypted
	}

	if err := h.connections.Update(conn); err != nil {
		h.log.Errorw("updating connection failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, conn)
}

func (h *Handler) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	if err := h.connections.Delete(chi.URLParam(r, "id"), claims.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Connection not found")
			return
		}
		h.log.Errorw("deleting connection failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Connection deleted"})
}

// handleTestConnection retests a stored connection with its vaulted
// credentials and refreshes the last-test fields.
func (h *Handler) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	conn, err := h.connections.GetForUser(chi.URLParam(r, "id"), claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Connection not found")
			return
		}
		h.log.Errorw("getting connection failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	password, err := h.vault.Decrypt(conn.PasswordEnc)
	if err != nil {
		h.log.Errorw("decrypting connection password failed", "connection_id", conn.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Stored credentials could not be decrypted")
		return
	}

	result := h.tester.Test(r.Context(), conn, password)

	status := "success"
	if !result.Success {
		status = "failed"
	}
	if err := h.connections.UpdateTestStatus(conn.ID, status, result.Error); err != nil {
		h.log.Errorw("recording test status failed", "connection_id", conn.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, result)
}
