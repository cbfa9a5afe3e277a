package api

import (
	"database/sql"
	"errors"
	"net/http"

	"datapilot/internal/core"
)

func (h *Handler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	user, err := h.users.GetByID(claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Errorw("getting user failed", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type updateMeRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Username  *string `json:"username"`
	ImageURL  *string `json:"image_url"`
}

// handleUpdateMe patches the caller's profile. Identity fields (id, email,
// organization, role) stay under the identity provider's control.
func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	user, err := h.users.GetByID(claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Errorw("getting user failed", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	var req updateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Username != nil {
		user.Username = *req.Username
	}
	if req.ImageURL != nil {
		user.ImageURL = *req.ImageURL
	}

	if err := h.users.Update(user); err != nil {
		h.log.Errorw("updating user failed", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleListOrgMembers(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims.OrganizationID == nil {
		writeError(w, http.StatusNotFound, "No organization")
		return
	}

	members, err := h.users.ListByOrganization(*claims.OrganizationID)
	if err != nil {
		h.log.Errorw("listing organization members failed", "org_id", *claims.OrganizationID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if members == nil {
		members = []core.User{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"members": members, "total": len(members)})
}

func (h *Handler) handleGetOrgInfo(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims.OrganizationID == nil {
		writeError(w, http.StatusNotFound, "No organization")
		return
	}

	org, err := h.users.GetOrganization(*claims.OrganizationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "Organization not found")
			return
		}
		h.log.Errorw("getting organization failed", "org_id", *claims.OrganizationID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, org)
}
