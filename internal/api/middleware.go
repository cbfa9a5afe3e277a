package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"datapilot/internal/core"
)

// Context keys
type contextKey int

const claimsKey contextKey = iota

// ClaimsFromContext returns the verified identity claims for the request.
func ClaimsFromContext(ctx context.Context) *core.Claims {
	claims, _ := ctx.Value(claimsKey).(*core.Claims)
	return claims
}

// LoggingMiddleware logs method, path, status and duration for every request.
func LoggingMiddleware(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap ResponseWriter to capture the status code
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			log.Infow("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"duration", time.Since(start))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// AuthMiddleware verifies the bearer token and stores claims in the request
// context. The user row is synced lazily from the claims so profile and
// organization endpoints work without a separate provisioning step.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		claims, err := h.verifier.Verify(strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		if err := h.syncIdentity(claims); err != nil {
			h.log.Errorw("identity sync failed", "user_id", claims.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// syncIdentity upserts the organization and user carried by the claims.
func (h *Handler) syncIdentity(claims *core.Claims) error {
	if claims.OrganizationID != nil {
		org := &core.Organization{
			ID:         *claims.OrganizationID,
			Name:       *claims.OrganizationID,
			Slug:       core.Slugify(*claims.OrganizationID),
			IsActive:   true,
			MaxMembers: 10,
		}
		if err := h.users.UpsertOrganization(org); err != nil {
			return err
		}
	}

	return h.users.Upsert(&core.User{
		ID:             claims.UserID,
		Email:          claims.Email,
		OrganizationID: claims.OrganizationID,
		Role:           claims.Role,
		IsActive:       true,
	})
}
