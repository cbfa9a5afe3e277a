package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"datapilot/internal/config"
	"datapilot/internal/core"
	"datapilot/internal/data"
	"datapilot/internal/service"
)

// Handler holds all API dependencies and mounts the route tree.
type Handler struct {
	cfg *config.Config
	log *zap.SugaredLogger

	verifier core.TokenVerifier

	users       core.UserRepository
	connections core.ConnectionRepository
	queries     core.QueryRepository
	datasets    core.DatasetRepository

	executor *service.QueryExecutor
	tester   *service.ConnectionTester
	vault    *service.Vault

	db    *sql.DB
	redis *data.RedisClient

	limiter *RateLimiter
}

func NewHandler(
	cfg *config.Config,
	log *zap.SugaredLogger,
	verifier core.TokenVerifier,
	users core.UserRepository,
	connections core.ConnectionRepository,
	queries core.QueryRepository,
	datasets core.DatasetRepository,
	executor *service.QueryExecutor,
	tester *service.ConnectionTester,
	vault *service.Vault,
	db *sql.DB,
	redis *data.RedisClient,
) *Handler {
	return &Handler{
		cfg:         cfg,
		log:         log,
		verifier:    verifier,
		users:       users,
		connections: connections,
		queries:     queries,
		datasets:    datasets,
		executor:    executor,
		tester:      tester,
		vault:       vault,
		db:          db,
		redis:       redis,
		limiter:     NewRateLimiter(120, 30, log),
	}
}

// Routes builds the chi router. Everything under /api/v1 requires a bearer
// token; /health is public for load balancers.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(LoggingMiddleware(h.log))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   h.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/health", h.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Use(h.limiter.Middleware)

		r.Route("/queries", func(r chi.Router) {
			r.Post("/execute", h.handleExecuteQuery)
			r.Get("/", h.handleListQueries)
			r.Get("/{id}", h.handleGetQuery)
			r.Post("/{id}/save", h.handleSaveQuery)
			r.Delete("/{id}", h.handleDeleteQuery)
		})

		r.Route("/connections", func(r chi.Router) {
			r.Post("/test", h.handleTestConnectionPayload)
			r.Post("/", h.handleCreateConnection)
			r.Get("/", h.handleListConnections)
			r.Get("/{id}", h.handleGetConnection)
			r.Put("/{id}", h.handleUpdateConnection)
			r.Delete("/{id}", h.handleDeleteConnection)
			r.Post("/{id}/test", h.handleTestConnection)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", h.handleGetMe)
			r.Patch("/me", h.handleUpdateMe)
			r.Get("/organization/members", h.handleListOrgMembers)
			r.Get("/organization/info", h.handleGetOrgInfo)
		})

		r.Route("/datasets", func(r chi.Router) {
			r.Get("/", h.handleListDatasets)
			r.Post("/", h.handleCreateDataset)
			r.Get("/{id}", h.handleGetDataset)
			r.Patch("/{id}", h.handleUpdateDataset)
			r.Delete("/{id}", h.handleDeleteDataset)
		})
	})

	return r
}

// handleHealth reports app, database and redis status.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "unavailable"
	}

	redisStatus := "disabled"
	if h.redis != nil {
		if h.redis.Available(r.Context()) {
			redisStatus = "ok"
		} else {
			redisStatus = "unavailable"
		}
	}

	status := http.StatusOK
	overall := "healthy"
	if dbStatus != "ok" {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	writeJSON(w, status, map[string]string{
		"app":      h.cfg.AppName,
		"status":   overall,
		"database": dbStatus,
		"redis":    redisStatus,
	})
}
