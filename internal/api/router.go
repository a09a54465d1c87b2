// Package api exposes the reconciliation engine over REST.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/titanops/vista-sync/internal/config"
	"github.com/titanops/vista-sync/internal/vista"
)

// Engine is the reconciliation surface the handlers call. *vista.Service
// satisfies it.
type Engine interface {
	List(ctx context.Context, tenantID uuid.UUID, t vista.EntityType, f vista.ListFilter) (*vista.RecordPage, error)
	Counts(ctx context.Context, tenantID uuid.UUID, t vista.EntityType) (vista.StatusCounts, error)
	Get(ctx context.Context, tenantID uuid.UUID, t vista.EntityType, id uuid.UUID) (*vista.Record, error)
	Link(ctx context.Context, tenantID uuid.UUID, t vista.EntityType, id, entityID uuid.UUID, actor *uuid.UUID) (*vista.Record, error)
	Unlink(ctx context.Context, tenantID uuid.UUID, t vista.EntityType, id uuid.UUID) (*vista.Record, error)
	Ignore(ctx context.Context, tenantID uuid.UUID, t vista.EntityType, id uuid.UUID, actor *uuid.UUID) (*vista.Record, error)
	DeleteExternalOnly(ctx context.Context, tenantID uuid.UUID, t vista.EntityType) (int64, error)
	Import(ctx context.Context, req vista.ImportRequest) (*vista.ImportSummary, error)
	ListBatches(ctx context.Context, tenantID uuid.UUID, limit int) ([]*vista.ImportBatch, error)
	AutoMatchAll(ctx context.Context, tenantID uuid.UUID) (map[string]vista.MatchCounts, error)
	Duplicates(ctx context.Context, tenantID uuid.UUID, t vista.EntityType, opts vista.DuplicateOptions) ([]vista.DuplicateGroup, error)
	DuplicateStats(ctx context.Context, tenantID uuid.UUID, t vista.EntityType) (vista.DuplicateStats, error)
	Promote(ctx context.Context, tenantID uuid.UUID, t vista.EntityType, actor *uuid.UUID) (*vista.PromoteResult, error)
	LinkDepartmentCode(ctx context.Context, tenantID uuid.UUID, code string, departmentID uuid.UUID) (map[string]int64, error)
	AutoLinkDepartments(ctx context.Context, tenantID uuid.UUID) (map[string]vista.DepartmentCounts, error)
}

var _ Engine = (*vista.Service)(nil)

// Handler serves the REST routes.
type Handler struct {
	engine    Engine
	uploads   *tenantLimiter
	maxUpload int64
}

// NewRouter builds the HTTP handler: /health plus the engine routes under
// /api/vista.
func NewRouter(engine Engine, cfg config.ServerConfig) http.Handler {
	maxMB := cfg.MaxUploadMB
	if maxMB <= 0 {
		maxMB = 50
	}
	h := &Handler{
		engine:    engine,
		uploads:   newTenantLimiter(cfg.UploadRatePerMin, cfg.UploadBurst),
		maxUpload: int64(maxMB) << 20,
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", headerTenant, headerUser, headerRole},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/vista", func(r chi.Router) {
		r.Use(identify)

		r.Get("/import/batches", h.listBatches)
		r.Get("/duplicates/{type}", h.duplicates)
		r.Get("/duplicates/{type}/stats", h.duplicateStats)
		r.Get("/{type}", h.list)
		r.Get("/{type}/counts", h.counts)
		r.Get("/{type}/{id}", h.get)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)

			r.With(h.uploads.middleware).Post("/import/upload", h.upload)
			r.Post("/import/auto-match", h.autoMatch)
			r.Post("/import-to-titan/{type}", h.promote)
			r.Post("/link-department-code", h.linkDepartmentCode)
			r.Post("/auto-link-departments", h.autoLinkDepartments)
			r.Post("/{type}/{id}/link", h.link)
			r.Post("/{type}/{id}/unlink", h.unlink)
			r.Post("/{type}/{id}/ignore", h.ignore)
			r.Delete("/{type}/external-only", h.deleteExternalOnly)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
