// Package handler exposes the tenancy admin surface over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quarrylane/lamina/domains/tenancy/be/service"
	"github.com/quarrylane/lamina/platform/go/cloudflare"
	"github.com/quarrylane/lamina/platform/go/logging"
	"github.com/quarrylane/lamina/platform/go/migrate"
	"github.com/quarrylane/lamina/platform/go/persistence"
)

// TenancyService is the orchestrator surface the handler depends on.
type TenancyService interface {
	Create(ctx context.Context, tenantID string) (persistence.TenantDatabase, error)
	Delete(ctx context.Context, tenantID string) error
	Get(ctx context.Context, tenantID string) (persistence.TenantDatabase, error)
	List(ctx context.Context, status *persistence.Status, limit, offset int) ([]persistence.TenantDatabase, int, error)
	Migrate(ctx context.Context, tenantID string) (migrate.Applied, error)
	Reconcile(ctx context.Context, olderThan time.Duration, apply bool) (service.ReconcileReport, error)
}

// Handler wires the tenancy service to the admin HTTP routes.
type Handler struct {
	svc    TenancyService
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc TenancyService, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenancy service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the admin routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/tenants", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Post("/reconcile", h.reconcile)
		r.Get("/{tenantID}", h.get)
		r.Delete("/{tenantID}", h.delete)
		r.Post("/{tenantID}/migrate", h.migrate)
	})
}

type createRequest struct {
	TenantID string `json:"tenant_id"`
}

type listResponse struct {
	Items []tenantResponse `json:"items"`
	Total int              `json:"total"`
}

type tenantResponse struct {
	ID                   string                       `json:"id"`
	TenantID             string                       `json:"tenant_id"`
	TenantType           string                       `json:"tenant_type"`
	DatabaseName         string                       `json:"database_name"`
	DatabaseID           string                       `json:"database_id,omitempty"`
	Status               string                       `json:"status"`
	LastMigrationVersion string                       `json:"last_migration_version"`
	MigrationHistory     []persistence.MigrationEntry `json:"migration_history"`
	CreatedAt            time.Time                    `json:"created_at"`
	UpdatedAt            time.Time                    `json:"updated_at"`
	DeletedAt            *time.Time                   `json:"deleted_at,omitempty"`
}

type migrateResponse struct {
	Version    string `json:"version"`
	Checksum   string `json:"checksum"`
	Statements int    `json:"statements"`
}

type reconcileResponse struct {
	Stuck     []tenantResponse `json:"stuck"`
	Recovered int              `json:"recovered"`
	Failed    int              `json:"failed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status *persistence.Status
	if raw := q.Get("status"); raw != "" {
		s := persistence.Status(raw)
		if !s.IsValid() {
			h.respondError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		status = &s
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.List(r.Context(), status, limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	out := make([]tenantResponse, 0, len(items))
	for _, rec := range items {
		out = append(out, toTenantResponse(rec))
	}
	h.respondJSON(w, http.StatusOK, listResponse{Items: out, Total: total})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID == "" {
		h.respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	rec, err := h.svc.Create(r.Context(), req.TenantID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/tenants/"+rec.TenantID)
	h.respondJSON(w, http.StatusCreated, toTenantResponse(rec))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toTenantResponse(rec))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "tenantID")); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) migrate(w http.ResponseWriter, r *http.Request) {
	applied, err := h.svc.Migrate(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, migrateResponse{
		Version:    applied.Version,
		Checksum:   applied.Checksum,
		Statements: applied.Statements,
	})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	apply := r.URL.Query().Get("apply") == "true"

	olderThan := time.Hour
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid older_than duration")
			return
		}
		olderThan = d
	}

	report, err := h.svc.Reconcile(r.Context(), olderThan, apply)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	stuck := make([]tenantResponse, 0, len(report.Stuck))
	for _, rec := range report.Stuck {
		stuck = append(stuck, toTenantResponse(rec))
	}
	h.respondJSON(w, http.StatusOK, reconcileResponse{
		Stuck:     stuck,
		Recovered: report.Recovered,
		Failed:    report.Failed,
	})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromRequest(r, h.logger)
	switch {
	case errors.Is(err, persistence.ErrRecordNotFound), errors.Is(err, service.ErrNotActive):
		h.respondError(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, cloudflare.ErrMissingCredentials), errors.Is(err, cloudflare.ErrInvalidCredentials):
		logger.Error("provider credentials rejected", zap.Error(err))
		h.respondError(w, http.StatusBadGateway, "provider authentication failed")
	case errors.Is(err, service.ErrCreationFailed), errors.Is(err, service.ErrDeletionFailed):
		logger.Error("tenant lifecycle operation failed", zap.String("path", r.URL.Path), zap.Error(err))
		h.respondError(w, http.StatusBadGateway, "provider operation failed")
	default:
		logger.Error("tenant operation failed", zap.String("path", r.URL.Path), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Error: message})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func toTenantResponse(rec persistence.TenantDatabase) tenantResponse {
	return tenantResponse{
		ID:                   rec.ID.String(),
		TenantID:             rec.TenantID,
		TenantType:           string(rec.TenantType),
		DatabaseName:         rec.DatabaseName,
		DatabaseID:           rec.DatabaseID,
		Status:               string(rec.Status),
		LastMigrationVersion: rec.LastMigrationVersion,
		MigrationHistory:     rec.MigrationHistory,
		CreatedAt:            rec.CreatedAt,
		UpdatedAt:            rec.UpdatedAt,
		DeletedAt:            rec.DeletedAt,
	}
}
