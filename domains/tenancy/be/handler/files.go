package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quarrylane/lamina/platform/go/logging"
	"github.com/quarrylane/lamina/platform/go/persistence"
	"github.com/quarrylane/lamina/platform/go/tenant"
)

// presignTTL bounds how long a download link stays valid.
const presignTTL = 15 * time.Minute

// SpaceResolver maps an active tenant to its storage coordinates.
type SpaceResolver interface {
	ResolveSpace(ctx context.Context, tenantID string) (tenant.Space, error)
}

// ObjectStore is the tenant-scoped file store surface the handler needs.
type ObjectStore interface {
	Presign(ctx context.Context, space tenant.Space, logicalKey string, expires time.Duration) (string, error)
	Delete(ctx context.Context, space tenant.Space, logicalKey string) error
}

// FileHandler exposes tenant file-storage operations. Mounted only when an R2
// bucket is configured.
type FileHandler struct {
	resolver SpaceResolver
	store    ObjectStore
	logger   *zap.Logger
}

// NewFileHandler constructs a FileHandler instance.
func NewFileHandler(resolver SpaceResolver, store ObjectStore, logger *zap.Logger) *FileHandler {
	if resolver == nil {
		panic("space resolver is required")
	}
	if store == nil {
		panic("object store is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &FileHandler{resolver: resolver, store: store, logger: logger}
}

// Register mounts the file routes on the router.
func (h *FileHandler) Register(r chi.Router) {
	r.Route("/api/v1/tenants/{tenantID}/files", func(r chi.Router) {
		r.Get("/*", h.presign)
		r.Delete("/*", h.delete)
	})
}

type presignResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *FileHandler) presign(w http.ResponseWriter, r *http.Request) {
	space, key, ok := h.resolveTarget(w, r)
	if !ok {
		return
	}

	url, err := h.store.Presign(r.Context(), space, key, presignTTL)
	if err != nil {
		logging.FromRequest(r, h.logger).Error("presign tenant file", zap.String("tenant_id", space.TenantID), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.respondJSON(w, http.StatusOK, presignResponse{URL: url, ExpiresAt: time.Now().UTC().Add(presignTTL)})
}

func (h *FileHandler) delete(w http.ResponseWriter, r *http.Request) {
	space, key, ok := h.resolveTarget(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), space, key); err != nil {
		logging.FromRequest(r, h.logger).Error("delete tenant file", zap.String("tenant_id", space.TenantID), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FileHandler) resolveTarget(w http.ResponseWriter, r *http.Request) (tenant.Space, string, bool) {
	key := chi.URLParam(r, "*")
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "file key is required")
		return tenant.Space{}, "", false
	}

	space, err := h.resolver.ResolveSpace(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			h.respondError(w, http.StatusNotFound, "tenant not found")
			return tenant.Space{}, "", false
		}
		logging.FromRequest(r, h.logger).Error("resolve tenant space", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return tenant.Space{}, "", false
	}

	return space, key, true
}

func (h *FileHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, errorResponse{Error: message})
}

func (h *FileHandler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}
