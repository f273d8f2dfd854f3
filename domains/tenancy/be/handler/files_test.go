package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quarrylane/lamina/platform/go/persistence"
	"github.com/quarrylane/lamina/platform/go/tenant"
)

type mockResolver struct {
	resolveFn func(ctx context.Context, tenantID string) (tenant.Space, error)
}

func (m *mockResolver) ResolveSpace(ctx context.Context, tenantID string) (tenant.Space, error) {
	return m.resolveFn(ctx, tenantID)
}

type mockObjectStore struct {
	presignFn func(ctx context.Context, space tenant.Space, logicalKey string, expires time.Duration) (string, error)
	deleteFn  func(ctx context.Context, space tenant.Space, logicalKey string) error
}

func (m *mockObjectStore) Presign(ctx context.Context, space tenant.Space, logicalKey string, expires time.Duration) (string, error) {
	return m.presignFn(ctx, space, logicalKey, expires)
}

func (m *mockObjectStore) Delete(ctx context.Context, space tenant.Space, logicalKey string) error {
	return m.deleteFn(ctx, space, logicalKey)
}

func activeSpaceResolver() *mockResolver {
	return &mockResolver{resolveFn: func(ctx context.Context, tenantID string) (tenant.Space, error) {
		return tenant.Space{TenantID: tenantID, Mode: tenant.ModeOrganization, DatabaseID: "db-1"}, nil
	}}
}

func newFileRouter(t *testing.T, resolver SpaceResolver, store ObjectStore) http.Handler {
	t.Helper()

	h := NewFileHandler(resolver, store, zaptest.NewLogger(t))
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func TestFileHandlerPresign(t *testing.T) {
	t.Parallel()

	store := &mockObjectStore{presignFn: func(ctx context.Context, space tenant.Space, logicalKey string, expires time.Duration) (string, error) {
		require.Equal(t, "org-1", space.TenantID)
		require.Equal(t, "reports/q1.pdf", logicalKey)
		require.Equal(t, presignTTL, expires)
		return "https://bucket.example/signed", nil
	}}
	router := newFileRouter(t, activeSpaceResolver(), store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/org-1/files/reports/q1.pdf", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body presignResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "https://bucket.example/signed", body.URL)
	require.False(t, body.ExpiresAt.IsZero())
}

func TestFileHandlerPresignTenantNotFound(t *testing.T) {
	t.Parallel()

	resolver := &mockResolver{resolveFn: func(ctx context.Context, tenantID string) (tenant.Space, error) {
		return tenant.Space{}, persistence.ErrRecordNotFound
	}}
	router := newFileRouter(t, resolver, &mockObjectStore{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tenants/org-missing/files/a.txt", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFileHandlerDelete(t *testing.T) {
	t.Parallel()

	var deleted string
	store := &mockObjectStore{deleteFn: func(ctx context.Context, space tenant.Space, logicalKey string) error {
		deleted = logicalKey
		return nil
	}}
	router := newFileRouter(t, activeSpaceResolver(), store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/tenants/org-1/files/avatar.png", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "avatar.png", deleted)
}
