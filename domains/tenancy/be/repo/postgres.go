// Package repo provides Registry implementations over the shared persistence
// layer and an in-memory variant for tests and early development.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quarrylane/lamina/domains/tenancy/be/service"
	"github.com/quarrylane/lamina/platform/go/persistence"
	"github.com/quarrylane/lamina/platform/go/tenant"
)

// PostgresRepository implements the tenancy registry over RegistryStore.
type PostgresRepository struct {
	store  *persistence.RegistryStore
	logger *zap.Logger
}

// NewPostgresRepository constructs a repository backed by RegistryStore.
func NewPostgresRepository(store *persistence.RegistryStore, logger *zap.Logger) *PostgresRepository {
	if store == nil {
		panic("registry store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresRepository{store: store, logger: logger}
}

func (r *PostgresRepository) Find(ctx context.Context, tenantID string, mode tenant.Mode) (persistence.TenantDatabase, error) {
	return r.store.Find(ctx, tenantID, mode)
}

func (r *PostgresRepository) FindActive(ctx context.Context, tenantID string, mode tenant.Mode) (persistence.TenantDatabase, error) {
	return r.store.FindActive(ctx, tenantID, mode)
}

func (r *PostgresRepository) Insert(ctx context.Context, tenantID string, mode tenant.Mode, databaseName string) (persistence.TenantDatabase, error) {
	return r.store.Insert(ctx, tenantID, mode, databaseName)
}

// UpdateStatus degrades a persistence failure to false so the orchestrator can
// log and continue instead of aborting an otherwise-successful step.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status persistence.Status, extra persistence.UpdateFields) bool {
	if err := r.store.UpdateStatus(ctx, id, status, extra); err != nil {
		r.logger.Error("update tenant record status",
			zap.String("record_id", id.String()),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (r *PostgresRepository) AppendMigration(ctx context.Context, id uuid.UUID, entry persistence.MigrationEntry) error {
	return r.store.AppendMigration(ctx, id, entry)
}

func (r *PostgresRepository) List(ctx context.Context, status *persistence.Status, limit, offset int) ([]persistence.TenantDatabase, int, error) {
	return r.store.List(ctx, status, limit, offset)
}

func (r *PostgresRepository) ListStuck(ctx context.Context, olderThan time.Duration) ([]persistence.TenantDatabase, error) {
	return r.store.ListStuck(ctx, olderThan)
}

var _ service.Registry = (*PostgresRepository)(nil)
