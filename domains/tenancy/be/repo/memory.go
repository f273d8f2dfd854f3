package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quarrylane/lamina/domains/tenancy/be/service"
	"github.com/quarrylane/lamina/platform/go/persistence"
	"github.com/quarrylane/lamina/platform/go/tenant"
)

// MemoryRepository is a simple in-memory Registry suitable for tests and early
// development. It enforces the same one-live-record-per-identity invariant as
// the partial unique index on the real table.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]persistence.TenantDatabase
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]persistence.TenantDatabase)}
}

func (r *MemoryRepository) Find(ctx context.Context, tenantID string, mode tenant.Mode) (persistence.TenantDatabase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		found bool
		best  persistence.TenantDatabase
	)
	for _, rec := range r.byID {
		if rec.TenantID != tenantID || rec.TenantType != mode || rec.Status == persistence.StatusDeleted {
			continue
		}
		if !found || rec.CreatedAt.After(best.CreatedAt) {
			best = rec
			found = true
		}
	}
	if !found {
		return persistence.TenantDatabase{}, persistence.ErrRecordNotFound
	}
	return best, nil
}

func (r *MemoryRepository) FindActive(ctx context.Context, tenantID string, mode tenant.Mode) (persistence.TenantDatabase, error) {
	rec, err := r.Find(ctx, tenantID, mode)
	if err != nil {
		return persistence.TenantDatabase{}, err
	}
	if rec.Status != persistence.StatusActive {
		return persistence.TenantDatabase{}, persistence.ErrRecordNotFound
	}
	return rec, nil
}

func (r *MemoryRepository) Insert(ctx context.Context, tenantID string, mode tenant.Mode, databaseName string) (persistence.TenantDatabase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.byID {
		if rec.TenantID == tenantID && rec.TenantType == mode && rec.Status != persistence.StatusDeleted {
			return persistence.TenantDatabase{}, persistence.ErrDuplicateTenant
		}
	}

	now := time.Now().UTC()
	rec := persistence.TenantDatabase{
		ID:                   uuid.New(),
		TenantID:             tenantID,
		TenantType:           mode,
		DatabaseName:         databaseName,
		Status:               persistence.StatusCreating,
		CreatedAt:            now,
		UpdatedAt:            now,
		LastMigrationVersion: "0000",
	}
	r.byID[rec.ID] = rec
	return rec, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status persistence.Status, extra persistence.UpdateFields) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return false
	}
	rec.Status = status
	if extra.DatabaseID != nil {
		rec.DatabaseID = *extra.DatabaseID
	}
	if extra.DeletedAt != nil {
		rec.DeletedAt = extra.DeletedAt
	}
	// Tombstones keep the audit trail but no longer reference a provider resource.
	if status == persistence.StatusDeleted {
		rec.DatabaseID = ""
	}
	rec.UpdatedAt = time.Now().UTC()
	r.byID[id] = rec
	return true
}

func (r *MemoryRepository) AppendMigration(ctx context.Context, id uuid.UUID, entry persistence.MigrationEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return persistence.ErrRecordNotFound
	}
	if entry.AppliedAt.IsZero() {
		entry.AppliedAt = time.Now().UTC()
	}
	rec.MigrationHistory = append(rec.MigrationHistory, entry)
	rec.LastMigrationVersion = entry.Version
	rec.UpdatedAt = time.Now().UTC()
	r.byID[id] = rec
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, status *persistence.Status, limit, offset int) ([]persistence.TenantDatabase, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []persistence.TenantDatabase
	for _, rec := range r.byID {
		if status != nil && rec.Status != *status {
			continue
		}
		items = append(items, rec)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	total := len(items)
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}

	return items[offset:end], total, nil
}

func (r *MemoryRepository) ListStuck(ctx context.Context, olderThan time.Duration) ([]persistence.TenantDatabase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var items []persistence.TenantDatabase
	for _, rec := range r.byID {
		if (rec.Status == persistence.StatusCreating || rec.Status == persistence.StatusDeleting) && rec.UpdatedAt.Before(cutoff) {
			items = append(items, rec)
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.Before(items[j].UpdatedAt) })
	return items, nil
}

var _ service.Registry = (*MemoryRepository)(nil)
