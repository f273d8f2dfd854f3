// Package service drives the tenant database lifecycle: registry write,
// provider call, schema initialization, registry update, with hooks at each
// boundary and non-fatal failure handling throughout.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quarrylane/lamina/platform/go/cloudflare"
	"github.com/quarrylane/lamina/platform/go/migrate"
	"github.com/quarrylane/lamina/platform/go/persistence"
	"github.com/quarrylane/lamina/platform/go/tenant"
)

// Registry abstracts the tenant_databases bookkeeping table.
type Registry interface {
	Find(ctx context.Context, tenantID string, mode tenant.Mode) (persistence.TenantDatabase, error)
	FindActive(ctx context.Context, tenantID string, mode tenant.Mode) (persistence.TenantDatabase, error)
	Insert(ctx context.Context, tenantID string, mode tenant.Mode, databaseName string) (persistence.TenantDatabase, error)
	// UpdateStatus reports success as a boolean instead of an error so callers
	// can degrade gracefully after an otherwise-successful provisioning step.
	UpdateStatus(ctx context.Context, id uuid.UUID, status persistence.Status, extra persistence.UpdateFields) bool
	AppendMigration(ctx context.Context, id uuid.UUID, entry persistence.MigrationEntry) error
	List(ctx context.Context, status *persistence.Status, limit, offset int) ([]persistence.TenantDatabase, int, error)
	ListStuck(ctx context.Context, olderThan time.Duration) ([]persistence.TenantDatabase, error)
}

// Provider creates and deletes remote database resources.
type Provider interface {
	CreateDatabase(ctx context.Context, name string) (string, error)
	DeleteDatabase(ctx context.Context, databaseID string) error
}

// SchemaInitializer applies the configured schema to a database resource.
type SchemaInitializer interface {
	Apply(ctx context.Context, databaseID string) (migrate.Applied, error)
}

// Config captures the deployment choices of the orchestrator.
type Config struct {
	// Mode selects the tenant-defining entity; required, exactly one.
	Mode tenant.Mode
	// Prefix for derived database names; DefaultPrefix when empty.
	Prefix string
	// Credentials are validated at the start of every create/delete.
	Credentials cloudflare.Credentials
	Hooks       Hooks
	// HookPolicy defaults to HookPolicyLog.
	HookPolicy HookPolicy
	// Migrations is optional; when nil, new tenant databases start empty.
	Migrations SchemaInitializer
}

// Service orchestrates the tenant database state machine.
type Service struct {
	registry   Registry
	provider   Provider
	migrations SchemaInitializer
	logger     *zap.Logger

	mode       tenant.Mode
	prefix     string
	creds      cloudflare.Credentials
	hooks      Hooks
	hookPolicy HookPolicy
	locks      *keyedMutex
}

// New constructs a Service with required dependencies.
func New(registry Registry, provider Provider, logger *zap.Logger, cfg Config) (*Service, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if provider == nil {
		return nil, errors.New("provider is required")
	}
	if !cfg.Mode.IsValid() {
		return nil, fmt.Errorf("exactly one tenant mode must be configured, got %q", cfg.Mode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	policy := cfg.HookPolicy
	if policy == "" {
		policy = HookPolicyLog
	}

	return &Service{
		registry:   registry,
		provider:   provider,
		migrations: cfg.Migrations,
		logger:     logger,
		mode:       cfg.Mode,
		prefix:     cfg.Prefix,
		creds:      cfg.Credentials,
		hooks:      cfg.Hooks,
		hookPolicy: policy,
		locks:      newKeyedMutex(),
	}, nil
}

// Mode returns the configured tenant mode.
func (s *Service) Mode() tenant.Mode {
	return s.mode
}

// Create provisions a database for the tenant. Calling it again while a
// non-deleted record exists is a no-op, so duplicate framework events and
// retries are safe.
func (s *Service) Create(ctx context.Context, tenantID string) (persistence.TenantDatabase, error) {
	if tenantID == "" {
		return persistence.TenantDatabase{}, errors.New("tenant id is required")
	}
	if err := s.creds.Validate(); err != nil {
		return persistence.TenantDatabase{}, err
	}

	unlock := s.locks.lock(string(s.mode) + ":" + tenantID)
	defer unlock()

	databaseName := tenant.DatabaseName(s.prefix, tenantID)

	existing, err := s.registry.Find(ctx, tenantID, s.mode)
	if err == nil {
		s.logger.Debug("tenant database already registered; skipping create",
			zap.String("tenant_id", tenantID),
			zap.String("status", string(existing.Status)),
		)
		return existing, nil
	}
	if !errors.Is(err, persistence.ErrRecordNotFound) {
		return persistence.TenantDatabase{}, fmt.Errorf("look up tenant record: %w", err)
	}

	event := Event{TenantID: tenantID, Mode: s.mode, DatabaseName: databaseName}
	if err := s.runHook(ctx, "before create", s.hooks.BeforeCreate, event); err != nil {
		return persistence.TenantDatabase{}, err
	}

	rec, err := s.registry.Insert(ctx, tenantID, s.mode, databaseName)
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicateTenant) {
			// Lost a race with a concurrent create; the winner's record stands.
			return s.registry.Find(ctx, tenantID, s.mode)
		}
		return persistence.TenantDatabase{}, fmt.Errorf("insert tenant record: %w", err)
	}

	databaseID, err := s.provider.CreateDatabase(ctx, databaseName)
	if err != nil {
		// The creating row stays behind for manual reconciliation.
		return persistence.TenantDatabase{}, fmt.Errorf("%w: %w", ErrCreationFailed, err)
	}

	// Record the provider id on the creating row before schema init, so a
	// reconcile after a schema failure reuses the database instead of asking
	// the provider for a second one under the same name.
	if ok := s.registry.UpdateStatus(ctx, rec.ID, persistence.StatusCreating, persistence.UpdateFields{DatabaseID: &databaseID}); !ok {
		s.logger.Error("record provider database id failed",
			zap.String("tenant_id", tenantID),
			zap.String("database_id", databaseID),
		)
	}

	applied, err := s.initializeSchema(ctx, tenantID, databaseID)
	if err != nil {
		return persistence.TenantDatabase{}, err
	}

	if ok := s.registry.UpdateStatus(ctx, rec.ID, persistence.StatusActive, persistence.UpdateFields{DatabaseID: &databaseID}); !ok {
		s.logger.Error("tenant database provisioned but registry activation failed; record left in creating",
			zap.String("tenant_id", tenantID),
			zap.String("database_id", databaseID),
		)
	}

	if applied != nil {
		if err := s.registry.AppendMigration(ctx, rec.ID, persistence.MigrationEntry{
			Version:   applied.Version,
			Name:      "initial",
			Checksum:  applied.Checksum,
			AppliedAt: time.Now().UTC(),
		}); err != nil {
			s.logger.Error("record initial migration", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}

	event.DatabaseID = databaseID
	if err := s.runHook(ctx, "after create", s.hooks.AfterCreate, event); err != nil {
		return persistence.TenantDatabase{}, err
	}

	return s.registry.Find(ctx, tenantID, s.mode)
}

// initializeSchema runs the configured migrations against a fresh database.
// Absent configuration is a warned-about but valid path: the tenant database
// simply starts empty.
func (s *Service) initializeSchema(ctx context.Context, tenantID, databaseID string) (*migrate.Applied, error) {
	if s.migrations == nil {
		s.logger.Warn("no migrations configured; tenant database starts empty",
			zap.String("tenant_id", tenantID),
			zap.String("database_id", databaseID),
		)
		return nil, nil
	}

	applied, err := s.migrations.Apply(ctx, databaseID)
	if err != nil {
		return nil, fmt.Errorf("%w: initialize schema: %w", ErrCreationFailed, err)
	}

	s.logger.Info("tenant schema initialized",
		zap.String("tenant_id", tenantID),
		zap.String("database_id", databaseID),
		zap.String("version", applied.Version),
		zap.Int("statements", applied.Statements),
	)
	return &applied, nil
}

// Delete tears down the tenant's database. When no active record exists the
// call is a no-op, so duplicate deletion events are safe.
func (s *Service) Delete(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return errors.New("tenant id is required")
	}
	if err := s.creds.Validate(); err != nil {
		return err
	}

	unlock := s.locks.lock(string(s.mode) + ":" + tenantID)
	defer unlock()

	rec, err := s.registry.FindActive(ctx, tenantID, s.mode)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			s.logger.Debug("no active tenant database; skipping delete", zap.String("tenant_id", tenantID))
			return nil
		}
		return fmt.Errorf("look up tenant record: %w", err)
	}

	event := Event{TenantID: tenantID, Mode: s.mode, DatabaseName: rec.DatabaseName, DatabaseID: rec.DatabaseID}
	if err := s.runHook(ctx, "before delete", s.hooks.BeforeDelete, event); err != nil {
		return err
	}

	if ok := s.registry.UpdateStatus(ctx, rec.ID, persistence.StatusDeleting, persistence.UpdateFields{}); !ok {
		s.logger.Error("mark tenant record deleting failed", zap.String("tenant_id", tenantID))
	}

	if err := s.provider.DeleteDatabase(ctx, rec.DatabaseID); err != nil {
		// The deleting row stays behind for manual reconciliation.
		return fmt.Errorf("%w: %w", ErrDeletionFailed, err)
	}

	now := time.Now().UTC()
	if ok := s.registry.UpdateStatus(ctx, rec.ID, persistence.StatusDeleted, persistence.UpdateFields{DeletedAt: &now}); !ok {
		s.logger.Error("mark tenant record deleted failed", zap.String("tenant_id", tenantID))
	}

	return s.runHook(ctx, "after delete", s.hooks.AfterDelete, event)
}

// Migrate applies the currently configured schema to an already-active tenant
// database and records the new version. Re-running at the recorded version is
// a no-op.
func (s *Service) Migrate(ctx context.Context, tenantID string) (migrate.Applied, error) {
	if s.migrations == nil {
		return migrate.Applied{}, errors.New("no migrations configured")
	}
	if err := s.creds.Validate(); err != nil {
		return migrate.Applied{}, err
	}

	unlock := s.locks.lock(string(s.mode) + ":" + tenantID)
	defer unlock()

	rec, err := s.registry.FindActive(ctx, tenantID, s.mode)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return migrate.Applied{}, fmt.Errorf("%w: %s", ErrNotActive, tenantID)
		}
		return migrate.Applied{}, fmt.Errorf("look up tenant record: %w", err)
	}

	applied, err := s.migrations.Apply(ctx, rec.DatabaseID)
	if err != nil {
		return migrate.Applied{}, fmt.Errorf("apply migrations: %w", err)
	}

	if applied.Version == rec.LastMigrationVersion {
		s.logger.Debug("tenant already at schema version",
			zap.String("tenant_id", tenantID),
			zap.String("version", applied.Version),
		)
		return applied, nil
	}

	if err := s.registry.AppendMigration(ctx, rec.ID, persistence.MigrationEntry{
		Version:   applied.Version,
		Name:      "scheduled",
		Checksum:  applied.Checksum,
		AppliedAt: time.Now().UTC(),
	}); err != nil {
		return migrate.Applied{}, fmt.Errorf("record migration: %w", err)
	}

	return applied, nil
}

// Get returns the newest non-deleted record for the tenant.
func (s *Service) Get(ctx context.Context, tenantID string) (persistence.TenantDatabase, error) {
	return s.registry.Find(ctx, tenantID, s.mode)
}

// List pages through registry rows for the admin surface.
func (s *Service) List(ctx context.Context, status *persistence.Status, limit, offset int) ([]persistence.TenantDatabase, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.registry.List(ctx, status, limit, offset)
}

// ResolveSpace returns the routing metadata for an active tenant, for
// middleware and storage helpers.
func (s *Service) ResolveSpace(ctx context.Context, tenantID string) (tenant.Space, error) {
	rec, err := s.registry.FindActive(ctx, tenantID, s.mode)
	if err != nil {
		return tenant.Space{}, err
	}
	return tenant.Space{
		TenantID:     rec.TenantID,
		Mode:         rec.TenantType,
		DatabaseName: rec.DatabaseName,
		DatabaseID:   rec.DatabaseID,
	}, nil
}
