package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quarrylane/lamina/domains/tenancy/be/repo"
	"github.com/quarrylane/lamina/domains/tenancy/be/service"
	"github.com/quarrylane/lamina/platform/go/cloudflare"
	"github.com/quarrylane/lamina/platform/go/migrate"
	"github.com/quarrylane/lamina/platform/go/persistence"
	"github.com/quarrylane/lamina/platform/go/tenant"
)

type stubProvider struct {
	creates []string
	deletes []string

	createErr error
	deleteErr error
}

func (p *stubProvider) CreateDatabase(ctx context.Context, name string) (string, error) {
	if p.createErr != nil {
		return "", p.createErr
	}
	p.creates = append(p.creates, name)
	return fmt.Sprintf("db-%d", len(p.creates)), nil
}

func (p *stubProvider) DeleteDatabase(ctx context.Context, databaseID string) error {
	if p.deleteErr != nil {
		return p.deleteErr
	}
	p.deletes = append(p.deletes, databaseID)
	return nil
}

type stubInitializer struct {
	version string
	applies int
	err     error
}

func (i *stubInitializer) Apply(ctx context.Context, databaseID string) (migrate.Applied, error) {
	if i.err != nil {
		return migrate.Applied{}, i.err
	}
	i.applies++
	version := i.version
	if version == "" {
		version = "0001"
	}
	return migrate.Applied{Version: version, Checksum: "check-" + version, Statements: 2}, nil
}

func testCredentials() cloudflare.Credentials {
	return cloudflare.Credentials{AccountID: "acct", APIToken: "token"}
}

func newTestService(t *testing.T, cfg service.Config) (*service.Service, *repo.MemoryRepository, *stubProvider) {
	t.Helper()

	registry := repo.NewMemoryRepository()
	provider := &stubProvider{}

	if cfg.Mode == "" {
		cfg.Mode = tenant.ModeOrganization
	}
	if cfg.Credentials == (cloudflare.Credentials{}) {
		cfg.Credentials = testCredentials()
	}

	svc, err := service.New(registry, provider, nil, cfg)
	require.NoError(t, err)
	return svc, registry, provider
}

func TestCreateProvisionsAndActivates(t *testing.T) {
	init := &stubInitializer{version: "0001"}
	svc, _, provider := newTestService(t, service.Config{Migrations: init})

	rec, err := svc.Create(context.Background(), "org-1")
	require.NoError(t, err)

	require.Equal(t, persistence.StatusActive, rec.Status)
	require.Equal(t, tenant.DatabaseName("", "org-1"), rec.DatabaseName)
	require.Equal(t, "db-1", rec.DatabaseID)
	require.Equal(t, "0001", rec.LastMigrationVersion)
	require.Len(t, rec.MigrationHistory, 1)
	require.Equal(t, "initial", rec.MigrationHistory[0].Name)
	require.Equal(t, []string{rec.DatabaseName}, provider.creates)
	require.Equal(t, 1, init.applies)
}

func TestCreateIsIdempotent(t *testing.T) {
	svc, _, provider := newTestService(t, service.Config{})

	first, err := svc.Create(context.Background(), "org-1")
	require.NoError(t, err)

	second, err := svc.Create(context.Background(), "org-1")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, provider.creates, 1)
}

func TestCreateWithoutMigrationsLeavesDatabaseEmpty(t *testing.T) {
	svc, _, _ := newTestService(t, service.Config{})

	rec, err := svc.Create(context.Background(), "org-1")
	require.NoError(t, err)
	require.Equal(t, persistence.StatusActive, rec.Status)
	require.Empty(t, rec.MigrationHistory)
}

func TestCreateProviderFailureLeavesCreatingRecord(t *testing.T) {
	svc, registry, provider := newTestService(t, service.Config{})
	provider.createErr = errors.New("quota exceeded")

	_, err := svc.Create(context.Background(), "org-1")
	require.ErrorIs(t, err, service.ErrCreationFailed)

	rec, err := registry.Find(context.Background(), "org-1", tenant.ModeOrganization)
	require.NoError(t, err)
	require.Equal(t, persistence.StatusCreating, rec.Status)
}

func TestCreateRequiresCredentials(t *testing.T) {
	registry := repo.NewMemoryRepository()
	svc, err := service.New(registry, &stubProvider{}, nil, service.Config{Mode: tenant.ModeUser})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "u-1")
	require.ErrorIs(t, err, cloudflare.ErrMissingCredentials)
}

func TestNewRejectsInvalidMode(t *testing.T) {
	_, err := service.New(repo.NewMemoryRepository(), &stubProvider{}, nil, service.Config{Mode: "both"})
	require.Error(t, err)

	_, err = service.New(repo.NewMemoryRepository(), &stubProvider{}, nil, service.Config{})
	require.Error(t, err)
}

func TestDeleteSoftDeletesRecord(t *testing.T) {
	svc, registry, provider := newTestService(t, service.Config{})

	rec, err := svc.Create(context.Background(), "org-1")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "org-1"))
	require.Equal(t, []string{rec.DatabaseID}, provider.deletes)

	// The record survives as a tombstone rather than disappearing.
	_, err = registry.Find(context.Background(), "org-1", tenant.ModeOrganization)
	require.ErrorIs(t, err, persistence.ErrRecordNotFound)

	stored, total, err := registry.List(context.Background(), nil, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, persistence.StatusDeleted, stored[0].Status)
	require.NotNil(t, stored[0].DeletedAt)
	// The provider resource is gone, so the tombstone no longer references it.
	require.Empty(t, stored[0].DatabaseID)
}

func TestDeleteWithoutActiveRecordIsNoOp(t *testing.T) {
	svc, _, provider := newTestService(t, service.Config{})

	require.NoError(t, svc.Delete(context.Background(), "org-unknown"))
	require.Empty(t, provider.deletes)
}

func TestDeleteProviderFailureLeavesDeletingRecord(t *testing.T) {
	svc, registry, provider := newTestService(t, service.Config{})

	_, err := svc.Create(context.Background(), "org-1")
	require.NoError(t, err)

	provider.deleteErr = errors.New("api unavailable")
	err = svc.Delete(context.Background(), "org-1")
	require.ErrorIs(t, err, service.ErrDeletionFailed)

	rec, err := registry.Find(context.Background(), "org-1", tenant.ModeOrganization)
	require.NoError(t, err)
	require.Equal(t, persistence.StatusDeleting, rec.Status)
}

func TestDeleteThenCreateProvisionsFreshDatabase(t *testing.T) {
	svc, _, provider := newTestService(t, service.Config{})

	first, err := svc.Create(context.Background(), "org-1")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), "org-1"))

	second, err := svc.Create(context.Background(), "org-1")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Len(t, provider.creates, 2)
}

func TestHookPolicyLogContinuesOnFailure(t *testing.T) {
	hookErr := errors.New("webhook down")
	svc, _, _ := newTestService(t, service.Config{
		Hooks: service.Hooks{
			AfterCreate: func(ctx context.Context, event service.Event) error { return hookErr },
		},
	})

	rec, err := svc.Create(context.Background(), "org-1")
	require.NoError(t, err)
	require.Equal(t, persistence.StatusActive, rec.Status)
}

func TestHookPolicyPropagateAbortsSequence(t *testing.T) {
	hookErr := errors.New("webhook down")
	svc, registry, provider := newTestService(t, service.Config{
		HookPolicy: service.HookPolicyPropagate,
		Hooks: service.Hooks{
			BeforeCreate: func(ctx context.Context, event service.Event) error { return hookErr },
		},
	})

	_, err := svc.Create(context.Background(), "org-1")
	require.ErrorIs(t, err, service.ErrHookFailed)
	require.ErrorIs(t, err, hookErr)
	require.Empty(t, provider.creates)

	_, err = registry.Find(context.Background(), "org-1", tenant.ModeOrganization)
	require.ErrorIs(t, err, persistence.ErrRecordNotFound)
}

func TestHookEventsCarryDatabaseCoordinates(t *testing.T) {
	var events []service.Event
	record := func(ctx context.Context, event service.Event) error {
		events = append(events, event)
		return nil
	}
	svc, _, _ := newTestService(t, service.Config{
		Hooks: service.Hooks{BeforeCreate: record, AfterCreate: record},
	})

	_, err := svc.Create(context.Background(), "org-1")
	require.NoError(t, err)

	require.Len(t, events, 2)
	require.Empty(t, events[0].DatabaseID)
	require.Equal(t, "db-1", events[1].DatabaseID)
	require.Equal(t, tenant.ModeOrganization, events[1].Mode)
}

func TestMigrateRecordsNewVersion(t *testing.T) {
	init := &stubInitializer{version: "0001"}
	svc, _, _ := newTestService(t, service.Config{Migrations: init})

	_, err := svc.Create(context.Background(), "org-1")
	require.NoError(t, err)

	init.version = "0002"
	applied, err := svc.Migrate(context.Background(), "org-1")
	require.NoError(t, err)
	require.Equal(t, "0002", applied.Version)

	rec, err := svc.Get(context.Background(), "org-1")
	require.NoError(t, err)
	require.Equal(t, "0002", rec.LastMigrationVersion)
	require.Len(t, rec.MigrationHistory, 2)
	require.Equal(t, "scheduled", rec.MigrationHistory[1].Name)
}

func TestMigrateAtCurrentVersionDoesNotAppendHistory(t *testing.T) {
	init := &stubInitializer{version: "0001"}
	svc, _, _ := newTestService(t, service.Config{Migrations: init})

	_, err := svc.Create(context.Background(), "org-1")
	require.NoError(t, err)

	_, err = svc.Migrate(context.Background(), "org-1")
	require.NoError(t, err)

	rec, err := svc.Get(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, rec.MigrationHistory, 1)
}

func TestMigrateRequiresActiveTenant(t *testing.T) {
	svc, _, _ := newTestService(t, service.Config{Migrations: &stubInitializer{}})

	_, err := svc.Migrate(context.Background(), "org-missing")
	require.ErrorIs(t, err, service.ErrNotActive)
}

func TestResolveSpace(t *testing.T) {
	svc, _, _ := newTestService(t, service.Config{Mode: tenant.ModeUser, Prefix: "acme-"})

	_, err := svc.Create(context.Background(), "u-1")
	require.NoError(t, err)

	space, err := svc.ResolveSpace(context.Background(), "u-1")
	require.NoError(t, err)
	require.Equal(t, "u-1", space.TenantID)
	require.Equal(t, tenant.ModeUser, space.Mode)
	require.Equal(t, "acme-u-1", space.DatabaseName)
	require.Equal(t, "db-1", space.DatabaseID)
}

func TestPluginGatesCallbacksByMode(t *testing.T) {
	svc, _, provider := newTestService(t, service.Config{Mode: tenant.ModeOrganization})
	plugin := service.NewPlugin(svc)

	require.NoError(t, plugin.OnUserCreated(context.Background(), "u-1"))
	require.Empty(t, provider.creates)

	require.NoError(t, plugin.OnOrganizationCreated(context.Background(), "org-1"))
	require.Len(t, provider.creates, 1)

	require.NoError(t, plugin.OnUserDeleted(context.Background(), "u-1"))
	require.Empty(t, provider.deletes)

	require.NoError(t, plugin.OnOrganizationDeleted(context.Background(), "org-1"))
	require.Len(t, provider.deletes, 1)
}

func TestReconcileReportsAndRecoversStuckCreate(t *testing.T) {
	svc, registry, provider := newTestService(t, service.Config{})

	provider.createErr = errors.New("transient outage")
	_, err := svc.Create(context.Background(), "org-1")
	require.ErrorIs(t, err, service.ErrCreationFailed)

	report, err := svc.Reconcile(context.Background(), 0, false)
	require.NoError(t, err)
	require.Len(t, report.Stuck, 1)
	require.Zero(t, report.Recovered)

	provider.createErr = nil
	report, err = svc.Reconcile(context.Background(), 0, true)
	require.NoError(t, err)
	require.Equal(t, 1, report.Recovered)
	require.Zero(t, report.Failed)

	rec, err := registry.FindActive(context.Background(), "org-1", tenant.ModeOrganization)
	require.NoError(t, err)
	require.Equal(t, persistence.StatusActive, rec.Status)
}

func TestReconcileReusesDatabaseAfterSchemaFailure(t *testing.T) {
	init := &stubInitializer{err: errors.New("schema rejected")}
	svc, registry, provider := newTestService(t, service.Config{Migrations: init})

	_, err := svc.Create(context.Background(), "org-1")
	require.ErrorIs(t, err, service.ErrCreationFailed)
	require.Len(t, provider.creates, 1)

	// The provider id is recorded on the creating row even though schema
	// init failed afterwards.
	rec, err := registry.Find(context.Background(), "org-1", tenant.ModeOrganization)
	require.NoError(t, err)
	require.Equal(t, persistence.StatusCreating, rec.Status)
	require.Equal(t, "db-1", rec.DatabaseID)

	init.err = nil
	report, err := svc.Reconcile(context.Background(), 0, true)
	require.NoError(t, err)
	require.Equal(t, 1, report.Recovered)
	require.Zero(t, report.Failed)

	// Recovery reuses the existing database rather than creating a second
	// one under the same name.
	require.Len(t, provider.creates, 1)

	active, err := registry.FindActive(context.Background(), "org-1", tenant.ModeOrganization)
	require.NoError(t, err)
	require.Equal(t, "db-1", active.DatabaseID)
	require.Equal(t, 1, init.applies)
}

func TestReconcileRecoversStuckDelete(t *testing.T) {
	svc, registry, provider := newTestService(t, service.Config{})

	_, err := svc.Create(context.Background(), "org-1")
	require.NoError(t, err)

	provider.deleteErr = errors.New("transient outage")
	require.ErrorIs(t, svc.Delete(context.Background(), "org-1"), service.ErrDeletionFailed)

	provider.deleteErr = nil
	report, err := svc.Reconcile(context.Background(), 0, true)
	require.NoError(t, err)
	require.Equal(t, 1, report.Recovered)

	stored, _, err := registry.List(context.Background(), nil, 10, 0)
	require.NoError(t, err)
	require.Equal(t, persistence.StatusDeleted, stored[0].Status)
}
