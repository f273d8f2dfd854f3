package routing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quarrylane/lamina/domains/tenancy/be/repo"
	"github.com/quarrylane/lamina/domains/tenancy/be/service"
	"github.com/quarrylane/lamina/platform/go/adapter"
	"github.com/quarrylane/lamina/platform/go/cloudflare"
	"github.com/quarrylane/lamina/platform/go/persistence"
	"github.com/quarrylane/lamina/platform/go/tenant"
)

type countingProvider struct {
	creates int
}

func (p *countingProvider) CreateDatabase(ctx context.Context, name string) (string, error) {
	p.creates++
	return fmt.Sprintf("db-%d", p.creates), nil
}

func (p *countingProvider) DeleteDatabase(ctx context.Context, databaseID string) error {
	return nil
}

// End to end over one registry: the orchestrator provisions a tenant, the
// router immediately dispatches its data operations to the new database, and
// deletion closes the route again.
func TestProvisionedTenantIsRoutable(t *testing.T) {
	ctx := context.Background()

	registry := repo.NewMemoryRepository()
	svc, err := service.New(registry, &countingProvider{}, nil, service.Config{
		Mode:        tenant.ModeOrganization,
		Credentials: cloudflare.Credentials{AccountID: "acct", APIToken: "token"},
	})
	require.NoError(t, err)

	rec, err := svc.Create(ctx, "org-1")
	require.NoError(t, err)
	require.Equal(t, persistence.StatusActive, rec.Status)

	main := &recordingAdapter{name: "main"}
	tenantConns := make(map[string]*recordingAdapter)
	router, err := New(main, registry, func(databaseID string) (adapter.Adapter, error) {
		conn := &recordingAdapter{name: databaseID}
		tenantConns[databaseID] = conn
		return conn, nil
	}, nil, Config{Mode: tenant.ModeOrganization})
	require.NoError(t, err)

	rows, err := router.FindMany(ctx, "projects", adapter.Filter{"organization_id": "org-1"}, 10)
	require.NoError(t, err)
	require.Equal(t, rec.DatabaseID, rows[0]["_adapter"])
	require.Empty(t, main.calls)
	require.Len(t, tenantConns[rec.DatabaseID].calls, 1)

	// Core models keep going to the main database for the same tenant.
	_, err = router.FindOne(ctx, "session", adapter.Filter{"organization_id": "org-1"})
	require.NoError(t, err)
	require.Len(t, main.calls, 1)

	// After deletion the route fails closed instead of falling back to main.
	require.NoError(t, svc.Delete(ctx, "org-1"))
	_, err = router.FindMany(ctx, "projects", adapter.Filter{"organization_id": "org-1"}, 10)
	require.ErrorIs(t, err, ErrTenantNotFound)
	require.Len(t, main.calls, 1)
}
