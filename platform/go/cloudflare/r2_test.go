package cloudflare

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quarrylane/lamina/platform/go/tenant"
)

func TestResolveObjectKey(t *testing.T) {
	space := tenant.Space{TenantID: "org-1", Mode: tenant.ModeOrganization}

	key, err := ResolveObjectKey(space, "reports/2026/q1.pdf")
	require.NoError(t, err)
	require.Equal(t, "organization/org-1/reports/2026/q1.pdf", key)

	// Leading slash and padding are normalized away.
	key, err = ResolveObjectKey(space, "  /avatar.png")
	require.NoError(t, err)
	require.Equal(t, "organization/org-1/avatar.png", key)
}

func TestResolveObjectKeyRejectsInvalidInput(t *testing.T) {
	space := tenant.Space{TenantID: "org-1", Mode: tenant.ModeOrganization}

	_, err := ResolveObjectKey(space, "   ")
	require.Error(t, err)

	_, err = ResolveObjectKey(tenant.Space{}, "avatar.png")
	require.Error(t, err)
}

func TestNewR2StoreValidatesConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewR2Store(ctx, R2Config{AccessKeyID: "k", SecretAccessKey: "s", Bucket: "b"})
	require.ErrorIs(t, err, ErrMissingCredentials)

	_, err = NewR2Store(ctx, R2Config{AccountID: "acct", Bucket: "b"})
	require.ErrorIs(t, err, ErrMissingCredentials)

	_, err = NewR2Store(ctx, R2Config{AccountID: "acct", AccessKeyID: "k", SecretAccessKey: "s"})
	require.Error(t, err)
}
