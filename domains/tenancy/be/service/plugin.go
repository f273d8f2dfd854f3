package service

import (
	"context"

	"github.com/quarrylane/lamina/platform/go/tenant"
)

// Plugin is the glue the host auth framework calls from its model-hook chain
// after a user or organization write commits. Callbacks for the inactive mode
// are no-ops, so a deployment can register both sets unconditionally.
//
// Errors propagate to the framework event; whether the parent operation is
// rolled back is the framework's call. A failed satellite database never
// retracts an already-committed user or organization here.
type Plugin struct {
	svc *Service
}

// NewPlugin wraps the orchestrator for host-framework wiring.
func NewPlugin(svc *Service) *Plugin {
	if svc == nil {
		panic("tenancy plugin requires service")
	}
	return &Plugin{svc: svc}
}

// OnUserCreated provisions a database when running in user mode.
func (p *Plugin) OnUserCreated(ctx context.Context, userID string) error {
	if p.svc.Mode() != tenant.ModeUser {
		return nil
	}
	_, err := p.svc.Create(ctx, userID)
	return err
}

// OnUserDeleted tears down the user's database when running in user mode.
func (p *Plugin) OnUserDeleted(ctx context.Context, userID string) error {
	if p.svc.Mode() != tenant.ModeUser {
		return nil
	}
	return p.svc.Delete(ctx, userID)
}

// OnOrganizationCreated provisions a database when running in organization mode.
func (p *Plugin) OnOrganizationCreated(ctx context.Context, orgID string) error {
	if p.svc.Mode() != tenant.ModeOrganization {
		return nil
	}
	_, err := p.svc.Create(ctx, orgID)
	return err
}

// OnOrganizationDeleted tears down the organization's database when running in
// organization mode.
func (p *Plugin) OnOrganizationDeleted(ctx context.Context, orgID string) error {
	if p.svc.Mode() != tenant.ModeOrganization {
		return nil
	}
	return p.svc.Delete(ctx, orgID)
}
