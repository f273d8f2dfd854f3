package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quarrylane/lamina/platform/go/tenant"
)

// Event carries the tenant identity and database coordinates handed to
// lifecycle hooks. DatabaseID is empty for before-create hooks.
type Event struct {
	TenantID     string
	Mode         tenant.Mode
	DatabaseName string
	DatabaseID   string
}

// Hook is one optional lifecycle callback supplied by the host framework.
type Hook func(ctx context.Context, event Event) error

// Hooks groups the lifecycle callbacks around creation and deletion.
type Hooks struct {
	BeforeCreate Hook
	AfterCreate  Hook
	BeforeDelete Hook
	AfterDelete  Hook
}

// HookPolicy decides what a hook failure does to the surrounding sequence.
type HookPolicy string

const (
	// HookPolicyLog logs the failure and continues. This is the default,
	// matching the non-fatal posture of the rest of the orchestrator.
	HookPolicyLog HookPolicy = "log"
	// HookPolicyPropagate aborts the sequence with ErrHookFailed.
	HookPolicyPropagate HookPolicy = "propagate"
)

// runHook executes one hook under the configured policy. Nil hooks are a no-op.
func (s *Service) runHook(ctx context.Context, name string, hook Hook, event Event) error {
	if hook == nil {
		return nil
	}

	if err := hook(ctx, event); err != nil {
		if s.hookPolicy == HookPolicyPropagate {
			return fmt.Errorf("%w: %s: %w", ErrHookFailed, name, err)
		}
		s.logger.Warn("lifecycle hook failed",
			zap.String("hook", name),
			zap.String("tenant_id", event.TenantID),
			zap.Error(err),
		)
	}
	return nil
}
