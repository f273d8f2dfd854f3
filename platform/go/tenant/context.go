package tenant

import "context"

// Space captures the resolved tenant routing metadata for a request.
// It is attached to the context once the owning tenant has been resolved,
// so downstream storage helpers can derive per-tenant prefixes and handles.
type Space struct {
	TenantID     string
	Mode         Mode
	DatabaseName string
	DatabaseID   string
}

// ObjectPrefix returns the per-tenant key prefix used by file and KV storage.
func (s Space) ObjectPrefix() string {
	return string(s.Mode) + "/" + s.TenantID + "/"
}

type ctxKey string

const spaceKey ctxKey = "LAMINA_TENANT_SPACE"

// WithSpace returns a derived context carrying the tenant Space.
func WithSpace(ctx context.Context, space Space) context.Context {
	return context.WithValue(ctx, spaceKey, space)
}

// FromContext extracts the tenant Space and a boolean indicating presence.
func FromContext(ctx context.Context) (Space, bool) {
	v := ctx.Value(spaceKey)
	if v == nil {
		return Space{}, false
	}

	space, ok := v.(Space)
	return space, ok
}
