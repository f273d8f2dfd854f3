package tenant

import "strings"

// DefaultPrefix is used when a deployment does not configure its own database name prefix.
const DefaultPrefix = "tenant-"

// DatabaseName derives the deterministic provider resource name for a tenant:
// `{prefix}{tenantID}`. The same tenant always maps to the same name, which is
// what makes creation retries and reconciliation safe.
func DatabaseName(prefix, tenantID string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + strings.TrimSpace(tenantID)
}
