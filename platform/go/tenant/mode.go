package tenant

import "fmt"

// Mode selects which entity of the host auth framework owns a tenant database.
// Exactly one mode is active per deployment; the two are never mixed.
type Mode string

const (
	// ModeUser provisions one database per user.
	ModeUser Mode = "user"
	// ModeOrganization provisions one database per organization.
	ModeOrganization Mode = "organization"
)

// IsValid reports whether the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == ModeUser || m == ModeOrganization
}

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid tenant mode %q (use %q or %q)", s, ModeUser, ModeOrganization)
	}
	return m, nil
}
