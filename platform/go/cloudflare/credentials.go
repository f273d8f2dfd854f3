package cloudflare

import (
	"fmt"
	"strings"
)

// Credentials carry the account identifier and API token used for every
// provider call. They are sourced from the hosting environment by the binaries
// (CLOUDFLARE_ACCOUNT_ID / CLOUDFLARE_API_TOKEN).
type Credentials struct {
	AccountID string `env:"CLOUDFLARE_ACCOUNT_ID"`
	APIToken  string `env:"CLOUDFLARE_API_TOKEN"`
}

// Validate fails fast before any network call when either credential is blank.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.AccountID) == "" {
		return fmt.Errorf("%w: account id", ErrMissingCredentials)
	}
	if strings.TrimSpace(c.APIToken) == "" {
		return fmt.Errorf("%w: api token", ErrMissingCredentials)
	}
	return nil
}
