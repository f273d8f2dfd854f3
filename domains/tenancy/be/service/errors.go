package service

import "errors"

// Errors returned by the orchestrator.
var (
	// ErrCreationFailed wraps a provider or schema failure during tenant
	// database creation. The registry row is left in `creating` for manual
	// reconciliation; it is never rolled back implicitly.
	ErrCreationFailed = errors.New("tenant database creation failed")
	// ErrDeletionFailed wraps a provider failure during deletion; the row is
	// left in `deleting`.
	ErrDeletionFailed = errors.New("tenant database deletion failed")
	// ErrNotActive is returned by operations that require a fully provisioned
	// tenant database (e.g. on-demand migration).
	ErrNotActive = errors.New("tenant database is not active")
	// ErrHookFailed wraps a lifecycle hook failure when the hook policy is set
	// to propagate.
	ErrHookFailed = errors.New("lifecycle hook failed")
)
