package cloudflare

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Errors returned by the provider clients.
var (
	// ErrMissingCredentials indicates blank account id or API token; raised
	// before any network call is attempted.
	ErrMissingCredentials = errors.New("cloudflare credentials missing")
	// ErrInvalidCredentials indicates the provider rejected authentication.
	ErrInvalidCredentials = errors.New("cloudflare credentials rejected")
)

// Cloudflare v4 error codes signalling authentication problems.
const (
	codeInvalidAPIToken = 10000
	codeAuthError       = 10001
)

// APIMessage is one entry of the v4 envelope `errors` array.
type APIMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// APIError is any non-success provider response that is not an authentication failure.
type APIError struct {
	StatusCode int
	Operation  string
	Errors     []APIMessage
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("cloudflare %s failed: status %d", e.Operation, e.StatusCode)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, m := range e.Errors {
		parts = append(parts, fmt.Sprintf("%d: %s", m.Code, m.Message))
	}
	return fmt.Sprintf("cloudflare %s failed: status %d (%s)", e.Operation, e.StatusCode, strings.Join(parts, "; "))
}

// classifyFailure maps a non-success response to a typed error. Authentication
// failures are detected structurally, via HTTP status and provider error codes,
// never by message text.
func classifyFailure(operation string, status int, msgs []APIMessage) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%w: %s (status %d)", ErrInvalidCredentials, operation, status)
	}
	for _, m := range msgs {
		if m.Code == codeInvalidAPIToken || m.Code == codeAuthError {
			return fmt.Errorf("%w: %s (code %d)", ErrInvalidCredentials, operation, m.Code)
		}
	}
	return &APIError{StatusCode: status, Operation: operation, Errors: msgs}
}
