// Package secondary provides the secondary key-value storage used by the host
// auth framework for ephemeral data (rate-limit counters, verification codes).
package secondary

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("secondary storage: key not found")

// Store is the pass-through contract both backends implement.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value; a zero ttl keeps the key until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
