// Package migrate resolves tenant schema payloads and applies them, statement
// by statement, to newly created or lagging tenant databases.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSchema indicates the resolved schema payload was empty or blank.
var ErrInvalidSchema = errors.New("resolved schema is empty")

// Source yields a string either from a literal or from a producer function,
// letting deployments ship the schema inline, load it lazily, or fetch it.
type Source struct {
	literal string
	fn      func(ctx context.Context) (string, error)
}

// Static returns a Source wrapping a literal value.
func Static(value string) Source {
	return Source{literal: value}
}

// FromFunc returns a Source backed by a producer function.
func FromFunc(fn func(ctx context.Context) (string, error)) Source {
	return Source{fn: fn}
}

// Resolve produces the concrete value.
func (s Source) Resolve(ctx context.Context) (string, error) {
	if s.fn != nil {
		value, err := s.fn(ctx)
		if err != nil {
			return "", fmt.Errorf("resolve source: %w", err)
		}
		return value, nil
	}
	return s.literal, nil
}

// IsZero reports whether the source was never configured.
func (s Source) IsZero() bool {
	return s.fn == nil && s.literal == ""
}

// Config pairs the schema payload with its version identifier.
type Config struct {
	Schema  Source
	Version Source
}

// IsZero reports whether no migration configuration is present. Creation then
// proceeds with an empty tenant database, which is a warned-about but valid path.
func (c Config) IsZero() bool {
	return c.Schema.IsZero() && c.Version.IsZero()
}

// resolveVersion falls back to the initial version marker when unset.
func (c Config) resolveVersion(ctx context.Context) (string, error) {
	version, err := c.Version.Resolve(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(version) == "" {
		return InitialVersion, nil
	}
	return version, nil
}

// InitialVersion is the registry's version value before any migration has run.
const InitialVersion = "0000"
