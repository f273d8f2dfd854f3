package migrate

import (
	"context"
	"fmt"
	"strings"
)

// SQLExecutor executes one SQL statement against a database resource.
// Implemented by the provider client.
type SQLExecutor interface {
	Exec(ctx context.Context, databaseID, sql string) error
}

// Applied reports the outcome of one initialization run so the caller can
// persist the version into the tenant registry.
type Applied struct {
	Schema     string
	Version    string
	Checksum   string
	Statements int
}

// Initializer applies a configured schema to a tenant database.
type Initializer struct {
	executor SQLExecutor
	config   Config
}

// NewInitializer builds an Initializer; the executor is required.
func NewInitializer(executor SQLExecutor, config Config) (*Initializer, error) {
	if executor == nil {
		return nil, fmt.Errorf("sql executor is required")
	}
	return &Initializer{executor: executor, config: config}, nil
}

// Config exposes the configured sources, for callers that resolve eagerly.
func (i *Initializer) Config() Config {
	return i.config
}

// Apply resolves the schema and version, splits the schema into statements,
// and executes them strictly sequentially against the target database.
//
// Execution is not transactional across statements: a failure partway leaves
// partial schema applied and the caller's registry row in its pre-active
// state. Schemas must therefore be idempotent (IF NOT EXISTS) so a reconcile
// re-run is safe.
func (i *Initializer) Apply(ctx context.Context, databaseID string) (Applied, error) {
	if databaseID == "" {
		return Applied{}, fmt.Errorf("database id is required")
	}

	schema, err := i.config.Schema.Resolve(ctx)
	if err != nil {
		return Applied{}, fmt.Errorf("resolve schema: %w", err)
	}
	if strings.TrimSpace(schema) == "" {
		return Applied{}, ErrInvalidSchema
	}

	version, err := i.config.resolveVersion(ctx)
	if err != nil {
		return Applied{}, fmt.Errorf("resolve version: %w", err)
	}

	statements := SplitStatements(schema)
	if len(statements) == 0 {
		return Applied{}, ErrInvalidSchema
	}

	for n, stmt := range statements {
		if err := i.executor.Exec(ctx, databaseID, stmt); err != nil {
			return Applied{}, fmt.Errorf("apply statement %d/%d: %w", n+1, len(statements), err)
		}
	}

	return Applied{
		Schema:     schema,
		Version:    version,
		Checksum:   Checksum(schema),
		Statements: len(statements),
	}, nil
}
