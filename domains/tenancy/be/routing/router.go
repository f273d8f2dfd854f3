// Package routing dispatches every data-access operation to the correct
// physical database: core models go to the main database, everything else to
// the owning tenant's database. Callers use the router through the same
// adapter interface as a direct connection, so tenant-routed calls are
// indistinguishable from normal ones.
package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/quarrylane/lamina/platform/go/adapter"
	"github.com/quarrylane/lamina/platform/go/persistence"
	"github.com/quarrylane/lamina/platform/go/tenant"
)

// ErrTenantNotFound is returned when a non-core operation cannot be routed to
// an active tenant database. Routing fails closed: silently executing a
// tenant-scoped operation against the main database would be a correctness
// hazard worse than a loud failure.
var ErrTenantNotFound = errors.New("no active tenant database for operation")

// Resolution is what a custom resolver returns: the owning tenant, and
// optionally a rewritten filter/values payload for the delegated call (e.g.
// extracting a derived field from a composite key).
type Resolution struct {
	TenantID string
	Filter   adapter.Filter
	Values   adapter.Values
}

// Resolver is the deployment-supplied routing callback. It receives the full
// operation descriptor and the main-database adapter as fallback context.
// Returning nil defers to the default tenant-field lookup.
type Resolver func(ctx context.Context, op adapter.Operation, main adapter.Adapter) (*Resolution, error)

// RegistryFinder is the slice of the registry the router needs.
type RegistryFinder interface {
	FindActive(ctx context.Context, tenantID string, mode tenant.Mode) (persistence.TenantDatabase, error)
}

// ConnectionFactory builds an adapter bound to one tenant database resource.
type ConnectionFactory func(databaseID string) (adapter.Adapter, error)

// DefaultCoreModels lists the models that always live in the main database:
// the host framework's identity tables plus the tenant registry itself.
func DefaultCoreModels() []string {
	return []string{
		"user", "users",
		"session", "sessions",
		"account", "accounts",
		"verification", "verifications",
		"organization", "organizations",
		"member", "members",
		"invitation", "invitations",
		persistence.TenantDatabasesTable,
	}
}

// Config captures the deployment choices of the router.
type Config struct {
	// Mode must match the orchestrator's tenant mode.
	Mode tenant.Mode
	// CoreModels replaces the default core-model list wholesale when set.
	CoreModels []string
	// TransformCoreModels rewrites the default list instead of replacing it.
	// Ignored when CoreModels is set.
	TransformCoreModels func(defaults []string) []string
	// Resolver is the optional custom routing callback; it always takes
	// priority over the tenant-field lookup.
	Resolver Resolver
	// TenantFields are inspected, in order, in the operation's filter and then
	// values to find the owning tenant. Defaults to "tenant_id" plus the
	// mode's conventional reference field.
	TenantFields []string
}

// Router resolves and dispatches operations. It implements adapter.Adapter.
type Router struct {
	main     adapter.Adapter
	registry RegistryFinder
	factory  ConnectionFactory
	logger   *zap.Logger

	mode         tenant.Mode
	coreModels   map[string]struct{}
	resolver     Resolver
	tenantFields []string

	mu          sync.RWMutex
	connections map[string]adapter.Adapter
}

// New constructs a Router with required dependencies.
func New(main adapter.Adapter, registry RegistryFinder, factory ConnectionFactory, logger *zap.Logger, cfg Config) (*Router, error) {
	if main == nil {
		return nil, errors.New("main adapter is required")
	}
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if factory == nil {
		return nil, errors.New("connection factory is required")
	}
	if !cfg.Mode.IsValid() {
		return nil, fmt.Errorf("invalid tenant mode %q", cfg.Mode)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	models := cfg.CoreModels
	if models == nil {
		models = DefaultCoreModels()
		if cfg.TransformCoreModels != nil {
			models = cfg.TransformCoreModels(models)
		}
	}
	coreModels := make(map[string]struct{}, len(models))
	for _, m := range models {
		coreModels[m] = struct{}{}
	}

	fields := cfg.TenantFields
	if len(fields) == 0 {
		fields = []string{"tenant_id"}
		switch cfg.Mode {
		case tenant.ModeOrganization:
			fields = append(fields, "organization_id")
		case tenant.ModeUser:
			fields = append(fields, "user_id")
		}
	}

	return &Router{
		main:         main,
		registry:     registry,
		factory:      factory,
		logger:       logger,
		mode:         cfg.Mode,
		coreModels:   coreModels,
		resolver:     cfg.Resolver,
		tenantFields: fields,
		connections:  make(map[string]adapter.Adapter),
	}, nil
}

// target holds the dispatch decision for one operation.
type target struct {
	conn   adapter.Adapter
	filter adapter.Filter
	values adapter.Values
}

// resolve picks the physical connection and (possibly rewritten) payload.
func (r *Router) resolve(ctx context.Context, op adapter.Operation) (target, error) {
	if _, ok := r.coreModels[op.Model]; ok {
		return target{conn: r.main, filter: op.Filter, values: op.Values}, nil
	}

	out := target{filter: op.Filter, values: op.Values}
	tenantID := ""

	if r.resolver != nil {
		res, err := r.resolver(ctx, op, r.main)
		if err != nil {
			return target{}, fmt.Errorf("routing resolver: %w", err)
		}
		if res != nil {
			tenantID = res.TenantID
			if res.Filter != nil {
				out.filter = res.Filter
			}
			if res.Values != nil {
				out.values = res.Values
			}
		}
	}

	if tenantID == "" {
		tenantID = r.lookupTenantField(op)
	}
	if tenantID == "" {
		return target{}, fmt.Errorf("%w: model %q carries no tenant reference", ErrTenantNotFound, op.Model)
	}

	rec, err := r.registry.FindActive(ctx, tenantID, r.mode)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return target{}, fmt.Errorf("%w: tenant %q", ErrTenantNotFound, tenantID)
		}
		return target{}, fmt.Errorf("look up tenant %q: %w", tenantID, err)
	}

	conn, err := r.connection(rec.DatabaseID)
	if err != nil {
		return target{}, err
	}

	out.conn = conn
	return out, nil
}

// lookupTenantField scans filter then values for the first configured tenant
// reference carrying a non-empty string.
func (r *Router) lookupTenantField(op adapter.Operation) string {
	for _, field := range r.tenantFields {
		if v, ok := op.Filter[field].(string); ok && v != "" {
			return v
		}
	}
	for _, field := range r.tenantFields {
		if v, ok := op.Values[field].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// connection returns the cached adapter for a database id, building it on
// first use. A cache entry is only ever bound to the id it was created for.
func (r *Router) connection(databaseID string) (adapter.Adapter, error) {
	r.mu.RLock()
	conn, ok := r.connections[databaseID]
	r.mu.RUnlock()
	if ok {
		return conn, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.connections[databaseID]; ok {
		return conn, nil
	}

	conn, err := r.factory(databaseID)
	if err != nil {
		return nil, fmt.Errorf("open tenant connection %q: %w", databaseID, err)
	}
	r.connections[databaseID] = conn
	r.logger.Debug("tenant connection opened", zap.String("database_id", databaseID))
	return conn, nil
}

func (r *Router) FindOne(ctx context.Context, model string, filter adapter.Filter) (adapter.Row, error) {
	t, err := r.resolve(ctx, adapter.Operation{Model: model, Kind: adapter.KindFindOne, Filter: filter})
	if err != nil {
		return nil, err
	}
	return t.conn.FindOne(ctx, model, t.filter)
}

func (r *Router) FindMany(ctx context.Context, model string, filter adapter.Filter, limit int) ([]adapter.Row, error) {
	t, err := r.resolve(ctx, adapter.Operation{Model: model, Kind: adapter.KindFindMany, Filter: filter, Limit: limit})
	if err != nil {
		return nil, err
	}
	return t.conn.FindMany(ctx, model, t.filter, limit)
}

func (r *Router) Create(ctx context.Context, model string, values adapter.Values) (adapter.Row, error) {
	t, err := r.resolve(ctx, adapter.Operation{Model: model, Kind: adapter.KindCreate, Values: values})
	if err != nil {
		return nil, err
	}
	return t.conn.Create(ctx, model, t.values)
}

func (r *Router) Update(ctx context.Context, model string, filter adapter.Filter, values adapter.Values) (int64, error) {
	t, err := r.resolve(ctx, adapter.Operation{Model: model, Kind: adapter.KindUpdate, Filter: filter, Values: values})
	if err != nil {
		return 0, err
	}
	return t.conn.Update(ctx, model, t.filter, t.values)
}

func (r *Router) Delete(ctx context.Context, model string, filter adapter.Filter) (int64, error) {
	t, err := r.resolve(ctx, adapter.Operation{Model: model, Kind: adapter.KindDelete, Filter: filter})
	if err != nil {
		return 0, err
	}
	return t.conn.Delete(ctx, model, t.filter)
}

var _ adapter.Adapter = (*Router)(nil)
