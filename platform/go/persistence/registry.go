package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarrylane/lamina/platform/go/tenant"
)

// TenantDatabasesTable is the registry table in the main database.
const TenantDatabasesTable = "tenant_databases"

// Status is the lifecycle state of a tenant database record.
type Status string

const (
	StatusCreating Status = "creating"
	StatusActive   Status = "active"
	StatusDeleting Status = "deleting"
	StatusDeleted  Status = "deleted"
)

// IsValid reports whether the status is a known lifecycle state.
func (s Status) IsValid() bool {
	switch s {
	case StatusCreating, StatusActive, StatusDeleting, StatusDeleted:
		return true
	}
	return false
}

// MigrationEntry is one applied migration in a record's history.
type MigrationEntry struct {
	Version   string    `json:"version"`
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum,omitempty"`
	AppliedAt time.Time `json:"applied_at"`
}

// TenantDatabase is one registry row: the local bookkeeping record for a
// remote database resource. Rows are never physically deleted; lifecycle ends
// at status=deleted so audit history is preserved.
type TenantDatabase struct {
	ID           uuid.UUID
	TenantID     string
	TenantType   tenant.Mode
	DatabaseName string
	// DatabaseID is non-empty exactly while a provider database exists: set as
	// soon as the provider create succeeds, cleared on the deleted tombstone.
	DatabaseID           string
	Status               Status
	CreatedAt            time.Time
	UpdatedAt            time.Time
	DeletedAt            *time.Time
	LastMigrationVersion string
	MigrationHistory     []MigrationEntry
}

// Errors returned by the registry store.
var (
	// ErrRecordNotFound is returned when no matching registry row exists.
	ErrRecordNotFound = errors.New("tenant database record not found")
	// ErrDuplicateTenant is returned when the partial unique index rejects a
	// second non-deleted row for the same tenant identity.
	ErrDuplicateTenant = errors.New("tenant database record already exists")
)

const registryColumns = `id, tenant_id, tenant_type, database_name, database_id, status,
        created_at, updated_at, deleted_at, last_migration_version, migration_history`

// RegistryStore provides access to the tenant_databases table.
type RegistryStore struct {
	pool *pgxpool.Pool
}

// NewRegistryStore creates a store; assumes migrations already created the table.
func NewRegistryStore(pool *pgxpool.Pool) (*RegistryStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &RegistryStore{pool: pool}, nil
}

// Insert writes the initial row for a tenant with status=creating and an empty
// migration history. The partial unique index on (tenant_id, tenant_type)
// WHERE status <> 'deleted' turns a concurrent duplicate into ErrDuplicateTenant.
func (s *RegistryStore) Insert(ctx context.Context, tenantID string, tenantType tenant.Mode, databaseName string) (TenantDatabase, error) {
	if tenantID == "" {
		return TenantDatabase{}, errors.New("tenant id is required")
	}
	if !tenantType.IsValid() {
		return TenantDatabase{}, fmt.Errorf("invalid tenant type %q", tenantType)
	}
	if databaseName == "" {
		return TenantDatabase{}, errors.New("database name is required")
	}

	query := fmt.Sprintf(`
        INSERT INTO %s (
            id, tenant_id, tenant_type, database_name, database_id, status,
            created_at, updated_at, last_migration_version, migration_history
        ) VALUES ($1,$2,$3,$4,'',$5,$6,$6,$7,'[]'::jsonb)
        RETURNING %s
    `, TenantDatabasesTable, registryColumns)

	row := s.pool.QueryRow(ctx, query,
		uuid.New(), tenantID, string(tenantType), databaseName,
		string(StatusCreating), time.Now().UTC(), "0000",
	)

	rec, err := scanTenantDatabase(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return TenantDatabase{}, ErrDuplicateTenant
		}
		return TenantDatabase{}, err
	}
	return rec, nil
}

// Find returns the newest non-deleted record for the tenant identity.
func (s *RegistryStore) Find(ctx context.Context, tenantID string, tenantType tenant.Mode) (TenantDatabase, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
        WHERE tenant_id = $1 AND tenant_type = $2 AND status <> $3
        ORDER BY created_at DESC
        LIMIT 1`, registryColumns, TenantDatabasesTable)
	return scanTenantDatabase(s.pool.QueryRow(ctx, query, tenantID, string(tenantType), string(StatusDeleted)))
}

// FindActive returns the record for the tenant identity only when its
// database is fully provisioned.
func (s *RegistryStore) FindActive(ctx context.Context, tenantID string, tenantType tenant.Mode) (TenantDatabase, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
        WHERE tenant_id = $1 AND tenant_type = $2 AND status = $3
        LIMIT 1`, registryColumns, TenantDatabasesTable)
	return scanTenantDatabase(s.pool.QueryRow(ctx, query, tenantID, string(tenantType), string(StatusActive)))
}

// UpdateFields carries the optional columns UpdateStatus may set alongside the status.
type UpdateFields struct {
	DatabaseID *string
	DeletedAt  *time.Time
}

// UpdateStatus moves a record to the given status, optionally setting the
// provider resource id and deletion timestamp. The deleted transition clears
// database_id: the provider resource is gone, only the audit row remains.
// updated_at advances so stuck detection measures time in the current state.
func (s *RegistryStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, extra UpdateFields) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status %q", status)
	}

	query := fmt.Sprintf(`UPDATE %s SET
            status = $2,
            database_id = CASE WHEN $2 = 'deleted' THEN '' ELSE COALESCE($3, database_id) END,
            deleted_at = COALESCE($4, deleted_at),
            updated_at = now()
        WHERE id = $1`, TenantDatabasesTable)

	tag, err := s.pool.Exec(ctx, query, id, string(status), extra.DatabaseID, extra.DeletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// AppendMigration appends one entry to the record's migration history and
// advances last_migration_version in the same statement.
func (s *RegistryStore) AppendMigration(ctx context.Context, id uuid.UUID, entry MigrationEntry) error {
	if entry.Version == "" {
		return errors.New("migration version is required")
	}
	if entry.AppliedAt.IsZero() {
		entry.AppliedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode migration entry: %w", err)
	}

	query := fmt.Sprintf(`UPDATE %s SET
            last_migration_version = $2,
            migration_history = migration_history || $3::jsonb,
            updated_at = now()
        WHERE id = $1`, TenantDatabasesTable)

	tag, err := s.pool.Exec(ctx, query, id, entry.Version, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// List returns registry rows newest first, optionally filtered by status.
func (s *RegistryStore) List(ctx context.Context, status *Status, limit, offset int) ([]TenantDatabase, int, error) {
	where := ""
	args := []any{}
	if status != nil {
		where = "WHERE status = $1"
		args = append(args, string(*status))
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", TenantDatabasesTable, where)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s %s
        ORDER BY created_at DESC
        LIMIT %d OFFSET %d`, registryColumns, TenantDatabasesTable, where, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []TenantDatabase
	for rows.Next() {
		rec, err := scanTenantDatabase(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// ListStuck returns records that have sat in creating or deleting for longer
// than the threshold; these are the candidates for manual reconciliation.
// Aging goes by updated_at, so a long-lived tenant that just entered deleting
// is not flagged while the delete is still in flight.
func (s *RegistryStore) ListStuck(ctx context.Context, olderThan time.Duration) ([]TenantDatabase, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := fmt.Sprintf(`SELECT %s FROM %s
        WHERE status IN ($1, $2) AND updated_at < $3
        ORDER BY updated_at ASC`, registryColumns, TenantDatabasesTable)

	rows, err := s.pool.Query(ctx, query, string(StatusCreating), string(StatusDeleting), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TenantDatabase
	for rows.Next() {
		rec, err := scanTenantDatabase(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanTenantDatabase(row pgx.Row) (TenantDatabase, error) {
	var (
		rec        TenantDatabase
		tenantType string
		status     string
		history    []byte
	)
	if err := row.Scan(&rec.ID, &rec.TenantID, &tenantType, &rec.DatabaseName, &rec.DatabaseID,
		&status, &rec.CreatedAt, &rec.UpdatedAt, &rec.DeletedAt, &rec.LastMigrationVersion, &history); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantDatabase{}, ErrRecordNotFound
		}
		return TenantDatabase{}, err
	}

	rec.TenantType = tenant.Mode(tenantType)
	rec.Status = Status(status)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &rec.MigrationHistory); err != nil {
			return TenantDatabase{}, fmt.Errorf("decode migration history: %w", err)
		}
	}
	return rec, nil
}
