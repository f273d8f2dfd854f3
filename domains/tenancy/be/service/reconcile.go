package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quarrylane/lamina/platform/go/persistence"
)

// ReconcileReport summarizes one reconciliation pass over stuck records.
type ReconcileReport struct {
	Stuck     []persistence.TenantDatabase
	Recovered int
	Failed    int
}

// Reconcile finds records stuck in creating or deleting longer than olderThan.
// With apply=false it only reports them. With apply=true it re-drives each one
// to its terminal state: stuck creates reuse the database id recorded on the
// row when the provider call already succeeded, and only call the provider
// when no id was recorded; stuck deletes are re-deleted. Failures are logged
// per record and do not stop the pass.
func (s *Service) Reconcile(ctx context.Context, olderThan time.Duration, apply bool) (ReconcileReport, error) {
	if err := s.creds.Validate(); err != nil {
		return ReconcileReport{}, err
	}

	stuck, err := s.registry.ListStuck(ctx, olderThan)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("list stuck records: %w", err)
	}

	report := ReconcileReport{Stuck: stuck}
	if !apply {
		return report, nil
	}

	for _, rec := range stuck {
		unlock := s.locks.lock(string(rec.TenantType) + ":" + rec.TenantID)
		err := s.reconcileRecord(ctx, rec)
		unlock()

		if err != nil {
			report.Failed++
			s.logger.Error("reconcile tenant record",
				zap.String("tenant_id", rec.TenantID),
				zap.String("status", string(rec.Status)),
				zap.Error(err),
			)
			continue
		}
		report.Recovered++
	}

	return report, nil
}

func (s *Service) reconcileRecord(ctx context.Context, rec persistence.TenantDatabase) error {
	switch rec.Status {
	case persistence.StatusCreating:
		return s.resumeCreate(ctx, rec)
	case persistence.StatusDeleting:
		return s.resumeDelete(ctx, rec)
	default:
		return fmt.Errorf("record %s is not stuck (status %s)", rec.ID, rec.Status)
	}
}

func (s *Service) resumeCreate(ctx context.Context, rec persistence.TenantDatabase) error {
	databaseID := rec.DatabaseID
	if databaseID == "" {
		id, err := s.provider.CreateDatabase(ctx, rec.DatabaseName)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCreationFailed, err)
		}
		databaseID = id
	}

	applied, err := s.initializeSchema(ctx, rec.TenantID, databaseID)
	if err != nil {
		return err
	}

	if ok := s.registry.UpdateStatus(ctx, rec.ID, persistence.StatusActive, persistence.UpdateFields{DatabaseID: &databaseID}); !ok {
		return fmt.Errorf("activate record %s", rec.ID)
	}

	if applied != nil && applied.Version != rec.LastMigrationVersion {
		if err := s.registry.AppendMigration(ctx, rec.ID, persistence.MigrationEntry{
			Version:   applied.Version,
			Name:      "reconcile",
			Checksum:  applied.Checksum,
			AppliedAt: time.Now().UTC(),
		}); err != nil {
			s.logger.Error("record reconcile migration", zap.String("tenant_id", rec.TenantID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) resumeDelete(ctx context.Context, rec persistence.TenantDatabase) error {
	if rec.DatabaseID != "" {
		if err := s.provider.DeleteDatabase(ctx, rec.DatabaseID); err != nil {
			return fmt.Errorf("%w: %w", ErrDeletionFailed, err)
		}
	}

	now := time.Now().UTC()
	if ok := s.registry.UpdateStatus(ctx, rec.ID, persistence.StatusDeleted, persistence.UpdateFields{DeletedAt: &now}); !ok {
		return fmt.Errorf("mark record %s deleted", rec.ID)
	}
	return nil
}
