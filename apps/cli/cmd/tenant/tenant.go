package tenantcmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quarrylane/lamina/domains/tenancy/be/repo"
	"github.com/quarrylane/lamina/domains/tenancy/be/service"
	"github.com/quarrylane/lamina/platform/go/cloudflare"
	platformlogging "github.com/quarrylane/lamina/platform/go/logging"
	"github.com/quarrylane/lamina/platform/go/migrate"
	"github.com/quarrylane/lamina/platform/go/persistence"
	"github.com/quarrylane/lamina/platform/go/tenant"
)

// Command groups tenant database lifecycle helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant database lifecycle (create/delete/migrate/reconcile)",
	}

	cmd.AddCommand(createCommand())
	cmd.AddCommand(deleteCommand())
	cmd.AddCommand(migrateCommand())
	cmd.AddCommand(reconcileCommand())
	return cmd
}

type cliConfig struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	Cloudflare cloudflare.Credentials

	TenantMode     string `env:"TENANT_MODE" envDefault:"organization"`
	TenantDBPrefix string `env:"TENANT_DB_PREFIX"`
	SchemaPath     string `env:"TENANT_SCHEMA_PATH"`
	SchemaVersion  string `env:"TENANT_SCHEMA_VERSION"`
}

type wiring struct {
	cfg    cliConfig
	logger *zap.Logger
	pool   *pgxpool.Pool
	svc    *service.Service
}

func (w *wiring) close() {
	persistence.ClosePool(w.pool)
	_ = w.logger.Sync()
}

// wire builds the orchestrator from environment configuration.
func wire(ctx context.Context) (*wiring, error) {
	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli", Level: cfg.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	mode, err := tenant.ParseMode(cfg.TenantMode)
	if err != nil {
		return nil, err
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("init pool: %w", err)
	}

	registryStore, err := persistence.NewRegistryStore(pool)
	if err != nil {
		persistence.ClosePool(pool)
		return nil, fmt.Errorf("init registry store: %w", err)
	}
	registry := repo.NewPostgresRepository(registryStore, logger)

	d1Client, err := cloudflare.NewD1Client(cloudflare.D1ClientConfig{Credentials: cfg.Cloudflare})
	if err != nil {
		persistence.ClosePool(pool)
		return nil, fmt.Errorf("init d1 client: %w", err)
	}

	var migrations service.SchemaInitializer
	if cfg.SchemaPath != "" {
		initializer, err := migrate.NewInitializer(d1Client, migrate.Config{
			Schema: migrate.FromFunc(func(ctx context.Context) (string, error) {
				data, err := os.ReadFile(cfg.SchemaPath)
				if err != nil {
					return "", err
				}
				return string(data), nil
			}),
			Version: migrate.Static(cfg.SchemaVersion),
		})
		if err != nil {
			persistence.ClosePool(pool)
			return nil, fmt.Errorf("init schema initializer: %w", err)
		}
		migrations = initializer
	}

	svc, err := service.New(registry, d1Client, logger, service.Config{
		Mode:        mode,
		Prefix:      cfg.TenantDBPrefix,
		Credentials: cfg.Cloudflare,
		Migrations:  migrations,
	})
	if err != nil {
		persistence.ClosePool(pool)
		return nil, fmt.Errorf("init tenancy service: %w", err)
	}

	return &wiring{cfg: cfg, logger: logger, pool: pool, svc: svc}, nil
}

func createCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create <tenant-id>",
		Short: "Provision a tenant database and activate its registry record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			w, err := wire(ctx)
			if err != nil {
				return err
			}
			defer w.close()

			rec, err := w.svc.Create(ctx, args[0])
			if err != nil {
				return fmt.Errorf("create tenant: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s: database %s (%s), status %s\n",
				rec.TenantID, rec.DatabaseName, rec.DatabaseID, rec.Status)
			return nil
		},
	}
}

func deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tenant-id>",
		Short: "Delete the tenant's database and soft-delete its registry record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			w, err := wire(ctx)
			if err != nil {
				return err
			}
			defer w.close()

			if err := w.svc.Delete(ctx, args[0]); err != nil {
				return fmt.Errorf("delete tenant: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s deleted\n", args[0])
			return nil
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <tenant-id>",
		Short: "Apply the configured schema to an active tenant database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			w, err := wire(ctx)
			if err != nil {
				return err
			}
			defer w.close()

			applied, err := w.svc.Migrate(ctx, args[0])
			if err != nil {
				return fmt.Errorf("migrate tenant: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s migrated to version %s (%d statements)\n",
				args[0], applied.Version, applied.Statements)
			return nil
		},
	}
}

func reconcileCommand() *cobra.Command {
	var (
		olderThan time.Duration
		apply     bool
	)

	c := &cobra.Command{
		Use:   "reconcile",
		Short: "Find registry records stuck in creating/deleting and optionally re-drive them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			w, err := wire(ctx)
			if err != nil {
				return err
			}
			defer w.close()

			report, err := w.svc.Reconcile(ctx, olderThan, apply)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(report.Stuck) == 0 {
				fmt.Fprintln(out, "No stuck tenant records")
				return nil
			}

			for _, rec := range report.Stuck {
				fmt.Fprintf(out, "%s\t%s\t%s\tsince %s\n",
					rec.TenantID, rec.TenantType, rec.Status, rec.UpdatedAt.Format(time.RFC3339))
			}
			if apply {
				fmt.Fprintf(out, "Recovered %d, failed %d\n", report.Recovered, report.Failed)
			} else {
				fmt.Fprintf(out, "%d stuck record(s); re-run with --apply to re-drive them\n", len(report.Stuck))
			}
			return nil
		},
	}

	c.Flags().DurationVar(&olderThan, "older-than", time.Hour, "Only consider records stuck longer than this")
	c.Flags().BoolVar(&apply, "apply", false, "Re-drive stuck records instead of only listing them")

	return c
}
