package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	tenancyhandler "github.com/quarrylane/lamina/domains/tenancy/be/handler"
	tenancyrepo "github.com/quarrylane/lamina/domains/tenancy/be/repo"
	tenancyservice "github.com/quarrylane/lamina/domains/tenancy/be/service"
	"github.com/quarrylane/lamina/platform/go/cloudflare"
	"github.com/quarrylane/lamina/platform/go/geo"
	platformlogging "github.com/quarrylane/lamina/platform/go/logging"
	"github.com/quarrylane/lamina/platform/go/migrate"
	"github.com/quarrylane/lamina/platform/go/persistence"
	"github.com/quarrylane/lamina/platform/go/secondary"
	"github.com/quarrylane/lamina/platform/go/tenant"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`

	Cloudflare cloudflare.Credentials

	TenantMode     string `env:"TENANT_MODE" envDefault:"organization"`
	TenantDBPrefix string `env:"TENANT_DB_PREFIX"`
	HookPolicy     string `env:"TENANT_HOOK_POLICY" envDefault:"log"`

	SchemaPath    string `env:"TENANT_SCHEMA_PATH"`
	SchemaVersion string `env:"TENANT_SCHEMA_VERSION"`

	SecondaryBackend string `env:"SECONDARY_BACKEND" envDefault:"kv"` // kv | redis
	KVNamespaceID    string `env:"KV_NAMESPACE_ID"`
	RedisURL         string `env:"REDIS_URL"`

	R2 cloudflare.R2Config
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	mode, err := tenant.ParseMode(cfg.TenantMode)
	if err != nil {
		logger.Fatal("invalid TENANT_MODE", zap.String("mode", cfg.TenantMode), zap.Error(err))
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	registryStore, err := persistence.NewRegistryStore(pool)
	if err != nil {
		logger.Fatal("init tenant registry store", zap.Error(err))
	}
	registry := tenancyrepo.NewPostgresRepository(registryStore, logger)

	d1Client, err := cloudflare.NewD1Client(cloudflare.D1ClientConfig{Credentials: cfg.Cloudflare})
	if err != nil {
		logger.Fatal("init d1 client", zap.Error(err))
	}

	var migrations tenancyservice.SchemaInitializer
	if cfg.SchemaPath != "" {
		initializer, err := migrate.NewInitializer(d1Client, migrate.Config{
			Schema:  schemaFileSource(cfg.SchemaPath),
			Version: migrate.Static(cfg.SchemaVersion),
		})
		if err != nil {
			logger.Fatal("init schema initializer", zap.Error(err))
		}
		migrations = initializer
	} else {
		logger.Warn("TENANT_SCHEMA_PATH not set; new tenant databases start empty")
	}

	svc, err := tenancyservice.New(registry, d1Client, logger, tenancyservice.Config{
		Mode:        mode,
		Prefix:      cfg.TenantDBPrefix,
		Credentials: cfg.Cloudflare,
		HookPolicy:  tenancyservice.HookPolicy(cfg.HookPolicy),
		Migrations:  migrations,
	})
	if err != nil {
		logger.Fatal("init tenancy service", zap.Error(err))
	}

	secondaryStore := buildSecondaryStore(ctx, cfg, logger)

	rootRouter := chi.NewRouter()
	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
	)
	rootRouter.Use(platformlogging.RequestLogger(logger))
	rootRouter.Use(geo.Middleware)

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", readyz(pool, secondaryStore))

	tenancyhandler.New(svc, logger).Register(rootRouter)

	if cfg.R2.Bucket != "" {
		r2Store, err := cloudflare.NewR2Store(ctx, cfg.R2)
		if err != nil {
			logger.Fatal("init r2 store", zap.Error(err))
		}
		tenancyhandler.NewFileHandler(svc, r2Store, logger).Register(rootRouter)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port), zap.String("tenant_mode", string(mode)))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// schemaFileSource re-reads the schema file per resolve so a redeployed schema
// is picked up without a restart.
func schemaFileSource(path string) migrate.Source {
	return migrate.FromFunc(func(ctx context.Context) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
}

func buildSecondaryStore(ctx context.Context, cfg config, logger *zap.Logger) secondary.Store {
	switch cfg.SecondaryBackend {
	case "kv":
		if cfg.KVNamespaceID == "" {
			logger.Fatal("KV_NAMESPACE_ID required when SECONDARY_BACKEND=kv")
		}
		kvClient, err := cloudflare.NewKVClient(cloudflare.KVClientConfig{
			Credentials: cfg.Cloudflare,
			NamespaceID: cfg.KVNamespaceID,
		})
		if err != nil {
			logger.Fatal("init kv client", zap.Error(err))
		}
		store, err := secondary.NewKVStore(kvClient)
		if err != nil {
			logger.Fatal("init kv store", zap.Error(err))
		}
		return store
	case "redis":
		store, err := secondary.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("init redis store", zap.Error(err))
		}
		return store
	default:
		logger.Fatal("invalid SECONDARY_BACKEND (use kv or redis)", zap.String("backend", cfg.SecondaryBackend))
		return nil
	}
}

// readyz verifies the main database and the secondary store are reachable.
func readyz(pool *pgxpool.Pool, store secondary.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}

		if err := store.Set(ctx, "readyz-probe", []byte("ok"), time.Minute); err != nil {
			http.Error(w, "secondary storage unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
