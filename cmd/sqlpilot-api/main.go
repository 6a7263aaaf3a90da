package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/api"
	"github.com/sqlpilot/sqlpilot/internal/api/uistatic"
	"github.com/sqlpilot/sqlpilot/internal/auth"
	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/history"
	"github.com/sqlpilot/sqlpilot/internal/migrations"
	"github.com/sqlpilot/sqlpilot/internal/nl2sql"
	"github.com/sqlpilot/sqlpilot/internal/observability"
	"github.com/sqlpilot/sqlpilot/internal/pipeline"
	"github.com/sqlpilot/sqlpilot/internal/query"
	"github.com/sqlpilot/sqlpilot/internal/query/sqlexec"
	"github.com/sqlpilot/sqlpilot/internal/schema"
	"github.com/sqlpilot/sqlpilot/internal/seed"
	"github.com/sqlpilot/sqlpilot/internal/sqlguard"
	s3store "github.com/sqlpilot/sqlpilot/internal/storage/s3"
	"github.com/sqlpilot/sqlpilot/internal/store"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlpilot-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, store.Config{
		Driver:          cfg.Store.Driver,
		DSN:             cfg.Store.DSN,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := prepareStore(ctx, cfg, db, logger); err != nil {
		logger.Error("failed to prepare store", slog.Any("error", err))
		os.Exit(1)
	}

	descriptor := schema.Default()
	generator, validator, err := nl2sql.New(nl2sql.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Mode:        nl2sql.Mode(cfg.AI.Mode),
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
		Schema:      descriptor,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to initialize sql generator", slog.Any("error", err))
		os.Exit(1)
	}
	if _, ok := generator.(nl2sql.FallbackGenerator); ok {
		logger.Warn("no usable AI API key configured; serving placeholder queries")
	}

	style, err := query.StyleForDriver(cfg.Store.Driver)
	if err != nil {
		logger.Error("unsupported store driver", slog.Any("error", err))
		os.Exit(1)
	}

	proc := pipeline.New(generator, validator, sqlexec.NewExecutor(db, style, logger))
	proc.Guard = &sqlguard.Guard{AllowMutations: cfg.Pipeline.AllowMutations}
	proc.Timeout = cfg.Pipeline.Timeout
	proc.Logger = logger

	deps := api.Dependencies{
		Logger:   logger,
		Pipeline: proc,
		Schema:   descriptor,
		Readiness: api.CombineReadinessChecks(
			api.PingDatabase(db),
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.UI.Enabled {
		deps.UI = uistatic.Handler()
	}

	var background sync.WaitGroup
	if cfg.History.Enabled {
		recorder := history.NewRecorder(cfg.History.Capacity)
		proc.Recorder = recorder
		deps.History = recorder

		if cfg.History.ArchiveEnabled {
			objectStore, err := s3store.New(ctx, s3store.Config{
				Endpoint:         cfg.ObjectStore.Endpoint,
				Region:           cfg.ObjectStore.Region,
				Bucket:           cfg.ObjectStore.Bucket,
				AccessKeyID:      cfg.ObjectStore.AccessKeyID,
				SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
				UseSSL:           cfg.ObjectStore.UseSSL,
				Prefix:           cfg.ObjectStore.Prefix,
				AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
			})
			if err != nil {
				logger.Error("failed to initialize object store", slog.Any("error", err))
				os.Exit(1)
			}
			deps.Readiness = api.CombineReadinessChecks(deps.Readiness, objectStore.Ping)
			instance := archiveInstance(cfg)
			archiver, err := history.NewArchiver(recorder, objectStore, history.ArchiverConfig{
				Instance: instance,
				Interval: cfg.History.ArchiveInterval,
				MaxBatch: cfg.History.ArchiveMaxBatch,
			}, logger)
			if err != nil {
				logger.Error("failed to initialize history archiver", slog.Any("error", err))
				os.Exit(1)
			}
			deps.Archive = objectStore
			deps.ArchiveInstance = instance

			background.Add(1)
			go func() {
				defer background.Done()
				archiver.Run(ctx)
			}()
		}
	}

	if cfg.Auth.Required {
		keys, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		if keys.Len() == 0 {
			logger.Warn("auth required but no static keys configured; every protected request will be rejected")
		}
		deps.AuthMiddleware = auth.Middleware(logger, keys)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address), slog.String("store", cfg.Store.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	shutdownErr := server.Shutdown(shutdownCtx)
	background.Wait()
	if shutdownErr != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", shutdownErr))
		_ = server.Close()
		os.Exit(1)
	}
}

// prepareStore applies migrations and loads the sample dataset when the
// configuration asks for it.
func prepareStore(ctx context.Context, cfg config.Config, db *sql.DB, logger *slog.Logger) error {
	if cfg.Store.AutoMigrate {
		runner, err := migrations.NewRunner(cfg.Store.Driver)
		if err != nil {
			return err
		}
		runner.Logger = logger
		applied, err := runner.Up(ctx, db, 0)
		if err != nil {
			return err
		}
		logger.Info("store migrated", slog.Int("applied", applied))
	}
	if cfg.Store.Seed {
		result, err := (seed.Seeder{DB: db, Logger: logger, Now: time.Now}).Run(ctx, seed.Sample())
		if err != nil {
			return err
		}
		logger.Info("store seeded",
			slog.Bool("skipped", result.Skipped),
			slog.Int("customers", result.Customers),
			slog.Int("orders", result.Orders),
		)
	}
	return nil
}

func archiveInstance(cfg config.Config) string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return cfg.Service.Name + "-" + host
	}
	return cfg.Service.Name
}
