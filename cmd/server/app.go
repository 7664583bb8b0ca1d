package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/rahilrshah/productivity-app/internal/agent"
	"github.com/rahilrshah/productivity-app/internal/config"
	"github.com/rahilrshah/productivity-app/internal/events"
	"github.com/rahilrshah/productivity-app/internal/job"
	"github.com/rahilrshah/productivity-app/internal/platform/gemini"
	"github.com/rahilrshah/productivity-app/internal/platform/logger"
	"github.com/rahilrshah/productivity-app/internal/platform/postgres"
	"github.com/rahilrshah/productivity-app/internal/platform/rediscache"
	"github.com/rahilrshah/productivity-app/internal/service/auth"
	"github.com/rahilrshah/productivity-app/internal/store"
	"github.com/rahilrshah/productivity-app/internal/worker"
	"github.com/rahilrshah/productivity-app/migrations"
)

// application holds the wired dependency graph for the server process.
type application struct {
	config       *config.Config
	logger       *slog.Logger
	db           *sql.DB
	jobStore     store.JobStore
	threadStore  store.ThreadStore
	recordStore  store.RecordStore
	stateCache   store.StateCache
	redisCache   *rediscache.StateCache
	jwtService   auth.JWTService
	hub          *events.Hub
	processor    *job.Processor
	orchestrator *agent.Orchestrator
}

// newApplication loads configuration and builds every component the server
// needs, top to bottom. Construction fails fast; nothing starts serving
// until the whole graph is wired.
func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	appLogger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	db, err := setupDatabase(ctx, cfg, appLogger)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(db, appLogger); err != nil {
		return nil, err
	}

	jobStore := postgres.NewPostgresJobStore(db, cfg.Jobs.RetryBase(), cfg.Jobs.RetryCap())
	threadStore := postgres.NewPostgresThreadStore(db)
	recordStore := postgres.NewPostgresRecordStore(db)

	classifier, err := gemini.NewGeminiClassifier(ctx, appLogger, cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	jwtService, err := auth.NewJWTService(cfg.Auth.JWTSecret, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	var stateCache store.StateCache = store.NopStateCache{}
	var redisCache *rediscache.StateCache
	if cfg.Redis.Enabled {
		redisCache = rediscache.New(cfg.Redis.Addr, cfg.Redis.StateTTL())
		if err := redisCache.Ping(ctx); err != nil {
			// The cache is an optimization; a dead redis downgrades to
			// store-backed state rather than blocking startup.
			appLogger.Warn("redis unreachable, conversation state cache disabled",
				"addr", cfg.Redis.Addr,
				"error", err)
			_ = redisCache.Close()
			redisCache = nil
		} else {
			stateCache = redisCache
			appLogger.Info("conversation state cache enabled", "addr", cfg.Redis.Addr)
		}
	}

	hub := events.NewHub(appLogger)

	workers := []worker.Worker{
		worker.NewRecordWorker(recordStore, appLogger),
		worker.NewCalendarWorker(recordStore, appLogger),
		worker.NewContainerWorker(recordStore, appLogger),
	}

	processor := job.NewProcessor(jobStore, threadStore, workers, hub, job.ProcessorConfig{
		PollInterval:    cfg.Jobs.PollInterval(),
		MaxConcurrent:   cfg.Jobs.MaxConcurrent,
		ShutdownTimeout: cfg.Jobs.ShutdownTimeout(),
		StaleAge:        cfg.Jobs.StaleAge(),
	}, appLogger)

	orchestrator := agent.NewOrchestrator(
		classifier,
		threadStore,
		jobStore,
		recordStore,
		stateCache,
		workers,
		agent.Config{
			SyncSafeIntents: cfg.Jobs.SyncSafeIntents,
			MaxRetries:      cfg.Jobs.MaxRetries,
		},
		appLogger,
	)

	return &application{
		config:       cfg,
		logger:       appLogger,
		db:           db,
		jobStore:     jobStore,
		threadStore:  threadStore,
		recordStore:  recordStore,
		stateCache:   stateCache,
		redisCache:   redisCache,
		jwtService:   jwtService,
		hub:          hub,
		processor:    processor,
		orchestrator: orchestrator,
	}, nil
}

// setupDatabase opens the connection pool and verifies connectivity.
func setupDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")
	return db, nil
}

// runMigrations applies the embedded goose migrations.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("database migrations applied")
	return nil
}

// cleanup releases resources in reverse construction order.
func (app *application) cleanup() {
	if app.redisCache != nil {
		if err := app.redisCache.Close(); err != nil {
			app.logger.Error("failed to close redis connection", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database connection", "error", err)
		}
	}
}
