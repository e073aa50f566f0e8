package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cortexops/dispatch/internal/config"
	"github.com/cortexops/dispatch/internal/platform/crypto"
	"github.com/cortexops/dispatch/internal/platform/gemini"
	"github.com/cortexops/dispatch/internal/platform/postgres"
	"github.com/cortexops/dispatch/internal/service/auth"
	"github.com/cortexops/dispatch/internal/service/dispatch"
	"github.com/cortexops/dispatch/internal/service/executor"
	"github.com/cortexops/dispatch/internal/service/queue"
	"github.com/cortexops/dispatch/internal/service/sweep"
	"github.com/cortexops/dispatch/internal/store"
)

// application holds the wired dependency graph. Everything hangs off the
// single *sql.DB; stores join transactions through WithTx.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	entryStore store.QueueStore
	taskStore  store.TaskStore
	logStore   store.DispatchLogStore
	depStore   store.DependencyStore
	archStore  store.ArchiveStore

	jwtService   auth.JWTService
	queueService *queue.Service
	dispatcher   *dispatch.Dispatcher
	depChecker   *dispatch.DependencyChecker
	runner       *executor.Runner
	sweeper      *sweep.Sweeper

	scheduler *scheduler
}

// newApplication connects to the database, applies pending migrations and
// wires every service. The returned application is ready to run.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := applyMigrations(db, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	app := &application{
		config: cfg,
		logger: log,
		db:     db,
	}

	app.entryStore = postgres.NewPostgresQueueStore(db)
	app.taskStore = postgres.NewPostgresTaskStore(db)
	app.logStore = postgres.NewPostgresDispatchLogStore(db)
	app.depStore = postgres.NewPostgresDependencyStore(db)
	app.archStore = postgres.NewPostgresArchiveStore(db)

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	cipher, err := crypto.NewFieldCipher(cfg.Crypto.MasterKey)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create field cipher: %w", err)
	}

	app.queueService = queue.NewService(
		db,
		app.entryStore,
		app.taskStore,
		app.logStore,
		app.archStore,
		queue.Config{MinResultLength: cfg.Queue.MinResultLength},
		log,
	)

	app.depChecker = dispatch.NewDependencyChecker(app.depStore)
	breaker := dispatch.NewCircuitBreaker(
		app.logStore,
		app.taskStore,
		cfg.Queue.BreakerThreshold,
		cfg.Queue.BreakerWindow,
		log,
	)
	app.dispatcher = dispatch.NewDispatcher(
		db,
		app.taskStore,
		app.entryStore,
		app.logStore,
		app.depChecker,
		breaker,
		cipher,
		cfg.Queue.MaxRetries,
		log,
	)

	llmExecutor, err := gemini.NewExecutor(ctx, cfg.LLM, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create LLM executor: %w", err)
	}

	app.runner = executor.NewRunner(
		llmExecutor,
		app.queueService,
		app.entryStore,
		executor.RunnerConfig{
			BatchLimit:    cfg.Queue.BatchLimit,
			StuckClaimAge: cfg.Queue.StuckClaimAge,
		},
		log,
	)

	app.sweeper = sweep.NewSweeper(
		db,
		app.entryStore,
		app.taskStore,
		app.logStore,
		app.archStore,
		cfg.Queue.RetentionAge,
		log,
	)

	app.scheduler, err = newScheduler(cfg.Queue, app.dispatcher, app.runner, app.sweeper, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	log.Info("application initialized",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("model", cfg.LLM.ModelName))

	return app, nil
}

// run recovers stuck claims from a previous process, starts the background
// scheduler and serves HTTP until shutdown.
func (app *application) run(ctx context.Context) error {
	// Claims held by a crashed predecessor would otherwise wait out the
	// full StuckClaimAge inside the first scheduled reconcile.
	if n, err := app.runner.ReconcileStuck(ctx); err != nil {
		app.logger.Warn("startup claim reconciliation failed", slog.Any("error", err))
	} else if n > 0 {
		app.logger.Info("recovered stuck claims on startup", slog.Int("count", n))
	}

	app.scheduler.start()
	defer app.scheduler.stop()

	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup releases resources held by the application.
func (app *application) cleanup() {
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", slog.Any("error", err))
	}
}
