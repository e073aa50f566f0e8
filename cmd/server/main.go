// Package main implements the entry point for the dispatch server,
// which queues ready tasks for execution, drains agent-class entries
// through the LLM executor, and keeps the queue archived and healthy.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"

	"github.com/cortexops/dispatch/internal/config"
	"github.com/cortexops/dispatch/internal/platform/logger"
)

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status) and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		log.Fatalf("failed to set up logger: %v", err)
	}

	if *migrateCmd != "" {
		if err := runMigrationCommand(cfg, *migrateCmd, appLogger); err != nil {
			appLogger.Error("migration failed", slog.String("command", *migrateCmd), slog.Any("error", err))
			log.Fatalf("migration %q failed: %v", *migrateCmd, err)
		}
		return
	}

	ctx := context.Background()

	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("failed to initialize application", slog.Any("error", err))
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := app.run(ctx); err != nil {
		appLogger.Error("server exited with error", slog.Any("error", err))
		log.Fatalf("server exited with error: %v", err)
	}
}
