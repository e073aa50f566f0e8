package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/cortexops/dispatch/internal/config"
	"github.com/cortexops/dispatch/migrations"
)

const migrationTableName = "dispatch_schema_migrations"

// slogGooseLogger adapts goose's log output to the structured logger.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

// configureGoose points goose at the embedded migrations and the
// project-specific version table.
func configureGoose(log *slog.Logger) error {
	goose.SetLogger(&slogGooseLogger{logger: log})
	goose.SetBaseFS(migrations.FS)
	goose.SetTableName(migrationTableName)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// applyMigrations brings the schema up to date. Called on every server
// start so a fresh database needs no separate migration step.
func applyMigrations(db *sql.DB, log *slog.Logger) error {
	if err := configureGoose(log); err != nil {
		return err
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// runMigrationCommand executes a single migration command against the
// configured database and returns. Used by the -migrate flag.
func runMigrationCommand(cfg *config.Config, command string, log *slog.Logger) error {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after migration", slog.Any("error", closeErr))
		}
	}()

	if err := configureGoose(log); err != nil {
		return err
	}

	switch command {
	case "up":
		return goose.Up(db, ".")
	case "down":
		return goose.Down(db, ".")
	case "status":
		return goose.Status(db, ".")
	case "version":
		return goose.Version(db, ".")
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
}
