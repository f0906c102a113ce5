// Package main runs the image generation API server. It wires the task store,
// the NanoBanana provider client and the reconciliation engine behind the HTTP
// API, and can apply database migrations when started with -migrate.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/phrazzld/banana-api/internal/config"
	"github.com/phrazzld/banana-api/internal/platform/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (env vars still apply)")
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, reset, status, version) and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	ctx := context.Background()

	if *migrateCmd != "" {
		if err := runMigrations(ctx, cfg, *migrateCmd, l); err != nil {
			l.Error("Migration failed", "command", *migrateCmd, "error", err)
			os.Exit(1)
		}
		return
	}

	l.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver)

	app, err := newApplication(ctx, cfg, l)
	if err != nil {
		l.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		l.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// runMigrations applies a goose command to the configured Postgres database.
func runMigrations(ctx context.Context, cfg *config.Config, command string, l *slog.Logger) error {
	if cfg.Database.Driver != driverPostgres {
		return fmt.Errorf("migrations require the %s driver, got %q", driverPostgres, cfg.Database.Driver)
	}

	db, err := openPostgres(ctx, cfg.Database.URL, l)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			l.Error("Error closing database connection", "error", cerr)
		}
	}()

	return postgresMigrate(ctx, db, command, l)
}
