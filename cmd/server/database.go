package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/banana-api/internal/config"
	"github.com/phrazzld/banana-api/internal/platform/memstore"
	"github.com/phrazzld/banana-api/internal/platform/postgres"
	"github.com/phrazzld/banana-api/internal/platform/sqlite"
	"github.com/phrazzld/banana-api/internal/store"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
	driverMemory   = "memory"
)

var postgresMigrate = postgres.Migrate

// openPostgres opens a pgx-backed pool and checks it is reachable.
func openPostgres(ctx context.Context, url string, l *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	l.Info("Database connection established", "driver", driverPostgres)
	return db, nil
}

// setupTaskStore builds the task store selected by cfg.Driver. The returned
// closer releases the underlying connection and may be nil.
func setupTaskStore(
	ctx context.Context,
	cfg config.DatabaseConfig,
	l *slog.Logger,
) (store.TaskStore, io.Closer, error) {
	switch cfg.Driver {
	case driverPostgres:
		db, err := openPostgres(ctx, cfg.URL, l)
		if err != nil {
			return nil, nil, err
		}
		if cfg.AutoMigrate {
			if err := postgresMigrate(ctx, db, "up", l); err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("failed to apply migrations: %w", err)
			}
		}
		return postgres.NewPostgresTaskStore(db, l), db, nil

	case driverSQLite:
		gdb, err := sqlite.Open(cfg.URL, false)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		if cfg.AutoMigrate {
			if err := sqlite.AutoMigrate(gdb); err != nil {
				_ = sqlDB.Close()
				return nil, nil, err
			}
		}
		l.Info("Database connection established", "driver", driverSQLite)
		return sqlite.NewTaskStore(gdb, l), sqlDB, nil

	case driverMemory:
		l.Warn("Using in-memory task store; tasks are lost on restart")
		return memstore.NewTaskStore(l), nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
