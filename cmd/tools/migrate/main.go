// Package main applies the embedded SQL migrations.
//
// Usage:
//
//	go run ./cmd/tools/migrate            # apply pending migrations
//	go run ./cmd/tools/migrate status
//	go run ./cmd/tools/migrate down       # revert the latest migration
//
// DATABASE_URL and the DB_* tuning variables are read from the environment
// (or a local .env file). Outside APP_ENV=local, _SSM_PARAM references are
// resolved first.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"docgate/internal/config"
	"docgate/internal/db"
)

type command func(ctx context.Context, pool *pgxpool.Pool, table string, logger *slog.Logger) error

var commands = map[string]command{
	"up":     db.Migrate,
	"status": db.MigrationStatus,
	"down":   db.Rollback,
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: migrate [up|status|down]\n")
	}
	flag.Parse()

	name := "up"
	if flag.NArg() > 0 {
		name = flag.Arg(0)
	}
	cmd, ok := commands[name]
	if !ok {
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cmd, logger); err != nil {
		logger.Error("migration failed", "command", name, "error", err)
		os.Exit(1)
	}
	logger.Info("migration finished", "command", name)
}

func run(ctx context.Context, cmd command, logger *slog.Logger) error {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	if err := config.ResolveSecrets(config.DefaultProvider()); err != nil {
		return fmt.Errorf("resolving secrets: %w", err)
	}

	cfg, err := loadDatabaseConfig()
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	return cmd(ctx, pool, cfg.MigrationsTable, logger)
}

func loadDatabaseConfig() (config.DatabaseConfig, error) {
	var cfg config.DatabaseConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("reading database configuration: %w", err)
	}
	if cfg.URL.Unmask() == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}
