package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/config"
	"github.com/joao-fontenele/storefront/internal/logging"
)

const usage = "usage: migrate <up|down|version|force VERSION>"

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.NewLogger("storefront-migrate", cfg.Env)
	if err != nil {
		zap.NewExample().Fatal("failed to create logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	if flag.NArg() < 1 {
		logger.Fatal(usage)
	}
	if cfg.PostgresURL == "" {
		logger.Fatal("POSTGRES_URL environment variable is required")
	}

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "file://migrations"
	}

	m, err := migrate.New(migrationsPath, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to create migrate instance", zap.Error(err))
	}
	defer func() { _, _ = m.Close() }()

	if err := run(m, logger, flag.Args()); err != nil {
		logger.Error("migration failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		os.Exit(1)
	}
}

func run(m *migrate.Migrate, logger *zap.Logger, args []string) error {
	switch args[0] {
	case "up":
		if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no pending migrations")
		} else if err != nil {
			return err
		} else {
			logger.Info("migrations applied")
		}

	case "down":
		if err := m.Steps(-1); errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to roll back")
		} else if err != nil {
			return err
		} else {
			logger.Info("migration rolled back")
		}

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))

	case "force":
		if len(args) < 2 {
			return errors.New(usage)
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("parse version: %w", err)
		}
		if err := m.Force(version); err != nil {
			return err
		}
		logger.Info("migration version forced", zap.Int("version", version))

	default:
		return fmt.Errorf("unknown command %q: %s", args[0], usage)
	}
	return nil
}
