package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/your-org/facewatch/internal/config"
	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", config.DefaultPath, "path to config file")
	action := flag.String("action", "up", "migration action: up, down, version")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.SetupLogger(cfg.Logging.Level, "text")

	db, err := storage.OpenSQL(cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	migrator, err := storage.NewMigrator(db, cfg.Database.Name)
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()

	switch *action {
	case "up":
		slog.Info("running migrations")
		if err := migrator.Up(); err != nil {
			return err
		}
		slog.Info("migrations completed")

	case "down":
		slog.Info("rolling back last migration")
		if err := migrator.Down(); err != nil {
			return err
		}
		slog.Info("migration rolled back")

	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		slog.Info("current schema version", "version", version, "dirty", dirty)

	default:
		return fmt.Errorf("invalid action: %s (use: up, down, version)", *action)
	}

	return nil
}
