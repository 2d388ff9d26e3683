package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/kvasilopoulos/contact-center/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/router.yaml", "path to configuration file")
	direction := flag.String("direction", "up", "migration direction: up, down or version")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	dbURL := flag.String("db-url", "", "database URL (overrides config and DATABASE_URL)")
	migrationsPath := flag.String("path", "migrations", "path to migrations directory")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath, true)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	m, err := migrate.New("file://"+*migrationsPath, resolveDSN(*dbURL, os.Getenv("DATABASE_URL"), cfg.Database))
	if err != nil {
		logger.Error("failed to create migrator", "host", cfg.Database.Host, "database", cfg.Database.Name, "error", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := apply(m, *direction, *steps); err != nil {
		logger.Error("migration failed", "direction", *direction, "error", err)
		os.Exit(1)
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Error("read schema version", "error", err)
		os.Exit(1)
	}
	fmt.Printf("classification_feedback schema version: %d (dirty: %v)\n", v, dirty)
}

// resolveDSN picks the connection string: explicit flag, then DATABASE_URL,
// then the database section of the router config.
func resolveDSN(flagURL, envURL string, db config.DatabaseConfig) string {
	switch {
	case flagURL != "":
		return flagURL
	case envURL != "":
		return envURL
	default:
		return db.DSN()
	}
}

type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
}

func apply(m migrator, direction string, steps int) error {
	var err error
	switch direction {
	case "version":
		return nil
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("invalid direction %q (use up, down or version)", direction)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
