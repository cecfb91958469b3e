// Applies the SQL migrations under ./migrations.
//
//	migrate up|down|version|force VERSION|steps N
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	pgrepo "propvest/internal/repository/postgres"
	"propvest/pkg/config"
	"propvest/pkg/logger"
)

func main() {
	log := logger.New("migrate")
	cfg := config.Load()
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL environment variable is required", nil)
	}
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down|version|force VERSION|steps N]", nil)
	}

	db, err := pgrepo.Open(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		log.Fatal("Failed to create migration driver", map[string]interface{}{"error": err.Error()})
	}

	source := os.Getenv("MIGRATIONS_PATH")
	if source == "" {
		source = "file://migrations"
	}
	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		log.Fatal("Failed to create migrate instance", map[string]interface{}{"error": err.Error()})
	}

	command := os.Args[1]
	switch command {
	case "up":
		ignoreNoChange(log, "Migration failed", m.Up())
		log.Info("Migrations applied", nil)

	case "down":
		ignoreNoChange(log, "Migration rollback failed", m.Down())
		log.Info("Migrations rolled back", nil)

	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			log.Fatal("Failed to get version", map[string]interface{}{"error": err.Error()})
		}
		fmt.Printf("Current version: %d (dirty: %t)\n", version, dirty)

	case "force", "steps":
		if len(os.Args) < 3 {
			log.Fatal("Usage: migrate "+command+" N", nil)
		}
		n, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatal("Argument must be a number", map[string]interface{}{"value": os.Args[2]})
		}
		if command == "force" {
			if err := m.Force(n); err != nil {
				log.Fatal("Force migration failed", map[string]interface{}{"error": err.Error()})
			}
		} else {
			ignoreNoChange(log, "Migration steps failed", m.Steps(n))
		}
		log.Info("Migration command finished", map[string]interface{}{"command": command, "value": n})

	default:
		log.Fatal("Unknown command", map[string]interface{}{"command": command})
	}
}

func ignoreNoChange(log logger.Logger, msg string, err error) {
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal(msg, map[string]interface{}{"error": err.Error()})
	}
}
