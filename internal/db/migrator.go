package db

import (
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"

	"achievement-sync/internal/logging"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
)

//go:embed migrations/*.up.sql migrations/*.down.sql
var migrationsFS embed.FS

// MigrateUp runs all "up" migrations bundled via go:embed.
func MigrateUp(databaseURL string) error {
	if databaseURL == "" {
		return fmt.Errorf("migrator: empty database URL")
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrator: iofs init: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("migrator: create: %w", err)
	}
	defer m.Close()

	maxVer, count := countEmbeddedMigrations()
	logging.Info("Embedded migrations", "count", count, "latest", maxVer)

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrator: up: %w", err)
	}

	if v, d, err := m.Version(); err == nil {
		logging.Info("DB migration version", "version", v, "dirty", d)
	}
	return nil
}

var migRe = regexp.MustCompile(`^(\d+)_.+\.(up|down)\.sql$`)

func countEmbeddedMigrations() (int, int) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return 0, 0
	}
	maxV, count := 0, 0
	for _, e := range entries {
		if m := migRe.FindStringSubmatch(e.Name()); m != nil {
			count++
			if v, err := strconv.Atoi(m[1]); err == nil && v > maxV {
				maxV = v
			}
		}
	}
	return maxV, count
}
