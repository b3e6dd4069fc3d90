package cmd

import (
	"fmt"

	"github.com/raganything/ragserver/db"
	"github.com/raganything/ragserver/internal/config"
	"github.com/raganything/ragserver/internal/log"
)

// runMigrate applies pending database migrations and exits. Useful for
// deployments that migrate in a separate step before rolling the
// server.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}
