package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumenchat/lumen/db"
	"github.com/lumenchat/lumen/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("store backend %q has no migrations", cfg.Store)
	}

	logger := newLogger(cfg)
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	logger.Info("database migrations up to date")
	return nil
}
