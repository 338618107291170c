package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/automatacontrols/bms-core/internal/config"
	"github.com/automatacontrols/bms-core/internal/postgres"
	"github.com/automatacontrols/bms-core/internal/queue"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending job-queue schema migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pgCfg, err := postgres.ParseURL(cfg.Queue.URL)
	if err != nil {
		return fmt.Errorf("parse queue url: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := queue.Migrate(pgCfg, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	fmt.Println("migrations applied")
	return nil
}
