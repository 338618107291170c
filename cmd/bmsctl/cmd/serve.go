package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/automatacontrols/bms-core/internal/config"
	"github.com/automatacontrols/bms-core/internal/orchestrator"
)

var errInterrupted = errors.New("interrupted")

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control-plane server until interrupted",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (optional; environment variables always apply)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := orchestrator.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	logger.Info("bmsctl serve started", "addr", orch.Addr(), "sites", cfg.App.Sites)

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.DrainTimeout+cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := orch.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop orchestrator: %w", err)
	}

	return errInterrupted
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
