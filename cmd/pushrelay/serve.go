package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/pushrelay/internal/api"
	"github.com/newthinker/pushrelay/internal/app"
	"github.com/newthinker/pushrelay/internal/logger"
	"github.com/newthinker/pushrelay/internal/metrics"
	"github.com/newthinker/pushrelay/internal/notifier/pushover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.Must(logger.Options{Development: debug})
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	log.Info("starting pushrelay server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Strings("projects", cfg.ProjectSlugs()),
	)

	sender := pushover.New(cfg.Pushover, log.Named("pushover"))
	application, err := app.New(cfg, sender, log)
	if err != nil {
		return fmt.Errorf("creating app: %w", err)
	}

	deps := api.Dependencies{App: application}
	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry()
		application.SetRecorder(reg)
		deps.Metrics = reg
	}

	server, err := api.NewServer(api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		APIKey:      cfg.Server.APIKey,
		MetricsPath: cfg.Metrics.Path,
	}, deps, log.Named("http"))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := application.Start(ctx); err != nil && err != context.Canceled {
			log.Error("app error", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down pushrelay server")
	application.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}
