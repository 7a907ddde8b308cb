package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kestrelworks/toolmux/internal/api"
	"github.com/kestrelworks/toolmux/internal/buildinfo"
	"github.com/kestrelworks/toolmux/internal/config"
	"github.com/kestrelworks/toolmux/internal/registry"
	"github.com/kestrelworks/toolmux/internal/tools"
	"github.com/kestrelworks/toolmux/internal/watch"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start enabled tool servers and serve the HTTP API",
	Long: `serve loads the server configuration, spawns every enabled tool server,
watches them for liveness, and serves the catalog and admin API until
SIGINT or SIGTERM.

A missing configuration file is written with starter defaults. A broken
one is logged and replaced by defaults in memory; the file itself is
left untouched.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := resolveSettings()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	level, levelErr := config.ParseLogLevel(settings.LogLevel)
	if levelErr != nil {
		level = slog.LevelInfo
	}
	logger := config.NewLogger(os.Stdout, level, settings.LogFormat)
	slog.SetDefault(logger)
	if levelErr != nil {
		logger.Warn("invalid log level, using info", "value", settings.LogLevel)
	}

	logger.Info("starting toolmux", "version", buildinfo.Version)

	path := settings.ConfigPath
	if path == "" {
		if found, ferr := config.FindConfig(""); ferr == nil {
			path = found
		} else {
			path = config.DefaultFileName
		}
	}

	cfg, err := config.LoadOrCreate(path)
	if err != nil {
		logger.Warn("config load failed, continuing with defaults", "path", path, "error", err)
	} else {
		logger.Info("loaded config", "path", path, "servers", cfg.Servers.Len())
	}

	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := registry.NewManager(cfg, path, logger)
	reg.StartEnabled(ctx)

	watcher := watch.NewManager(watch.ManagerConfig{
		Registry: reg,
		Backoff:  watch.DefaultBackoffConfig(),
		Logger:   logger,
	})
	watcher.Start(ctx)

	adapter := tools.NewAdapter(reg, tools.NewLocalRegistry(), logger)
	server := api.NewServer(settings.ListenAddr, settings.AdminToken, adapter, reg, watcher, logger)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		watcher.Stop()
		reg.StopAll()
		_ = server.Shutdown(context.Background())
	}()

	// Start blocks until the server is shut down, via context
	// cancellation or fatal listener error.
	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("toolmux stopped")
	return nil
}
