package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/hookserver"
	"github.com/mattjoyce/hookserver/internal/log"
)

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := hookserver.LoadConfig(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("hookserver starting", "version", version, "config", cfg.SourcePath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := hookserver.New(ctx, cfg, hookserver.WithLogger(log.Get()))
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer srv.Close()

	logger.Info("hookserver running (press Ctrl+C to stop)",
		"listen", cfg.Server.Listen,
		"path", cfg.Server.Path,
		"handlers", srv.Events(),
	)
	if err := srv.Run(ctx); err != nil {
		logger.Error("component failed", "error", err)
		return 1
	}

	logger.Info("hookserver stopped")
	return 0
}
