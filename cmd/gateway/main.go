package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/ngoclaw/gateway/internal/application"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/config"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/logger"
)

const (
	appName = "aistudio-gateway"
	appVersion = "0.1.0"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("%s v%s\n", appName, appVersion)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	log, err := logger.NewLogger(logger.Config{
		Level: "info",
		Format: "json",
		OutputPath: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting gateway", zap.String("name", appName), zap.String("version", appVersion))

	if err := config.Bootstrap(log); err != nil {
		log.Warn("failed to bootstrap home directory", zap.Error(err))
	}

	watchDir := os.Getenv("AISTUDIO_GATEWAY_CONFIG_DIR")
	watcher, err := config.NewWatcher(watchDir, log)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	if watchDir != "" {
		if err := watcher.Start(watchDir); err != nil {
			log.Warn("config hot-reload not active", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := application.NewApp(watcher.Config(), log)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(ctx); err != nil {
		log.Fatal("failed to start application", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
		os.Exit(1)
	}

	log.Info("gateway stopped")
}

func printUsage() {
	fmt.Printf(`%s v%s

Usage:
  gateway           Start the gateway server (default)
  gateway version   Show version
  gateway help      Show this help

Environment:
  AISTUDIO_GATEWAY_CONFIG_DIR   Directory to watch for config hot-reload
  AISTUDIO_GATEWAY_*            Configuration overrides (see config.yaml)
`, appName, appVersion)
}
