// Package main runs the agentperms service: agent CRUD, tool permission
// resolution and the agents endpoint config over HTTP and MCP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/agentperms/internal/common/config"
	"github.com/kandev/agentperms/internal/common/logger"
	"github.com/kandev/agentperms/internal/common/tracing"
	"github.com/kandev/agentperms/internal/events"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agentperms: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting agentperms...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tracing.Init(ctx, cfg.Tracing); err != nil {
		log.Warn("Tracing disabled", zap.Error(err))
	}

	repo, cleanupStorage, err := provideStorage(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanupStorage(); err != nil {
			log.Error("storage cleanup error", zap.Error(err))
		}
	}()

	eventBus, cleanupBus, err := events.Provide(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer func() {
		if err := cleanupBus(); err != nil {
			log.Error("event bus cleanup error", zap.Error(err))
		}
	}()

	agentsSvc, cleanupAgents, err := provideAgents(ctx, cfg, repo, eventBus, log)
	if err != nil {
		return err
	}
	defer cleanupAgents()

	cleanupMCP, err := provideMcpServer(ctx, cfg, agentsSvc.controller, log)
	if err != nil {
		return err
	}

	server := newHTTPServer(cfg, agentsSvc.controller, log)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		serveErr <- listenAndServe(server)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case <-quit:
	case runErr = <-serveErr:
		if runErr != nil {
			log.Error("HTTP server error", zap.Error(runErr))
		}
	}

	log.Info("Shutting down agentperms...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if cleanupMCP != nil {
		if err := cleanupMCP(); err != nil {
			log.Error("MCP server shutdown error", zap.Error(err))
		}
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", zap.Error(err))
	}

	log.Info("agentperms stopped")
	return runErr
}
