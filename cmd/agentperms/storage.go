package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kandev/agentperms/internal/agents/store"
	"github.com/kandev/agentperms/internal/common/config"
	"github.com/kandev/agentperms/internal/common/logger"
	"github.com/kandev/agentperms/internal/db"
)

func provideStorage(cfg *config.Config, log *logger.Logger) (store.Repository, func() error, error) {
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s database: %w", cfg.Database.Driver, err)
	}
	repo, cleanupRepo, err := store.Provide(conn)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to initialize agent store: %w", err)
	}
	log.Info("Agent store initialized", zap.String("driver", cfg.Database.Driver))

	cleanup := func() error {
		if err := cleanupRepo(); err != nil {
			return err
		}
		return conn.Close()
	}
	return repo, cleanup, nil
}
