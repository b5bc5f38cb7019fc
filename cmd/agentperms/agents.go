package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kandev/agentperms/internal/agents/controller"
	"github.com/kandev/agentperms/internal/agents/fetcher"
	"github.com/kandev/agentperms/internal/agents/permissions"
	"github.com/kandev/agentperms/internal/agents/registry"
	"github.com/kandev/agentperms/internal/agents/store"
	"github.com/kandev/agentperms/internal/common/config"
	"github.com/kandev/agentperms/internal/common/logger"
	"github.com/kandev/agentperms/internal/events/bus"
)

type agentsServices struct {
	controller *controller.Controller
}

func provideAgents(ctx context.Context, cfg *config.Config, repo store.Repository, eventBus bus.EventBus, log *logger.Logger) (*agentsServices, func(), error) {
	agents := registry.NewRegistry(log)
	if err := agents.Load(ctx, repo); err != nil {
		return nil, nil, fmt.Errorf("failed to load agents map: %w", err)
	}

	ttl := cfg.Agents.FetchCacheTTLDuration()
	agentFetcher := fetcher.New(repo, ttl, log)

	memo, err := permissions.NewMemo(cfg.Agents.MemoMaxEntries, ttl)
	if err != nil {
		return nil, nil, err
	}

	ctrl := controller.NewController(repo, eventBus, agents, agentFetcher, memo, cfg.Agents.CustomConfigPath, log)
	if _, err := ctrl.ReloadAgentsConfig(ctx); err != nil {
		memo.Close()
		return nil, nil, fmt.Errorf("failed to load agents endpoint config: %w", err)
	}

	// Changes made through ctrl are applied locally; the watch only picks up
	// other instances.
	sub, err := agents.Watch(eventBus, agentFetcher, ctrl.EventSource())
	if err != nil {
		memo.Close()
		return nil, nil, fmt.Errorf("failed to watch agent events: %w", err)
	}

	log.Info("Agents services initialized",
		zap.Int("agents", agents.Len()),
		zap.Duration("fetch_cache_ttl", agentFetcher.TTL()),
		zap.String("custom_config", cfg.Agents.CustomConfigPath))

	cleanup := func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn("failed to unsubscribe from agent events", zap.Error(err))
		}
		memo.Close()
	}
	return &agentsServices{controller: ctrl}, cleanup, nil
}
