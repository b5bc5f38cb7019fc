package controller

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/agentperms/internal/agents/dto"
	"github.com/kandev/agentperms/internal/agents/endpointconfig"
	"github.com/kandev/agentperms/internal/agents/fetcher"
	"github.com/kandev/agentperms/internal/agents/models"
	"github.com/kandev/agentperms/internal/agents/permissions"
	"github.com/kandev/agentperms/internal/agents/registry"
	"github.com/kandev/agentperms/internal/agents/store"
	"github.com/kandev/agentperms/internal/common/logger"
	"github.com/kandev/agentperms/internal/common/tracing"
	"github.com/kandev/agentperms/internal/events"
	"github.com/kandev/agentperms/internal/events/bus"
)

var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrNameRequired  = errors.New("name is required")
)

const eventSourcePrefix = "agents-controller/"

type Controller struct {
	repo     store.Repository
	eventBus bus.EventBus
	agents   *registry.Registry
	fetcher  *fetcher.Fetcher
	lookup   *permissions.Lookup
	resolver *permissions.Resolver
	memo     *permissions.Memo
	logger   *logger.Logger
	source   string

	customConfigPath string
	defaultConfig    *endpointconfig.AgentsEndpointConfig
	configMu         sync.RWMutex
	agentsConfig     *endpointconfig.AgentsEndpointConfig
}

// NewController wires the agents map, fetcher and memo into a resolver.
// memo and eventBus may be nil.
func NewController(
	repo store.Repository,
	eventBus bus.EventBus,
	agents *registry.Registry,
	f *fetcher.Fetcher,
	memo *permissions.Memo,
	customConfigPath string,
	log *logger.Logger,
) *Controller {
	lookup := permissions.NewLookup(agents, f)
	// Schema defaults never fail validation.
	defaultConfig, _ := endpointconfig.Normalize(nil, nil)
	return &Controller{
		repo:             repo,
		eventBus:         eventBus,
		agents:           agents,
		fetcher:          f,
		lookup:           lookup,
		resolver:         permissions.NewResolver(lookup, log),
		memo:             memo,
		logger:           log.Component("agents-controller"),
		source:           eventSourcePrefix + uuid.NewString(),
		customConfigPath: customConfigPath,
		defaultConfig:    defaultConfig,
		agentsConfig:     defaultConfig,
	}
}

// EventSource identifies events published by this controller. Pass it to
// registry.Watch so the controller's own changes are not applied twice.
func (c *Controller) EventSource() string {
	return c.source
}

func (c *Controller) ListAgents(ctx context.Context) (*dto.ListAgentsResponse, error) {
	agents, err := c.repo.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	payload := make([]dto.AgentDTO, 0, len(agents))
	for _, agent := range agents {
		payload = append(payload, dto.FromAgent(agent))
	}
	return &dto.ListAgentsResponse{Agents: payload, Total: len(payload)}, nil
}

func (c *Controller) GetAgent(ctx context.Context, id string) (*dto.AgentDTO, error) {
	agent, err := c.repo.GetAgent(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	result := dto.FromAgent(agent)
	return &result, nil
}

func (c *Controller) CreateAgent(ctx context.Context, req dto.CreateAgentRequest) (*dto.AgentDTO, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	agent := &models.Agent{
		Name:        name,
		Description: req.Description,
		Provider:    req.Provider,
		Model:       req.Model,
		Author:      req.Author,
		Tools:       req.Tools,
	}
	if err := c.repo.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}
	c.applyChange(ctx, events.AgentCreated, agent)
	result := dto.FromAgent(agent)
	return &result, nil
}

func (c *Controller) UpdateAgent(ctx context.Context, id string, req dto.UpdateAgentRequest) (*dto.AgentDTO, error) {
	agent, err := c.repo.GetAgent(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		agent.Name = name
	}
	if req.Description != nil {
		agent.Description = *req.Description
	}
	if req.Provider != nil {
		agent.Provider = *req.Provider
	}
	if req.Model != nil {
		agent.Model = *req.Model
	}
	if req.Author != nil {
		agent.Author = *req.Author
	}
	if req.Tools != nil {
		agent.Tools = *req.Tools
		if agent.Tools == nil {
			agent.Tools = []string{}
		}
	}
	if err := c.repo.UpdateAgent(ctx, agent); err != nil {
		return nil, mapStoreError(err)
	}
	c.applyChange(ctx, events.AgentUpdated, agent)
	result := dto.FromAgent(agent)
	return &result, nil
}

func (c *Controller) DeleteAgent(ctx context.Context, id string) error {
	if err := c.repo.DeleteAgent(ctx, id); err != nil {
		return mapStoreError(err)
	}
	c.applyChange(ctx, events.AgentDeleted, &models.Agent{ID: id})
	return nil
}

// applyChange updates local caches right away and tells other instances
// through the event bus.
func (c *Controller) applyChange(ctx context.Context, eventType string, agent *models.Agent) {
	if eventType == events.AgentDeleted {
		c.agents.Remove(agent.ID)
	} else {
		c.agents.Put(agent)
	}
	c.fetcher.Invalidate(agent.ID)

	if c.eventBus == nil {
		return
	}
	log := c.logger.WithAgentID(agent.ID)
	event, err := events.NewAgentEvent(eventType, c.source, agent)
	if err != nil {
		log.Warn("failed to build agent event", zap.Error(err))
		return
	}
	if err := c.eventBus.Publish(ctx, eventType, event); err != nil {
		log.WithEvent(event.Type, event.ID).Warn("failed to publish agent event", zap.Error(err))
	}
}

// ResolveToolPermissions answers from the memo when the agents map and fetch
// cache are unchanged since the last identical request.
func (c *Controller) ResolveToolPermissions(ctx context.Context, agentID string, ephemeral models.EphemeralAgent) permissions.ToolPermissionResult {
	if c.memo == nil {
		return c.resolver.Resolve(ctx, agentID, ephemeral)
	}
	mapVersion, fetchVersion := c.lookup.Versions()
	key := permissions.MemoKey(agentID, ephemeral, mapVersion, fetchVersion)
	if result, ok := c.memo.Get(key); ok {
		return result
	}
	result := c.resolver.Resolve(ctx, agentID, ephemeral)
	c.memo.Put(key, result)
	return result
}

// AgentsConfig returns a copy of the current agents endpoint config.
func (c *Controller) AgentsConfig() *endpointconfig.AgentsEndpointConfig {
	c.configMu.RLock()
	defer c.configMu.RUnlock()
	return c.agentsConfig.Clone()
}

// ReloadAgentsConfig re-reads the custom config file. On error the previous
// config stays in effect.
func (c *Controller) ReloadAgentsConfig(ctx context.Context) (*endpointconfig.AgentsEndpointConfig, error) {
	_, span := tracing.TraceConfigReload(ctx, c.customConfigPath)
	defer span.End()

	custom, err := endpointconfig.LoadCustomConfig(c.customConfigPath)
	if err != nil {
		tracing.TraceResult(span, "load_failed", err)
		return nil, err
	}
	cfg, err := c.SetCustomConfig(custom)
	if err != nil {
		tracing.TraceResult(span, "invalid", err)
		return nil, err
	}
	tracing.TraceResult(span, "ok", nil)
	return cfg, nil
}

// SetCustomConfig normalizes custom and makes it the current agents config.
func (c *Controller) SetCustomConfig(custom endpointconfig.CustomConfig) (*endpointconfig.AgentsEndpointConfig, error) {
	cfg, err := endpointconfig.Normalize(custom, c.defaultConfig)
	if err != nil {
		c.logger.Warn("rejected agents endpoint config", zap.Error(err))
		return nil, err
	}

	c.configMu.Lock()
	c.agentsConfig = cfg
	c.configMu.Unlock()

	c.logger.Info("agents endpoint config loaded",
		zap.String("path", c.customConfigPath),
		zap.Bool("defaults", cfg == c.defaultConfig))
	return cfg.Clone(), nil
}

func mapStoreError(err error) error {
	if errors.Is(err, store.ErrAgentNotFound) {
		return ErrAgentNotFound
	}
	return err
}
