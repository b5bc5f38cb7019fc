// Package registry holds the in-memory agents map consulted before any fetch.
package registry

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/agentperms/internal/agents/models"
	"github.com/kandev/agentperms/internal/common/logger"
	"github.com/kandev/agentperms/internal/events"
	"github.com/kandev/agentperms/internal/events/bus"
)

// Source lists agents to seed the map.
type Source interface {
	ListAgents(ctx context.Context) ([]*models.Agent, error)
}

// Invalidator is notified when an agent changes so fetched copies are dropped.
type Invalidator interface {
	Invalidate(id string)
}

// Registry is a versioned snapshot of id -> agent. Every mutation bumps the
// version, which callers use to key memoized results.
type Registry struct {
	mu      sync.RWMutex
	agents  map[string]*models.Agent
	version uint64
	logger  *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*models.Agent),
		logger: log.Component("agents-registry"),
	}
}

// Load replaces the map contents with the agents listed by src.
func (r *Registry) Load(ctx context.Context, src Source) error {
	list, err := src.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	next := make(map[string]*models.Agent, len(list))
	for _, agent := range list {
		if agent == nil || agent.ID == "" {
			continue
		}
		next[agent.ID] = agent.Clone()
	}

	r.mu.Lock()
	r.agents = next
	r.version++
	r.mu.Unlock()

	r.logger.Info("Agents map loaded", zap.Int("agents", len(next)))
	return nil
}

// TryGet returns a copy of the agent with the given id, if present.
func (r *Registry) TryGet(id string) (*models.Agent, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	return agent.Clone(), true
}

// Put inserts or replaces an agent.
func (r *Registry) Put(agent *models.Agent) {
	if agent == nil || agent.ID == "" {
		return
	}
	r.mu.Lock()
	r.agents[agent.ID] = agent.Clone()
	r.version++
	r.mu.Unlock()
}

// Remove deletes an agent. Removing an unknown id leaves the version alone.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return
	}
	delete(r.agents, id)
	r.version++
}

// Len returns the number of agents in the map.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Version returns the current snapshot version.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Watch keeps the map in sync with agent events on the bus. Events whose
// Source is localSource are skipped: their publisher already applied them
// here, and replaying them late could bring back a deleted agent. When inv is
// not nil, each changed id is also invalidated there.
func (r *Registry) Watch(eventBus bus.EventBus, inv Invalidator, localSource string) (bus.Subscription, error) {
	return eventBus.Subscribe(events.AgentSubjects, func(ctx context.Context, event *bus.Event) error {
		if localSource != "" && event.Source == localSource {
			return nil
		}
		return r.apply(event, inv)
	})
}

func (r *Registry) apply(event *bus.Event, inv Invalidator) error {
	agent, err := events.AgentFromEvent(event)
	if err != nil {
		return err
	}
	log := r.logger.WithEvent(event.Type, event.ID).WithAgentID(agent.ID)

	switch event.Type {
	case events.AgentCreated, events.AgentUpdated:
		r.Put(agent)
	case events.AgentDeleted:
		r.Remove(agent.ID)
	default:
		log.Debug("Ignoring agent event")
		return nil
	}
	if inv != nil {
		inv.Invalidate(agent.ID)
	}
	log.Debug("Applied agent event", zap.String("source", event.Source))
	return nil
}
