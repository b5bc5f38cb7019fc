package permissions

import (
	"context"

	"github.com/kandev/agentperms/internal/agents/fetcher"
	"github.com/kandev/agentperms/internal/agents/models"
	"github.com/kandev/agentperms/internal/agents/registry"
)

// Lookup serves AgentLookup from the agents map and the caching fetcher.
type Lookup struct {
	agents  *registry.Registry
	fetcher *fetcher.Fetcher
}

// NewLookup composes an agents map and a fetcher.
func NewLookup(agents *registry.Registry, f *fetcher.Fetcher) *Lookup {
	return &Lookup{agents: agents, fetcher: f}
}

func (l *Lookup) TryGet(id string) (*models.Agent, bool) {
	return l.agents.TryGet(id)
}

func (l *Lookup) Fetch(ctx context.Context, id string) (*models.Agent, error) {
	return l.fetcher.Fetch(ctx, id)
}

// Versions returns the current map and fetch cache versions, in that order.
func (l *Lookup) Versions() (mapVersion, fetchVersion uint64) {
	return l.agents.Version(), l.fetcher.Version()
}
