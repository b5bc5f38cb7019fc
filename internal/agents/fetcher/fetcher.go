// Package fetcher implements fetch-by-id for agents with per-id caching and
// request collapsing.
package fetcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kandev/agentperms/internal/agents/models"
	"github.com/kandev/agentperms/internal/agents/store"
	"github.com/kandev/agentperms/internal/common/logger"
	"github.com/kandev/agentperms/internal/common/tracing"
)

// Source loads a single agent. It returns store.ErrAgentNotFound for unknown ids.
type Source interface {
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
}

// Fetcher reads agents through a TTL cache. Misses are cached too, so ids of
// deleted agents do not hit the source on every resolution.
type Fetcher struct {
	source Source
	cache  *Cache
	group  singleflight.Group
	logger *logger.Logger
}

// New creates a Fetcher over src with the given cache TTL.
func New(src Source, ttl time.Duration, log *logger.Logger) *Fetcher {
	return &Fetcher{
		source: src,
		cache:  NewCache(ttl),
		logger: log.Component("agent-fetcher"),
	}
}

// Fetch returns the agent with the given id, or (nil, nil) when it does not
// exist. Concurrent calls for the same id share one source read.
func (f *Fetcher) Fetch(ctx context.Context, id string) (*models.Agent, error) {
	if entry, ok := f.cache.Get(id); ok {
		return entry.Agent.Clone(), nil
	}

	v, err, shared := f.group.Do(id, func() (interface{}, error) {
		return f.load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		f.logger.WithAgentID(id).Debug("Collapsed concurrent agent fetch")
	}
	agent, _ := v.(*models.Agent)
	return agent.Clone(), nil
}

func (f *Fetcher) load(ctx context.Context, id string) (*models.Agent, error) {
	ctx, span := tracing.TraceAgentFetch(ctx, id)
	defer span.End()

	agent, err := f.source.GetAgent(ctx, id)
	switch {
	case errors.Is(err, store.ErrAgentNotFound):
		tracing.TraceResult(span, "not_found", nil)
		f.cache.Set(id, nil)
		return nil, nil
	case err != nil:
		tracing.TraceResult(span, "error", err)
		f.logger.WithAgentID(id).Warn("Agent source read failed", zap.Error(err))
		return nil, err
	}

	tracing.TraceResult(span, "ok", nil)
	f.cache.Set(id, agent)
	return agent, nil
}

// Invalidate drops the cached result for id.
func (f *Fetcher) Invalidate(id string) {
	f.cache.Invalidate(id)
}

// Clear drops every cached result.
func (f *Fetcher) Clear() {
	f.cache.Clear()
}

// Version changes whenever the set of cached results changes.
func (f *Fetcher) Version() uint64 {
	return f.cache.Version()
}

// TTL returns the cache TTL.
func (f *Fetcher) TTL() time.Duration {
	return f.cache.TTL()
}
