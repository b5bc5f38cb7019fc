package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/agentperms/internal/agents/dto"
	"github.com/kandev/agentperms/internal/agents/endpointconfig"
	"github.com/kandev/agentperms/internal/agents/fetcher"
	"github.com/kandev/agentperms/internal/agents/models"
	"github.com/kandev/agentperms/internal/agents/permissions"
	"github.com/kandev/agentperms/internal/agents/registry"
	"github.com/kandev/agentperms/internal/agents/store"
	"github.com/kandev/agentperms/internal/common/logger"
	"github.com/kandev/agentperms/internal/db"
	"github.com/kandev/agentperms/internal/events"
	"github.com/kandev/agentperms/internal/events/bus"
)

type controllerFixture struct {
	ctrl     *Controller
	repo     *store.SQLRepository
	agents   *registry.Registry
	fetcher  *fetcher.Fetcher
	memo     *permissions.Memo
	eventBus *bus.MemoryEventBus
}

func newControllerFixture(t *testing.T, customConfigPath string) *controllerFixture {
	t.Helper()
	log := logger.NewNop()

	conn, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	repo, cleanup, err := store.Provide(conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })

	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)

	agents := registry.NewRegistry(log)
	f := fetcher.New(repo, time.Minute, log)
	memo, err := permissions.NewMemo(100, time.Minute)
	require.NoError(t, err)
	t.Cleanup(memo.Close)

	return &controllerFixture{
		ctrl:     NewController(repo, eventBus, agents, f, memo, customConfigPath, log),
		repo:     repo,
		agents:   agents,
		fetcher:  f,
		memo:     memo,
		eventBus: eventBus,
	}
}

func TestController_CreateAgentUpdatesMapAndPublishes(t *testing.T) {
	fx := newControllerFixture(t, "")
	ctx := context.Background()

	var mu sync.Mutex
	var received []string
	_, err := fx.eventBus.Subscribe(events.AgentSubjects, func(ctx context.Context, event *bus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event.Type)
		return nil
	})
	require.NoError(t, err)

	created, err := fx.ctrl.CreateAgent(ctx, dto.CreateAgentRequest{
		Name:     "  Researcher ",
		Provider: "openAI",
		Tools:    []string{models.ToolFileSearch},
	})
	require.NoError(t, err)
	assert.Equal(t, "Researcher", created.Name)

	inMap, ok := fx.agents.TryGet(created.ID)
	require.True(t, ok)
	assert.Equal(t, "openAI", inMap.Provider)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1 && received[0] == events.AgentCreated
	}, time.Second, 5*time.Millisecond)
}

func TestController_CreateAgentRequiresName(t *testing.T) {
	fx := newControllerFixture(t, "")
	_, err := fx.ctrl.CreateAgent(context.Background(), dto.CreateAgentRequest{Name: "  "})
	assert.ErrorIs(t, err, ErrNameRequired)
}

func TestController_GetUpdateDeleteNotFound(t *testing.T) {
	fx := newControllerFixture(t, "")
	ctx := context.Background()

	_, err := fx.ctrl.GetAgent(ctx, "agent_missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	name := "x"
	_, err = fx.ctrl.UpdateAgent(ctx, "agent_missing", dto.UpdateAgentRequest{Name: &name})
	assert.ErrorIs(t, err, ErrAgentNotFound)

	err = fx.ctrl.DeleteAgent(ctx, "agent_missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestController_ResolveFollowsAgentChanges(t *testing.T) {
	fx := newControllerFixture(t, "")
	ctx := context.Background()

	created, err := fx.ctrl.CreateAgent(ctx, dto.CreateAgentRequest{
		Name:     "Coder",
		Provider: "anthropic",
		Tools:    []string{models.ToolExecuteCode},
	})
	require.NoError(t, err)

	got := fx.ctrl.ResolveToolPermissions(ctx, created.ID, nil)
	assert.True(t, got.CodeAllowedByAgent)
	assert.False(t, got.FileSearchAllowedByAgent)
	assert.Equal(t, "anthropic", got.Provider)

	tools := []string{models.ToolFileSearch}
	_, err = fx.ctrl.UpdateAgent(ctx, created.ID, dto.UpdateAgentRequest{Tools: &tools})
	require.NoError(t, err)

	got = fx.ctrl.ResolveToolPermissions(ctx, created.ID, nil)
	assert.False(t, got.CodeAllowedByAgent)
	assert.True(t, got.FileSearchAllowedByAgent)

	require.NoError(t, fx.ctrl.DeleteAgent(ctx, created.ID))
	got = fx.ctrl.ResolveToolPermissions(ctx, created.ID, nil)
	assert.Equal(t, permissions.ToolPermissionResult{}, got)
}

func TestController_ResolveFetchesWhenMapLacksProvider(t *testing.T) {
	fx := newControllerFixture(t, "")
	ctx := context.Background()

	agent := &models.Agent{Name: "Partial", Provider: "openAI", Tools: []string{models.ToolFileSearch}}
	require.NoError(t, fx.repo.CreateAgent(ctx, agent))
	// The map only has a stub without provider or tools.
	fx.agents.Put(&models.Agent{ID: agent.ID})

	before := fx.fetcher.Version()
	got := fx.ctrl.ResolveToolPermissions(ctx, agent.ID, nil)
	assert.True(t, got.FileSearchAllowedByAgent)
	assert.Equal(t, "openAI", got.Provider)
	assert.Greater(t, fx.fetcher.Version(), before)
}

func TestController_ResolveUsesMemo(t *testing.T) {
	fx := newControllerFixture(t, "")
	ctx := context.Background()
	fx.agents.Put(&models.Agent{ID: "a1", Provider: "openAI", Tools: []string{models.ToolExecuteCode}})

	first := fx.ctrl.ResolveToolPermissions(ctx, "a1", nil)
	fx.memo.Wait()

	mapVersion, fetchVersion := fx.ctrl.lookup.Versions()
	cached, ok := fx.memo.Get(permissions.MemoKey("a1", nil, mapVersion, fetchVersion))
	require.True(t, ok)
	assert.Equal(t, first, cached)
	assert.Equal(t, first, fx.ctrl.ResolveToolPermissions(ctx, "a1", nil))
}

func TestController_ResolveEphemeral(t *testing.T) {
	fx := newControllerFixture(t, "")
	got := fx.ctrl.ResolveToolPermissions(context.Background(), models.EphemeralAgentID, models.EphemeralAgent{
		models.ToolResourceFileSearch: true,
	})
	assert.True(t, got.FileSearchAllowedByAgent)
	assert.False(t, got.CodeAllowedByAgent)
}

func TestController_AgentsConfigDefaultsAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "librechat.yaml")
	fx := newControllerFixture(t, path)
	ctx := context.Background()

	// No file yet: schema defaults.
	cfg, err := fx.ctrl.ReloadAgentsConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.MaxCitations)

	require.NoError(t, os.WriteFile(path, []byte(`endpoints:
  agents:
    maxCitations: 12
    documentSupportedProviders: ["anthropic"]
`), 0o600))
	cfg, err = fx.ctrl.ReloadAgentsConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.MaxCitations)
	assert.Equal(t, []string{"anthropic"}, fx.ctrl.AgentsConfig().DocumentSupportedProviders)

	// A bad file keeps the previous config.
	require.NoError(t, os.WriteFile(path, []byte(`endpoints:
  agents:
    maxCitations: "many"
`), 0o600))
	_, err = fx.ctrl.ReloadAgentsConfig(ctx)
	var verr *endpointconfig.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 12, fx.ctrl.AgentsConfig().MaxCitations)
}

func TestController_AgentsConfigReturnsCopy(t *testing.T) {
	fx := newControllerFixture(t, "")
	cfg := fx.ctrl.AgentsConfig()
	cfg.MaxCitations = 1
	cfg.Capabilities[0] = "mutated"

	again := fx.ctrl.AgentsConfig()
	assert.Equal(t, 30, again.MaxCitations)
	assert.Equal(t, endpointconfig.DefaultCapabilities(), again.Capabilities)
}

func TestController_DeletedAgentsStayDeletedWhileWatching(t *testing.T) {
	fx := newControllerFixture(t, "")
	ctx := context.Background()

	sub, err := fx.agents.Watch(fx.eventBus, fx.fetcher, fx.ctrl.EventSource())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	// A second subscriber tells us when every event has been delivered.
	var mu sync.Mutex
	seen := 0
	_, err = fx.eventBus.Subscribe(events.AgentSubjects, func(ctx context.Context, event *bus.Event) error {
		mu.Lock()
		seen++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	const rounds = 300
	ids := make([]string, 0, rounds)
	for i := 0; i < rounds; i++ {
		created, err := fx.ctrl.CreateAgent(ctx, dto.CreateAgentRequest{
			Name:     "Churn",
			Provider: "openAI",
			Tools:    []string{models.ToolFileSearch},
		})
		require.NoError(t, err)
		require.NoError(t, fx.ctrl.DeleteAgent(ctx, created.ID))
		ids = append(ids, created.ID)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen == 2*rounds
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return fx.agents.Len() == 0 }, time.Second, 5*time.Millisecond)

	for _, id := range ids {
		_, ok := fx.agents.TryGet(id)
		require.False(t, ok, "deleted agent %s is back in the map", id)
		assert.Equal(t, permissions.ToolPermissionResult{}, fx.ctrl.ResolveToolPermissions(ctx, id, nil))
	}
}

func TestController_AppliesEventsFromOtherInstances(t *testing.T) {
	fx := newControllerFixture(t, "")
	ctx := context.Background()

	sub, err := fx.agents.Watch(fx.eventBus, fx.fetcher, fx.ctrl.EventSource())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	event, err := events.NewAgentEvent(events.AgentCreated, "agents-controller/other", &models.Agent{
		ID:       "agent_remote",
		Provider: "anthropic",
		Tools:    []string{models.ToolExecuteCode},
	})
	require.NoError(t, err)
	require.NoError(t, fx.eventBus.Publish(ctx, events.AgentCreated, event))

	require.Eventually(t, func() bool {
		_, ok := fx.agents.TryGet("agent_remote")
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.True(t, fx.ctrl.ResolveToolPermissions(ctx, "agent_remote", nil).CodeAllowedByAgent)
	assert.NotEqual(t, "agents-controller/other", fx.ctrl.EventSource())
}
