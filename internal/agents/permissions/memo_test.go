package permissions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/agentperms/internal/agents/fetcher"
	"github.com/kandev/agentperms/internal/agents/models"
	"github.com/kandev/agentperms/internal/agents/registry"
	"github.com/kandev/agentperms/internal/agents/store"
	"github.com/kandev/agentperms/internal/common/logger"
)

func TestMemoKey(t *testing.T) {
	base := MemoKey("a1", nil, 1, 1)

	assert.Equal(t, base, MemoKey("a1", models.EphemeralAgent{}, 1, 1))
	assert.Equal(t, base, MemoKey("a1", models.EphemeralAgent{models.ToolResourceFileSearch: false}, 1, 1))
	assert.NotEqual(t, base, MemoKey("a1", models.EphemeralAgent{models.ToolResourceFileSearch: true}, 1, 1))
	assert.NotEqual(t, base, MemoKey("a1", nil, 2, 1))
	assert.NotEqual(t, base, MemoKey("a1", nil, 1, 2))
	assert.NotEqual(t, base, MemoKey("a2", nil, 1, 1))

	both := models.EphemeralAgent{models.ToolResourceFileSearch: true, models.ToolResourceExecuteCode: true}
	for i := 0; i < 10; i++ {
		assert.Equal(t, MemoKey("", both, 0, 0), MemoKey("", both, 0, 0))
	}
}

func TestMemo_PutGet(t *testing.T) {
	m, err := NewMemo(100, time.Minute)
	require.NoError(t, err)
	defer m.Close()

	key := MemoKey("a1", nil, 1, 0)
	_, ok := m.Get(key)
	assert.False(t, ok)

	m.Put(key, ToolPermissionResult{FileSearchAllowedByAgent: true, Tools: []string{models.ToolFileSearch}})
	m.Wait()

	got, ok := m.Get(key)
	require.True(t, ok)
	assert.True(t, got.FileSearchAllowedByAgent)

	got.Tools[0] = "mutated"
	again, ok := m.Get(key)
	require.True(t, ok)
	assert.Equal(t, []string{models.ToolFileSearch}, again.Tools)

	m.Clear()
	_, ok = m.Get(key)
	assert.False(t, ok)
}

type memoryAgentSource struct {
	agents map[string]*models.Agent
}

func (s *memoryAgentSource) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	a, ok := s.agents[id]
	if !ok {
		return nil, store.ErrAgentNotFound
	}
	return a.Clone(), nil
}

func TestLookup_VersionsTrackChanges(t *testing.T) {
	reg := registry.NewRegistry(logger.NewNop())
	src := &memoryAgentSource{agents: map[string]*models.Agent{
		"a1": {ID: "a1", Provider: "openAI", Tools: []string{models.ToolFileSearch}},
	}}
	f := fetcher.New(src, time.Minute, logger.NewNop())
	lookup := NewLookup(reg, f)
	r := NewResolver(lookup, logger.NewNop())

	mv, fv := lookup.Versions()
	assert.Equal(t, uint64(0), mv)
	assert.Equal(t, uint64(0), fv)

	reg.Put(&models.Agent{ID: "a1", Tools: []string{models.ToolExecuteCode}})
	got := r.Resolve(context.Background(), "a1", nil)
	assert.True(t, got.FileSearchAllowedByAgent)
	assert.Equal(t, "openAI", got.Provider)

	mv2, fv2 := lookup.Versions()
	assert.Greater(t, mv2, mv)
	assert.Greater(t, fv2, fv)
}
