package fetcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/agentperms/internal/agents/models"
	"github.com/kandev/agentperms/internal/agents/store"
	"github.com/kandev/agentperms/internal/common/logger"
)

type countingSource struct {
	agents map[string]*models.Agent
	err    error
	calls  atomic.Int32
	gate   chan struct{}
}

func (s *countingSource) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return nil, s.err
	}
	agent, ok := s.agents[id]
	if !ok {
		return nil, store.ErrAgentNotFound
	}
	return agent.Clone(), nil
}

func TestFetcher_CachesHit(t *testing.T) {
	src := &countingSource{agents: map[string]*models.Agent{
		"a1": {ID: "a1", Provider: "openAI", Tools: []string{models.ToolExecuteCode}},
	}}
	f := New(src, time.Minute, logger.NewNop())
	ctx := context.Background()

	got, err := f.Fetch(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "openAI", got.Provider)

	got.Tools[0] = "mutated"
	again, err := f.Fetch(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{models.ToolExecuteCode}, again.Tools)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestFetcher_CachesMiss(t *testing.T) {
	src := &countingSource{agents: map[string]*models.Agent{}}
	f := New(src, time.Minute, logger.NewNop())

	for i := 0; i < 3; i++ {
		got, err := f.Fetch(context.Background(), "gone")
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestFetcher_ErrorsAreNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("connection reset")}
	f := New(src, time.Minute, logger.NewNop())

	_, err := f.Fetch(context.Background(), "a1")
	require.Error(t, err)
	_, err = f.Fetch(context.Background(), "a1")
	require.Error(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, uint64(0), f.Version())
}

func TestFetcher_InvalidateRefetches(t *testing.T) {
	src := &countingSource{agents: map[string]*models.Agent{"a1": {ID: "a1", Provider: "openAI"}}}
	f := New(src, time.Minute, logger.NewNop())
	ctx := context.Background()

	_, err := f.Fetch(ctx, "a1")
	require.NoError(t, err)
	v := f.Version()

	src.agents["a1"] = &models.Agent{ID: "a1", Provider: "anthropic"}
	f.Invalidate("a1")
	assert.Greater(t, f.Version(), v)

	got, err := f.Fetch(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", got.Provider)
	assert.Equal(t, int32(2), src.calls.Load())

	// Unknown ids do not change the version.
	v = f.Version()
	f.Invalidate("nope")
	assert.Equal(t, v, f.Version())

	f.Clear()
	assert.Greater(t, f.Version(), v)
}

func TestFetcher_CollapsesConcurrentCalls(t *testing.T) {
	src := &countingSource{
		agents: map[string]*models.Agent{"a1": {ID: "a1"}},
		gate:   make(chan struct{}),
	}
	f := New(src, time.Minute, logger.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.Fetch(context.Background(), "a1")
			assert.NoError(t, err)
			assert.NotNil(t, got)
		}()
	}

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	// Give the remaining goroutines a chance to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.LessOrEqual(t, src.calls.Load(), int32(8))
	_, ok := f.cache.Get("a1")
	assert.True(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache(time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a1", &models.Agent{ID: "a1"})
	_, ok := c.Get("a1")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("a1")
	assert.False(t, ok)
}

func TestNewCache_DefaultTTL(t *testing.T) {
	assert.Equal(t, defaultTTL, NewCache(0).TTL())
	assert.Equal(t, 5*time.Second, NewCache(5*time.Second).TTL())
}
