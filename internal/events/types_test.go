package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/agentperms/internal/agents/models"
	"github.com/kandev/agentperms/internal/common/config"
	"github.com/kandev/agentperms/internal/common/logger"
	"github.com/kandev/agentperms/internal/events/bus"
)

func TestAgentEvent_RoundTripThroughJSON(t *testing.T) {
	agent := &models.Agent{ID: "agent_1", Provider: "openAI", Tools: []string{models.ToolFileSearch}}
	event, err := NewAgentEvent(AgentUpdated, "test", agent)
	require.NoError(t, err)
	assert.Equal(t, AgentUpdated, event.Type)

	// Simulate the NATS wire.
	data, err := json.Marshal(event)
	require.NoError(t, err)
	var wire bus.Event
	require.NoError(t, json.Unmarshal(data, &wire))

	got, err := AgentFromEvent(&wire)
	require.NoError(t, err)
	assert.Equal(t, "agent_1", got.ID)
	assert.Equal(t, "openAI", got.Provider)
	assert.Equal(t, []string{models.ToolFileSearch}, got.Tools)
}

func TestAgentEvent_DeleteCarriesOnlyID(t *testing.T) {
	event, err := NewAgentEvent(AgentDeleted, "test", &models.Agent{ID: "agent_9", Provider: "openAI"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"agent_id":"agent_9"}`, string(event.Payload))

	got, err := AgentFromEvent(event)
	require.NoError(t, err)
	assert.Equal(t, &models.Agent{ID: "agent_9"}, got)
}

func TestAgentEvent_Invalid(t *testing.T) {
	_, err := NewAgentEvent(AgentCreated, "test", &models.Agent{})
	assert.Error(t, err)

	_, err = AgentFromEvent(nil)
	assert.Error(t, err)

	empty, err := bus.NewEvent(AgentDeleted, "test", nil)
	require.NoError(t, err)
	_, err = AgentFromEvent(empty)
	assert.ErrorIs(t, err, bus.ErrNoPayload)

	noID, err := bus.NewEvent(AgentDeleted, "test", AgentPayload{})
	require.NoError(t, err)
	_, err = AgentFromEvent(noID)
	assert.Error(t, err)

	anonymous, err := bus.NewEvent(AgentUpdated, "test", map[string]any{
		"agent": map[string]any{"name": "no id"},
	})
	require.NoError(t, err)
	_, err = AgentFromEvent(anonymous)
	assert.Error(t, err)
}

func TestProvide_DefaultsToMemoryBus(t *testing.T) {
	b, cleanup, err := Provide(&config.Config{}, logger.NewNop())
	require.NoError(t, err)
	_, ok := b.(*bus.MemoryEventBus)
	assert.True(t, ok)
	assert.True(t, b.IsConnected())
	require.NoError(t, cleanup())
	assert.False(t, b.IsConnected())
}
