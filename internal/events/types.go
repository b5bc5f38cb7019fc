// Package events defines the agent change events shared over the bus.
package events

import (
	"fmt"

	"github.com/kandev/agentperms/internal/agents/models"
	"github.com/kandev/agentperms/internal/events/bus"
)

// Event types for agents. They double as bus subjects.
const (
	AgentCreated = "agent.created"
	AgentUpdated = "agent.updated"
	AgentDeleted = "agent.deleted"
)

// AgentSubjects matches every agent event.
const AgentSubjects = "agent.*"

// AgentPayload is the body of an agent event. Deletions carry only the id.
type AgentPayload struct {
	AgentID string        `json:"agent_id"`
	Agent   *models.Agent `json:"agent,omitempty"`
}

// NewAgentEvent builds an agent event published by source.
func NewAgentEvent(eventType, source string, agent *models.Agent) (*bus.Event, error) {
	if agent == nil || agent.ID == "" {
		return nil, fmt.Errorf("%s event needs an agent id", eventType)
	}
	payload := AgentPayload{AgentID: agent.ID}
	if eventType != AgentDeleted {
		payload.Agent = agent
	}
	return bus.NewEvent(eventType, source, payload)
}

// AgentFromEvent decodes the agent carried by an agent event.
func AgentFromEvent(event *bus.Event) (*models.Agent, error) {
	if event == nil {
		return nil, fmt.Errorf("nil agent event")
	}
	var payload AgentPayload
	if err := event.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode agent event %s: %w", event.ID, err)
	}
	if payload.Agent != nil {
		if payload.Agent.ID == "" {
			return nil, fmt.Errorf("agent event %s carries an agent without id", event.ID)
		}
		return payload.Agent, nil
	}
	if payload.AgentID == "" {
		return nil, fmt.Errorf("agent event %s carries no agent", event.ID)
	}
	return &models.Agent{ID: payload.AgentID}, nil
}
