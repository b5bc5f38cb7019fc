package dto

import (
	"time"

	"github.com/kandev/agentperms/internal/agents/models"
)

type AgentDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model,omitempty"`
	Author      string    `json:"author,omitempty"`
	Tools       []string  `json:"tools"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ListAgentsResponse struct {
	Agents []AgentDTO `json:"agents"`
	Total  int        `json:"total"`
}

type CreateAgentRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Author      string   `json:"author,omitempty"`
	Tools       []string `json:"tools"`
}

// UpdateAgentRequest is a partial update. Nil fields are left unchanged.
type UpdateAgentRequest struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Provider    *string   `json:"provider,omitempty"`
	Model       *string   `json:"model,omitempty"`
	Author      *string   `json:"author,omitempty"`
	Tools       *[]string `json:"tools,omitempty"`
}

type ToolPermissionsRequest struct {
	AgentID        string                `json:"agent_id"`
	EphemeralAgent models.EphemeralAgent `json:"ephemeral_agent,omitempty"`
}

func FromAgent(agent *models.Agent) AgentDTO {
	return AgentDTO{
		ID:          agent.ID,
		Name:        agent.Name,
		Description: agent.Description,
		Provider:    agent.Provider,
		Model:       agent.Model,
		Author:      agent.Author,
		Tools:       agent.Tools,
		CreatedAt:   agent.CreatedAt,
		UpdatedAt:   agent.UpdatedAt,
	}
}
