// Package store persists agents.
package store

import (
	"context"
	"errors"

	"github.com/kandev/agentperms/internal/agents/models"
)

// ErrAgentNotFound is returned when no agent has the requested id.
var ErrAgentNotFound = errors.New("agent not found")

type Repository interface {
	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	UpdateAgent(ctx context.Context, agent *models.Agent) error
	DeleteAgent(ctx context.Context, id string) error
	ListAgents(ctx context.Context) ([]*models.Agent, error)

	Close() error
}
