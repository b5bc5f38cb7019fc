// Package models defines the agent records shared by the store, registry and resolver.
package models

import (
	"slices"
	"time"
)

// Agent is a persisted agent as seen by this service. It is never mutated
// after it leaves the store; callers receive copies.
type Agent struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Provider    string    `json:"provider,omitempty" db:"provider"`
	Model       string    `json:"model,omitempty" db:"model"`
	Author      string    `json:"author,omitempty" db:"author"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	// Tools is nil when the agent declares no tool list at all.
	Tools []string `json:"tools" db:"-"`
}

// Clone returns a deep copy of the agent.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	out := *a
	if a.Tools != nil {
		out.Tools = slices.Clone(a.Tools)
	}
	return &out
}

// Tool identifiers as they appear in an agent's tool list.
const (
	ToolFileSearch  = "file_search"
	ToolExecuteCode = "execute_code"
)

// ToolResource is a category of capability an ephemeral agent can toggle.
type ToolResource string

const (
	ToolResourceFileSearch  ToolResource = "file_search"
	ToolResourceExecuteCode ToolResource = "execute_code"
)

// EphemeralAgentID is the sentinel id clients send when no agent is persisted.
const EphemeralAgentID = "ephemeral"

// EphemeralAgent holds per-session tool toggles for an agent that has no
// persisted record. A nil map is valid and enables nothing.
type EphemeralAgent map[ToolResource]bool

// Enabled reports whether the resource is switched on.
func (e EphemeralAgent) Enabled(resource ToolResource) bool {
	return e[resource]
}
