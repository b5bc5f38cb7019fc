// Package permissions decides which built-in tools an agent may use.
package permissions

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kandev/agentperms/internal/agents/models"
	"github.com/kandev/agentperms/internal/common/logger"
	"github.com/kandev/agentperms/internal/common/tracing"
)

const ephemeralIDPrefix = models.EphemeralAgentID + "_"

// IsEphemeral reports whether id refers to a non-persisted agent: an empty id,
// the "ephemeral" sentinel, or a session id minted with the "ephemeral_" prefix.
func IsEphemeral(id string) bool {
	id = strings.TrimSpace(id)
	return id == "" || id == models.EphemeralAgentID || strings.HasPrefix(id, ephemeralIDPrefix)
}

// ToolPermissionResult is the outcome of one resolution. A nil Tools and an
// empty Provider mean the agent declared neither.
type ToolPermissionResult struct {
	FileSearchAllowedByAgent bool     `json:"fileSearchAllowedByAgent"`
	CodeAllowedByAgent       bool     `json:"codeAllowedByAgent"`
	Tools                    []string `json:"tools"`
	Provider                 string   `json:"provider,omitempty"`
}

func (r ToolPermissionResult) clone() ToolPermissionResult {
	if r.Tools != nil {
		r.Tools = slices.Clone(r.Tools)
	}
	return r
}

// AgentLookup is the pair of reads a resolution may perform.
type AgentLookup interface {
	// TryGet reads the local agents map without blocking.
	TryGet(id string) (*models.Agent, bool)
	// Fetch loads the agent by id. A missing agent is (nil, nil).
	Fetch(ctx context.Context, id string) (*models.Agent, error)
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithEphemeralPredicate replaces IsEphemeral as the id classifier.
func WithEphemeralPredicate(fn func(id string) bool) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.isEphemeral = fn
		}
	}
}

// Resolver computes ToolPermissionResult values. It holds no state between
// calls besides its collaborators.
type Resolver struct {
	lookup      AgentLookup
	isEphemeral func(id string) bool
	logger      *logger.Logger
}

// NewResolver creates a resolver over lookup.
func NewResolver(lookup AgentLookup, log *logger.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		lookup:      lookup,
		isEphemeral: IsEphemeral,
		logger:      log.Component("tool-permissions"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsEphemeral classifies id with the resolver's predicate.
func (r *Resolver) IsEphemeral(id string) bool {
	return r.isEphemeral(id)
}

// NeedsFetch reports whether resolving agentID requires a fetch: only for a
// persisted id whose map entry is missing or carries no provider.
func (r *Resolver) NeedsFetch(agentID string, selected *models.Agent) bool {
	if agentID == "" || r.isEphemeral(agentID) {
		return false
	}
	return selected == nil || selected.Provider == ""
}

// Resolve determines the tool permissions for agentID. Ephemeral ids are
// answered from the ephemeral settings alone. It never fails: lookup errors
// are logged and treated as missing data.
func (r *Resolver) Resolve(ctx context.Context, agentID string, ephemeral models.EphemeralAgent) ToolPermissionResult {
	isEphemeral := r.isEphemeral(agentID)
	ctx, span := tracing.TraceResolvePermissions(ctx, agentID, isEphemeral)
	defer span.End()

	var selected *models.Agent
	if agentID != "" {
		if agent, ok := r.lookup.TryGet(agentID); ok {
			selected = agent
		}
	}

	var fetched *models.Agent
	if r.NeedsFetch(agentID, selected) {
		agent, err := r.lookup.Fetch(ctx, agentID)
		if err != nil {
			r.logger.WithResolution(agentID, isEphemeral).Warn("Agent fetch failed, resolving without it", zap.Error(err))
			tracing.TraceResult(span, "fetch_failed", err)
		} else {
			fetched = agent
		}
	}

	result := ToolPermissionResult{
		Tools:    effectiveTools(fetched, selected),
		Provider: effectiveProvider(fetched, selected),
	}

	switch {
	case isEphemeral:
		result.FileSearchAllowedByAgent = ephemeral.Enabled(models.ToolResourceFileSearch)
		result.CodeAllowedByAgent = ephemeral.Enabled(models.ToolResourceExecuteCode)
	case selected == nil:
		// Unknown or deleted agent: nothing is allowed even if a fetch found data.
	default:
		result.FileSearchAllowedByAgent = slices.Contains(result.Tools, models.ToolFileSearch)
		result.CodeAllowedByAgent = slices.Contains(result.Tools, models.ToolExecuteCode)
	}
	return result
}

// Fetched data wins over the map entry. A fetched empty list still counts as declared.
func effectiveTools(fetched, selected *models.Agent) []string {
	if fetched != nil && fetched.Tools != nil {
		return fetched.Tools
	}
	if selected != nil {
		return selected.Tools
	}
	return nil
}

func effectiveProvider(fetched, selected *models.Agent) string {
	if fetched != nil && fetched.Provider != "" {
		return fetched.Provider
	}
	if selected != nil {
		return selected.Provider
	}
	return ""
}
