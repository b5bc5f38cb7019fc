package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kandev/agentperms/internal/agents/dto"
	"github.com/kandev/agentperms/internal/agents/endpointconfig"
	"github.com/kandev/agentperms/internal/agents/models"
	"github.com/kandev/agentperms/internal/agents/permissions"
	"github.com/kandev/agentperms/internal/common/logger"
)

// Service is the subset of the agents controller the tools call into.
type Service interface {
	ListAgents(ctx context.Context) (*dto.ListAgentsResponse, error)
	ResolveToolPermissions(ctx context.Context, agentID string, ephemeral models.EphemeralAgent) permissions.ToolPermissionResult
	AgentsConfig() *endpointconfig.AgentsEndpointConfig
}

func registerTools(s *server.MCPServer, svc Service, log *logger.Logger) {
	s.AddTool(
		mcp.NewTool("list_agents",
			mcp.WithDescription("List persisted agents with their provider and declared tools."),
		),
		listAgentsHandler(svc, log),
	)

	s.AddTool(
		mcp.NewTool("resolve_tool_permissions",
			mcp.WithDescription(
				"Resolve whether an agent may use file search and code execution. "+
					"Leave agent_id empty or pass \"ephemeral\" to resolve from the file_search and execute_code flags instead.",
			),
			mcp.WithString("agent_id",
				mcp.Description("The agent ID, or empty for an ephemeral agent"),
			),
			mcp.WithBoolean("file_search",
				mcp.Description("Ephemeral agent: file search enabled (optional)"),
			),
			mcp.WithBoolean("execute_code",
				mcp.Description("Ephemeral agent: code execution enabled (optional)"),
			),
		),
		resolveToolPermissionsHandler(svc),
	)

	s.AddTool(
		mcp.NewTool("get_agents_config",
			mcp.WithDescription("Get the effective agents endpoint configuration."),
		),
		getAgentsConfigHandler(svc),
	)

	log.Info("registered MCP tools", zap.Int("count", 3))
}

func listAgentsHandler(svc Service, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := svc.ListAgents(ctx)
		if err != nil {
			log.Error("failed to list agents", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list agents: %v", err)), nil
		}
		return jsonResult(resp)
	}
}

func resolveToolPermissionsHandler(svc Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agentID := req.GetString("agent_id", "")
		ephemeral := models.EphemeralAgent{
			models.ToolResourceFileSearch:  req.GetBool("file_search", false),
			models.ToolResourceExecuteCode: req.GetBool("execute_code", false),
		}
		return jsonResult(svc.ResolveToolPermissions(ctx, agentID, ephemeral))
	}
}

func getAgentsConfigHandler(svc Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(svc.AgentsConfig())
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	formatted, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(formatted)), nil
}
