package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kandev/agentperms/internal/common/config"
	"github.com/kandev/agentperms/internal/common/logger"
	"github.com/kandev/agentperms/internal/mcpserver"
)

// provideMcpServer starts the embedded MCP server if enabled.
func provideMcpServer(ctx context.Context, cfg *config.Config, svc mcpserver.Service, log *logger.Logger) (func() error, error) {
	if !cfg.MCP.Enabled {
		return nil, nil
	}

	srv, cleanup, err := mcpserver.Provide(ctx, mcpserver.Config{Port: cfg.MCP.Port}, svc, log)
	if err != nil {
		return nil, fmt.Errorf("failed to start MCP server: %w", err)
	}
	log.Info("MCP server started",
		zap.String("sse", srv.SSEEndpoint()),
		zap.String("streamable_http", srv.StreamableHTTPEndpoint()))
	return cleanup, nil
}
