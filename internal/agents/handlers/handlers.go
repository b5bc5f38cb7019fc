package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/agentperms/internal/agents/controller"
	"github.com/kandev/agentperms/internal/agents/dto"
	"github.com/kandev/agentperms/internal/agents/endpointconfig"
	"github.com/kandev/agentperms/internal/agents/models"
	"github.com/kandev/agentperms/internal/common/logger"
)

type Handlers struct {
	controller *controller.Controller
	logger     *logger.Logger
}

func NewHandlers(ctrl *controller.Controller, log *logger.Logger) *Handlers {
	return &Handlers{
		controller: ctrl,
		logger:     log.Component("agents-handlers"),
	}
}

func RegisterRoutes(router *gin.Engine, ctrl *controller.Controller, log *logger.Logger) {
	handlers := NewHandlers(ctrl, log)
	router.GET("/health", handlers.httpHealth)

	api := router.Group("/api/v1")
	api.GET("/agents", handlers.httpListAgents)
	api.POST("/agents", handlers.httpCreateAgent)
	api.GET("/agents/:id", handlers.httpGetAgent)
	api.PATCH("/agents/:id", handlers.httpUpdateAgent)
	api.DELETE("/agents/:id", handlers.httpDeleteAgent)
	api.GET("/agents/:id/tool-permissions", handlers.httpAgentToolPermissions)
	api.POST("/tool-permissions", handlers.httpResolveToolPermissions)
	api.GET("/config/agents", handlers.httpGetAgentsConfig)
	api.POST("/config/agents/reload", handlers.httpReloadAgentsConfig)
}

func (h *Handlers) httpHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) httpListAgents(c *gin.Context) {
	resp, err := h.controller.ListAgents(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list agents", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list agents"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpGetAgent(c *gin.Context) {
	resp, err := h.controller.GetAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeAgentError(c, "failed to get agent", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpCreateAgent(c *gin.Context) {
	var req dto.CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	resp, err := h.controller.CreateAgent(c.Request.Context(), req)
	if err != nil {
		h.writeAgentError(c, "failed to create agent", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handlers) httpUpdateAgent(c *gin.Context) {
	var req dto.UpdateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	resp, err := h.controller.UpdateAgent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.writeAgentError(c, "failed to update agent", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpDeleteAgent(c *gin.Context) {
	if err := h.controller.DeleteAgent(c.Request.Context(), c.Param("id")); err != nil {
		h.writeAgentError(c, "failed to delete agent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) httpAgentToolPermissions(c *gin.Context) {
	// Query flags stand in for the ephemeral settings on GET.
	ephemeral := models.EphemeralAgent{
		models.ToolResourceFileSearch:  c.Query(string(models.ToolResourceFileSearch)) == "true",
		models.ToolResourceExecuteCode: c.Query(string(models.ToolResourceExecuteCode)) == "true",
	}
	c.JSON(http.StatusOK, h.controller.ResolveToolPermissions(c.Request.Context(), c.Param("id"), ephemeral))
}

func (h *Handlers) httpResolveToolPermissions(c *gin.Context) {
	var req dto.ToolPermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	c.JSON(http.StatusOK, h.controller.ResolveToolPermissions(c.Request.Context(), req.AgentID, req.EphemeralAgent))
}

func (h *Handlers) httpGetAgentsConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.AgentsConfig())
}

func (h *Handlers) httpReloadAgentsConfig(c *gin.Context) {
	cfg, err := h.controller.ReloadAgentsConfig(c.Request.Context())
	if err != nil {
		var verr *endpointconfig.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid agents config", "issues": verr.Issues})
			return
		}
		h.logger.Error("failed to reload agents config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reload agents config"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handlers) writeAgentError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, controller.ErrAgentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
	case errors.Is(err, controller.ErrNameRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
