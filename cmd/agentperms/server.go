package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kandev/agentperms/internal/agents/controller"
	"github.com/kandev/agentperms/internal/agents/handlers"
	"github.com/kandev/agentperms/internal/common/config"
	"github.com/kandev/agentperms/internal/common/httpmw"
	"github.com/kandev/agentperms/internal/common/logger"
)

const serverName = "agentperms"

func newRouter(ctrl *controller.Controller, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.RequestID())
	router.Use(httpmw.OtelTracing(serverName))
	router.Use(httpmw.RequestLogger(log, serverName))
	handlers.RegisterRoutes(router, ctrl, log)
	return router
}

func newHTTPServer(cfg *config.Config, ctrl *controller.Controller, log *logger.Logger) *http.Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
		Handler:      newRouter(ctrl, log),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}
}

func listenAndServe(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
