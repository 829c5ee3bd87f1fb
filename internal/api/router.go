package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semmidev/dbtoolkit/internal/domain"
	"github.com/semmidev/dbtoolkit/internal/infrastructure/logger"
	"github.com/semmidev/dbtoolkit/internal/infrastructure/metrics"
	"github.com/semmidev/dbtoolkit/internal/usecase"
)

// Deps are the services behind the HTTP API. Metrics and Health are optional.
type Deps struct {
	Connections domain.ConnectionStore
	Connectors  domain.ConnectorFactory
	Queries     *usecase.QueryExecutor
	Backups     *usecase.BackupManager
	Migrator    *usecase.MigratorExecutor
	Monitor     *usecase.Monitor
	Issues      *usecase.IssueStore
	Metrics     *metrics.Collector
	Health      func(ctx context.Context) error
	Logger      *logger.Logger

	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string
}

type Handler struct {
	Deps
}

func NewRouter(d Deps) *gin.Engine {
	registerValidators()
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	h := &Handler{Deps: d}

	router := gin.New()
	router.Use(recovery(d.Logger), accessLog(d.Logger))
	if d.Metrics != nil {
		router.Use(observe(d.Metrics))
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	router.GET("/health", h.health)

	api := router.Group("/api")
	{
		conns := api.Group("/connections")
		conns.GET("", h.listConnections)
		conns.POST("", h.createConnection)
		conns.GET("/:id", h.getConnection)
		conns.DELETE("/:id", h.deleteConnection)
		conns.POST("/:id/test", h.testConnection)
		conns.POST("/:id/query", h.executeQuery)

		api.POST("/query/validate", h.validateQuery)

		backups := api.Group("/backups")
		backups.GET("", h.listBackups)
		backups.POST("", h.createBackup)
		backups.GET("/:id", h.getBackup)
		backups.DELETE("/:id", h.deleteBackup)
		backups.POST("/:id/cancel", h.cancelBackup)
		backups.POST("/:id/restore", h.restoreBackup)
		backups.GET("/:id/download", h.downloadBackup)

		migrator := api.Group("/migrator")
		migrator.POST("/execute", h.executeCommand)
		migrator.GET("/version", h.migratorVersion)
		migrator.GET("/stream", h.streamCommand)

		system := api.Group("/system")
		system.GET("/stats", h.systemStats)
		system.GET("/history", h.systemHistory)

		issues := api.Group("/issues")
		issues.GET("", h.listIssues)
		issues.POST("", h.createIssue)
		issues.GET("/:id", h.getIssue)
		issues.DELETE("/:id", h.deleteIssue)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "route not found"})
	})

	return router
}

func (h *Handler) health(c *gin.Context) {
	if h.Health != nil {
		if err := h.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
