package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/semmidev/dbtoolkit/internal/domain"
	"github.com/semmidev/dbtoolkit/internal/usecase"
)

type connectionRequest struct {
	Name         string `json:"name" binding:"required,max=100"`
	DBType       string `json:"db_type" binding:"required,dbtype"`
	Host         string `json:"host"`
	Port         int    `json:"port" binding:"omitempty,min=1,max=65535"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Database     string `json:"database" binding:"required"`
	AuthDatabase string `json:"auth_database"`
	SSLMode      string `json:"ssl_mode" binding:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

func (h *Handler) connection(c *gin.Context, id string) (*domain.Connection, bool) {
	conn, err := h.Connections.GetConnection(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return conn, true
}

func (h *Handler) listConnections(c *gin.Context) {
	conns, err := h.Connections.ListConnections(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "connections": conns})
}

func (h *Handler) createConnection(c *gin.Context) {
	var req connectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	conn := &domain.Connection{
		Name:         req.Name,
		DBType:       domain.DBType(req.DBType),
		Host:         req.Host,
		Port:         req.Port,
		Username:     req.Username,
		Password:     req.Password,
		Database:     req.Database,
		AuthDatabase: req.AuthDatabase,
		SSLMode:      req.SSLMode,
	}
	if conn.DBType != domain.DBTypeSQLite && conn.Host == "" {
		respondError(c, fmt.Errorf("%w: host is required for %s", domain.ErrValidation, conn.DBType))
		return
	}

	if err := h.Connections.AddConnection(c.Request.Context(), conn); err != nil {
		respondError(c, err)
		return
	}
	h.Logger.Infof("Connection created: %s (%s)", conn.ID, conn.DBType)
	c.JSON(http.StatusCreated, gin.H{"success": true, "connection": conn})
}

func (h *Handler) getConnection(c *gin.Context) {
	conn, ok := h.connection(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "connection": conn})
}

func (h *Handler) deleteConnection(c *gin.Context) {
	ok, err := h.Connections.DeleteConnection(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		respondError(c, fmt.Errorf("connection %s: %w", c.Param("id"), domain.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// testConnection opens and closes a connection. Connection failures are
// reported in-band.
func (h *Handler) testConnection(c *gin.Context) {
	conn, ok := h.connection(c, c.Param("id"))
	if !ok {
		return
	}

	connector, err := h.Connectors(conn.DBType)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	start := time.Now()
	if err := connector.Connect(ctx, conn); err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	_ = connector.Disconnect(context.WithoutCancel(ctx))

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Connection successful",
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

func (h *Handler) executeQuery(c *gin.Context) {
	var req usecase.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	conn, ok := h.connection(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.Queries.Execute(c.Request.Context(), conn, req))
}

type validateRequest struct {
	Query  string `json:"query"`
	DBType string `json:"db_type" binding:"required,dbtype"`
}

func (h *Handler) validateQuery(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	v := h.Queries.ValidateOnly(req.Query, domain.DBType(req.DBType))
	c.JSON(http.StatusOK, gin.H{"success": true, "safe": v.Safe, "error": v.Reason})
}
