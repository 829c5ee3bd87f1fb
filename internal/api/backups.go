package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/semmidev/dbtoolkit/internal/domain"
	"github.com/semmidev/dbtoolkit/internal/usecase"
)

type createBackupRequest struct {
	ConnectionID string   `json:"connection_id" binding:"required"`
	Name         string   `json:"name" binding:"max=100"`
	BackupType   string   `json:"backup_type" binding:"backuptype"`
	Tables       []string `json:"tables" binding:"omitempty,dive,required"`
	Compress     bool     `json:"compress"`
}

type restoreRequest struct {
	TargetConnectionID string   `json:"target_connection_id"`
	Tables             []string `json:"tables" binding:"omitempty,dive,required"`
}

func (h *Handler) listBackups(c *gin.Context) {
	jobs, err := h.Backups.ListBackups(c.Request.Context(), c.Query("connection_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "backups": jobs})
}

func (h *Handler) getBackup(c *gin.Context) {
	job, err := h.Backups.GetBackup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "backup": job})
}

// createBackup answers 202 once the job is queued. A full queue answers 503
// with the failed record.
func (h *Handler) createBackup(c *gin.Context) {
	var req createBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	conn, ok := h.connection(c, req.ConnectionID)
	if !ok {
		return
	}

	job, err := h.Backups.CreateBackup(c.Request.Context(), conn, usecase.CreateBackupRequest{
		Name:       req.Name,
		BackupType: domain.BackupType(req.BackupType),
		Tables:     req.Tables,
		Compress:   req.Compress,
	})
	if errors.Is(err, domain.ErrQueueFull) {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error(), "backup": job})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "backup": job})
}

func (h *Handler) cancelBackup(c *gin.Context) {
	if err := h.Backups.CancelBackup(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// restoreBackup runs synchronously. The target defaults to the connection
// the backup was taken from.
func (h *Handler) restoreBackup(c *gin.Context) {
	var req restoreRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	job, err := h.Backups.GetBackup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	targetID := req.TargetConnectionID
	if targetID == "" {
		targetID = job.ConnectionID
	}
	target, ok := h.connection(c, targetID)
	if !ok {
		return
	}

	if err := h.Backups.RestoreBackup(c.Request.Context(), job.ID, target, req.Tables); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Restore completed"})
}

func (h *Handler) downloadBackup(c *gin.Context) {
	job, err := h.Backups.GetBackup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if job.Status != domain.BackupStatusCompleted {
		respondError(c, fmt.Errorf("%w: backup is %s", domain.ErrValidation, job.Status))
		return
	}
	if _, err := os.Stat(job.FilePath); err != nil {
		respondError(c, fmt.Errorf("backup file: %w", domain.ErrNotFound))
		return
	}
	c.FileAttachment(job.FilePath, filepath.Base(job.FilePath))
}

func (h *Handler) deleteBackup(c *gin.Context) {
	ok, err := h.Backups.DeleteBackup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		respondError(c, fmt.Errorf("backup %s: %w", c.Param("id"), domain.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
