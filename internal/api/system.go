package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/semmidev/dbtoolkit/internal/usecase"
)

func (h *Handler) systemStats(c *gin.Context) {
	stats, err := h.Monitor.Current(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

func (h *Handler) systemHistory(c *gin.Context) {
	hours := 3
	if raw := c.Query("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 24 {
			bindError(c, errHours)
			return
		}
		hours = n
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "history": h.Monitor.History(hours)})
}

var errHours = errors.New("hours must be an integer between 1 and 24")

func (h *Handler) listIssues(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "issues": h.Issues.List()})
}

func (h *Handler) createIssue(c *gin.Context) {
	var req usecase.CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "issue": h.Issues.Create(req)})
}

func (h *Handler) getIssue(c *gin.Context) {
	issue, err := h.Issues.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "issue": issue})
}

// deleteIssue is idempotent.
func (h *Handler) deleteIssue(c *gin.Context) {
	if h.Issues.Delete(c.Param("id")) {
		h.Logger.Infof("Issue deleted: %s", c.Param("id"))
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
