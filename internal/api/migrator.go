package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/semmidev/dbtoolkit/internal/usecase"
)

type commandRequest struct {
	Command string `json:"command" binding:"required"`
	Timeout int    `json:"timeout" binding:"omitempty,min=1,max=3600"`
}

func (h *Handler) executeCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res := h.Migrator.Run(c.Request.Context(), req.Command, time.Duration(req.Timeout)*time.Second)
	c.JSON(http.StatusOK, res)
}

func (h *Handler) migratorVersion(c *gin.Context) {
	c.JSON(http.StatusOK, h.Migrator.Version(c.Request.Context()))
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.Logger.Warnf("Websocket rejected from origin %q", origin)
	return false
}

// streamCommand reads {"command": "..."} messages and streams each command's
// output back as JSON events until the client disconnects.
func (h *Handler) streamCommand(c *gin.Context) {
	upgrader := h.upgrader()
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warnf("Websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	ctx := c.Request.Context()
	for {
		var msg commandRequest
		if err := ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.Logger.Debugf("Websocket read ended: %v", err)
			}
			return
		}
		if msg.Command == "" {
			if err := ws.WriteJSON(usecase.StreamEvent{Type: "error", Data: "command is required"}); err != nil {
				return
			}
			continue
		}

		err := h.Migrator.Stream(ctx, msg.Command, func(ev usecase.StreamEvent) error {
			_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			return ws.WriteJSON(ev)
		})
		if err != nil {
			h.Logger.Warnf("Migrator stream aborted: %v", err)
			return
		}
	}
}
