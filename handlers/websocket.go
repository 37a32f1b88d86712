package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/tachyontex/tachyon-tex/internal/orchestrator"
	"github.com/tachyontex/tachyon-tex/internal/streamsession"
)

// WebSocketHandler serves GET /ws, upgrading the connection to the
// persistent bidirectional compile session protocol.
type WebSocketHandler struct {
	orch *orchestrator.Orchestrator
}

// NewWebSocketHandler builds a WebSocketHandler over orch.
func NewWebSocketHandler(orch *orchestrator.Orchestrator) *WebSocketHandler {
	return &WebSocketHandler{orch: orch}
}

// Handle implements gin.HandlerFunc.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	streamsession.Handle(c.Writer, c.Request, h.orch)
}
