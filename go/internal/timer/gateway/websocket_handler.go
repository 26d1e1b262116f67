package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for timer displays
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm}
}

// HandleTimerConnection handles GET /ws/timer
func (h *WebSocketHandler) HandleTimerConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.connectionManager.UpgradeConnection(w, r); err != nil {
		// Upgrade has already written the HTTP error response.
		log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade rejected")
	}
}

// RegisterWebSocketRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterWebSocketRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/timer", h.HandleTimerConnection)
}
