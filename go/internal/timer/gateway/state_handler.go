package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/synctimer/go/internal/timer"
)

const maxCommandBody = 1024

// StateHandler handles HTTP requests for the timer
type StateHandler struct {
	service *Service
}

// NewStateHandler creates a new state handler
func NewStateHandler(service *Service) *StateHandler {
	return &StateHandler{service: service}
}

// HandleGetTimer handles GET /api/timer
func (h *StateHandler) HandleGetTimer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.service.State())
}

// HandlePostCommand handles POST /api/timer/commands
func (h *StateHandler) HandlePostCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cmd timer.Command
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCommandBody)).Decode(&cmd); err != nil {
		http.Error(w, "Invalid command body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Execute(cmd)
	if errors.Is(err, timer.ErrUnknownCommand) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("command", string(cmd.Type)).Msg("failed to execute command")
		http.Error(w, "Failed to execute command", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleHealth handles GET /health
func (h *StateHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/timer", h.HandleGetTimer)
	mux.HandleFunc("/api/timer/commands", h.HandlePostCommand)
	mux.HandleFunc("/health", h.HandleHealth)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
