// Package gateway exposes the timer to presentation clients: a WebSocket
// stream of projections that also accepts commands, and a small REST API.
package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/synctimer/go/internal/timer"
	"github.com/mcdev12/synctimer/go/internal/timer/channel"
)

// StatusProvider reports the channel connection status for display.
type StatusProvider interface {
	Status() channel.Status
}

// Service is the timer gateway: it owns the WebSocket connections and the
// HTTP handlers.
type Service struct {
	store  *timer.Store
	status StatusProvider

	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the timer gateway
type Config struct {
	ConnectionConfig ConnectionConfig

	// Clock stamps connections. Nil uses the real clock.
	Clock clockwork.Clock
}

// DefaultConfig returns default configuration for the timer gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a gateway for store. A nil status reports the channel
// as disconnected.
func NewService(config Config, store *timer.Store, status StatusProvider) *Service {
	s := &Service{
		store:  store,
		status: status,
	}
	s.connectionManager = NewConnectionManager(config.ConnectionConfig, s, config.Clock)
	s.wsHandler = NewWebSocketHandler(s.connectionManager)
	s.stateHandler = NewStateHandler(s)
	return s
}

// Start runs the broadcast loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting timer gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("timer gateway service shutting down")
	return nil
}

// RegisterRoutes registers the WebSocket and REST routes on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterWebSocketRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
}

// View returns the current projection with the connection status.
func (s *Service) View() TimerView {
	return s.viewOf(s.store.Projection())
}

// State returns the view together with the raw state.
func (s *Service) State() TimerStateResponse {
	st := s.store.State()
	return TimerStateResponse{
		View:     s.viewOf(st.Project(s.store.Now())),
		Snapshot: st.Snapshot(),
	}
}

// Execute runs a user command against the store.
func (s *Service) Execute(cmd timer.Command) (CommandResponse, error) {
	_, changed, err := s.store.Execute(cmd)
	if err != nil {
		return CommandResponse{}, err
	}
	return CommandResponse{Changed: changed, View: s.View()}, nil
}

// BroadcastProjection pushes p to every connected display. It is installed as
// a scheduler tick hook.
func (s *Service) BroadcastProjection(p timer.Projection) {
	s.connectionManager.Broadcast(s.viewOf(p))
}

// BroadcastView pushes the current view to every connected display.
func (s *Service) BroadcastView() {
	s.connectionManager.Broadcast(s.View())
}

func (s *Service) viewOf(p timer.Projection) TimerView {
	status := channel.StatusDisconnected
	if s.status != nil {
		status = s.status.Status()
	}
	return TimerView{Projection: p, Status: status}
}
