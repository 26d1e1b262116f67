package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/synctimer/go/internal/timer"
)

// Controller is what WebSocket clients read from and send commands to.
type Controller interface {
	View() TimerView
	Execute(cmd timer.Command) (CommandResponse, error)
}

// ConnectionManager manages WebSocket connections of timer displays
type ConnectionManager struct {
	connections map[*Connection]bool
	mu          sync.RWMutex

	upgrader   websocket.Upgrader
	config     ConnectionConfig
	controller Controller
	clock      clockwork.Clock

	broadcastCh chan []byte
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024, // 1KB max message size
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Displays are served from anywhere; CORS is handled by the server.
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, controller Controller, clock clockwork.Clock) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectionManager{
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		controller:  controller,
		clock:       clock,
		broadcastCh: make(chan []byte, 256),
	}
}

// Start processes broadcast frames until ctx is cancelled, then closes every
// connection.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case frame := <-cm.broadcastCh:
			cm.handleBroadcast(frame)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and sends the
// current view as the first frame.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 64),
		Manager:     cm,
		ConnectedAt: cm.clock.Now(),
	}

	cm.registerConnection(connection)

	view := cm.controller.View()
	if data, err := json.Marshal(Frame{Type: FrameProjection, Data: &view}); err == nil {
		cm.send(connection, data)
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.connections[conn]; exists {
		delete(cm.connections, conn)
		close(conn.Send)

		log.Info().
			Str("connection_id", conn.ID).
			Msg("connection unregistered")
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		cm.unregisterConnection(conn)
	}
}

// Broadcast queues a view for every connected client.
func (cm *ConnectionManager) Broadcast(view TimerView) {
	data, err := json.Marshal(Frame{Type: FrameProjection, Data: &view})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal frame for broadcast")
		return
	}

	select {
	case cm.broadcastCh <- data:
	default:
		log.Warn().Msg("broadcast channel full, dropping frame")
	}
}

func (cm *ConnectionManager) handleBroadcast(frame []byte) {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		cm.send(conn, frame)
	}

	log.Trace().
		Int("connections", len(targets)).
		Msg("frame broadcasted")
}

// send queues a frame for one connection, dropping the connection when its
// buffer is full.
func (cm *ConnectionManager) send(conn *Connection, frame []byte) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.connections[conn] {
		return
	}
	select {
	case conn.Send <- frame:
	default:
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		go func() {
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}()
	}
}

// ConnectionCount returns the number of active connections.
func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading commands from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage runs a command sent by the client. Results reach every
// client through the regular broadcast; only errors are answered directly.
func (c *Connection) handleClientMessage(message []byte) {
	var cmd timer.Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.replyError(fmt.Sprintf("invalid command: %v", err))
		return
	}

	if _, err := c.Manager.controller.Execute(cmd); err != nil {
		c.replyError(err.Error())
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("command", string(cmd.Type)).
		Int("minutes", cmd.Minutes).
		Msg("executed client command")
}

func (c *Connection) replyError(msg string) {
	data, err := json.Marshal(Frame{Type: FrameError, Error: msg})
	if err != nil {
		return
	}
	c.Manager.send(c, data)
}
