package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/addressbot/internal/interfaces"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope of every frame sent to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StatusUpdate is sent to each client when it connects
type StatusUpdate struct {
	ServerInstanceID string    `json:"serverInstanceId"` // Unique per server startup - clients clear state on change
	Run              RunStatus `json:"run"`
}

// WebSocketHandler streams orchestrator events to browser clients
type WebSocketHandler struct {
	logger            arbor.ILogger
	clients           map[*websocket.Conn]*sync.Mutex // per-connection write lock
	mu                sync.RWMutex
	eventService      interfaces.EventService
	status            func() RunStatus
	progressThrottler *rate.Limiter // nil = every progress frame is sent
	serverInstanceID  string
}

// NewWebSocketHandler creates the handler and subscribes it to every orchestrator event.
// A positive throttle spaces out intermediate progress frames; terminal ones are always sent.
func NewWebSocketHandler(eventService interfaces.EventService, status func() RunStatus, throttle time.Duration, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		status:           status,
		serverInstanceID: uuid.New().String(),
	}

	if throttle > 0 {
		h.progressThrottler = rate.NewLimiter(rate.Every(throttle), 1)
		logger.Debug().
			Str("interval", throttle.String()).
			Msg("Throttler initialized for progress events")
	}

	if eventService != nil {
		h.SubscribeToEvents()
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")
	return h
}

// SubscribeToEvents forwards every orchestrator event type to connected clients
func (h *WebSocketHandler) SubscribeToEvents() {
	for _, eventType := range interfaces.AllEventTypes() {
		if err := h.eventService.Subscribe(eventType, h.handleEvent); err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe websocket to event")
		}
	}
}

func (h *WebSocketHandler) handleEvent(ctx context.Context, event interfaces.Event) error {
	if event.Type == interfaces.EventProgress && h.progressThrottler != nil {
		if progress, ok := event.Payload.(models.ProgressEvent); ok && !progress.Complete && !progress.Fail {
			if !h.progressThrottler.Allow() {
				return nil
			}
		}
	}
	return h.Broadcast(WSMessage{Type: string(event.Type), Payload: event.Payload})
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = mutex
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client connected")

	// Send initial status
	if data, err := h.encode(WSMessage{Type: "status", Payload: h.statusUpdate()}); err == nil {
		mutex.Lock()
		err = conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()
		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send status to client")
		}
	}

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", remaining).Msg("WebSocket client disconnected")
	}()

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// Broadcast sends msg to every connected client
func (h *WebSocketHandler) Broadcast(msg WSMessage) error {
	data, err := h.encode(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn, mutex := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, mutex)
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutexes[i].Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutexes[i].Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
		}
	}
	return nil
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, mutex := range h.clients {
		mutex.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		mutex.Unlock()
		conn.Close()
	}
}

func (h *WebSocketHandler) statusUpdate() StatusUpdate {
	update := StatusUpdate{ServerInstanceID: h.serverInstanceID}
	if h.status != nil {
		update.Run = h.status()
	}
	return update
}

func (h *WebSocketHandler) encode(msg WSMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal websocket message")
		return nil, fmt.Errorf("failed to marshal %s message: %w", msg.Type, err)
	}
	return data, nil
}
