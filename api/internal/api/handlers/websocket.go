package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/irgordon/karidc/api/internal/telemetry"
)

// ==============================================================================
// 1. WebSocket Configuration & Constants
// ==============================================================================

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// We only stream OUT, so inbound is tiny.
	maxMessageSize = 512
)

// ==============================================================================
// 2. The Handler Struct (Dependency Injection)
// ==============================================================================

// WebSocketHandler streams hub events (batch outcomes, server lifecycle,
// model changes) to admin clients.
type WebSocketHandler struct {
	Hub      *telemetry.Hub
	Logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler accepts upgrades from the given origins only; an empty
// list allows same-origin requests only.
func NewWebSocketHandler(hub *telemetry.Hub, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		Hub:    hub,
		Logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin] || origin == "http://"+r.Host || origin == "https://"+r.Host
			},
		},
	}
}

// ==============================================================================
// 3. HTTP Methods (The Upgrader)
// ==============================================================================

// StreamBatches handles GET /api/v1/ws/batches. ?host= narrows the stream to
// the events of one host.
func (h *WebSocketHandler) StreamBatches(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("host")
	if topic == "" {
		topic = telemetry.AllTopics
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("Failed to upgrade WebSocket connection", slog.String("error", err.Error()))
		return
	}

	events := h.Hub.Subscribe(topic)
	done := make(chan struct{})

	go h.readPump(ws, done)
	h.writePump(ws, events, done)
	h.Hub.Unsubscribe(topic, events)
}

// ==============================================================================
// 4. The Write Pump
// ==============================================================================

func (h *WebSocketHandler) writePump(ws *websocket.Conn, events <-chan telemetry.Event, done <-chan struct{}) {
	defer ws.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-events:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed"))
				return
			}
			if err := ws.WriteJSON(e); err != nil {
				h.Logger.Warn("Failed to write JSON to WebSocket", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

// ==============================================================================
// 5. The Read Pump (Connection Keep-Alive)
// ==============================================================================

func (h *WebSocketHandler) readPump(ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Only control messages (Pong/Close) matter; reading detects disconnects.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.Logger.Warn("WebSocket closed unexpectedly", slog.String("error", err.Error()))
			}
			return
		}
	}
}
