package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sakif/waveroom/internal/realtime"
)

// SubscribeHandler is the WebSocket end of the change-feed.
//
// PROTOCOL:
// The client connects to /api/subscribe and sends one JSON frame declaring
// its scope:
//
//	{"table": "clips", "column": "parent_id", "value": "abc123"}
//
// An empty column subscribes to the whole table. From then on the server
// pushes every matching event as a JSON frame:
//
//	{"action": "update", "table": "clips", "id": "abc123", "values": {...}}
//
// The client never acks. Closing the socket (or the tab) tears the
// subscription down server-side; there is nothing to clean up client-side.
//
// ERROR POLICY:
// A web client that vanished mid-write is routine, not exceptional. Every
// socket error here is logged at debug/warn level and swallowed — it ends
// this connection's loops and nothing else.
type SubscribeHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewSubscribeHandler(hub *realtime.Hub, logger *slog.Logger) *SubscribeHandler {
	return &SubscribeHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Same-origin app: the cookie-based session is the real gate.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// subscribeRequest is the scope frame the client sends after connecting.
type subscribeRequest struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

// HandleSubscribe upgrades the connection and streams scoped events.
//
// HTTP: GET /api/subscribe (WebSocket)
func (h *SubscribeHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	var req subscribeRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.logger.Warn("websocket scope frame invalid", slog.String("error", err.Error()))
		return
	}
	if req.Table == "" {
		_ = conn.WriteJSON(ErrorResponse{Error: "validation_error", Message: "table is required"})
		return
	}

	h.logger.Info("change-feed subscriber connected",
		slog.String("table", req.Table),
		slog.String("column", req.Column),
	)

	h.stream(conn, req.Table, req.Column, req.Value)
}

// HandleRoomFeed is a pre-scoped convenience socket for the room view: it
// streams participant changes for one room without a scope frame. The room
// page opens this instead of /api/subscribe so joins, leaves, mutes, and
// role changes arrive the moment they happen.
//
// HTTP: GET /api/rooms/{id}/ws (WebSocket)
func (h *SubscribeHandler) HandleRoomFeed(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if roomID == "" {
		http.Error(w, `{"error":"validation_error"}`, http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	h.logger.Info("room feed subscriber connected", slog.String("room_id", roomID))

	h.stream(conn, "room_participants", "room_id", roomID)
}

// stream pushes matching hub events down the socket until either side ends.
func (h *SubscribeHandler) stream(conn *websocket.Conn, table, column, value string) {
	sub := h.hub.Subscribe(table, column, value)
	defer sub.Close()

	// Reader goroutine: we expect no further frames, but reading is how a
	// websocket learns the peer closed. Any read result ends the stream.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Warn("change-feed write failed", slog.String("error", err.Error()))
				return
			}
		case <-done:
			return
		}
	}
}
