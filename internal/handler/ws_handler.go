package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"collabspace-sync-server/internal/relay"
)

type WebSocketHandler struct {
	registry *relay.Registry
	upgrader ws.Upgrader
	log      zerolog.Logger
}

func NewWebSocketHandler(registry *relay.Registry, readBufferSize, writeBufferSize int, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		registry: registry,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleConnection upgrades the request and joins the connection to the room
// named by the path. A connection without a room id is closed with a policy
// violation; the server never retries on the client's behalf.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	if roomID == "" {
		h.log.Warn().Str("remote", r.RemoteAddr).Msg("rejecting connection without room id")
		msg := ws.FormatCloseMessage(ws.ClosePolicyViolation, "room id required")
		conn.WriteControl(ws.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	client := relay.NewClient(relay.NewSessionID(), roomID, conn, h.registry)
	h.registry.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
