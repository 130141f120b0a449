package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"collabspace-sync-server/internal/relay"
	"collabspace-sync-server/pkg/response"
)

// RoomHandler serves the read-only room views consumed by the workspace UI.
type RoomHandler struct {
	registry *relay.Registry
}

func NewRoomHandler(registry *relay.Registry) *RoomHandler {
	return &RoomHandler{registry: registry}
}

func (h *RoomHandler) GetRoomInfo(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	info := h.registry.RoomInfo(roomID)
	if info == nil {
		response.NotFound(w, "room not found")
		return
	}
	response.Success(w, info)
}

func (h *RoomHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.registry.Stats())
}
