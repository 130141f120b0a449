package handler

import (
	"net/http"
	"time"

	"collabspace-sync-server/pkg/response"
)

// ClientConfigHandler serves the bootstrap settings a sync client needs
// before it connects: the advertised relay endpoint and the server's
// recommended controller tuning.
type ClientConfigHandler struct {
	relayURL        string
	settleWindow    time.Duration
	minSnapshotSize int
}

func NewClientConfigHandler(relayURL string, settleWindow time.Duration, minSnapshotSize int) *ClientConfigHandler {
	return &ClientConfigHandler{
		relayURL:        relayURL,
		settleWindow:    settleWindow,
		minSnapshotSize: minSnapshotSize,
	}
}

func (h *ClientConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]any{
		"relayUrl":        h.relayURL,
		"settleWindowMs":  h.settleWindow.Milliseconds(),
		"minSnapshotSize": h.minSnapshotSize,
	})
}
