package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"collabspace-sync-server/internal/repository"
	"collabspace-sync-server/pkg/response"
)

// SnapshotHandler is the HTTP face of the persistence bridge: GET returns
// the stored full-state encoding of a document, PUT replaces it. The blob is
// opaque here; clients merge it as a remote update.
type SnapshotHandler struct {
	repo repository.SnapshotRepository
	log  zerolog.Logger
}

func NewSnapshotHandler(repo repository.SnapshotRepository, log zerolog.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		repo: repo,
		log:  log.With().Str("component", "snapshot_handler").Logger(),
	}
}

func (h *SnapshotHandler) Get(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["id"]

	data, err := h.repo.Load(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(w, "snapshot not found")
			return
		}
		h.log.Error().Err(err).Str("document", documentID).Msg("failed to load snapshot")
		response.InternalError(w, "failed to load snapshot")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *SnapshotHandler) Put(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["id"]

	data, err := io.ReadAll(r.Body)
	if err != nil {
		response.BadRequest(w, "failed to read body")
		return
	}
	if len(data) == 0 {
		response.BadRequest(w, "empty snapshot")
		return
	}

	if err := h.repo.Save(r.Context(), documentID, data); err != nil {
		h.log.Error().Err(err).Str("document", documentID).Msg("failed to save snapshot")
		response.InternalError(w, "failed to save snapshot")
		return
	}
	response.Success(w, map[string]any{"documentId": documentID, "size": len(data)})
}
