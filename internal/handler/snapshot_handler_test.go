package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"collabspace-sync-server/internal/repository"
)

// fakeSnapshotRepository is an in-memory stand-in for the snapshot store.
type fakeSnapshotRepository struct {
	data map[string][]byte
	err  error
}

func newFakeSnapshotRepository() *fakeSnapshotRepository {
	return &fakeSnapshotRepository{data: make(map[string][]byte)}
}

func (f *fakeSnapshotRepository) Load(_ context.Context, documentID string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.data[documentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return data, nil
}

func (f *fakeSnapshotRepository) Save(_ context.Context, documentID string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.data[documentID] = data
	return nil
}

func newSnapshotRouter(repo repository.SnapshotRepository) *mux.Router {
	h := NewSnapshotHandler(repo, zerolog.Nop())
	r := mux.NewRouter()
	r.HandleFunc("/documents/{id}/snapshot", h.Get).Methods("GET")
	r.HandleFunc("/documents/{id}/snapshot", h.Put).Methods("PUT")
	return r
}

func TestSnapshotPutThenGet(t *testing.T) {
	repo := newFakeSnapshotRepository()
	router := newSnapshotRouter(repo)

	payload := []byte{0x85, 0x6f, 0x4a, 0x83, 0x01}
	req := httptest.NewRequest(http.MethodPut, "/documents/doc-1/snapshot", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			DocumentID string `json:"documentId"`
			Size       int    `json:"size"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.Success || body.Data.DocumentID != "doc-1" || body.Data.Size != len(payload) {
		t.Errorf("unexpected response: %+v", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/documents/doc-1/snapshot", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("unexpected content type: %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Errorf("snapshot mismatch: %v", rec.Body.Bytes())
	}
}

func TestSnapshotGetMissing(t *testing.T) {
	router := newSnapshotRouter(newFakeSnapshotRepository())

	req := httptest.NewRequest(http.MethodGet, "/documents/nope/snapshot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestSnapshotPutRejectsEmptyBody(t *testing.T) {
	repo := newFakeSnapshotRepository()
	router := newSnapshotRouter(repo)

	req := httptest.NewRequest(http.MethodPut, "/documents/doc-1/snapshot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if len(repo.data) != 0 {
		t.Error("empty snapshot must not be stored")
	}
}

func TestSnapshotStoreFailure(t *testing.T) {
	repo := newFakeSnapshotRepository()
	repo.err = context.DeadlineExceeded
	router := newSnapshotRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/documents/doc-1/snapshot", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
