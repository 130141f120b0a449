package repository

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no snapshot has been stored for a document.
var ErrNotFound = errors.New("snapshot not found")

// SnapshotRepository is the persistence bridge contract: the stored blob is
// always a full CRDT state encoding, written opportunistically on save and
// read once on load. Last write wins at the storage layer; replicas re-merge
// from whatever full state was stored, so no diff can be lost.
type SnapshotRepository interface {
	Load(ctx context.Context, documentID string) ([]byte, error)
	Save(ctx context.Context, documentID string, data []byte) error
}
