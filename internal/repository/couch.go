package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-kivik/kivik/v4"

	"collabspace-sync-server/pkg/crdt"
)

type couchSnapshotRepository struct {
	client *kivik.Client
	dbName string
}

type snapshotDoc struct {
	ID        string `json:"_id"`
	Rev       string `json:"_rev,omitempty"`
	Content   string `json:"content"`
	UpdatedAt string `json:"updated_at"`
}

func NewCouchSnapshotRepository(client *kivik.Client, dbName string) SnapshotRepository {
	return &couchSnapshotRepository{
		client: client,
		dbName: dbName,
	}
}

func (r *couchSnapshotRepository) Load(ctx context.Context, documentID string) ([]byte, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(ctx, r.docID(documentID))

	var doc snapshotDoc
	if err := row.ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return crdt.DecodeSnapshotText(doc.Content)
}

func (r *couchSnapshotRepository) Save(ctx context.Context, documentID string, data []byte) error {
	db := r.client.DB(r.dbName)

	doc := snapshotDoc{
		ID:        r.docID(documentID),
		Content:   crdt.EncodeSnapshotText(data),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	var existing snapshotDoc
	if err := db.Get(ctx, doc.ID).ScanDoc(&existing); err == nil {
		doc.Rev = existing.Rev
	} else if kivik.HTTPStatus(err) != http.StatusNotFound {
		return fmt.Errorf("failed to check existing snapshot: %w", err)
	}

	if _, err := db.Put(ctx, doc.ID, doc); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (r *couchSnapshotRepository) docID(documentID string) string {
	return fmt.Sprintf("snapshot:%s", documentID)
}
