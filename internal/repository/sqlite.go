package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"collabspace-sync-server/pkg/crdt"
)

// sqliteSnapshotRepository stores snapshots as base64 text in a single
// table, one row per document.
type sqliteSnapshotRepository struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the snapshot database at path with WAL
// journaling enabled.
func OpenSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewSQLiteSnapshotRepository(db *sql.DB) (SnapshotRepository, error) {
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS snapshots (
			document_id TEXT NOT NULL PRIMARY KEY,
			content TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	); err != nil {
		return nil, fmt.Errorf("failed to create snapshots table: %w", err)
	}
	return &sqliteSnapshotRepository{db: db}, nil
}

func (r *sqliteSnapshotRepository) Load(ctx context.Context, documentID string) ([]byte, error) {
	var content string
	err := r.db.QueryRowContext(ctx,
		`SELECT content FROM snapshots WHERE document_id = ?`, documentID,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return crdt.DecodeSnapshotText(content)
}

func (r *sqliteSnapshotRepository) Save(ctx context.Context, documentID string, data []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO snapshots (document_id, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		documentID,
		crdt.EncodeSnapshotText(data),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}
