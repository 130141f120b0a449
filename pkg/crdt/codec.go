package crdt

import (
	"encoding/base64"
	"fmt"
)

// Snapshot text encoding for persistence layers that only carry text, such
// as SQL text columns or JSON transports. Raw bytes stay raw everywhere else.

// EncodeSnapshotText encodes a snapshot for a text-only transport.
func EncodeSnapshotText(snapshot []byte) string {
	return base64.StdEncoding.EncodeToString(snapshot)
}

// DecodeSnapshotText decodes a snapshot produced by EncodeSnapshotText.
func DecodeSnapshotText(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return raw, nil
}
