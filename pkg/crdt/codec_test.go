package crdt

import (
	"bytes"
	"testing"
)

func TestSnapshotTextRoundTrip(t *testing.T) {
	raw := []byte{0x85, 0x6f, 0x4a, 0x83, 0x00, 0xff, 0x10}

	encoded := EncodeSnapshotText(raw)
	decoded, err := DecodeSnapshotText(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(raw, decoded) {
		t.Errorf("round trip mismatch: %v vs %v", raw, decoded)
	}
}

func TestDecodeSnapshotTextRejectsInvalidInput(t *testing.T) {
	if _, err := DecodeSnapshotText("not base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestEncodeSnapshotTextEmpty(t *testing.T) {
	decoded, err := DecodeSnapshotText(EncodeSnapshotText(nil))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("expected empty payload, got %v", decoded)
	}
}
