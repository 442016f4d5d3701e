package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/DreamCats/docrag/internal/store"
)

// Checksum returns the SHA-256 hex digest of data.
// Empty input has no checksum and is never deduplicated.
func Checksum(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Gate decides whether bytes were already ingested
type Gate struct {
	documents *store.DocumentStore
}

// NewGate creates a gate over the document store
func NewGate(documents *store.DocumentStore) *Gate {
	return &Gate{documents: documents}
}

// ShouldIngest looks up checksum. found is true when a document already holds
// it, and existingID is that document.
func (g *Gate) ShouldIngest(ctx context.Context, checksum string) (existingID int64, found bool, err error) {
	if checksum == "" {
		return 0, false, nil
	}
	if g == nil || g.documents == nil {
		return 0, false, ErrStorageNotConfigured
	}

	doc, err := g.documents.GetByChecksum(ctx, checksum)
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up checksum: %w", err)
	}
	if doc == nil {
		return 0, false, nil
	}
	return doc.ID, true, nil
}
