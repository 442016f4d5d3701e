package store

import (
	"errors"
	"time"
)

// ErrDuplicateChecksum is returned by DocumentStore.Create when another
// document already holds the checksum.
var ErrDuplicateChecksum = errors.New("document checksum already exists")

// Document is one ingested file
type Document struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SourceURL string    `json:"source_url,omitempty"` // Empty when uploaded
	Checksum  string    `json:"checksum,omitempty"`   // SHA-256 hex, empty when unknown
	CreatedAt time.Time `json:"created_at"`

	// Filled by List
	ChunkCount    int `json:"chunk_count"`
	EmbeddedCount int `json:"embedded_count"`
}

// Chunk is one chunking window of a document
type Chunk struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	Position   int    `json:"position"` // Window index within the document
	Content    string `json:"content"`
	Length     int    `json:"length"`

	// Vector embedding, nil until embedded
	Embedding  []float32  `json:"-"`
	Provider   string     `json:"provider,omitempty"`
	EmbeddedAt *time.Time `json:"embedded_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Embedded reports whether the chunk has a vector
func (c *Chunk) Embedded() bool {
	return len(c.Embedding) > 0
}

// Review is a persisted CV review
type Review struct {
	ID              int64         `json:"id"`
	CVText          string        `json:"cv_text"`
	Recommendations []string      `json:"recommendations"`
	TopChunks       []ReviewChunk `json:"top_chunks"`
	CreatedAt       time.Time     `json:"created_at"`
}

// ReviewChunk is a retrieved chunk as recorded with a review
type ReviewChunk struct {
	ChunkID    int64   `json:"chunk_id"`
	DocumentID int64   `json:"document_id"`
	Content    string  `json:"content"`
	Score      float32 `json:"score"`
}

// ErrStorageNotConfigured is returned by operations that need a database when none is open
var ErrStorageNotConfigured = errors.New("storage not configured")
