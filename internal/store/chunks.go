package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ChunkStore provides read and embedding-update operations for chunks
type ChunkStore struct {
	db *DB
}

// NewChunkStore creates a new chunk store
func NewChunkStore(db *DB) *ChunkStore {
	return &ChunkStore{db: db}
}

const chunkColumns = `id, document_id, position, content, length, embedding, dimension,
	COALESCE(provider, ''), embedded_at, created_at`

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var blob []byte
	var dimension sql.NullInt64
	var embeddedAtValue, createdAtValue any

	if err := row.Scan(&c.ID, &c.DocumentID, &c.Position, &c.Content, &c.Length,
		&blob, &dimension, &c.Provider, &embeddedAtValue, &createdAtValue); err != nil {
		return nil, err
	}

	vector, err := decodeEmbedding(blob, dimension)
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", c.ID, err)
	}
	c.Embedding = vector

	if ts, err := scanTime(embeddedAtValue); err != nil {
		return nil, fmt.Errorf("failed to parse embedded_at: %w", err)
	} else if !ts.IsZero() {
		c.EmbeddedAt = &ts
	}

	createdAt, err := scanTime(createdAtValue)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	c.CreatedAt = createdAt

	return &c, nil
}

func (s *ChunkStore) query(ctx context.Context, query string, args ...any) ([]*Chunk, error) {
	rows, err := s.db.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return chunks, nil
}

// Get returns a chunk by id, or nil when it does not exist
func (s *ChunkStore) Get(ctx context.Context, id int64) (*Chunk, error) {
	row := s.db.sqlDB.QueryRowContext(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE id = ?", id)
	c, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return c, nil
}

// ListByDocument returns a document's chunks ordered by id
func (s *ChunkStore) ListByDocument(ctx context.Context, documentID int64) ([]*Chunk, error) {
	return s.query(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE document_id = ? ORDER BY id", documentID)
}

// ListAll returns every chunk ordered by id. Embeddings may be nil.
func (s *ChunkStore) ListAll(ctx context.Context) ([]*Chunk, error) {
	return s.query(ctx, "SELECT "+chunkColumns+" FROM chunks ORDER BY id")
}

// ListMissingEmbeddings returns a document's chunks that have no embedding yet
func (s *ChunkStore) ListMissingEmbeddings(ctx context.Context, documentID int64) ([]*Chunk, error) {
	return s.query(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE document_id = ? AND embedding IS NULL ORDER BY id", documentID)
}

// DocumentsMissingEmbeddings returns ids of documents with at least one unembedded chunk
func (s *ChunkStore) DocumentsMissingEmbeddings(ctx context.Context) ([]int64, error) {
	rows, err := s.db.sqlDB.QueryContext(ctx,
		"SELECT DISTINCT document_id FROM chunks WHERE embedding IS NULL ORDER BY document_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return ids, nil
}

// UpdateEmbedding stores a chunk's vector in a single UPDATE
func (s *ChunkStore) UpdateEmbedding(ctx context.Context, chunkID int64, vector []float32, provider string) error {
	blob, err := encodeEmbedding(vector)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}

	res, err := s.db.sqlDB.ExecContext(ctx,
		"UPDATE chunks SET embedding = ?, dimension = ?, provider = ?, embedded_at = ? WHERE id = ?",
		blob, len(vector), nullString(provider), timestamp(time.Now()), chunkID,
	)
	if err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("chunk not found: %d", chunkID)
	}
	return nil
}

// Count returns the number of chunks
func (s *ChunkStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// CountEmbedded returns the number of chunks with an embedding
func (s *ChunkStore) CountEmbedded(ctx context.Context) (int, error) {
	var count int
	if err := s.db.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count embedded chunks: %w", err)
	}
	return count, nil
}
