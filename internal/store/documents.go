package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DreamCats/docrag/internal/chunker"
)

// DocumentStore provides CRUD operations for documents
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new document store
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Create inserts a document and its chunks in one transaction and fills in
// the generated ids. Chunks are stored without embeddings.
// It returns ErrDuplicateChecksum when the checksum is already taken.
func (s *DocumentStore) Create(ctx context.Context, doc *Document, pieces []chunker.Piece) ([]*Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("document name is required")
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}

	tx, err := s.db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO documents (name, source_url, checksum, created_at) VALUES (?, ?, ?, ?)",
		doc.Name, nullString(doc.SourceURL), nullString(doc.Checksum), timestamp(doc.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateChecksum
		}
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	docID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get document id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (document_id, position, content, length, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	chunks := make([]*Chunk, 0, len(pieces))
	for i, p := range pieces {
		res, err := stmt.ExecContext(ctx, docID, i, p.Content, p.Length, timestamp(now))
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get chunk id: %w", err)
		}
		chunks = append(chunks, &Chunk{
			ID:         id,
			DocumentID: docID,
			Position:   i,
			Content:    p.Content,
			Length:     p.Length,
			CreatedAt:  now,
		})
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateChecksum
		}
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	doc.ID = docID
	doc.ChunkCount = len(chunks)
	return chunks, nil
}

const documentColumns = "id, name, COALESCE(source_url, ''), COALESCE(checksum, ''), created_at"

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var createdAtValue any
	if err := row.Scan(&doc.ID, &doc.Name, &doc.SourceURL, &doc.Checksum, &createdAtValue); err != nil {
		return nil, err
	}
	createdAt, err := scanTime(createdAtValue)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	doc.CreatedAt = createdAt
	return &doc, nil
}

// GetByChecksum returns the document holding checksum, or nil when none does
func (s *DocumentStore) GetByChecksum(ctx context.Context, checksum string) (*Document, error) {
	if checksum == "" {
		return nil, nil
	}
	row := s.db.sqlDB.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE checksum = ?", checksum)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document by checksum: %w", err)
	}
	return doc, nil
}

// Get returns a document by id, or nil when it does not exist
func (s *DocumentStore) Get(ctx context.Context, id int64) (*Document, error) {
	row := s.db.sqlDB.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// List returns all documents, newest first, with chunk counts
func (s *DocumentStore) List(ctx context.Context) ([]*Document, error) {
	query := `
		SELECT d.id, d.name, COALESCE(d.source_url, ''), COALESCE(d.checksum, ''), d.created_at,
			COUNT(c.id), COUNT(c.embedding)
		FROM documents d
		LEFT JOIN chunks c ON c.document_id = d.id
		GROUP BY d.id
		ORDER BY d.id DESC
	`
	rows, err := s.db.sqlDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		var createdAtValue any
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.SourceURL, &doc.Checksum, &createdAtValue,
			&doc.ChunkCount, &doc.EmbeddedCount); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if doc.CreatedAt, err = scanTime(createdAtValue); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return docs, nil
}

// Delete removes a document and, by cascade, its chunks
func (s *DocumentStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.sqlDB.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Count returns the number of documents
func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}
