package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ReviewStore persists CV reviews
type ReviewStore struct {
	db *DB
}

// NewReviewStore creates a new review store
func NewReviewStore(db *DB) *ReviewStore {
	return &ReviewStore{db: db}
}

// Create inserts a review and sets its id
func (s *ReviewStore) Create(ctx context.Context, review *Review) error {
	if review == nil {
		return fmt.Errorf("review is nil")
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}

	recs, err := json.Marshal(nonNil(review.Recommendations))
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	top := review.TopChunks
	if top == nil {
		top = []ReviewChunk{}
	}
	topJSON, err := json.Marshal(top)
	if err != nil {
		return fmt.Errorf("failed to marshal top chunks: %w", err)
	}

	res, err := s.db.sqlDB.ExecContext(ctx,
		"INSERT INTO cv_reviews (cv_text, recommendations, top_chunks_json, created_at) VALUES (?, ?, ?, ?)",
		review.CVText, string(recs), string(topJSON), timestamp(review.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get review id: %w", err)
	}
	review.ID = id
	return nil
}

const reviewColumns = "id, cv_text, recommendations, top_chunks_json, created_at"

func scanReview(row rowScanner) (*Review, error) {
	var r Review
	var recs, top string
	var createdAtValue any
	if err := row.Scan(&r.ID, &r.CVText, &recs, &top, &createdAtValue); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(recs), &r.Recommendations); err != nil {
		return nil, fmt.Errorf("failed to parse recommendations: %w", err)
	}
	if err := json.Unmarshal([]byte(top), &r.TopChunks); err != nil {
		return nil, fmt.Errorf("failed to parse top chunks: %w", err)
	}
	createdAt, err := scanTime(createdAtValue)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	r.CreatedAt = createdAt
	return &r, nil
}

// Get returns a review by id, or nil when it does not exist
func (s *ReviewStore) Get(ctx context.Context, id int64) (*Review, error) {
	row := s.db.sqlDB.QueryRowContext(ctx, "SELECT "+reviewColumns+" FROM cv_reviews WHERE id = ?", id)
	r, err := scanReview(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return r, nil
}

// List returns the most recent reviews, newest first
func (s *ReviewStore) List(ctx context.Context, limit int) ([]*Review, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.sqlDB.QueryContext(ctx,
		"SELECT "+reviewColumns+" FROM cv_reviews ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return reviews, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
