// Package review produces CV recommendations from retrieved knowledge chunks.
package review

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/DreamCats/docrag/internal/config"
	"github.com/DreamCats/docrag/internal/retrieval"
	"github.com/DreamCats/docrag/internal/store"
)

// summaryRunes is how much of the CV is echoed back in a report
const summaryRunes = 400

// Searcher finds chunks relevant to a text
type Searcher interface {
	Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]retrieval.Result, error)
}

// ReviewWriter persists reviews
type ReviewWriter interface {
	Create(ctx context.Context, review *store.Review) error
}

// Report is the outcome of one review
type Report struct {
	ReviewID        int64              `json:"review_id,omitempty"`
	Summary         string             `json:"cv_summary"`
	Recommendations []string           `json:"recommendations"`
	TopChunks       []retrieval.Result `json:"top_chunks"`
}

// Reviewer runs retrieval, synthesis and persistence for a CV
type Reviewer struct {
	searcher    Searcher
	synthesizer Synthesizer
	reviews     ReviewWriter
}

// NewReviewer creates a reviewer. reviews may be nil to skip persistence.
func NewReviewer(searcher Searcher, synthesizer Synthesizer, reviews ReviewWriter) *Reviewer {
	if synthesizer == nil {
		synthesizer = Heuristic{}
	}
	return &Reviewer{searcher: searcher, synthesizer: synthesizer, reviews: reviews}
}

// NewSynthesizer picks the LLM synthesizer when an endpoint is configured
func NewSynthesizer(cfg *config.ReviewConfig) Synthesizer {
	if strings.TrimSpace(cfg.LLMURL) == "" {
		return Heuristic{}
	}
	return NewLLMSynthesizer(cfg.LLMURL, cfg.LLMAPIKey, cfg.Timeout, cfg.MaxRecommendations)
}

// Review retrieves the k chunks closest to cvText and recommends on them
func (r *Reviewer) Review(ctx context.Context, cvText string, k int) (*Report, error) {
	if strings.TrimSpace(cvText) == "" {
		return nil, fmt.Errorf("cv_text is empty")
	}
	if r == nil || r.searcher == nil {
		return nil, store.ErrStorageNotConfigured
	}

	top, err := r.searcher.Search(ctx, cvText, retrieval.SearchOptions{TopK: k})
	if err != nil {
		return nil, err
	}

	recs, err := r.synthesizer.Recommend(ctx, cvText, top)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize recommendations: %w", err)
	}

	report := &Report{
		Summary:         Summarize(cvText),
		Recommendations: recs,
		TopChunks:       top,
	}

	if r.reviews != nil {
		rev := &store.Review{CVText: cvText, Recommendations: recs, TopChunks: toReviewChunks(top)}
		if err := r.reviews.Create(ctx, rev); err != nil {
			return nil, fmt.Errorf("failed to store review: %w", err)
		}
		report.ReviewID = rev.ID
	}

	return report, nil
}

// Summarize echoes the first 400 characters of a CV, with "..." when cut
func Summarize(cvText string) string {
	runes := []rune(cvText)
	if len(runes) <= summaryRunes {
		return cvText
	}
	return string(runes[:summaryRunes]) + "..."
}

func toReviewChunks(results []retrieval.Result) []store.ReviewChunk {
	out := make([]store.ReviewChunk, len(results))
	for i, r := range results {
		out[i] = store.ReviewChunk{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			Content:    r.Content,
			Score:      r.Score,
		}
	}
	return out
}

func logFallback(err error) {
	log.Printf("Warning: llm synthesis failed, using heuristic recommendations: %v", err)
}
