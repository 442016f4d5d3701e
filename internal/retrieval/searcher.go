package retrieval

import (
	"context"
	"fmt"
	"log"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/DreamCats/docrag/internal/store"
)

// Embedder produces query vectors
type Embedder interface {
	EmbedDetailed(ctx context.Context, texts []string) ([][]float32, []string, error)
	Degraded(provider string) bool
}

// ChunkSource loads candidate chunks
type ChunkSource interface {
	ListAll(ctx context.Context) ([]*store.Chunk, error)
	ListByDocument(ctx context.Context, documentID int64) ([]*store.Chunk, error)
}

// KeywordIndex returns chunk ids matching a query, best match first
type KeywordIndex interface {
	SearchIDs(ctx context.Context, query string, limit int) ([]int64, error)
}

// SearchOptions configures search behavior
type SearchOptions struct {
	TopK          int     // Number of results to return
	DocumentID    int64   // Restrict to one document, 0 for all
	VectorWeight  float32 // Weight for vector similarity
	KeywordWeight float32 // Weight for keyword matches, needs a keyword index
}

// Searcher embeds a query and ranks stored chunks against it
type Searcher struct {
	embedder Embedder
	chunks   ChunkSource
	keywords KeywordIndex
	cache    *lru.Cache[string, []float32]
	defaults SearchOptions
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithKeywordIndex enables hybrid search.
func WithKeywordIndex(idx KeywordIndex) SearcherOption {
	return func(s *Searcher) {
		s.keywords = idx
	}
}

// WithQueryCache caches up to size query vectors. Zero disables the cache.
func WithQueryCache(size int) SearcherOption {
	return func(s *Searcher) {
		if size <= 0 {
			s.cache = nil
			return
		}
		cache, err := lru.New[string, []float32](size)
		if err == nil {
			s.cache = cache
		}
	}
}

// WithDefaults sets the options used for zero fields of SearchOptions.
func WithDefaults(opts SearchOptions) SearcherOption {
	return func(s *Searcher) {
		s.defaults = opts
	}
}

// NewSearcher creates a searcher. chunks may be nil, in which case every
// search fails with store.ErrStorageNotConfigured.
func NewSearcher(embedder Embedder, chunks ChunkSource, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		embedder: embedder,
		chunks:   chunks,
		defaults: SearchOptions{TopK: 5, VectorWeight: 1},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns the chunks most similar to query
func (s *Searcher) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	if s == nil || s.chunks == nil {
		return nil, store.ErrStorageNotConfigured
	}
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}

	opts = s.withDefaults(opts)

	// Normalize weights
	vw, kw := opts.VectorWeight, opts.KeywordWeight
	if s.keywords == nil {
		kw = 0
	}
	total := vw + kw
	if total <= 0 {
		vw, total = 1, 1
	}
	vw /= total
	kw /= total

	queryVector, err := s.queryVector(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := s.candidates(ctx, opts.DocumentID)
	if err != nil {
		return nil, err
	}

	if kw == 0 {
		return Rank(queryVector, candidates, opts.TopK), nil
	}

	ids, err := s.keywords.SearchIDs(ctx, query, opts.TopK*2)
	if err != nil {
		// Keyword search is an enhancement; fall back to vectors alone
		log.Printf("Warning: keyword search failed: %v", err)
		return Rank(queryVector, candidates, opts.TopK), nil
	}

	return combine(queryVector, candidates, ids, vw, kw, opts.TopK), nil
}

func (s *Searcher) withDefaults(opts SearchOptions) SearchOptions {
	if opts.TopK <= 0 {
		opts.TopK = s.defaults.TopK
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.VectorWeight == 0 && opts.KeywordWeight == 0 {
		opts.VectorWeight = s.defaults.VectorWeight
		opts.KeywordWeight = s.defaults.KeywordWeight
	}
	return opts
}

func (s *Searcher) queryVector(ctx context.Context, query string) ([]float32, error) {
	if s.cache != nil {
		if vec, ok := s.cache.Get(query); ok {
			return vec, nil
		}
	}

	vecs, providers, err := s.embedder.EmbedDetailed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vecs))
	}

	// Fallback vectors stand in for an unavailable provider and are not cached
	if s.cache != nil && !s.embedder.Degraded(providers[0]) {
		s.cache.Add(query, vecs[0])
	}
	return vecs[0], nil
}

func (s *Searcher) candidates(ctx context.Context, documentID int64) ([]*store.Chunk, error) {
	var (
		chunks []*store.Chunk
		err    error
	)
	if documentID > 0 {
		chunks, err = s.chunks.ListByDocument(ctx, documentID)
	} else {
		chunks, err = s.chunks.ListAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	return chunks, nil
}

// combine merges cosine scores with rank-based keyword scores
func combine(query []float32, candidates []*store.Chunk, keywordIDs []int64, vw, kw float32, k int) []Result {
	byID := make(map[int64]*store.Chunk, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	combined := make(map[int64]*Result)
	for _, r := range Rank(query, candidates, len(candidates)) {
		r := r
		r.Score *= vw
		combined[r.ChunkID] = &r
	}

	for i, id := range keywordIDs {
		c, ok := byID[id]
		if !ok {
			continue
		}
		// Simple scoring based on rank
		score := kw * float32(1.0-float64(i)/float64(len(keywordIDs)))
		if existing, ok := combined[id]; ok {
			existing.Score += score
			continue
		}
		combined[id] = &Result{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Content:    c.Content,
			Score:      score,
		}
	}

	results := make([]Result, 0, len(combined))
	for _, r := range combined {
		results = append(results, *r)
	}
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}
