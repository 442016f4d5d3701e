package retrieval

import (
	"sort"

	"github.com/DreamCats/docrag/internal/embedding"
	"github.com/DreamCats/docrag/internal/store"
)

// Result is one ranked chunk
type Result struct {
	ChunkID    int64   `json:"chunk_id"`
	DocumentID int64   `json:"document_id"`
	Content    string  `json:"content"`
	Score      float32 `json:"score"`
}

// Rank scores candidates against query by cosine similarity and returns the
// best k, highest score first with ties broken by ascending chunk id.
// Candidates without an embedding, or whose dimension differs from the
// query's, are skipped.
func Rank(query []float32, candidates []*store.Chunk, k int) []Result {
	if k <= 0 || len(query) == 0 {
		return []Result{}
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || len(c.Embedding) == 0 || len(c.Embedding) != len(query) {
			continue
		}
		results = append(results, Result{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Content:    c.Content,
			Score:      embedding.Similarity(query, c.Embedding),
		})
	}

	sortResults(results)

	if len(results) > k {
		results = results[:k]
	}
	return results
}

// sortResults orders by score (descending), then chunk id (ascending)
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}
