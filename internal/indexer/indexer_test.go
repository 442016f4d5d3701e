package indexer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/docrag/internal/config"
	"github.com/DreamCats/docrag/internal/ingest"
	"github.com/DreamCats/docrag/internal/retrieval"
)

func newTestIndexer(t *testing.T, withTextIndex bool) *Indexer {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "docrag.db")
	cfg.Chunking.Size = 40
	cfg.Chunking.Overlap = 5
	if withTextIndex {
		cfg.Search.TextIndexDir = filepath.Join(dir, "text")
	}

	idx, err := NewIndexer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = idx.Close(ctx)
	})
	return idx
}

func ingestAndWait(t *testing.T, idx *Indexer, name, text string) *ingest.Result {
	t.Helper()
	ctx := context.Background()
	res, err := idx.Ingest().Ingest(ctx, ingest.Source{Name: name, Data: []byte(text)})
	require.NoError(t, err)
	if res.Job != nil {
		require.NoError(t, res.Job.Wait(ctx))
	}
	return res
}

func TestIndexerIngestSearchReview(t *testing.T) {
	idx := newTestIndexer(t, true)
	ctx := context.Background()

	res := ingestAndWait(t, idx, "go.txt", "Go services use goroutines and channels for concurrency across many workers.")
	assert.Greater(t, res.Chunks, 0)

	results, err := idx.Searcher().Search(ctx, "goroutines", retrieval.SearchOptions{TopK: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, res.DocumentID, results[0].DocumentID)

	report, err := idx.Reviewer().Review(ctx, "I write Go services.", 3)
	require.NoError(t, err)
	assert.NotZero(t, report.ReviewID)
	assert.NotEmpty(t, report.Recommendations)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Database.DocumentCount)
	assert.EqualValues(t, 1, stats.Database.ReviewCount)
	assert.Equal(t, 8, stats.Fallback)
	assert.Empty(t, stats.Providers)
}

func TestIndexerDefaultsWithoutTextIndex(t *testing.T) {
	idx := newTestIndexer(t, false)
	assert.Nil(t, idx.textIndex)
	assert.NoError(t, idx.SyncTextIndex(context.Background()))
	assert.NotEmpty(t, idx.DatabasePath())
}

func TestDeleteDocument(t *testing.T) {
	idx := newTestIndexer(t, true)
	ctx := context.Background()

	res := ingestAndWait(t, idx, "a.txt", "alpha bravo charlie delta echo foxtrot golf hotel india juliet")

	count, err := idx.textIndex.Count()
	require.NoError(t, err)
	assert.EqualValues(t, res.Chunks, count)

	require.NoError(t, idx.DeleteDocument(ctx, res.DocumentID))

	docs, chunks, _ := idx.GetStores()
	doc, err := docs.Get(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Nil(t, doc)

	left, err := chunks.ListByDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Empty(t, left)

	count, err = idx.textIndex.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	err = idx.DeleteDocument(ctx, res.DocumentID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestClear(t *testing.T) {
	idx := newTestIndexer(t, true)
	ctx := context.Background()

	ingestAndWait(t, idx, "a.txt", "alpha bravo charlie delta echo foxtrot golf hotel india juliet")
	ingestAndWait(t, idx, "b.txt", "kilo lima mike november oscar papa quebec romeo")
	_, err := idx.Reviewer().Review(ctx, "alpha kilo", 3)
	require.NoError(t, err)

	require.NoError(t, idx.Clear(ctx))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Database.DocumentCount)
	assert.Zero(t, stats.Database.ChunkCount)
	assert.Zero(t, stats.Database.ReviewCount)

	count, err := idx.textIndex.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	// The knowledge base is usable again afterwards
	res := ingestAndWait(t, idx, "c.txt", "sierra tango uniform")
	assert.Greater(t, res.Chunks, 0)
}

func TestChunk(t *testing.T) {
	idx := newTestIndexer(t, false)
	ctx := context.Background()

	res := ingestAndWait(t, idx, "a.txt", "alpha bravo charlie")
	_, chunks, _ := idx.GetStores()
	stored, err := chunks.ListByDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	require.NotEmpty(t, stored)

	c, err := idx.Chunk(ctx, stored[0].ID)
	require.NoError(t, err)
	assert.Equal(t, res.DocumentID, c.DocumentID)
	assert.Contains(t, c.Content, "alpha")
	assert.Len(t, c.Embedding, 8)

	_, err = idx.Chunk(ctx, stored[0].ID+1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSyncTextIndexRebuildsEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "docrag.db")

	// First run without a keyword index
	idx, err := NewIndexer(cfg)
	require.NoError(t, err)
	res := ingestAndWait(t, idx, "notes.txt", "kubernetes operators reconcile desired state")
	require.NoError(t, idx.Close(context.Background()))

	cfg.Search.TextIndexDir = filepath.Join(dir, "text")
	idx, err = NewIndexer(cfg)
	require.NoError(t, err)
	defer idx.Close(context.Background())

	require.NoError(t, idx.SyncTextIndex(context.Background()))
	count, err := idx.textIndex.Count()
	require.NoError(t, err)
	assert.EqualValues(t, res.Chunks, count)

	ids, err := idx.textIndex.SearchIDs(context.Background(), "kubernetes", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, ids)
}
