package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/docrag/internal/config"
	"github.com/DreamCats/docrag/internal/embedding"
	"github.com/DreamCats/docrag/internal/progress"
	"github.com/DreamCats/docrag/internal/store"
)

type countingEmbedder struct {
	calls atomic.Int64
	texts atomic.Int64
	fail  atomic.Bool
}

func (e *countingEmbedder) EmbedDetailed(ctx context.Context, texts []string) ([][]float32, []string, error) {
	e.calls.Add(1)
	if e.fail.Load() {
		return nil, nil, errors.New("provider down")
	}
	e.texts.Add(int64(len(texts)))
	vecs := make([][]float32, len(texts))
	names := make([]string, len(texts))
	for i, t := range texts {
		vecs[i] = embedding.LocalVector(t, 4)
		names[i] = "fake"
	}
	return vecs, names, nil
}

type recordingIndex struct {
	mu     sync.Mutex
	chunks int
}

func (r *recordingIndex) IndexChunks(name string, chunks []*store.Chunk) error {
	r.mu.Lock()
	r.chunks += len(chunks)
	r.mu.Unlock()
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Chunking.Size = 10
	cfg.Chunking.Overlap = 2
	cfg.Ingest.Workers = 1
	cfg.Ingest.QueueSize = 8
	return cfg
}

func newTestService(t *testing.T, embedder Embedder, opts ...Option) (*Service, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "docrag.db"))
	require.NoError(t, err)

	svc, err := NewService(testConfig(), db, embedder, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
		_ = db.Close()
	})
	return svc, db
}

func waitJob(t *testing.T, r *Result) {
	t.Helper()
	require.NotNil(t, r.Job)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Job.Wait(ctx))
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, "", Checksum(nil))
	assert.Equal(t, "", Checksum([]byte{}))
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", Checksum([]byte("hello")))
}

func TestIngestStoresChunksAndEmbeds(t *testing.T) {
	embedder := &countingEmbedder{}
	idx := &recordingIndex{}
	svc, db := newTestService(t, embedder, WithTextIndex(idx))
	ctx := context.Background()

	// 26 runes, size 10, overlap 2: windows at 0, 8, 16
	res, err := svc.Ingest(ctx, Source{Name: "notes.txt", Data: []byte("abcdefghijklmnopqrstuvwxyz")})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 3, res.Chunks)
	assert.NotEmpty(t, res.JobID())
	waitJob(t, res)

	chunks, err := store.NewChunkStore(db).ListByDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "abcdefghij", chunks[0].Content)
	assert.Equal(t, "qrstuvwxyz", chunks[2].Content)
	for _, c := range chunks {
		assert.True(t, c.Embedded())
		assert.Equal(t, "fake", c.Provider)
	}

	st, ok := svc.JobStatus(res.JobID())
	require.True(t, ok)
	assert.Equal(t, JobDone, st.State)
	assert.Equal(t, 3, st.Embedded)
	assert.Equal(t, map[string]int{"fake": 3}, st.Providers)
	assert.Equal(t, 3, idx.chunks)
}

func TestIngestDuplicateDoesNoWork(t *testing.T) {
	embedder := &countingEmbedder{}
	svc, db := newTestService(t, embedder)
	ctx := context.Background()
	data := []byte("the same bytes twice over")

	first, err := svc.Ingest(ctx, Source{Name: "a.txt", Data: data})
	require.NoError(t, err)
	waitJob(t, first)
	calls := embedder.calls.Load()

	second, err := svc.Ingest(ctx, Source{Name: "renamed.txt", Data: data})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, "a.txt", second.Name)
	assert.Equal(t, first.Chunks, second.Chunks)
	assert.Nil(t, second.Job)
	assert.Equal(t, calls, embedder.calls.Load())

	count, err := store.NewDocumentStore(db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIngestConcurrentSameBytes(t *testing.T) {
	svc, db := newTestService(t, &countingEmbedder{})
	ctx := context.Background()
	data := []byte("racing uploads of one file")

	const n = 4
	results := make([]*Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Ingest(ctx, Source{Name: "cv.txt", Data: data})
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].DocumentID, results[i].DocumentID)
		if !results[i].Duplicate {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)

	count, err := store.NewDocumentStore(db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIngestEmptyDocument(t *testing.T) {
	embedder := &countingEmbedder{}
	svc, db := newTestService(t, embedder)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, Source{Name: "empty.txt"})
	require.NoError(t, err)
	assert.Equal(t, 0, first.Chunks)
	assert.Nil(t, first.Job)

	// No checksum, so no dedup
	second, err := svc.Ingest(ctx, Source{Name: "empty.txt"})
	require.NoError(t, err)
	assert.False(t, second.Duplicate)
	assert.NotEqual(t, first.DocumentID, second.DocumentID)

	count, err := store.NewDocumentStore(db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Zero(t, embedder.calls.Load())
}

func TestEmbedFailureKeepsChunksForReembed(t *testing.T) {
	embedder := &countingEmbedder{}
	embedder.fail.Store(true)
	svc, db := newTestService(t, embedder)
	ctx := context.Background()

	res, err := svc.Ingest(ctx, Source{Name: "doc.txt", Data: []byte("some text that makes chunks")})
	require.NoError(t, err)
	require.NotNil(t, res.Job)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	assert.Error(t, res.Job.Wait(waitCtx))

	st, _ := svc.JobStatus(res.JobID())
	assert.Equal(t, JobFailed, st.State)
	assert.Contains(t, st.Error, "provider down")

	chunkStore := store.NewChunkStore(db)
	embedded, err := chunkStore.CountEmbedded(ctx)
	require.NoError(t, err)
	assert.Zero(t, embedded)
	total, err := chunkStore.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Chunks, total)

	embedder.fail.Store(false)
	jobs, err := svc.Reembed(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NoError(t, jobs[0].Wait(waitCtx))

	embedded, err = chunkStore.CountEmbedded(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, embedded)

	jobs, err = svc.Reembed(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestIngestWithLocalFallbackService(t *testing.T) {
	embedSvc, err := embedding.NewService(&config.Default().Embedding)
	require.NoError(t, err)
	svc, db := newTestService(t, embedSvc)

	res, err := svc.Ingest(context.Background(), Source{Name: "a.md", Data: []byte("# Title\n\nBody text.")})
	require.NoError(t, err)
	waitJob(t, res)

	chunks, err := store.NewChunkStore(db).ListByDocument(context.Background(), res.DocumentID)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.Len(t, c.Embedding, 8)
		assert.Equal(t, embedding.LocalName, c.Provider)
	}
}

func TestIngestURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/guide.txt":
			_, _ = w.Write([]byte("downloaded guide text"))
		case "/big.txt":
			_, _ = w.Write([]byte(strings.Repeat("x", 100)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	svc, _ := newTestService(t, &countingEmbedder{}, WithFetcher(NewFetcherWithClient(srv.Client(), 64)))
	ctx := context.Background()

	res, err := svc.IngestURL(ctx, srv.URL+"/docs/guide.txt")
	require.NoError(t, err)
	assert.Equal(t, "guide.txt", res.Name)
	assert.Equal(t, 3, res.Chunks)

	_, err = svc.IngestURL(ctx, srv.URL+"/big.txt")
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = svc.IngestURL(ctx, srv.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")

	_, err = svc.IngestURL(ctx, "ftp://example.com/a.txt")
	assert.ErrorContains(t, err, "unsupported url scheme")
}

func TestIngestDir(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	write("a.txt", "first document")
	write("nested/b.md", "second document")
	write("nested/copy.txt", "first document")
	write("image.png", "not text")
	write(".git/config.txt", "hidden")

	svc, _ := newTestService(t, &countingEmbedder{})
	summary, err := svc.IngestDir(context.Background(), root, progress.Nop{})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Files)
	assert.Equal(t, 2, summary.Ingested)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Empty(t, summary.Failed)
	assert.Len(t, summary.Results, 3)
}

func TestNilServiceNotConfigured(t *testing.T) {
	var svc *Service
	_, err := svc.Ingest(context.Background(), Source{Name: "a"})
	assert.ErrorIs(t, err, ErrStorageNotConfigured)
	_, err = svc.Reembed(context.Background())
	assert.ErrorIs(t, err, ErrStorageNotConfigured)

	_, err = NewService(testConfig(), nil, &countingEmbedder{})
	assert.ErrorIs(t, err, ErrStorageNotConfigured)
}
