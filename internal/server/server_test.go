package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/docrag/internal/config"
	"github.com/DreamCats/docrag/internal/embedding"
	"github.com/DreamCats/docrag/internal/ingest"
	"github.com/DreamCats/docrag/internal/retrieval"
	"github.com/DreamCats/docrag/internal/review"
	"github.com/DreamCats/docrag/internal/store"
)

type stack struct {
	handler http.Handler
	ingest  *ingest.Service
}

func newStack(t *testing.T) *stack {
	t.Helper()
	cfg := config.Default()
	cfg.Chunking.Size = 40
	cfg.Chunking.Overlap = 5

	db, err := store.Open(filepath.Join(t.TempDir(), "docrag.db"))
	require.NoError(t, err)

	embedder, err := embedding.NewService(&cfg.Embedding)
	require.NoError(t, err)

	ing, err := ingest.NewService(cfg, db, embedder)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ing.Close(ctx)
		_ = db.Close()
	})

	searcher := retrieval.NewSearcher(embedder, store.NewChunkStore(db))
	reviewer := review.NewReviewer(searcher, review.Heuristic{}, store.NewReviewStore(db))

	srv := New(Deps{
		Ingester: ing,
		Searcher: searcher,
		Reviewer: reviewer,
		Stats: func(ctx context.Context) (any, error) {
			stats, err := db.Stats(ctx)
			return stats, err
		},
	})
	return &stack{handler: srv.Handler(), ingest: ing}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func upload(t *testing.T, h http.Handler, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ingest/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	h := New(Deps{}).Handler()
	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDPropagated(t *testing.T) {
	h := New(Deps{}).Handler()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
}

func TestNotConfigured(t *testing.T) {
	h := New(Deps{}).Handler()

	tests := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/ingest/url", map[string]string{"url": "http://example.com/a.pdf"}},
		{http.MethodPost, "/ingest/search", map[string]any{"query": "go", "k": 3}},
		{http.MethodPost, "/ingest/cv/review", map[string]any{"cv_text": "engineer"}},
		{http.MethodGet, "/stats", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), "not configured")
		})
	}

	// Searcher without storage reports the same
	h = New(Deps{Searcher: retrieval.NewSearcher(nil, nil)}).Handler()
	rr := do(t, h, http.MethodPost, "/ingest/search", map[string]any{"query": "go"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "not configured")
}

func TestBadRequests(t *testing.T) {
	s := newStack(t)

	rr := do(t, s.handler, http.MethodPost, "/ingest/search", map[string]any{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, s.handler, http.MethodPost, "/ingest/cv/review", map[string]any{"k": 2})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/ingest/url", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rr = do(t, s.handler, http.MethodPost, "/ingest/url", map[string]string{"url": "ftp://nowhere/x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "download failed")

	rr = do(t, s.handler, http.MethodGet, "/ingest/jobs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, s.handler, http.MethodGet, "/ingest/search", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestIngestSearchReviewFlow(t *testing.T) {
	s := newStack(t)
	content := "Kubernetes administration. Deploying clusters with Helm charts and operators."

	rr := upload(t, s.handler, "k8s.txt", content)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var first IngestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &first))
	assert.Equal(t, "k8s.txt", first.Source)
	assert.False(t, first.Duplicate)
	assert.Greater(t, first.NumChunks, 0)
	require.NotEmpty(t, first.JobID)

	// Wait for the embedding job through the jobs route
	require.Eventually(t, func() bool {
		rr := do(t, s.handler, http.MethodGet, "/ingest/jobs/"+first.JobID, nil)
		var st ingest.JobStatus
		return rr.Code == http.StatusOK && json.Unmarshal(rr.Body.Bytes(), &st) == nil && st.State == ingest.JobDone
	}, 5*time.Second, 20*time.Millisecond)

	rr = upload(t, s.handler, "copy.txt", content)
	require.Equal(t, http.StatusOK, rr.Code)
	var second IngestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &second))
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Empty(t, second.JobID)

	rr = do(t, s.handler, http.MethodPost, "/ingest/search", map[string]any{"query": "Helm", "k": 2})
	require.Equal(t, http.StatusOK, rr.Code)
	var search struct {
		Query   string             `json:"query"`
		K       int                `json:"k"`
		Results []retrieval.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &search))
	assert.Equal(t, 2, search.K)
	assert.Len(t, search.Results, min(2, first.NumChunks))

	rr = do(t, s.handler, http.MethodPost, "/ingest/cv/review", map[string]any{"cv_text": "Ops engineer", "k": 1})
	require.Equal(t, http.StatusOK, rr.Code)
	var report review.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, "Ops engineer", report.Summary)
	assert.Len(t, report.TopChunks, 1)
	assert.NotEmpty(t, report.Recommendations)
	assert.NotZero(t, report.ReviewID)

	rr = do(t, s.handler, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats store.DBStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.DocumentCount)
	assert.EqualValues(t, 1, stats.ReviewCount)
}

func TestUploadTooLarge(t *testing.T) {
	s := newStack(t)
	h := New(Deps{Ingester: s.ingest, MaxUpload: 64}).Handler()
	rr := upload(t, h, "big.txt", strings.Repeat("x", 1024))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
