// Package server exposes ingestion, search and CV review over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/DreamCats/docrag/internal/embedding"
	"github.com/DreamCats/docrag/internal/ingest"
	"github.com/DreamCats/docrag/internal/retrieval"
	"github.com/DreamCats/docrag/internal/review"
	"github.com/DreamCats/docrag/internal/store"
)

// defaultMaxUpload caps multipart uploads when no limit is configured
const defaultMaxUpload = 50 << 20

// Ingester stores documents and tracks their embedding jobs
type Ingester interface {
	Ingest(ctx context.Context, src ingest.Source) (*ingest.Result, error)
	IngestURL(ctx context.Context, url string) (*ingest.Result, error)
	JobStatus(id string) (ingest.JobStatus, bool)
}

// Searcher ranks stored chunks against a query
type Searcher interface {
	Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]retrieval.Result, error)
}

// Reviewer reviews a CV against stored chunks
type Reviewer interface {
	Review(ctx context.Context, cvText string, k int) (*review.Report, error)
}

// StatsFunc reports service statistics
type StatsFunc func(ctx context.Context) (any, error)

// Deps are the services behind the routes. Nil members answer "not configured".
type Deps struct {
	Ingester  Ingester
	Searcher  Searcher
	Reviewer  Reviewer
	Stats     StatsFunc
	MaxUpload int64
}

// Server is the HTTP API
type Server struct {
	deps Deps
	mux  *http.ServeMux
}

// New creates a server and registers its routes
func New(deps Deps) *Server {
	if deps.MaxUpload <= 0 {
		deps.MaxUpload = defaultMaxUpload
	}
	s := &Server{deps: deps, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /ingest/url", s.handleIngestURL)
	s.mux.HandleFunc("POST /ingest/file", s.handleIngestFile)
	s.mux.HandleFunc("GET /ingest/jobs/{id}", s.handleJob)
	s.mux.HandleFunc("POST /ingest/search", s.handleSearch)
	s.mux.HandleFunc("POST /ingest/cv/review", s.handleReview)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	return s
}

// Handler returns the routes wrapped in request logging and CORS
func (s *Server) Handler() http.Handler {
	return logMiddleware(corsMiddleware(s.mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// IngestResponse is returned by both ingest routes
type IngestResponse struct {
	DocumentID int64  `json:"document_id"`
	Source     string `json:"source"`
	NumChunks  int    `json:"num_chunks"`
	Duplicate  bool   `json:"duplicate"`
	JobID      string `json:"job_id,omitempty"`
}

type ingestURLRequest struct {
	URL string `json:"url"`
}

type searchRequest struct {
	Query      string `json:"query"`
	K          int    `json:"k"`
	DocumentID int64  `json:"document_id,omitempty"`
}

type searchResponse struct {
	Query   string             `json:"query"`
	K       int                `json:"k"`
	Results []retrieval.Result `json:"results"`
}

type reviewRequest struct {
	CVText string `json:"cv_text"`
	K      int    `json:"k"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var req ingestURLRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if s.deps.Ingester == nil {
		writeFailure(w, store.ErrStorageNotConfigured)
		return
	}

	res, err := s.deps.Ingester.IngestURL(r.Context(), req.URL)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIngestResponse(res))
}

func (s *Server) handleIngestFile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingester == nil {
		writeFailure(w, store.ErrStorageNotConfigured)
		return
	}

	if r.ContentLength > s.deps.MaxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	res, err := s.deps.Ingester.Ingest(r.Context(), ingest.Source{Name: header.Filename, Data: data})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIngestResponse(res))
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingester == nil {
		writeFailure(w, store.ErrStorageNotConfigured)
		return
	}
	st, ok := s.deps.Ingester.JobStatus(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.K <= 0 {
		req.K = 5
	}
	if s.deps.Searcher == nil {
		writeFailure(w, store.ErrStorageNotConfigured)
		return
	}

	results, err := s.deps.Searcher.Search(r.Context(), req.Query,
		retrieval.SearchOptions{TopK: req.K, DocumentID: req.DocumentID})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: req.Query, K: req.K, Results: results})
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.CVText) == "" {
		writeError(w, http.StatusBadRequest, "cv_text is required")
		return
	}
	if req.K <= 0 {
		req.K = 5
	}
	if s.deps.Reviewer == nil {
		writeFailure(w, store.ErrStorageNotConfigured)
		return
	}

	report, err := s.deps.Reviewer.Review(r.Context(), req.CVText, req.K)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		writeFailure(w, store.ErrStorageNotConfigured)
		return
	}
	stats, err := s.deps.Stats(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func toIngestResponse(res *ingest.Result) IngestResponse {
	return IngestResponse{
		DocumentID: res.DocumentID,
		Source:     res.Name,
		NumChunks:  res.Chunks,
		Duplicate:  res.Duplicate,
		JobID:      res.JobID(),
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return false
	}
	return true
}

type apiError struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, apiError{Detail: detail})
}

// writeFailure maps service errors to status codes
func writeFailure(w http.ResponseWriter, err error) {
	var download *ingest.DownloadError
	switch {
	case errors.Is(err, store.ErrStorageNotConfigured):
		writeError(w, http.StatusBadRequest, "database not configured; this operation requires storage")
	case errors.Is(err, embedding.ErrNoProviders):
		writeError(w, http.StatusBadRequest, "embedding provider not configured")
	case errors.Is(err, ingest.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.As(err, &download):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away
		writeError(w, 499, "request cancelled")
	default:
		log.Printf("Warning: request failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
