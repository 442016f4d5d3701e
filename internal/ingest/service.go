// Package ingest runs the document pipeline: dedup, extraction, chunking,
// storage and background embedding.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/DreamCats/docrag/internal/chunker"
	"github.com/DreamCats/docrag/internal/config"
	"github.com/DreamCats/docrag/internal/extract"
	"github.com/DreamCats/docrag/internal/store"
)

// ErrStorageNotConfigured is returned when the service has no database
var ErrStorageNotConfigured = store.ErrStorageNotConfigured

// embedGroup is how many chunks are embedded before their rows are written
const embedGroup = 64

// Embedder produces vectors and names the provider behind each one
type Embedder interface {
	EmbedDetailed(ctx context.Context, texts []string) ([][]float32, []string, error)
}

// ChunkIndexer receives new chunks for keyword search
type ChunkIndexer interface {
	IndexChunks(name string, chunks []*store.Chunk) error
}

// Source is one document to ingest
type Source struct {
	Name      string
	SourceURL string
	Data      []byte
}

// Result describes an ingested document
type Result struct {
	DocumentID int64  `json:"document_id"`
	Name       string `json:"source"`
	Chunks     int    `json:"num_chunks"`
	Duplicate  bool   `json:"duplicate"`
	Job        *Job   `json:"-"` // nil for duplicates and empty documents
}

// JobID returns the embedding job id, or "" when no job was started
func (r *Result) JobID() string {
	if r == nil || r.Job == nil {
		return ""
	}
	return r.Job.ID
}

// Service handles the complete ingestion pipeline
type Service struct {
	cfg       *config.Config
	documents *store.DocumentStore
	chunks    *store.ChunkStore
	gate      *Gate
	extractor extract.Extractor
	chunker   *chunker.Chunker
	embedder  Embedder
	index     ChunkIndexer
	queue     *Queue
	fetcher   *Fetcher
}

// Option configures a Service
type Option func(*Service)

// WithTextIndex sends new chunks to a keyword index
func WithTextIndex(idx ChunkIndexer) Option {
	return func(s *Service) {
		s.index = idx
	}
}

// WithExtractor replaces the default extractor registry
func WithExtractor(e extract.Extractor) Option {
	return func(s *Service) {
		s.extractor = e
	}
}

// WithFetcher replaces the URL downloader
func WithFetcher(f *Fetcher) Option {
	return func(s *Service) {
		s.fetcher = f
	}
}

// NewService creates an ingestion service and starts its embedding workers.
// Close must be called to drain them.
func NewService(cfg *config.Config, db *store.DB, embedder Embedder, opts ...Option) (*Service, error) {
	if db == nil {
		return nil, ErrStorageNotConfigured
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	ch, err := chunker.New(chunker.WithSize(cfg.Chunking.Size), chunker.WithOverlap(cfg.Chunking.Overlap))
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	documents := store.NewDocumentStore(db)
	s := &Service{
		cfg:       cfg,
		documents: documents,
		chunks:    store.NewChunkStore(db),
		gate:      NewGate(documents),
		extractor: extract.NewRegistry(),
		chunker:   ch,
		embedder:  embedder,
		fetcher:   NewFetcher(cfg.Ingest.MaxDownloadBytes),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.queue = NewQueue(cfg.Ingest.Workers, cfg.Ingest.QueueSize, s.embedDocument)
	return s, nil
}

// Close drains the embedding queue, cancelling in-flight jobs when ctx expires
func (s *Service) Close(ctx context.Context) error {
	if s == nil || s.queue == nil {
		return nil
	}
	return s.queue.Close(ctx)
}

// JobStatus returns an embedding job by id
func (s *Service) JobStatus(id string) (JobStatus, bool) {
	if s == nil || s.queue == nil {
		return JobStatus{}, false
	}
	return s.queue.Status(id)
}

// Ingest stores src and schedules embedding of its chunks.
// Bytes seen before return the existing document with Duplicate set, and no writes.
func (s *Service) Ingest(ctx context.Context, src Source) (*Result, error) {
	if s == nil || s.documents == nil {
		return nil, ErrStorageNotConfigured
	}
	if src.Name == "" {
		return nil, fmt.Errorf("source name is required")
	}
	startTime := time.Now()

	// Step 1: Deduplicate on content checksum
	checksum := Checksum(src.Data)
	if id, found, err := s.gate.ShouldIngest(ctx, checksum); err != nil {
		return nil, err
	} else if found {
		log.Printf("Skipping %s: already ingested as document %d", src.Name, id)
		return s.duplicate(ctx, id, src.Name)
	}

	// Step 2: Extract text
	text, err := extract.Text(ctx, s.extractor, src.Name, src.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", src.Name, err)
	}

	// Step 3: Chunk
	pieces := s.chunker.Split(text)

	// Step 4: Store document and chunks in one transaction
	doc := &store.Document{Name: src.Name, SourceURL: src.SourceURL, Checksum: checksum}
	chunks, err := s.documents.Create(ctx, doc, pieces)
	if errors.Is(err, store.ErrDuplicateChecksum) {
		// Lost a race with a concurrent ingest of the same bytes
		id, found, gerr := s.gate.ShouldIngest(ctx, checksum)
		if gerr != nil {
			return nil, gerr
		}
		if !found {
			return nil, fmt.Errorf("failed to resolve duplicate checksum for %s", src.Name)
		}
		return s.duplicate(ctx, id, src.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	result := &Result{DocumentID: doc.ID, Name: src.Name, Chunks: len(chunks)}

	// Step 5: Keyword index
	if s.index != nil && len(chunks) > 0 {
		if err := s.index.IndexChunks(src.Name, chunks); err != nil {
			log.Printf("Warning: failed to index chunks of %s for keyword search: %v", src.Name, err)
		}
	}

	// Step 6: Schedule embeddings
	if len(chunks) > 0 {
		job, err := s.queue.Submit(ctx, doc.ID)
		if err != nil {
			// Chunks stay committed; reembed picks them up
			log.Printf("Warning: failed to schedule embeddings for document %d: %v", doc.ID, err)
		}
		result.Job = job
	}

	log.Printf("Ingested %s as document %d: %d chunks in %v",
		src.Name, doc.ID, len(chunks), time.Since(startTime).Round(time.Millisecond))
	return result, nil
}

func (s *Service) duplicate(ctx context.Context, id int64, name string) (*Result, error) {
	result := &Result{DocumentID: id, Name: name, Duplicate: true}
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc != nil {
		result.Name = doc.Name
	}
	chunks, err := s.chunks.ListByDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	result.Chunks = len(chunks)
	return result, nil
}

// IngestURL downloads url and ingests its body
func (s *Service) IngestURL(ctx context.Context, url string) (*Result, error) {
	if s == nil || s.documents == nil {
		return nil, ErrStorageNotConfigured
	}
	src, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return s.Ingest(ctx, *src)
}

// Reembed schedules every document that has chunks without embeddings
func (s *Service) Reembed(ctx context.Context) ([]*Job, error) {
	if s == nil || s.chunks == nil {
		return nil, ErrStorageNotConfigured
	}

	ids, err := s.chunks.DocumentsMissingEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.queue.Submit(ctx, id)
		if err != nil {
			return jobs, fmt.Errorf("failed to schedule document %d: %w", id, err)
		}
		jobs = append(jobs, job)
	}
	log.Printf("Scheduled embeddings for %d documents", len(jobs))
	return jobs, nil
}

// embedDocument embeds a document's unembedded chunks group by group.
// Rows written before a failure stay written.
func (s *Service) embedDocument(ctx context.Context, job *Job) error {
	pending, err := s.chunks.ListMissingEmbeddings(ctx, job.DocumentID)
	if err != nil {
		return err
	}
	job.setRunning(len(pending))

	for start := 0; start < len(pending); start += embedGroup {
		end := min(start+embedGroup, len(pending))
		group := pending[start:end]

		texts := make([]string, len(group))
		for i, c := range group {
			texts[i] = c.Content
		}

		vecs, providers, err := s.embedder.EmbedDetailed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vecs) != len(group) {
			return fmt.Errorf("embedding count mismatch: chunks=%d embeddings=%d", len(group), len(vecs))
		}

		for i, c := range group {
			provider := ""
			if i < len(providers) {
				provider = providers[i]
			}
			if err := s.chunks.UpdateEmbedding(ctx, c.ID, vecs[i], provider); err != nil {
				return fmt.Errorf("failed to store embedding for chunk %d: %w", c.ID, err)
			}
			job.recordEmbedded(provider)
		}
	}
	return nil
}
