// Package indexer wires storage, embedding, keyword index, ingestion,
// search and review into one handle for the CLI and servers.
package indexer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/DreamCats/docrag/internal/config"
	"github.com/DreamCats/docrag/internal/embedding"
	"github.com/DreamCats/docrag/internal/ingest"
	"github.com/DreamCats/docrag/internal/retrieval"
	"github.com/DreamCats/docrag/internal/review"
	"github.com/DreamCats/docrag/internal/store"
	"github.com/DreamCats/docrag/internal/textindex"
)

// Indexer owns every long-lived component of a docrag process
type Indexer struct {
	cfg           *config.Config
	db            *store.DB
	embedService  *embedding.Service
	textIndex     *textindex.Index // nil when keyword search is disabled
	documentStore *store.DocumentStore
	chunkStore    *store.ChunkStore
	reviewStore   *store.ReviewStore
	ingestService *ingest.Service
	searcher      *retrieval.Searcher
	reviewer      *review.Reviewer
}

// NewIndexer opens the database and builds the services on top of it
func NewIndexer(cfg *config.Config) (*Indexer, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		if dbPath, err = store.DefaultPath(); err != nil {
			return nil, err
		}
	}

	// Open database
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create embedding service
	embedService, err := embedding.NewService(&cfg.Embedding)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	idx := &Indexer{
		cfg:           cfg,
		db:            db,
		embedService:  embedService,
		documentStore: store.NewDocumentStore(db),
		chunkStore:    store.NewChunkStore(db),
		reviewStore:   store.NewReviewStore(db),
	}

	// Keyword index is optional
	var ingestOpts []ingest.Option
	searchOpts := []retrieval.SearcherOption{
		retrieval.WithQueryCache(cfg.Search.QueryCacheSize),
		retrieval.WithDefaults(retrieval.SearchOptions{
			TopK:          cfg.Search.DefaultTopK,
			VectorWeight:  cfg.Search.VectorWeight,
			KeywordWeight: cfg.Search.KeywordWeight,
		}),
	}
	if cfg.Search.TextIndexDir != "" {
		ti, err := textindex.Open(cfg.Search.TextIndexDir)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to open text index: %w", err)
		}
		idx.textIndex = ti
		ingestOpts = append(ingestOpts, ingest.WithTextIndex(ti))
		searchOpts = append(searchOpts, retrieval.WithKeywordIndex(ti))
	}

	ingestService, err := ingest.NewService(cfg, db, embedService, ingestOpts...)
	if err != nil {
		idx.closeStorage()
		return nil, fmt.Errorf("failed to create ingest service: %w", err)
	}
	idx.ingestService = ingestService

	idx.searcher = retrieval.NewSearcher(embedService, idx.chunkStore, searchOpts...)
	idx.reviewer = review.NewReviewer(idx.searcher, review.NewSynthesizer(&cfg.Review), idx.reviewStore)

	return idx, nil
}

// SyncTextIndex fills an empty keyword index from stored chunks
func (idx *Indexer) SyncTextIndex(ctx context.Context) error {
	if idx.textIndex == nil {
		return nil
	}
	count, err := idx.textIndex.Count()
	if err != nil {
		return fmt.Errorf("failed to count text index: %w", err)
	}
	if count > 0 {
		return nil
	}

	docs, err := idx.documentStore.List(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	startTime := time.Now()
	total := 0
	for _, doc := range docs {
		chunks, err := idx.chunkStore.ListByDocument(ctx, doc.ID)
		if err != nil {
			return err
		}
		if err := idx.textIndex.IndexChunks(doc.Name, chunks); err != nil {
			return fmt.Errorf("failed to index document %d: %w", doc.ID, err)
		}
		total += len(chunks)
	}
	log.Printf("Rebuilt text index: %d chunks from %d documents in %v", total, len(docs), time.Since(startTime))
	return nil
}

// DeleteDocument removes a document, its chunks and their keyword entries
func (idx *Indexer) DeleteDocument(ctx context.Context, id int64) error {
	doc, err := idx.documentStore.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document not found: %d", id)
	}

	if idx.textIndex != nil {
		chunks, err := idx.chunkStore.ListByDocument(ctx, id)
		if err != nil {
			return err
		}
		ids := make([]int64, len(chunks))
		for i, c := range chunks {
			ids[i] = c.ID
		}
		if err := idx.textIndex.DeleteChunks(ids); err != nil {
			log.Printf("Warning: failed to remove document %d from text index: %v", id, err)
		}
	}

	return idx.documentStore.Delete(ctx, id)
}

// Clear removes every document, chunk and review, and empties the keyword index
func (idx *Indexer) Clear(ctx context.Context) error {
	if idx.textIndex != nil {
		chunks, err := idx.chunkStore.ListAll(ctx)
		if err != nil {
			return err
		}
		ids := make([]int64, len(chunks))
		for i, c := range chunks {
			ids[i] = c.ID
		}
		if err := idx.textIndex.DeleteChunks(ids); err != nil {
			return fmt.Errorf("failed to clear text index: %w", err)
		}
	}
	return idx.db.Clear(ctx)
}

// Chunk returns one stored chunk with its embedding
func (idx *Indexer) Chunk(ctx context.Context, id int64) (*store.Chunk, error) {
	c, err := idx.chunkStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("chunk not found: %d", id)
	}
	return c, nil
}

// Stats is the combined storage and embedding report
type Stats struct {
	Database  *store.DBStats  `json:"database"`
	Embedding embedding.Stats `json:"embedding"`
	Providers []string        `json:"providers"`
	Fallback  int             `json:"fallback_dim"`
}

// Stats reports counters of the database and the embedding service
func (idx *Indexer) Stats(ctx context.Context) (*Stats, error) {
	dbStats, err := idx.db.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Database:  dbStats,
		Embedding: idx.embedService.Stats(),
		Providers: idx.embedService.Providers(),
		Fallback:  idx.embedService.FallbackDim(),
	}, nil
}

// Close drains pending embedding jobs within ctx and closes storage
func (idx *Indexer) Close(ctx context.Context) error {
	var firstErr error
	if idx.ingestService != nil {
		if err := idx.ingestService.Close(ctx); err != nil {
			log.Printf("Warning: embedding jobs did not finish: %v", err)
			firstErr = err
		}
	}
	if err := idx.closeStorage(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (idx *Indexer) closeStorage() error {
	var firstErr error
	if idx.textIndex != nil {
		if err := idx.textIndex.Close(); err != nil {
			firstErr = err
		}
	}
	if err := idx.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Config returns the configuration the indexer was built with
func (idx *Indexer) Config() *config.Config { return idx.cfg }

// DatabasePath returns the path of the open database
func (idx *Indexer) DatabasePath() string { return idx.db.Path() }

// Ingest returns the ingestion service
func (idx *Indexer) Ingest() *ingest.Service { return idx.ingestService }

// Searcher returns the chunk searcher
func (idx *Indexer) Searcher() *retrieval.Searcher { return idx.searcher }

// Reviewer returns the CV reviewer
func (idx *Indexer) Reviewer() *review.Reviewer { return idx.reviewer }

// GetStores returns the document, chunk and review stores
func (idx *Indexer) GetStores() (*store.DocumentStore, *store.ChunkStore, *store.ReviewStore) {
	return idx.documentStore, idx.chunkStore, idx.reviewStore
}

// GetEmbedService returns the embedding service
func (idx *Indexer) GetEmbedService() *embedding.Service { return idx.embedService }
