// Package textindex keeps a Bleve keyword index of chunk text for hybrid search.
package textindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/DreamCats/docrag/internal/store"
)

// Index is a keyword index keyed by chunk id
type Index struct {
	index bleve.Index
}

type chunkDoc struct {
	Content    string  `json:"content"`
	Name       string  `json:"name"`
	DocumentID float64 `json:"document_id"`
}

// Open opens the index in dir, creating it when missing
func Open(dir string) (*Index, error) {
	index, err := bleve.Open(dir)
	if err == nil {
		return &Index{index: index}, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}

	// bleve.New creates dir itself and fails if it already exists
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("create text index dir: %w", err)
	}
	index, err = bleve.New(dir, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &Index{index: index}, nil
}

// NewMemory creates an in-memory index
func NewMemory() (*Index, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &Index{index: index}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "en"
	indexMapping.DefaultField = "content"

	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Store = false
	contentField.Index = true
	docMapping.AddFieldMappingsAt("content", contentField)

	nameField := bleve.NewTextFieldMapping()
	nameField.Store = true
	nameField.Index = true
	docMapping.AddFieldMappingsAt("name", nameField)

	docField := bleve.NewNumericFieldMapping()
	docField.Store = true
	docField.Index = true
	docMapping.AddFieldMappingsAt("document_id", docField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// IndexChunks adds chunks of one document in a single batch
func (x *Index) IndexChunks(name string, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := x.index.NewBatch()
	for _, c := range chunks {
		doc := chunkDoc{Content: c.Content, Name: name, DocumentID: float64(c.DocumentID)}
		if err := batch.Index(chunkKey(c.ID), doc); err != nil {
			return fmt.Errorf("index chunk %d: %w", c.ID, err)
		}
	}
	if err := x.index.Batch(batch); err != nil {
		return fmt.Errorf("apply index batch: %w", err)
	}
	return nil
}

// DeleteChunks removes chunks from the index
func (x *Index) DeleteChunks(chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	batch := x.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(chunkKey(id))
	}
	if err := x.index.Batch(batch); err != nil {
		return fmt.Errorf("apply delete batch: %w", err)
	}
	return nil
}

// SearchIDs returns ids of chunks matching query, best match first
func (x *Index) SearchIDs(ctx context.Context, query string, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 10
	}

	contentQuery := bleve.NewMatchQuery(query)
	contentQuery.SetField("content")
	contentQuery.SetBoost(1.0)
	nameQuery := bleve.NewMatchQuery(query)
	nameQuery.SetField("name")
	nameQuery.SetBoost(0.5)
	disjunction := bleve.NewDisjunctionQuery([]blevequery.Query{contentQuery, nameQuery}...)

	req := bleve.NewSearchRequestOptions(disjunction, limit, 0, false)
	res, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	ids := make([]int64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Count returns the number of indexed chunks
func (x *Index) Count() (uint64, error) {
	return x.index.DocCount()
}

// Close closes the index
func (x *Index) Close() error {
	return x.index.Close()
}

func chunkKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
