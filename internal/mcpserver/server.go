package mcpserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DreamCats/docrag/internal/ingest"
	"github.com/DreamCats/docrag/internal/retrieval"
	"github.com/DreamCats/docrag/internal/review"
	"github.com/DreamCats/docrag/internal/store"
)

// Searcher ranks stored chunks against a query
type Searcher interface {
	Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]retrieval.Result, error)
}

// Reviewer reviews a CV against stored chunks
type Reviewer interface {
	Review(ctx context.Context, cvText string, k int) (*review.Report, error)
}

// Ingester stores documents
type Ingester interface {
	Ingest(ctx context.Context, src ingest.Source) (*ingest.Result, error)
	IngestURL(ctx context.Context, url string) (*ingest.Result, error)
}

// DocumentLister lists documents, newest first
type DocumentLister interface {
	List(ctx context.Context) ([]*store.Document, error)
}

// Deps are the services the tools call
type Deps struct {
	Searcher     Searcher
	Reviewer     Reviewer
	Ingester     Ingester
	Documents    DocumentLister
	Stats        func(ctx context.Context) (*store.DBStats, error)
	DatabasePath string
	DefaultTopK  int
}

// Server exposes docrag search and review via MCP stdio.
type Server struct {
	deps    Deps
	version string
}

// New creates a new MCP server wrapper.
func New(deps Deps, version string) *Server {
	if deps.DefaultTopK <= 0 {
		deps.DefaultTopK = 5
	}
	return &Server{deps: deps, version: version}
}

// Run starts the MCP stdio server.
func (s *Server) Run(ctx context.Context) error {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "docrag",
		Title:   "docrag",
		Version: s.version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "docrag_search",
		Description: "Search ingested documents for the chunks most similar to a query.",
	}, s.searchTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "docrag_review",
		Description: `Review a candidate CV against the knowledge base.

Returns the most relevant knowledge chunks and short recommendations
(skills to emphasize, gaps, matching training). The review is stored.`,
	}, s.reviewTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "docrag_ingest",
		Description: `Ingest a document (PDF or text) from a url or a local path.

Identical bytes are detected and return the existing document.
Set wait to block until every chunk is embedded.`,
	}, s.ingestTool)

	mcp.AddTool(server, &mcp.Tool{
		Name: "docrag_status",
		Description: `Check the state of the knowledge base.

Returns document, chunk and embedding counts, the providers that produced
the embeddings, and the time of the last ingestion.`,
	}, s.statusTool)

	return server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) searchTool(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, fmt.Errorf("query is required")
	}
	if s.deps.Searcher == nil {
		return nil, SearchOutput{}, store.ErrStorageNotConfigured
	}

	results, err := s.deps.Searcher.Search(ctx, input.Query, retrieval.SearchOptions{
		TopK:       pickInt(input.TopK, s.deps.DefaultTopK),
		DocumentID: input.DocumentID,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	items := mapResults(results)
	return nil, SearchOutput{Query: input.Query, Count: len(items), Results: items}, nil
}

func (s *Server) reviewTool(ctx context.Context, _ *mcp.CallToolRequest, input ReviewInput) (*mcp.CallToolResult, ReviewOutput, error) {
	if strings.TrimSpace(input.CVText) == "" {
		return nil, ReviewOutput{}, fmt.Errorf("cv_text is required")
	}
	if s.deps.Reviewer == nil {
		return nil, ReviewOutput{}, store.ErrStorageNotConfigured
	}

	report, err := s.deps.Reviewer.Review(ctx, input.CVText, pickInt(input.TopK, s.deps.DefaultTopK))
	if err != nil {
		return nil, ReviewOutput{}, err
	}

	return nil, ReviewOutput{
		ReviewID:        report.ReviewID,
		Summary:         report.Summary,
		Recommendations: ensureStringSlice(report.Recommendations),
		TopChunks:       mapResults(report.TopChunks),
	}, nil
}

func (s *Server) ingestTool(ctx context.Context, _ *mcp.CallToolRequest, input IngestInput) (*mcp.CallToolResult, IngestOutput, error) {
	if (input.URL == "") == (input.Path == "") {
		return nil, IngestOutput{}, fmt.Errorf("exactly one of url or path is required")
	}
	if s.deps.Ingester == nil {
		return nil, IngestOutput{}, store.ErrStorageNotConfigured
	}

	var (
		res *ingest.Result
		err error
	)
	if input.URL != "" {
		res, err = s.deps.Ingester.IngestURL(ctx, input.URL)
	} else {
		var data []byte
		data, err = os.ReadFile(input.Path)
		if err != nil {
			return nil, IngestOutput{}, fmt.Errorf("failed to read %s: %w", input.Path, err)
		}
		res, err = s.deps.Ingester.Ingest(ctx, ingest.Source{Name: filepath.Base(input.Path), Data: data})
	}
	if err != nil {
		return nil, IngestOutput{}, err
	}

	output := IngestOutput{
		DocumentID: res.DocumentID,
		Source:     res.Name,
		NumChunks:  res.Chunks,
		Duplicate:  res.Duplicate,
		JobID:      res.JobID(),
	}
	if input.Wait && res.Job != nil {
		if err := res.Job.Wait(ctx); err != nil {
			return nil, output, fmt.Errorf("embedding failed: %w", err)
		}
	}
	output.Embedded = res.Job == nil || jobDone(res.Job)
	return nil, output, nil
}

func jobDone(job *ingest.Job) bool {
	select {
	case <-job.Done():
		return job.Status().State == ingest.JobDone
	default:
		return false
	}
}

func (s *Server) statusTool(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	output := StatusOutput{DatabasePath: s.deps.DatabasePath}

	if s.deps.DatabasePath != "" {
		info, err := os.Stat(s.deps.DatabasePath)
		if err == nil {
			output.DatabaseExists = true
			output.DatabaseSize = formatBytes(info.Size())
		} else if !os.IsNotExist(err) {
			output.Notes = append(output.Notes, fmt.Sprintf("Cannot access database: %v", err))
		}
	}

	if s.deps.Stats == nil {
		output.Notes = append(output.Notes, "Storage not configured.")
		return nil, output, nil
	}

	stats, err := s.deps.Stats(ctx)
	if err != nil {
		output.Notes = append(output.Notes, fmt.Sprintf("Failed to read statistics: %v", err))
		return nil, output, nil
	}
	output.Documents = stats.DocumentCount
	output.Chunks = stats.ChunkCount
	output.EmbeddedChunks = stats.EmbeddedCount
	output.Reviews = stats.ReviewCount
	output.ByProvider = stats.ByProvider

	if s.deps.Documents != nil {
		docs, err := s.deps.Documents.List(ctx)
		if err == nil && len(docs) > 0 {
			last := docs[0].CreatedAt
			output.LastIngestedAt = last.UTC().Format(time.RFC3339)
			output.LastIngestedAge = formatDuration(time.Since(last))
		}
	}

	switch {
	case stats.DocumentCount == 0:
		output.Notes = append(output.Notes, "No documents ingested. Run 'docrag ingest' to add some.")
	case stats.EmbeddedCount < stats.ChunkCount:
		output.Notes = append(output.Notes, fmt.Sprintf(
			"%d chunks are waiting for embeddings and are not searchable yet. Run 'docrag reembed' if this persists.",
			stats.ChunkCount-stats.EmbeddedCount))
	}
	if n := stats.ByProvider["local"]; n > 0 && len(stats.ByProvider) > 1 {
		output.Notes = append(output.Notes, fmt.Sprintf(
			"Warning: %d chunks use local fallback embeddings, which rank poorly against remote ones.", n))
	}
	output.Ready = stats.EmbeddedCount > 0

	return nil, output, nil
}

// formatBytes formats bytes to human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats duration to human-readable string
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1f hours", d.Hours())
	}
	return fmt.Sprintf("%.1f days", d.Hours()/24)
}

func mapResults(results []retrieval.Result) []SearchResultItem {
	items := make([]SearchResultItem, 0, len(results))
	for _, r := range results {
		items = append(items, SearchResultItem{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			Score:      r.Score,
			Content:    r.Content,
		})
	}
	return items
}

func pickInt(input int, fallback int) int {
	if input > 0 {
		return input
	}
	return fallback
}

func ensureStringSlice(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
