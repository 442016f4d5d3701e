package mcpserver

// SearchInput defines inputs for the docrag_search MCP tool.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"search query (natural language or keywords)"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"number of results to return"`
	DocumentID int64  `json:"document_id,omitempty" jsonschema:"restrict results to one document (optional)"`
}

// SearchResultItem is a compact representation of a search result.
type SearchResultItem struct {
	ChunkID    int64   `json:"chunk_id"`
	DocumentID int64   `json:"document_id"`
	Score      float32 `json:"score"`
	Content    string  `json:"content"`
}

// SearchOutput is the output for docrag_search.
type SearchOutput struct {
	Query   string             `json:"query"`
	Count   int                `json:"count"`
	Results []SearchResultItem `json:"results"`
}

// ReviewInput defines inputs for the docrag_review MCP tool.
type ReviewInput struct {
	CVText string `json:"cv_text" jsonschema:"full text of the CV to review"`
	TopK   int    `json:"top_k,omitempty" jsonschema:"number of knowledge chunks to ground the review on"`
}

// ReviewOutput is the output for docrag_review.
type ReviewOutput struct {
	ReviewID        int64              `json:"review_id,omitempty"`
	Summary         string             `json:"cv_summary"`
	Recommendations []string           `json:"recommendations"`
	TopChunks       []SearchResultItem `json:"top_chunks"`
}

// IngestInput defines inputs for the docrag_ingest MCP tool.
type IngestInput struct {
	URL  string `json:"url,omitempty" jsonschema:"http(s) url of a document to download"`
	Path string `json:"path,omitempty" jsonschema:"local file path of a document"`
	Wait bool   `json:"wait,omitempty" jsonschema:"wait until the chunks are embedded"`
}

// IngestOutput is the output for docrag_ingest.
type IngestOutput struct {
	DocumentID int64  `json:"document_id"`
	Source     string `json:"source"`
	NumChunks  int    `json:"num_chunks"`
	Duplicate  bool   `json:"duplicate"`
	JobID      string `json:"job_id,omitempty"`
	Embedded   bool   `json:"embedded"`
}

// StatusInput defines inputs for the docrag_status MCP tool.
type StatusInput struct{}

// StatusOutput reports the state of the knowledge base.
type StatusOutput struct {
	DatabasePath    string           `json:"database_path"`
	DatabaseExists  bool             `json:"database_exists"`
	DatabaseSize    string           `json:"database_size,omitempty"`
	Documents       int64            `json:"documents"`
	Chunks          int64            `json:"chunks"`
	EmbeddedChunks  int64            `json:"embedded_chunks"`
	Reviews         int64            `json:"reviews"`
	ByProvider      map[string]int64 `json:"by_provider,omitempty"`
	LastIngestedAt  string           `json:"last_ingested_at,omitempty"`
	LastIngestedAge string           `json:"last_ingested_age,omitempty"`
	Ready           bool             `json:"ready"`
	Notes           []string         `json:"notes,omitempty"`
}
