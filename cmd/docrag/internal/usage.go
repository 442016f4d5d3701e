package internal

import (
	"fmt"
	"os"
	"strings"
)

const Version = "0.3.0"

// PrintUsage 向 stderr 输出 docrag 的用法与可用子命令列表。
func PrintUsage() {
	fmt.Fprintf(os.Stderr, `docrag - Document ingestion, semantic search and CV review

Version: %s

USAGE:
    docrag [global options] <command> [command options]

GLOBAL OPTIONS:
    -config <path>
        Path to config file (default: ~/.docrag/config/docrag.yaml)

    -db <path>
        Override database path (default: ~/.docrag/data/docrag.db)

    -v, -version
        Show version information

    -h, -help
        Show this help message

ENVIRONMENT:
    DOCRAG_LOG_DIR
        Run log directory (default: ~/.docrag/logs, "off" logs to stderr only)

COMMANDS:
    ingest
        Ingest a file, a directory or a URL

    search
        Search ingested chunks

    review
        Review a CV against the knowledge base

    docs
        List ingested documents, show a chunk, delete one document or clear all

    reembed
        Embed chunks still waiting for a vector

    watch
        Watch a directory and ingest new or changed files

    stats
        Show database and embedding statistics

    serve
        Run the HTTP API

    mcp
        Run MCP stdio server (tools: docrag_search, docrag_review, docrag_ingest, docrag_status)

EXAMPLES:
    # Ingest a directory of PDFs and notes
    docrag ingest ./docs

    # Ingest a remote PDF and wait for its embeddings
    docrag ingest -url https://example.com/handbook.pdf -wait

    # Search
    docrag search "onboarding checklist" -k 3

    # Review a CV
    docrag review ./cv.txt

    # Serve the HTTP API
    docrag serve -addr :8080

For detailed help on each command, use:
    docrag <command> -help
`, Version)
}

// StringList is a flag.Value that collects multiple strings
type StringList []string

// String 返回 StringList 的逗号连接形式。
func (s *StringList) String() string {
	return strings.Join(*s, ",")
}

// Set 将单个字符串追加到 StringList，允许多次传入同一个 flag。
func (s *StringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}
