package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DreamCats/docrag/cmd/docrag/internal"
	"github.com/DreamCats/docrag/internal/config"
	"github.com/DreamCats/docrag/internal/mcpserver"
	"github.com/DreamCats/docrag/internal/store"
)

// handleMCP implements the MCP stdio server subcommand
func handleMCP(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    docrag mcp

DESCRIPTION:
    Run an MCP stdio server exposing:
      - docrag_search
      - docrag_review
      - docrag_ingest
      - docrag_status
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx := openIndexer(cfg)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = idx.Close(drainCtx)
	}()

	documents, _, _ := idx.GetStores()
	server := mcpserver.New(mcpserver.Deps{
		Searcher:  idx.Searcher(),
		Reviewer:  idx.Reviewer(),
		Ingester:  idx.Ingest(),
		Documents: documents,
		Stats: func(ctx context.Context) (*store.DBStats, error) {
			stats, err := idx.Stats(ctx)
			if err != nil {
				return nil, err
			}
			return stats.Database, nil
		},
		DatabasePath: idx.DatabasePath(),
		DefaultTopK:  cfg.Search.DefaultTopK,
	}, internal.Version)

	if err := server.Run(ctx); err != nil {
		log.Printf("MCP server failed: %v", err)
	}
}
