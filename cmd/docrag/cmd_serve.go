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

	"github.com/DreamCats/docrag/internal/config"
	"github.com/DreamCats/docrag/internal/server"
)

// handleServe implements the serve subcommand
func handleServe(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Server.Addr, "Listen address")
	drain := fs.Duration("drain", 30*time.Second, "How long to wait for embedding jobs on shutdown")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    docrag serve [options]

DESCRIPTION:
    Run the HTTP API:
      GET  /health
      POST /ingest/url          {"url": "..."}
      POST /ingest/file         multipart field "file"
      GET  /ingest/jobs/{id}
      POST /ingest/search       {"query": "...", "k": 5}
      POST /ingest/cv/review    {"cv_text": "...", "k": 5}
      GET  /stats

OPTIONS:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx := openIndexer(cfg)

	srv := server.New(server.Deps{
		Ingester: idx.Ingest(),
		Searcher: idx.Searcher(),
		Reviewer: idx.Reviewer(),
		Stats: func(ctx context.Context) (any, error) {
			stats, err := idx.Stats(ctx)
			if err != nil {
				return nil, err
			}
			return stats, nil
		},
		MaxUpload: cfg.Ingest.MaxDownloadBytes,
	})

	err := srv.ListenAndServe(ctx, *addr)

	drainCtx, cancel := context.WithTimeout(context.Background(), *drain)
	defer cancel()
	if closeErr := idx.Close(drainCtx); closeErr != nil {
		log.Printf("Warning: %v", closeErr)
	}

	if err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
