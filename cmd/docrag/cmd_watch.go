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
	"github.com/DreamCats/docrag/internal/ingest"
)

// handleWatch implements the watch subcommand
func handleWatch(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	initial := fs.Bool("initial", true, "Ingest existing files before watching")
	var include, exclude internal.StringList
	fs.Var(&include, "include", "Glob of files to ingest (repeatable, replaces config)")
	fs.Var(&exclude, "exclude", "Glob of files to skip (repeatable, added to config)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    docrag watch [options] <directory>

DESCRIPTION:
    Watch a directory and ingest files as they are created or changed.
    Unchanged content is detected by checksum and skipped. Press Ctrl+C
    to stop; pending embeddings are finished before exit.

OPTIONS:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	root, err := internal.ResolvePath(fs.Arg(0))
	if err != nil {
		log.Fatalf("Watch failed: %v", err)
	}
	if len(include) > 0 {
		cfg.Ingest.Include = include
	}
	cfg.Ingest.Exclude = append(cfg.Ingest.Exclude, exclude...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx := openIndexer(cfg)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = idx.Close(drainCtx)
	}()

	service := idx.Ingest()
	watcher, err := service.NewWatcher(root)
	if err != nil {
		log.Printf("Watch failed: %v", err)
		return
	}
	defer watcher.Close()

	if *initial {
		summary, err := service.IngestDir(ctx, root, nil)
		if err != nil {
			log.Printf("Warning: initial ingest stopped: %v", err)
		}
		if summary != nil {
			fmt.Printf("📂 %d file(s): %d new, %d already ingested, %d failed\n",
				summary.Files, summary.Ingested, summary.Duplicates, len(summary.Failed))
		}
	}

	fmt.Printf("👀 Watching %s (Ctrl+C to stop)\n", root)
	err = watcher.Watch(ctx, func(rel string, res *ingest.Result, err error) {
		switch {
		case err != nil:
			fmt.Printf("⚠️  %s: %v\n", rel, err)
		case res.Duplicate:
			fmt.Printf("♻️  %s unchanged (document %d)\n", rel, res.DocumentID)
		default:
			fmt.Printf("📄 %s → document %d, %d chunks\n", rel, res.DocumentID, res.Chunks)
		}
	})
	if err != nil {
		log.Printf("Watch stopped: %v", err)
	}
}
