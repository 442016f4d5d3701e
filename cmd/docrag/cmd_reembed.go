package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/DreamCats/docrag/internal/config"
	"github.com/DreamCats/docrag/internal/ingest"
	"github.com/DreamCats/docrag/internal/progress"
)

// handleReembed implements the reembed subcommand
func handleReembed(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("reembed", flag.ExitOnError)
	quiet := fs.Bool("q", false, "Disable the spinner")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    docrag reembed

DESCRIPTION:
    Embed every stored chunk that has no vector yet, e.g. after
    "docrag ingest -defer-embed" or when all providers were down.
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	idx := openIndexer(cfg)
	defer closeIndexer(idx, true)

	jobs, err := idx.Ingest().Reembed(ctx)
	if err != nil {
		log.Fatalf("Reembed failed: %v", err)
	}
	if len(jobs) == 0 {
		fmt.Println("✅ Every chunk already has an embedding")
		return
	}

	results := make([]*ingest.Result, len(jobs))
	for i, job := range jobs {
		results[i] = &ingest.Result{DocumentID: job.DocumentID, Job: job}
	}
	waitForJobs(ctx, results, !*quiet && progress.Enabled())

	var embedded, failed int
	for _, job := range jobs {
		st := job.Status()
		embedded += st.Embedded
		if st.State == ingest.JobFailed {
			failed++
		}
	}
	fmt.Printf("✅ Embedded %d chunk(s) across %d document(s)\n", embedded, len(jobs))
	if failed > 0 {
		fmt.Printf("⚠️  %d document(s) still have missing embeddings, see the log\n", failed)
	}
}
