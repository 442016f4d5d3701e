package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/DreamCats/docrag/cmd/docrag/internal"
	"github.com/DreamCats/docrag/internal/config"
	"github.com/DreamCats/docrag/internal/ingest"
	"github.com/DreamCats/docrag/internal/progress"
)

// handleIngest implements the ingest subcommand
func handleIngest(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	url := fs.String("url", "", "Download and ingest a URL instead of a local path")
	deferEmbed := fs.Bool("defer-embed", false, "Store chunks without waiting for embeddings (run `docrag reembed` later)")
	jsonOutput := fs.Bool("json", false, "Output results as JSON")
	quiet := fs.Bool("q", false, "Disable the progress bar")
	var include, exclude internal.StringList
	fs.Var(&include, "include", "Glob of files to ingest from a directory (repeatable, replaces config)")
	fs.Var(&exclude, "exclude", "Glob of files to skip (repeatable, added to config)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    docrag ingest [options] <file|directory>
    docrag ingest [options] -url <url>

DESCRIPTION:
    Ingest documents into the knowledge base.
    This will:
      1. Skip content already stored (SHA-256 of the raw bytes)
      2. Extract text from PDF or plain text
      3. Split the text into overlapping chunks
      4. Embed the chunks in the background

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Ingest one PDF
    docrag ingest ./handbook.pdf

    # Ingest a directory, markdown only
    docrag ingest -include "**/*.md" ./notes

    # Ingest a URL
    docrag ingest -url https://example.com/paper.pdf
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	if *url == "" && fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	if len(include) > 0 {
		cfg.Ingest.Include = include
	}
	cfg.Ingest.Exclude = append(cfg.Ingest.Exclude, exclude...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	idx := openIndexer(cfg)
	service := idx.Ingest()
	startTime := time.Now()

	var results []*ingest.Result
	switch {
	case *url != "":
		if !*jsonOutput {
			fmt.Printf("🌐 Downloading %s\n", *url)
		}
		res, err := service.IngestURL(ctx, *url)
		if err != nil {
			closeIndexer(idx, false)
			log.Fatalf("Ingest failed: %v", err)
		}
		results = append(results, res)

	default:
		path, err := internal.ResolvePath(fs.Arg(0))
		if err != nil {
			closeIndexer(idx, false)
			log.Fatalf("Ingest failed: %v", err)
		}

		if internal.IsDir(path) {
			if !*jsonOutput {
				fmt.Printf("📂 Ingesting directory: %s\n\n", path)
			}
			rep := progress.New(!*quiet && !*jsonOutput && progress.Enabled(), "Ingesting")
			summary, err := service.IngestDir(ctx, path, rep)
			if err != nil && summary == nil {
				closeIndexer(idx, false)
				log.Fatalf("Ingest failed: %v", err)
			}
			results = summary.Results
			if len(summary.Failed) > 0 && !*jsonOutput {
				printFailures(summary.Failed)
			}
		} else {
			res, err := service.IngestFile(ctx, path)
			if err != nil {
				closeIndexer(idx, false)
				log.Fatalf("Ingest failed: %v", err)
			}
			results = append(results, res)
		}
	}

	if !*deferEmbed {
		waitForJobs(ctx, results, !*quiet && !*jsonOutput && progress.Enabled())
	}
	closeIndexer(idx, !*deferEmbed)

	if *jsonOutput {
		printIngestJSON(results)
		return
	}
	printIngestSummary(results, time.Since(startTime), *deferEmbed)
}

// waitForJobs 等待所有 embedding 任务完成，失败只记录日志（chunk 保留，可 reembed）。
func waitForJobs(ctx context.Context, results []*ingest.Result, showSpinner bool) {
	var pending []*ingest.Job
	for _, res := range results {
		if res.Job != nil {
			pending = append(pending, res.Job)
		}
	}
	if len(pending) == 0 {
		return
	}

	stop := progress.StartSpinner(showSpinner, fmt.Sprintf("Embedding %d document(s)", len(pending)))
	defer stop()

	for _, job := range pending {
		if err := job.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Warning: embedding job %s for document %d failed: %v", job.ID, job.DocumentID, err)
		}
	}
}

func printIngestJSON(results []*ingest.Result) {
	type item struct {
		*ingest.Result
		JobID string            `json:"job_id,omitempty"`
		Job   *ingest.JobStatus `json:"job,omitempty"`
	}
	out := make([]item, 0, len(results))
	for _, res := range results {
		it := item{Result: res, JobID: res.JobID()}
		if res.Job != nil {
			st := res.Job.Status()
			it.Job = &st
		}
		out = append(out, it)
	}
	jsonData, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(jsonData))
}

func printIngestSummary(results []*ingest.Result, duration time.Duration, deferred bool) {
	var ingested, duplicates, chunks, embedded int
	for _, res := range results {
		if res.Duplicate {
			duplicates++
			fmt.Printf("♻️  %s (document %d, already ingested)\n", res.Name, res.DocumentID)
			continue
		}
		ingested++
		chunks += res.Chunks
		if res.Job != nil {
			embedded += res.Job.Status().Embedded
		}
		fmt.Printf("📄 %s (document %d, %d chunks)\n", res.Name, res.DocumentID, res.Chunks)
	}

	fmt.Println()
	fmt.Println("✅ Ingest completed!")
	fmt.Printf("\n⏱️  Duration: %v\n", duration.Round(time.Millisecond))
	fmt.Println("\n📊 Statistics:")
	fmt.Printf("   Documents:  %6d\n", ingested)
	fmt.Printf("   Duplicates: %6d\n", duplicates)
	fmt.Printf("   Chunks:     %6d\n", chunks)
	if deferred {
		fmt.Println("\n💡 Embeddings deferred, run `docrag reembed` to compute them.")
	} else {
		fmt.Printf("   Embedded:   %6d\n", embedded)
	}
}

func printFailures(failed map[string]error) {
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("⚠️  %d file(s) failed:\n", len(names))
	for _, name := range names {
		fmt.Printf("   %s: %v\n", name, failed[name])
	}
	fmt.Println()
}
