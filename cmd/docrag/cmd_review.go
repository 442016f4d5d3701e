package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/DreamCats/docrag/cmd/docrag/internal"
	"github.com/DreamCats/docrag/internal/config"
	"github.com/DreamCats/docrag/internal/extract"
)

// handleReview implements the review subcommand
func handleReview(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	topK := fs.Int("k", cfg.Search.DefaultTopK, "Number of knowledge chunks to compare against")
	jsonOutput := fs.Bool("json", false, "Output the report as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    docrag review [options] <cv file | ->

DESCRIPTION:
    Compare a CV (PDF or text, "-" reads stdin) with the most similar
    knowledge chunks and print recommendations. The review is stored.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    docrag review ./cv.pdf
    cat cv.txt | docrag review -json -
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	name := fs.Arg(0)
	data, err := internal.ReadInput(name)
	if err != nil {
		log.Fatalf("Failed to read CV: %v", err)
	}
	cvText, err := extract.Text(ctx, extract.NewRegistry(), name, data)
	if err != nil {
		log.Fatalf("Failed to extract CV text: %v", err)
	}

	idx := openIndexer(cfg)
	defer closeIndexer(idx, false)

	report, err := idx.Reviewer().Review(ctx, cvText, *topK)
	if err != nil {
		log.Fatalf("Review failed: %v", err)
	}

	if *jsonOutput {
		jsonData, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Printf("📝 Review %d\n\n", report.ReviewID)
	fmt.Println("Summary:")
	fmt.Printf("   %s\n\n", preview(report.Summary, 400))
	fmt.Println("Recommendations:")
	for _, rec := range report.Recommendations {
		fmt.Printf("   • %s\n", rec)
	}
	if len(report.TopChunks) > 0 {
		fmt.Println("\nBased on:")
		for _, c := range report.TopChunks {
			fmt.Printf("   chunk %d (document %d)  score %.3f  %s\n", c.ChunkID, c.DocumentID, c.Score, preview(c.Content, 80))
		}
	}
}
