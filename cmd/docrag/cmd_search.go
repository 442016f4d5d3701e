package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/DreamCats/docrag/internal/config"
	"github.com/DreamCats/docrag/internal/retrieval"
)

// handleSearch implements the search subcommand
func handleSearch(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)

	var topK int
	var documentID int64
	var keywordWeight float64
	var jsonOutput, verbose bool

	fs.IntVar(&topK, "k", cfg.Search.DefaultTopK, "Number of results to return")
	fs.Int64Var(&documentID, "doc", 0, "Restrict search to one document id")
	fs.Float64Var(&keywordWeight, "keyword-weight", float64(cfg.Search.KeywordWeight), "Weight of keyword matches (needs search.text_index_dir)")
	fs.BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	fs.BoolVar(&verbose, "v", false, "Show full chunk content")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    docrag search [options] "<query>"

DESCRIPTION:
    Embed the query and rank stored chunks by cosine similarity.
    With a keyword index configured, keyword matches can be blended in.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    docrag search "vacation policy"
    docrag search "kubernetes" -k 10 -json
    docrag search "refund" -doc 3
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: search query is required\n\n")
		fs.Usage()
		os.Exit(1)
	}
	query := strings.Join(fs.Args(), " ")

	idx := openIndexer(cfg)
	defer closeIndexer(idx, false)

	opts := retrieval.SearchOptions{
		TopK:          topK,
		DocumentID:    documentID,
		VectorWeight:  cfg.Search.VectorWeight,
		KeywordWeight: float32(keywordWeight),
	}

	results, err := idx.Searcher().Search(context.Background(), query, opts)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}

	if jsonOutput {
		outputJSON(results, query, topK)
	} else {
		outputText(results, query, verbose)
	}
}

// outputText outputs search results as human-readable text
func outputText(results []retrieval.Result, query string, verbose bool) {
	if len(results) == 0 {
		fmt.Println("No results found")
		return
	}

	fmt.Printf("Found %d result(s) for: %s\n\n", len(results), query)

	for i, result := range results {
		fmt.Printf("%d. chunk %d (document %d)  score %.3f\n", i+1, result.ChunkID, result.DocumentID, result.Score)
		content := result.Content
		if !verbose {
			content = preview(content, 200)
		}
		for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
			fmt.Printf("   %s\n", line)
		}
		fmt.Println()
	}
}

// outputJSON mirrors the HTTP search response
func outputJSON(results []retrieval.Result, query string, k int) {
	if results == nil {
		results = []retrieval.Result{}
	}
	output := map[string]any{
		"query":   query,
		"k":       k,
		"results": results,
	}
	jsonData, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal JSON: %v", err)
	}
	fmt.Println(string(jsonData))
}

func preview(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
