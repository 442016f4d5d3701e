package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/DreamCats/docrag/internal/config"
)

// handleStats implements the stats subcommand
func handleStats(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	var jsonOutput bool
	fs.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    docrag stats [options]

DESCRIPTION:
    Show statistics about the knowledge base.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    docrag stats
    docrag stats -json
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	idx := openIndexer(cfg)
	defer closeIndexer(idx, false)

	stats, err := idx.Stats(context.Background())
	if err != nil {
		log.Fatalf("Failed to get stats: %v", err)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	db := stats.Database
	fmt.Println("📊 Knowledge Base Statistics")
	fmt.Println()
	fmt.Printf("Database:   %s (%.1f KB)\n", idx.DatabasePath(), float64(db.SizeBytes)/1024)
	fmt.Printf("Documents:  %6d\n", db.DocumentCount)
	fmt.Printf("Chunks:     %6d\n", db.ChunkCount)
	fmt.Printf("Embedded:   %6d\n", db.EmbeddedCount)
	fmt.Printf("Reviews:    %6d\n", db.ReviewCount)

	if len(db.ByProvider) > 0 {
		fmt.Println("\nEmbeddings by provider:")
		names := make([]string, 0, len(db.ByProvider))
		for name := range db.ByProvider {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("   %-12s %6d\n", name, db.ByProvider[name])
		}
	}

	fmt.Println()
	if len(stats.Providers) == 0 {
		fmt.Printf("Providers:  none (local fallback, dim %d)\n", stats.Fallback)
	} else {
		fmt.Printf("Providers:  %v (fallback dim %d)\n", stats.Providers, stats.Fallback)
	}
}
