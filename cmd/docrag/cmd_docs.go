package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/DreamCats/docrag/internal/config"
)

// handleDocs implements the docs subcommand
func handleDocs(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("docs", flag.ExitOnError)
	deleteID := fs.Int64("delete", 0, "Delete the document with this id, with its chunks")
	chunkID := fs.Int64("chunk", 0, "Print the chunk with this id")
	clearAll := fs.Bool("clear", false, "Delete every document, chunk and review")
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    docrag docs [options]

DESCRIPTION:
    List ingested documents, newest first, show one chunk, or delete
    documents.

OPTIONS:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	idx := openIndexer(cfg)
	defer closeIndexer(idx, false)
	ctx := context.Background()

	if *deleteID > 0 {
		if err := idx.DeleteDocument(ctx, *deleteID); err != nil {
			log.Fatalf("Delete failed: %v", err)
		}
		fmt.Printf("🗑️  Deleted document %d\n", *deleteID)
		return
	}

	if *clearAll {
		if err := idx.Clear(ctx); err != nil {
			log.Fatalf("Clear failed: %v", err)
		}
		fmt.Println("🗑️  Cleared the knowledge base")
		return
	}

	if *chunkID > 0 {
		c, err := idx.Chunk(ctx, *chunkID)
		if err != nil {
			log.Fatalf("Failed to get chunk: %v", err)
		}
		if *jsonOutput {
			jsonData, _ := json.MarshalIndent(c, "", "  ")
			fmt.Println(string(jsonData))
			return
		}
		fmt.Printf("Chunk %d of document %d (position %d, %d chars)\n", c.ID, c.DocumentID, c.Position, c.Length)
		if c.Embedded() {
			fmt.Printf("Embedded by %s, dim %d\n", c.Provider, len(c.Embedding))
		} else {
			fmt.Println("Not embedded yet")
		}
		fmt.Printf("\n%s\n", c.Content)
		return
	}

	documents, _, _ := idx.GetStores()
	docs, err := documents.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list documents: %v", err)
	}

	if *jsonOutput {
		jsonData, _ := json.MarshalIndent(docs, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(docs) == 0 {
		fmt.Println("No documents ingested yet")
		return
	}
	fmt.Printf("%-6s %-7s %-9s %-20s %s\n", "ID", "CHUNKS", "EMBEDDED", "CREATED", "NAME")
	for _, d := range docs {
		name := d.Name
		if d.SourceURL != "" {
			name += "  <" + d.SourceURL + ">"
		}
		fmt.Printf("%-6d %-7d %-9d %-20s %s\n", d.ID, d.ChunkCount, d.EmbeddedCount,
			d.CreatedAt.Local().Format("2006-01-02 15:04:05"), name)
	}
}
