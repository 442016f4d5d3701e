package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/DreamCats/docrag/internal/progress"
)

// DirSummary reports a directory ingestion
type DirSummary struct {
	Files      int
	Ingested   int
	Duplicates int
	Chunks     int
	Failed     map[string]error
	Results    []*Result
}

// Filter returns the configured include/exclude filter
func (s *Service) Filter() Filter {
	return Filter{Include: s.cfg.Ingest.Include, Exclude: s.cfg.Ingest.Exclude}
}

// IngestDir ingests every file under root accepted by the configured filter.
// A failing file is logged and recorded, the walk continues.
func (s *Service) IngestDir(ctx context.Context, root string, rep progress.Reporter) (*DirSummary, error) {
	if s == nil || s.documents == nil {
		return nil, ErrStorageNotConfigured
	}
	if rep == nil {
		rep = progress.Nop{}
	}

	filter := s.Filter()
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	files, err := collectFiles(root, filter)
	if err != nil {
		return nil, err
	}
	log.Printf("Found %d files to ingest under %s", len(files), root)

	summary := &DirSummary{Files: len(files), Failed: make(map[string]error)}
	rep.Start(len(files))
	defer rep.Finish()

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		rep.Describe(rel)

		result, err := s.IngestFile(ctx, filepath.Join(root, rel))
		rep.Increment()
		if err != nil {
			log.Printf("Warning: failed to ingest %s: %v", rel, err)
			summary.Failed[rel] = err
			continue
		}

		summary.Results = append(summary.Results, result)
		if result.Duplicate {
			summary.Duplicates++
		} else {
			summary.Ingested++
			summary.Chunks += result.Chunks
		}
	}

	return summary, nil
}

// IngestFile reads and ingests one file, named by its base name
func (s *Service) IngestFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.Ingest(ctx, Source{Name: filepath.Base(path), Data: data})
}

// collectFiles returns root-relative paths in walk order
func collectFiles(root string, filter Filter) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel != "." && len(d.Name()) > 0 && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if filter.Match(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}
