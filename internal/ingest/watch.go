package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// WatchFunc receives the outcome of each file ingested by a Watcher
type WatchFunc func(rel string, res *Result, err error)

// Watcher ingests files under a directory as they are created or written.
// Removed files are ignored; their documents stay in the store.
type Watcher struct {
	service  *Service
	root     string
	filter   Filter
	debounce time.Duration
	fw       *fsnotify.Watcher
}

// NewWatcher starts watching root and every non-hidden directory below it
func (s *Service) NewWatcher(root string) (*Watcher, error) {
	if s == nil || s.documents == nil {
		return nil, ErrStorageNotConfigured
	}

	filter := s.Filter()
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", absRoot)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		service:  s,
		root:     absRoot,
		filter:   filter,
		debounce: defaultDebounce,
		fw:       fw,
	}
	if err := w.addTree(absRoot); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the watched directory
func (w *Watcher) Root() string { return w.root }

// Close stops watching
func (w *Watcher) Close() error {
	return w.fw.Close()
}

// Watch ingests accepted files once they have been quiet for the debounce
// interval. It blocks until ctx is done or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context, onResult WatchFunc) error {
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				if _, hidden := w.relative(event.Name); !hidden {
					if err := w.addTree(event.Name); err != nil {
						log.Printf("Warning: failed to watch %s: %v", event.Name, err)
					}
					// Files can land in the directory before it is watched
					w.queueTree(event.Name, pending)
				}
				continue
			}
			if rel, ok := w.accept(event); ok {
				pending[rel] = time.Now()
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("Warning: watch error: %v", err)

		case now := <-ticker.C:
			for rel, at := range pending {
				if now.Sub(at) < w.debounce {
					continue
				}
				delete(pending, rel)
				res, err := w.service.IngestFile(ctx, filepath.Join(w.root, rel))
				if err != nil {
					log.Printf("Warning: failed to ingest %s: %v", rel, err)
				} else if !res.Duplicate {
					log.Printf("Ingested %s as document %d (%d chunks)", rel, res.DocumentID, res.Chunks)
				}
				if onResult != nil {
					onResult(rel, res, err)
				}
			}
		}
	}
}

// accept returns the root-relative path of a created or written regular file
// that passes the filter.
func (w *Watcher) accept(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return w.match(event.Name)
}

// match returns the root-relative path when path is visible and passes the filter
func (w *Watcher) match(path string) (string, bool) {
	rel, hidden := w.relative(path)
	if hidden || rel == "" || !w.filter.Match(rel) {
		return "", false
	}
	return rel, true
}

// queueTree marks every accepted regular file below dir as pending
func (w *Watcher) queueTree(dir string, pending map[string]time.Time) {
	now := time.Now()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if rel, ok := w.match(path); ok {
			pending[rel] = now
		}
		return nil
	})
	if err != nil {
		log.Printf("Warning: failed to scan %s: %v", dir, err)
	}
}

// relative returns path relative to the root, and whether any part is hidden
func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return rel, true
		}
	}
	return rel, false
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
