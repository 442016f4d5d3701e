package ingest

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter selects files for directory ingestion with doublestar globs
type Filter struct {
	Include []string
	Exclude []string
}

// Match reports whether relPath (relative to the walked root) should be ingested.
// Exclude patterns are tried against the path and its base name.
func (f Filter) Match(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	base := path.Base(relPath)

	for _, part := range strings.Split(relPath, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return false
		}
	}

	for _, pattern := range f.Exclude {
		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return false
		}
		if matched, _ := doublestar.Match(pattern, base); matched {
			return false
		}
	}

	if len(f.Include) == 0 {
		return true
	}
	for _, pattern := range f.Include {
		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return true
		}
		// Extensions are matched case-insensitively, CV.PDF is a pdf
		if matched, _ := doublestar.Match(pattern, strings.ToLower(relPath)); matched {
			return true
		}
	}
	return false
}

// Validate checks every pattern
func (f Filter) Validate() error {
	for _, p := range append(append([]string{}, f.Include...), f.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return &PatternError{Pattern: p}
		}
	}
	return nil
}

// PatternError reports a malformed glob
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "invalid glob pattern: " + e.Pattern
}
