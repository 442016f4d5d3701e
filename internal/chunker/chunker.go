// Package chunker splits extracted document text into overlapping fixed-size windows.
package chunker

import (
	"errors"
	"fmt"
)

// DefaultSize is the default number of characters per chunk.
const DefaultSize = 2000

// DefaultOverlap is the default number of characters shared by consecutive chunks.
const DefaultOverlap = 200

// ErrInvalidWindow is returned when size and overlap cannot produce progress.
var ErrInvalidWindow = errors.New("invalid chunk window")

// Piece is one chunking window
type Piece struct {
	Content string
	Length  int // In characters
}

// Chunker holds a window configuration
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSize sets the window size in characters.
func WithSize(size int) Option {
	return func(c *Chunker) {
		c.size = size
	}
}

// WithOverlap sets the overlap between consecutive windows in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		c.overlap = overlap
	}
}

// New creates a chunker and validates its window.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		size:    DefaultSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := validate(c.size, c.overlap); err != nil {
		return nil, err
	}
	return c, nil
}

// Size returns the window size
func (c *Chunker) Size() int { return c.size }

// Overlap returns the window overlap
func (c *Chunker) Overlap() int { return c.overlap }

// Split splits text with the chunker's window.
func (c *Chunker) Split(text string) []Piece {
	pieces, _ := Split(text, c.size, c.overlap)
	return pieces
}

// Split cuts text into windows of size characters, each starting size-overlap
// characters after the previous one. The last window may be shorter. Splitting
// stops at the first window that reaches the end of the text, so the result
// holds ceil((n-overlap)/(size-overlap)) windows for a text of n > size characters.
func Split(text string, size, overlap int) ([]Piece, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	if text == "" {
		return []Piece{}, nil
	}

	runes := []rune(text)
	n := len(runes)
	step := size - overlap

	pieces := make([]Piece, 0, Count(n, size, overlap))
	for start := 0; ; start += step {
		end := start + size
		if end > n {
			end = n
		}
		pieces = append(pieces, Piece{
			Content: string(runes[start:end]),
			Length:  end - start,
		})
		if end == n {
			break
		}
	}

	return pieces, nil
}

// Count returns the number of windows Split produces for n characters.
func Count(n, size, overlap int) int {
	if n <= 0 || size <= 0 || overlap < 0 || overlap >= size {
		return 0
	}
	if n <= size {
		return 1
	}
	step := size - overlap
	return (n - overlap + step - 1) / step
}

func validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidWindow, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidWindow, size, overlap)
	}
	return nil
}
