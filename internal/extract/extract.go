// Package extract turns uploaded bytes into page texts.
package extract

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Extractor returns the ordered page texts of a document
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) ([]string, error)
}

// PageSeparator joins page texts before chunking
const PageSeparator = "\n\n"

var pdfMagic = []byte("%PDF-")

// Registry picks an extractor by file extension or content
type Registry struct {
	PDF   Extractor
	Plain Extractor
}

// NewRegistry returns a registry with the PDF and plain text extractors
func NewRegistry() *Registry {
	return &Registry{
		PDF:   PDFExtractor{},
		Plain: PlainExtractor{},
	}
}

// IsPDF reports whether name or data identify a PDF
func IsPDF(name string, data []byte) bool {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return true
	}
	return bytes.HasPrefix(bytes.TrimLeft(data[:min(len(data), 1024)], " \t\r\n"), pdfMagic)
}

// Extract dispatches to the matching extractor
func (r *Registry) Extract(ctx context.Context, name string, data []byte) ([]string, error) {
	if IsPDF(name, data) {
		return r.PDF.Extract(ctx, name, data)
	}
	return r.Plain.Extract(ctx, name, data)
}

// Text extracts and joins all pages
func Text(ctx context.Context, e Extractor, name string, data []byte) (string, error) {
	pages, err := e.Extract(ctx, name, data)
	if err != nil {
		return "", err
	}
	return strings.Join(pages, PageSeparator), nil
}

// PlainExtractor treats the bytes as UTF-8 text, replacing invalid sequences
type PlainExtractor struct{}

func (PlainExtractor) Extract(ctx context.Context, name string, data []byte) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []string{}, nil
	}
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	text = strings.TrimPrefix(text, "\uFEFF")
	return []string{text}, nil
}
