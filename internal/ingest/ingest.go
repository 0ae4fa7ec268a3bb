// Package ingest resolves input paths to documents and loads their pages.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"packrag/internal/domain"
	"packrag/internal/pdf"
)

// ErrNoDocuments is returned when no .pdf or .txt file matches the inputs.
var ErrNoDocuments = errors.New("no .pdf or .txt documents found")

// PageSource extracts page text from a PDF.
type PageSource interface {
	Pages(ctx context.Context, path string) ([]domain.Page, error)
}

// Loader reads pages from PDF and plain-text documents. Plain-text files
// use form feeds as page breaks.
type Loader struct {
	pdf PageSource
	log *slog.Logger
}

func NewLoader(src PageSource, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{pdf: src, log: log}
}

// ResolvePaths expands glob patterns and keeps supported documents. Each
// file appears once, in pattern order and sorted within a pattern.
func ResolvePaths(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !supported(m) {
				continue
			}
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoDocuments
	}
	return out, nil
}

// Load returns the pages of every document matched by patterns.
func (l *Loader) Load(ctx context.Context, patterns []string) ([]domain.Page, error) {
	paths, err := ResolvePaths(patterns)
	if err != nil {
		return nil, err
	}
	var pages []domain.Page
	for _, p := range paths {
		var docPages []domain.Page
		switch strings.ToLower(filepath.Ext(p)) {
		case ".pdf":
			docPages, err = l.pdf.Pages(ctx, p)
		case ".txt":
			var data []byte
			data, err = os.ReadFile(p)
			docPages = pdf.SplitPages(string(data), p)
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
		l.log.Debug("loaded document", "path", p, "pages", len(docPages))
		pages = append(pages, docPages...)
	}
	l.log.Info("documents loaded", "documents", len(paths), "pages", len(pages))
	return pages, nil
}

func supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt":
		return true
	}
	return false
}
