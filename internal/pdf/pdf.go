// Package pdf reads page text, page counts and page images from PDF files
// using the poppler command line tools.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"packrag/internal/domain"
)

var (
	// ErrPDFToolNotFound indicates a required poppler binary is not in PATH.
	ErrPDFToolNotFound = errors.New("poppler tool not found (pdftotext, pdfinfo, pdftoppm)")

	// ErrPageOutOfRange indicates a page number outside [1, page count].
	ErrPageOutOfRange = errors.New("page out of range")
)

var tools = []string{"pdftotext", "pdfinfo", "pdftoppm"}

var pagesRe = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)

// CommandRunner runs an external command and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if errors.Is(err, exec.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPDFToolNotFound, name)
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// Reader extracts content from PDF files.
type Reader struct {
	runner CommandRunner
}

// New returns a Reader that executes the poppler tools.
func New() *Reader {
	return &Reader{runner: execRunner{}}
}

// NewWithRunner returns a Reader using runner in place of process execution.
func NewWithRunner(runner CommandRunner) *Reader {
	return &Reader{runner: runner}
}

// Pages returns the text of every page in document order, numbered from 1.
// Blank pages are kept so numbering matches the document.
func (r *Reader) Pages(ctx context.Context, path string) ([]domain.Page, error) {
	out, err := r.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed for %s: %w", path, err)
	}
	return SplitPages(string(out), path), nil
}

// SplitPages splits form-feed separated text into pages of the document at path.
// A trailing form feed does not start a new page.
func SplitPages(text, path string) []domain.Page {
	parts := strings.Split(text, "\f")
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	pages := make([]domain.Page, len(parts))
	for i, p := range parts {
		pages[i] = domain.Page{
			Text:     p,
			Metadata: domain.ChunkMetadata{Source: filepath.Base(path), Path: abs, Page: i + 1},
		}
	}
	return pages
}

// PageCount reports the number of pages.
func (r *Reader) PageCount(ctx context.Context, path string) (int, error) {
	out, err := r.runner.Run(ctx, "pdfinfo", path)
	if err != nil {
		return 0, fmt.Errorf("pdfinfo failed for %s: %w", path, err)
	}
	m := pagesRe.FindSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("pdfinfo output for %s has no page count", path)
	}
	return strconv.Atoi(string(m[1]))
}

// RenderPNG renders one page (1-based) as PNG. zoom scales the 72 dpi base
// resolution; values <= 0 mean 1.
func (r *Reader) RenderPNG(ctx context.Context, path string, page int, zoom float64) ([]byte, error) {
	count, err := r.PageCount(ctx, path)
	if err != nil {
		return nil, err
	}
	if page < 1 || page > count {
		return nil, fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, page, count)
	}
	if zoom <= 0 {
		zoom = 1
	}
	dpi := int(math.Round(72 * zoom))
	p := strconv.Itoa(page)
	out, err := r.runner.Run(ctx, "pdftoppm", "-f", p, "-l", p, "-r", strconv.Itoa(dpi), "-png", "-singlefile", path)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed for %s page %d: %w", path, page, err)
	}
	return out, nil
}

// CheckAvailable reports whether every poppler tool is in PATH.
func CheckAvailable() error {
	for _, t := range tools {
		if _, err := exec.LookPath(t); err != nil {
			return fmt.Errorf("%w: %s", ErrPDFToolNotFound, t)
		}
	}
	return nil
}

// InstallInstructions describes how to install the poppler tools.
func InstallInstructions() string {
	return `PDF support requires poppler (pdftotext, pdfinfo, pdftoppm).
  macOS:         brew install poppler
  Debian/Ubuntu: apt install poppler-utils
  Fedora:        dnf install poppler-utils`
}
