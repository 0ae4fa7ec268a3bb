package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"packrag/internal/domain"
)

// DefaultChunkSize is the default maximum number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of characters shared by consecutive chunks.
const DefaultChunkOverlap = 150

// defaultSeparators are tried from coarsest to finest. The empty separator
// splits into single characters.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Recursive splits page text hierarchically: paragraphs, lines, sentences,
// words and finally characters, merging small pieces back up to the size bound.
type Recursive struct {
	size       int
	overlap    int
	separators []string
}

// NewRecursive creates a chunker producing chunks of at most size characters
// where consecutive chunks share at most overlap characters.
func NewRecursive(size, overlap int) (*Recursive, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrConfiguration, size, overlap)
	}
	return &Recursive{size: size, overlap: overlap, separators: defaultSeparators}, nil
}

// Chunk splits every page and assigns per-page chunk ids starting at 0.
func (c *Recursive) Chunk(pages []domain.Page) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		for i, text := range c.SplitText(p.Text) {
			md := p.Metadata
			md.ChunkID = i
			chunks = append(chunks, domain.Chunk{Text: text, Metadata: md})
		}
	}
	return chunks, nil
}

// SplitText splits a single text into trimmed, non-empty chunks.
func (c *Recursive) SplitText(text string) []string {
	raw := c.split(text, c.separators)
	out := raw[:0]
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Recursive) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			finer = separators[i+1:]
			break
		}
	}

	var out []string
	var good []string
	for _, piece := range splitKeepSeparator(text, separator) {
		if runeLen(piece) < c.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good)...)
			good = nil
		}
		if len(finer) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, c.split(piece, finer)...)
		}
	}
	if len(good) > 0 {
		out = append(out, c.merge(good)...)
	}
	return out
}

// merge packs pieces into chunks of at most c.size runes, carrying at most
// c.overlap runes of trailing pieces into the next chunk. Separators are
// already attached to the pieces, so they are joined without one. A chunk
// holding nothing but the carried overlap and whitespace is not emitted.
func (c *Recursive) merge(pieces []string) []string {
	var docs []string
	var current []string
	total := 0
	fresh := false
	emit := func() {
		if !fresh {
			return
		}
		if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
			docs = append(docs, doc)
		}
		fresh = false
	}
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > c.size && len(current) > 0 {
			emit()
			for total > 0 && (total > c.overlap || total+n > c.size) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
		if strings.TrimSpace(piece) != "" {
			fresh = true
		}
	}
	emit()
	return docs
}

// splitKeepSeparator splits text on sep, attaching each separator to the
// start of the piece that follows it. Empty pieces are dropped.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, sep+p)
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
