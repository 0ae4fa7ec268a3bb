// Package retrieval turns nearest-neighbour results into ranked citations.
package retrieval

import (
	"fmt"
	"strings"

	"packrag/internal/config"
	"packrag/internal/domain"
)

// SnippetRunes bounds the preview text carried by each citation.
const SnippetRunes = 350

// Searcher is the part of an index the retriever needs.
type Searcher interface {
	Query(text string, topN int) ([]domain.SearchResult, error)
}

// Retrieve fetches q.FetchK neighbours of question, keeps those from q.Source
// when it is set, and returns at most q.K citations ranked from 1.
// No surviving result is not an error.
func Retrieve(s Searcher, question string, q domain.Query) ([]domain.Citation, error) {
	if err := config.ValidateWidths(q.K, q.FetchK); err != nil {
		return nil, err
	}
	results, err := s.Query(question, q.FetchK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	citations := make([]domain.Citation, 0, q.K)
	for _, r := range results {
		if len(citations) == q.K {
			break
		}
		md := r.Chunk.Metadata
		if q.Source != "" && md.Source != q.Source {
			continue
		}
		citations = append(citations, domain.Citation{
			Rank:    len(citations) + 1,
			Source:  md.Source,
			Path:    md.Path,
			Page:    md.Page,
			ChunkID: md.ChunkID,
			Score:   r.Score,
			Snippet: Snippet(r.Chunk.Text, SnippetRunes),
			Text:    r.Chunk.Text,
		})
	}
	return citations, nil
}

// Snippet collapses whitespace runs in text and keeps at most n runes.
func Snippet(text string, n int) string {
	s := strings.Join(strings.Fields(text), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
