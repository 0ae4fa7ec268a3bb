package index

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"packrag/internal/domain"
)

var unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// lexicalSearch ranks chunks by token overlap with the query. Scores are
// reported as 1 - Ochiai so that lower still means more similar.
func (idx *Index) lexicalSearch(query string, topN int) []domain.SearchResult {
	qset := TokenSet(query)
	type pair struct {
		idx      int
		distance float64
	}
	scores := make([]pair, len(idx.chunks))
	for i, ch := range idx.chunks {
		scores[i] = pair{i, 1 - overlapOchiai(qset, ch.Text)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].distance < scores[j].distance })
	if topN <= 0 {
		topN = 5
	}
	if topN > len(scores) {
		topN = len(scores)
	}
	out := make([]domain.SearchResult, 0, topN)
	for _, p := range scores[:topN] {
		out = append(out, domain.SearchResult{Chunk: idx.chunks[p.idx], Score: p.distance})
	}
	return out
}

// Tokens lowercases s and splits it into words and digit runs.
func Tokens(s string) []string {
	return unicodeWordRe.FindAllString(strings.ToLower(s), -1)
}

// TokenSet is the set of distinct Tokens of s.
func TokenSet(s string) map[string]struct{} {
	tokens := Tokens(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over distinct tokens.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	stoks := Tokens(text)
	seen := make(map[string]struct{}, len(stoks))
	inter := 0
	for _, t := range stoks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
