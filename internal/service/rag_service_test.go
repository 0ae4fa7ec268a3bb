package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"packrag/internal/chunker"
	"packrag/internal/domain"
	"packrag/internal/embedding/tfidf"
	"packrag/internal/evaluation"
	"packrag/internal/index"
	"packrag/internal/logger"
	"packrag/internal/vectorstore"
	"packrag/internal/vectorstore/memory"
)

type staticLoader struct {
	pages []domain.Page
}

func (l staticLoader) Load(context.Context, []string) ([]domain.Page, error) { return l.pages, nil }

func page(source string, n int, text string) domain.Page {
	return domain.Page{Text: text, Metadata: domain.ChunkMetadata{Source: source, Path: "/packs/" + source, Page: n}}
}

func newService(t *testing.T, dir string, pages ...domain.Page) *RAGService {
	t.Helper()
	ch, err := chunker.NewRecursive(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
	require.NoError(t, err)
	return NewRAGService(Deps{
		Loader:      staticLoader{pages: pages},
		Chunker:     ch,
		NewEmbedder: func() (domain.Embedder, error) { return tfidf.NewEmbedder(), nil },
		NewStore:    func() (vectorstore.Storage, error) { return memory.NewStorage(), nil },
		IndexDir:    dir,
		Logger:      logger.Discard(),
	})
}

func TestAsk_ClaimReferenceEndToEnd(t *testing.T) {
	svc := newService(t, filepath.Join(t.TempDir(), "index"),
		page("pack.pdf", 1, "Claim Reference: CLM-ABC-123456\nTotal Claimed: £1,200.00\n"))
	_, err := svc.Rebuild(context.Background(), []string{"unused"})
	require.NoError(t, err)

	ans, err := svc.Ask("What is the claim reference?", domain.Query{K: 5, FetchK: 50})
	require.NoError(t, err)
	require.NotEmpty(t, ans.Citations)
	assert.Contains(t, ans.Citations[0].Text, "Claim Reference: CLM-ABC-123456")
	assert.Contains(t, ans.Citations[0].Text, "Total Claimed: £1,200.00")
	assert.Equal(t, 1, ans.Citations[0].Page)

	assert.Equal(t, "CLM-ABC-123456", ans.Extracted["claim_reference"])
	assert.Equal(t, "£1,200.00", ans.Extracted["total_claimed"])
	require.NotEmpty(t, ans.Hits)
	assert.Equal(t, "claim_reference", ans.Hits[0].Field)
	assert.Equal(t, 1, ans.Hits[0].CitationRank)
	assert.True(t, strings.HasPrefix(ans.Answer, "- **Claim reference:** CLM-ABC-123456"))
}

func TestAsk_SourceFilter(t *testing.T) {
	svc := newService(t, filepath.Join(t.TempDir(), "index"),
		page("a.pdf", 1, "Claim Reference: CLM-AAA-111111"),
		page("b.pdf", 1, "Claim Reference: CLM-BBB-222222"),
	)
	_, err := svc.Rebuild(context.Background(), nil)
	require.NoError(t, err)

	ans, err := svc.Ask("What is the claim reference?", domain.Query{K: 5, FetchK: 50, Source: "b.pdf"})
	require.NoError(t, err)
	require.Len(t, ans.Citations, 1)
	assert.Equal(t, "CLM-BBB-222222", ans.Extracted["claim_reference"])

	ans, err = svc.Ask("What is the claim reference?", domain.Query{K: 5, FetchK: 50, Source: "c.pdf"})
	require.NoError(t, err)
	assert.Empty(t, ans.Citations)
	assert.Equal(t, "No extractable fields found in the retrieved evidence (try increasing top-k or asking a more specific question).", ans.Answer)
}

func TestAsk_NoIndex(t *testing.T) {
	svc := newService(t, t.TempDir())
	_, err := svc.Ask("anything", domain.Query{K: 1, FetchK: 1})
	assert.ErrorIs(t, err, domain.ErrIndexMissing)
}

func TestRebuild_SwapsOnlyAfterSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	svc := newService(t, dir, page("a.pdf", 1, "Policy Number: POL-12345678"))
	first, err := svc.Rebuild(context.Background(), nil)
	require.NoError(t, err)

	second, err := svc.Rebuild(context.Background(), nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Same(t, second, svc.Index())

	// The superseded index still answers queries.
	res, err := first.Query("policy number", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)

	// A save failure leaves the live index untouched.
	blocked := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocked, nil, 0o644))
	svc.deps.IndexDir = blocked
	_, err = svc.Rebuild(context.Background(), nil)
	require.Error(t, err)
	assert.Same(t, second, svc.Index())
}

func TestLoadIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	svc := newService(t, dir, page("a.pdf", 1, "Incident Time: 08:45"))

	_, err := svc.LoadIndex()
	var le *index.LoadError
	require.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, domain.ErrIndexMissing)

	built, err := svc.Rebuild(context.Background(), nil)
	require.NoError(t, err)

	restarted := newService(t, dir)
	loaded, err := restarted.LoadIndex()
	require.NoError(t, err)
	assert.Equal(t, built.ID(), loaded.ID())

	ans, err := restarted.Ask("What time did the incident occur?", domain.Query{K: 5, FetchK: 50})
	require.NoError(t, err)
	assert.Equal(t, "08:45", ans.Extracted["incident_time"])
}

func TestEvaluate(t *testing.T) {
	root := t.TempDir()
	svc := newService(t, filepath.Join(root, "index"),
		page("a.pdf", 1, "Claim Reference: CLM-AAA-111111\nPolicy Number: POL-11111111"),
		page("b.pdf", 1, "Claim Reference: CLM-BBB-222222\nTotal Claimed: £2,500.00"),
	)
	_, err := svc.Rebuild(context.Background(), nil)
	require.NoError(t, err)

	writeJSON := func(name string, v any) string {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		p := filepath.Join(root, name)
		require.NoError(t, os.WriteFile(p, data, 0o644))
		return p
	}
	writeJSON("a.json", map[string]any{"claim_reference": "CLM-AAA-111111", "policy_number": "POL-11111111"})
	writeJSON("b.json", map[string]any{"claim_reference": "CLM-BBB-222222", "total_claimed": 2500})
	manifest := writeJSON("manifest.json", []evaluation.ManifestEntry{
		{PDF: "a.pdf", GroundTruth: "a.json"},
		{PDF: "b.pdf", GroundTruth: "b.json"},
	})

	report, err := svc.Evaluate(manifest, evaluation.Options{K: 5, FetchK: 50, RestrictToPack: true})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Overall.Total)
	assert.Equal(t, 4, report.Overall.Hits)
	require.NotNil(t, report.Overall.HitRate)
	assert.Equal(t, 1.0, *report.Overall.HitRate)
}

// scopedStore is an in-memory store that behaves like a remote one keeping a
// collection per build.
type scopedStore struct {
	*memory.Storage
	base       string
	collection string
	dropped    *[]string
	mu         *sync.Mutex
}

func (s *scopedStore) Scope(buildID string)      { s.collection = s.base + "-" + buildID }
func (s *scopedStore) Collection() string        { return s.collection }
func (s *scopedStore) UseCollection(name string) { s.collection = name }

func (s *scopedStore) Clear() error {
	s.mu.Lock()
	*s.dropped = append(*s.dropped, s.collection)
	s.mu.Unlock()
	return s.Storage.Clear()
}

func TestRebuild_DropsSupersededCollectionAfterSwap(t *testing.T) {
	var mu sync.Mutex
	var dropped []string
	svc := newService(t, filepath.Join(t.TempDir(), "index"), page("a.pdf", 1, "Policy Number: POL-12345678"))
	svc.deps.NewStore = func() (vectorstore.Storage, error) {
		return &scopedStore{Storage: memory.NewStorage(), base: "packs", dropped: &dropped, mu: &mu}, nil
	}

	first, err := svc.Rebuild(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "packs-"+first.ID(), first.Collection())

	second, err := svc.Rebuild(context.Background(), nil)
	require.NoError(t, err)
	assert.Same(t, second, svc.Index())
	// Each build clears its own fresh collection, then the old one is dropped.
	assert.Equal(t, []string{first.Collection(), second.Collection(), first.Collection()}, dropped)

	blocked := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocked, nil, 0o644))
	svc.deps.IndexDir = blocked
	_, err = svc.Rebuild(context.Background(), nil)
	require.Error(t, err)
	assert.Same(t, second, svc.Index())
	assert.Equal(t, 1, countOf(dropped, second.Collection()), "live collection survives a failed rebuild")
	assert.Len(t, dropped, 5, "the unsaved build drops its own collection")
}

func countOf(list []string, s string) int {
	n := 0
	for _, v := range list {
		if v == s {
			n++
		}
	}
	return n
}
