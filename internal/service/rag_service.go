package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"packrag/internal/domain"
	"packrag/internal/evaluation"
	"packrag/internal/extract"
	"packrag/internal/index"
	"packrag/internal/retrieval"
	"packrag/internal/vectorstore"
)

// PageLoader resolves input patterns to page-level text.
type PageLoader interface {
	Load(ctx context.Context, patterns []string) ([]domain.Page, error)
}

// Deps wires the service. NewEmbedder and NewStore must return fresh
// instances on every call; a build or load owns what it receives.
type Deps struct {
	Loader      PageLoader
	Chunker     domain.Chunker
	NewEmbedder func() (domain.Embedder, error)
	NewStore    func() (vectorstore.Storage, error)
	IndexDir    string
	Logger      *slog.Logger
}

// RAGService owns the single live index of the process. Rebuilds produce a
// new index and replace the live one only after it has been saved; callers
// holding the previous index keep a consistent view.
type RAGService struct {
	deps    Deps
	log     *slog.Logger
	current atomic.Pointer[index.Index]
	// buildMu serialises rebuilds; readers never take it.
	buildMu sync.Mutex
}

func NewRAGService(deps Deps) *RAGService {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &RAGService{deps: deps, log: log}
}

// Index returns the live index, or nil when none has been built or loaded.
func (s *RAGService) Index() *index.Index { return s.current.Load() }

// Rebuild loads documents matched by patterns and rebuilds the index from them.
func (s *RAGService) Rebuild(ctx context.Context, patterns []string) (*index.Index, error) {
	pages, err := s.deps.Loader.Load(ctx, patterns)
	if err != nil {
		return nil, err
	}
	return s.RebuildPages(pages)
}

// RebuildPages chunks pages, builds a fresh index, saves it and makes it live.
func (s *RAGService) RebuildPages(pages []domain.Page) (*index.Index, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	chunks, err := s.deps.Chunker.Chunk(pages)
	if err != nil {
		return nil, fmt.Errorf("chunk pages: %w", err)
	}
	emb, err := s.deps.NewEmbedder()
	if err != nil {
		return nil, err
	}
	store, err := s.deps.NewStore()
	if err != nil {
		return nil, err
	}
	idx, err := index.Build(chunks, emb, store)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	if err := idx.Save(s.deps.IndexDir); err != nil {
		if rerr := idx.Release(); rerr != nil {
			s.log.Warn("drop unsaved collection", "collection", idx.Collection(), "error", rerr)
		}
		return nil, fmt.Errorf("save index: %w", err)
	}
	old := s.current.Swap(idx)
	if old != nil && old.Collection() != "" && old.Collection() != idx.Collection() {
		if err := old.Release(); err != nil {
			s.log.Warn("drop superseded collection", "id", old.ID(), "collection", old.Collection(), "error", err)
		}
	}
	s.log.Info("index rebuilt",
		"id", idx.ID(),
		"pages", len(pages),
		"chunks", idx.Len(),
		"dimension", idx.Dimension(),
		"embedder", idx.EmbedderName(),
		"dir", s.deps.IndexDir,
	)
	return idx, nil
}

// LoadIndex reads the saved index and makes it live. Failures are
// *index.LoadError values.
func (s *RAGService) LoadIndex() (*index.Index, error) {
	emb, err := s.deps.NewEmbedder()
	if err != nil {
		return nil, err
	}
	store, err := s.deps.NewStore()
	if err != nil {
		return nil, err
	}
	idx, err := index.Load(s.deps.IndexDir, emb, store)
	if err != nil {
		return nil, err
	}
	s.current.Store(idx)
	s.log.Info("index loaded", "id", idx.ID(), "built_at", idx.BuiltAt(), "chunks", idx.Len(), "dir", s.deps.IndexDir)
	return idx, nil
}

// Ask answers question against the live index.
func (s *RAGService) Ask(question string, q domain.Query) (*domain.Answer, error) {
	idx := s.current.Load()
	if idx == nil {
		return nil, fmt.Errorf("%w: no index loaded", domain.ErrIndexMissing)
	}
	ans, err := Answer(idx, question, q)
	if err != nil {
		return nil, err
	}
	if len(ans.Citations) == 0 {
		s.log.Warn("no citations", "question", question, "source", q.Source, "k", q.K, "fetch_k", q.FetchK)
	}
	return ans, nil
}

// Evaluate runs the harness against the index live at call time. A rebuild
// during the run does not affect it.
func (s *RAGService) Evaluate(manifestPath string, opts evaluation.Options) (*evaluation.Report, error) {
	idx := s.current.Load()
	if idx == nil {
		return nil, fmt.Errorf("%w: no index loaded", domain.ErrIndexMissing)
	}
	if opts.Logger == nil {
		opts.Logger = s.log
	}
	return evaluation.Evaluate(pinned{idx}, manifestPath, opts)
}

// Answer retrieves citations for question from idx, extracts fields and
// composes the deterministic answer.
func Answer(idx retrieval.Searcher, question string, q domain.Query) (*domain.Answer, error) {
	citations, err := retrieval.Retrieve(idx, question, q)
	if err != nil {
		return nil, err
	}
	fields, hits := extract.Extract(citations)
	return &domain.Answer{
		Question:  question,
		Answer:    extract.ComposeAnswer(fields),
		Citations: citations,
		Extracted: fields,
		Hits:      hits,
	}, nil
}

type pinned struct {
	idx *index.Index
}

func (p pinned) Ask(question string, q domain.Query) (*domain.Answer, error) {
	return Answer(p.idx, question, q)
}
