// Package index builds, persists and queries the embedding-backed similarity
// index over page chunks. An Index is read-only once built or loaded; a
// rebuild always produces a new Index.
package index

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"packrag/internal/domain"
	"packrag/internal/vectorstore"
)

// DataFile is the name of the persisted index inside its directory.
const DataFile = "index.gob"

const formatVersion = 1

// Index pairs an embedding function with a populated vector store.
type Index struct {
	id        string
	builtAt   time.Time
	embedder  domain.Embedder
	store     vectorstore.Storage
	chunks    []domain.Chunk
	dimension int
	// collection is the build-private remote collection, empty for in-process stores.
	collection string
}

// LoadError reports why a saved index could not be reconstructed. Err wraps
// domain.ErrIndexMissing, domain.ErrIndexCorrupt or domain.ErrDimensionMismatch.
type LoadError struct {
	Dir string
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load index %s: %v", e.Dir, e.Err) }

func (e *LoadError) Unwrap() error { return e.Err }

type snapshot struct {
	Version       int
	ID            string
	BuiltAt       time.Time
	Embedder      string
	Store         string
	Collection    string
	Dimension     int
	EmbedderState []byte
	Chunks        []domain.Chunk
	Vectors       [][]float64
}

// Build embeds every chunk and loads the vectors into store, replacing its
// contents. A vectorstore.Scoped store is first moved to a collection of its
// own, leaving any collection an older index reads from untouched.
func Build(chunks []domain.Chunk, emb domain.Embedder, store vectorstore.Storage) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to index", domain.ErrConfiguration)
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if err := emb.Prepare(texts); err != nil {
		return nil, fmt.Errorf("prepare embedder: %w", err)
	}
	vectors := make([][]float64, len(chunks))
	for i, text := range texts {
		vec, err := emb.Embed(text)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d (%s p.%d): %w", i, chunks[i].Metadata.Source, chunks[i].Metadata.Page, err)
		}
		if i > 0 && len(vec) != len(vectors[0]) {
			return nil, fmt.Errorf("embed chunk %d: %w", i, domain.ErrDimensionMismatch)
		}
		vectors[i] = vec
	}
	dim := len(vectors[0])
	id := uuid.NewString()
	var collection string
	if sc, ok := store.(vectorstore.Scoped); ok {
		sc.Scope(id)
		collection = sc.Collection()
	}
	if err := store.Clear(); err != nil {
		return nil, fmt.Errorf("clear %s store: %w", store.Name(), err)
	}
	if err := store.Init(dim); err != nil {
		return nil, fmt.Errorf("init %s store: %w", store.Name(), err)
	}
	if err := store.Upsert(chunks, vectors); err != nil {
		if collection != "" {
			_ = store.Clear()
		}
		return nil, fmt.Errorf("upsert into %s store: %w", store.Name(), err)
	}
	return &Index{
		id:         id,
		builtAt:    time.Now().UTC(),
		embedder:   emb,
		store:      store,
		chunks:     append([]domain.Chunk(nil), chunks...),
		dimension:  dim,
		collection: collection,
	}, nil
}

// Save writes the index into dir, creating it if needed. The data file is
// replaced atomically so a concurrent Load never sees a partial write.
func (idx *Index) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	snap := snapshot{
		Version:    formatVersion,
		ID:         idx.id,
		BuiltAt:    idx.builtAt,
		Embedder:   idx.embedder.Name(),
		Store:      idx.store.Name(),
		Collection: idx.collection,
		Dimension:  idx.dimension,
		Chunks:     idx.chunks,
	}
	if se, ok := idx.embedder.(domain.StatefulEmbedder); ok {
		state, err := se.MarshalState()
		if err != nil {
			return fmt.Errorf("save embedder state: %w", err)
		}
		snap.EmbedderState = state
	}
	if ex, ok := idx.store.(vectorstore.Exporter); ok {
		_, snap.Vectors = ex.Export()
	}

	tmp, err := os.CreateTemp(dir, "index-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := gob.NewEncoder(tmp).Encode(&snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encode index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, DataFile)); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

// Load reconstructs an index saved by Save. emb and store must be fresh
// instances of the same kinds used at build time.
func Load(dir string, emb domain.Embedder, store vectorstore.Storage) (*Index, error) {
	fail := func(sentinel error, format string, args ...any) error {
		return &LoadError{Dir: dir, Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))}
	}

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fail(domain.ErrIndexMissing, "directory does not exist")
	case err != nil:
		return nil, fail(domain.ErrIndexCorrupt, "%v", err)
	case !info.IsDir():
		return nil, fail(domain.ErrIndexCorrupt, "not a directory")
	}

	f, err := os.Open(filepath.Join(dir, DataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fail(domain.ErrIndexMissing, "%s not found", DataFile)
	}
	if err != nil {
		return nil, fail(domain.ErrIndexCorrupt, "%v", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fail(domain.ErrIndexCorrupt, "decode %s: %v", DataFile, err)
	}
	if snap.Version != formatVersion {
		return nil, fail(domain.ErrIndexCorrupt, "unsupported format version %d", snap.Version)
	}
	if len(snap.Chunks) == 0 || snap.Dimension <= 0 {
		return nil, fail(domain.ErrIndexCorrupt, "index is empty")
	}
	if snap.Embedder != emb.Name() {
		return nil, fail(domain.ErrDimensionMismatch, "index built with embedder %q, loading with %q", snap.Embedder, emb.Name())
	}

	if se, ok := emb.(domain.StatefulEmbedder); ok {
		if len(snap.EmbedderState) == 0 {
			return nil, fail(domain.ErrIndexCorrupt, "embedder state missing")
		}
		if err := se.UnmarshalState(snap.EmbedderState); err != nil {
			return nil, fail(domain.ErrIndexCorrupt, "%v", err)
		}
	}
	dim := emb.Dimension()
	if dim == 0 {
		probe, err := emb.Embed("dimension probe")
		if err != nil {
			return nil, &LoadError{Dir: dir, Err: fmt.Errorf("probe embedder dimension: %w", err)}
		}
		dim = len(probe)
	}
	if dim != snap.Dimension {
		return nil, fail(domain.ErrDimensionMismatch, "index has dimension %d, embedder produces %d", snap.Dimension, dim)
	}

	var collection string
	if sc, ok := store.(vectorstore.Scoped); ok && snap.Collection != "" {
		sc.UseCollection(snap.Collection)
		collection = snap.Collection
	}

	_, inProcess := store.(vectorstore.Exporter)
	switch {
	case snap.Vectors != nil:
		if len(snap.Vectors) != len(snap.Chunks) {
			return nil, fail(domain.ErrIndexCorrupt, "%d chunks but %d vectors", len(snap.Chunks), len(snap.Vectors))
		}
		for i, v := range snap.Vectors {
			if len(v) != snap.Dimension {
				return nil, fail(domain.ErrIndexCorrupt, "vector %d has dimension %d", i, len(v))
			}
		}
		if err := store.Init(snap.Dimension); err != nil {
			return nil, &LoadError{Dir: dir, Err: err}
		}
		if err := store.Upsert(snap.Chunks, snap.Vectors); err != nil {
			return nil, &LoadError{Dir: dir, Err: err}
		}
	case inProcess:
		return nil, fail(domain.ErrIndexCorrupt, "no vectors saved for in-process store %q", store.Name())
	case snap.Store != store.Name():
		return nil, fail(domain.ErrIndexCorrupt, "vectors live in store %q, loading with %q", snap.Store, store.Name())
	}

	return &Index{
		id:         snap.ID,
		builtAt:    snap.BuiltAt,
		embedder:   emb,
		store:      store,
		chunks:     snap.Chunks,
		dimension:  snap.Dimension,
		collection: collection,
	}, nil
}

// Release drops the build-private collection of a remote store. It is a
// no-op for in-process stores. The index must not be queried afterwards.
func (idx *Index) Release() error {
	if idx.collection == "" {
		return nil
	}
	if err := idx.store.Clear(); err != nil {
		return fmt.Errorf("drop collection %s: %w", idx.collection, err)
	}
	return nil
}

// Query returns up to topN chunks nearest to text, most similar first.
// A query with no known terms falls back to lexical overlap ranking.
func (idx *Index) Query(text string, topN int) ([]domain.SearchResult, error) {
	vec, err := idx.embedder.Embed(text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if isZero(vec) {
		return idx.lexicalSearch(text, topN), nil
	}
	return idx.store.Search(vec, topN)
}

// ID identifies one build. It survives Save and Load.
func (idx *Index) ID() string { return idx.id }

// BuiltAt is the build time of the index.
func (idx *Index) BuiltAt() time.Time { return idx.builtAt }

// Len is the number of indexed chunks.
func (idx *Index) Len() int { return len(idx.chunks) }

func (idx *Index) Dimension() int { return idx.dimension }

func (idx *Index) EmbedderName() string { return idx.embedder.Name() }

// Collection names the remote collection holding the vectors, if any.
func (idx *Index) Collection() string { return idx.collection }

// Sources lists the distinct source names in the index, sorted.
func (idx *Index) Sources() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, ch := range idx.chunks {
		if _, ok := seen[ch.Metadata.Source]; ok {
			continue
		}
		seen[ch.Metadata.Source] = struct{}{}
		out = append(out, ch.Metadata.Source)
	}
	sort.Strings(out)
	return out
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
