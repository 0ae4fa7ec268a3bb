package vectorstore

import (
	"fmt"
	"time"

	"packrag/internal/config"
	"packrag/internal/domain"
	"packrag/internal/vectorstore/memory"
	"packrag/internal/vectorstore/qdrant"
)

// Storage persists vectors and supports nearest-neighbour search.
// Search returns results ordered by ascending distance.
type Storage interface {
	Name() string
	Init(dimension int) error
	Upsert(chunks []domain.Chunk, vectors [][]float64) error
	Search(vector []float64, topK int) ([]domain.SearchResult, error)
	Clear() error
}

// Exporter is implemented by stores whose vectors live in process and must be
// written into the index directory to survive a restart.
type Exporter interface {
	Export() ([]domain.Chunk, [][]float64)
}

// Scoped is implemented by remote stores that keep each build in its own
// collection, so a rebuild never touches the vectors of a live index.
type Scoped interface {
	Scope(buildID string)
	Collection() string
	UseCollection(name string)
}

var (
	_ Storage  = (*memory.Storage)(nil)
	_ Exporter = (*memory.Storage)(nil)
	_ Storage  = (*qdrant.Storage)(nil)
	_ Scoped   = (*qdrant.Storage)(nil)
)

// New returns an empty store for the configured type.
func New(cfg config.VectorStoreConfig) (Storage, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("%w: qdrant config missing", domain.ErrConfiguration)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store: %s", domain.ErrConfiguration, cfg.Type)
	}
}
