// Package embedding selects the embedding function used to build and query
// the vector index.
package embedding

import (
	"fmt"
	"time"

	"packrag/internal/config"
	"packrag/internal/domain"
	"packrag/internal/embedding/openai"
	"packrag/internal/embedding/tfidf"
)

// New returns a fresh, unprepared embedder for the configured type.
// A new instance is needed for every build or load because TF-IDF state is
// tied to one corpus.
func New(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("%w: openai embedder config missing", domain.ErrConfiguration)
		}
		return openai.NewClient(openai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			Dimension: cfg.OpenAI.Dimension,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedder: %s", domain.ErrConfiguration, cfg.Type)
	}
}
