package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"packrag/internal/domain"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	Dimension   int    `yaml:"dimension,omitempty"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how pages are split into chunks.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// IndexConfig locates the persisted index.
type IndexConfig struct {
	Dir string `yaml:"dir"`
}

// DataConfig locates the source documents.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// RetrievalConfig holds the default retrieval widths.
type RetrievalConfig struct {
	K      int `yaml:"k"`
	FetchK int `yaml:"fetch_k"`
}

// EvaluationConfig configures the hit@k harness.
type EvaluationConfig struct {
	Manifest       string `yaml:"manifest"`
	FallbackDir    string `yaml:"fallback_dir"`
	RestrictToPack bool   `yaml:"restrict_to_pack"`
	ReportPath     string `yaml:"report_path"`
	FailFast       bool   `yaml:"fail_fast"`
	K              int    `yaml:"k"`
	FetchK         int    `yaml:"fetch_k"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Index       IndexConfig       `yaml:"index"`
	Data        DataConfig        `yaml:"data"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Evaluation  EvaluationConfig  `yaml:"evaluation"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/packrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/packrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the relationships between settings.
func (c *AppConfig) Validate() error {
	if c.Chunker.Size <= 0 || c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("%w: chunker overlap %d must be in [0, size %d)", domain.ErrConfiguration, c.Chunker.Overlap, c.Chunker.Size)
	}
	if err := ValidateWidths(c.Retrieval.K, c.Retrieval.FetchK); err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}
	if err := ValidateWidths(c.Evaluation.K, c.Evaluation.FetchK); err != nil {
		return fmt.Errorf("evaluation: %w", err)
	}
	switch c.Embedder.Type {
	case "tfidf", "openai":
	default:
		return fmt.Errorf("%w: unknown embedder %q", domain.ErrConfiguration, c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "memory":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			return fmt.Errorf("%w: qdrant config missing", domain.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown vector store %q", domain.ErrConfiguration, c.VectorStore.Type)
	}
	return nil
}

// ValidateWidths checks k >= 1 and fetch_k >= k.
func ValidateWidths(k, fetchK int) error {
	if k < 1 {
		return fmt.Errorf("%w: k must be at least 1, got %d", domain.ErrConfiguration, k)
	}
	if fetchK < k {
		return fmt.Errorf("%w: fetch_k (%d) must be >= k (%d)", domain.ErrConfiguration, fetchK, k)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "packrag", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Chunker:     ChunkerConfig{Size: 1000, Overlap: 150},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Index:       IndexConfig{Dir: filepath.Join("indexes", "index")},
		Data:        DataConfig{Dir: filepath.Join("data", "sample_pdfs")},
		Retrieval:   RetrievalConfig{K: 5, FetchK: 50},
		Evaluation: EvaluationConfig{
			Manifest:       filepath.Join("indexes", "manifest.json"),
			FallbackDir:    "indexes",
			RestrictToPack: true,
			ReportPath:     "evaluation_report.json",
			K:              5,
			FetchK:         50,
		},
		Log: LogConfig{Level: "info"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Collection == "" {
			q.Collection = "packrag"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
}
