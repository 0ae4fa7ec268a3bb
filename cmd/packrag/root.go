package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"packrag/internal/chunker"
	"packrag/internal/config"
	"packrag/internal/domain"
	"packrag/internal/embedding"
	"packrag/internal/ingest"
	"packrag/internal/logger"
	"packrag/internal/pdf"
	"packrag/internal/service"
	"packrag/internal/vectorstore"
)

var (
	cfgPath  string
	logLevel string
	indexDir string

	appCfg *config.AppConfig
	appLog *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "packrag",
	Short: "Search claim packs with page citations",
	Long: `packrag indexes claim pack documents, answers questions with ranked,
page-level citations and extracted fields, and measures hit@k against a
labelled manifest.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/packrag/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&indexDir, "index-dir", "", "index directory (overrides config)")
}

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	if cfgPath == "" {
		appCfg, _, err = config.LoadDefault()
	} else {
		appCfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if indexDir != "" {
		appCfg.Index.Dir = indexDir
	}
	level := appCfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	appLog = logger.Init(level, cmd.ErrOrStderr())
	return nil
}

// newService wires the configured components. Embedders and stores are
// created per build or load.
func newService(cfg *config.AppConfig) (*service.RAGService, error) {
	ch, err := chunker.NewRecursive(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		return nil, err
	}
	return service.NewRAGService(service.Deps{
		Loader:      ingest.NewLoader(pdf.New(), appLog),
		Chunker:     ch,
		NewEmbedder: func() (domain.Embedder, error) { return embedding.New(cfg.Embedder) },
		NewStore:    func() (vectorstore.Storage, error) { return vectorstore.New(cfg.VectorStore) },
		IndexDir:    cfg.Index.Dir,
		Logger:      appLog,
	}), nil
}

// loadService wires the service and loads the saved index.
func loadService(cfg *config.AppConfig) (*service.RAGService, error) {
	svc, err := newService(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := svc.LoadIndex(); err != nil {
		return nil, fmt.Errorf("%w (run `packrag build` first)", err)
	}
	return svc, nil
}

// intFlag returns the flag value when set on the command line, else fallback.
func intFlag(cmd *cobra.Command, name string, fallback int) int {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetInt(name)
		return v
	}
	return fallback
}
