package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build [files or globs...]",
	Short: "Build the index from documents",
	Long: `Extracts page text from PDF and text documents, splits it into chunks,
embeds them and saves the index. Defaults to every .pdf and .txt file in the
configured data directory. The previous index is replaced only after the new
one is saved.`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	patterns := args
	if len(patterns) == 0 {
		patterns = []string{
			filepath.Join(appCfg.Data.Dir, "*.pdf"),
			filepath.Join(appCfg.Data.Dir, "*.txt"),
		}
	}
	svc, err := newService(appCfg)
	if err != nil {
		return err
	}
	idx, err := svc.Rebuild(context.Background(), patterns)
	if err != nil {
		return err
	}
	cmd.Printf("Indexed %d chunks from %d documents into %s\n", idx.Len(), len(idx.Sources()), appCfg.Index.Dir)
	cmd.Printf("Index id %s (%s, dimension %d)\n", idx.ID(), idx.EmbedderName(), idx.Dimension())
	return nil
}
