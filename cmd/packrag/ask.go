package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"packrag/internal/domain"
)

var (
	askPack string
	askJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question with citations",
	Long: `Retrieves the chunks nearest to the question, optionally restricted to
one pack, and prints the extracted fields with their supporting citations.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntP("k", "k", 0, "number of citations (default from config)")
	askCmd.Flags().Int("fetch-k", 0, "neighbours fetched before pack filtering (default from config)")
	askCmd.Flags().StringVarP(&askPack, "pack", "p", "", "restrict citations to this document name")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	svc, err := loadService(appCfg)
	if err != nil {
		return err
	}
	q := domain.Query{
		K:      intFlag(cmd, "k", appCfg.Retrieval.K),
		FetchK: intFlag(cmd, "fetch-k", appCfg.Retrieval.FetchK),
		Source: askPack,
	}
	ans, err := svc.Ask(args[0], q)
	if err != nil {
		return err
	}
	if askJSON {
		data, err := json.MarshalIndent(ans, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printAnswer(cmd, ans)
	return nil
}

func printAnswer(cmd *cobra.Command, ans *domain.Answer) {
	if len(ans.Citations) == 0 {
		if askPack != "" {
			cmd.PrintErrf("Warning: no citations from %q. Check the pack name or raise --fetch-k.\n", askPack)
		} else {
			cmd.PrintErrln("Warning: no citations found.")
		}
	}
	cmd.Println(ans.Answer)
	if len(ans.Hits) > 0 {
		cmd.Println()
		cmd.Println("Evidence:")
		for _, h := range ans.Hits {
			cmd.Printf("  %s = %s  [citation #%d, %s p.%d]\n", h.Field, h.Value, h.CitationRank, h.Source, h.Page)
		}
	}
	if len(ans.Citations) > 0 {
		cmd.Println()
		cmd.Println("Citations:")
		for _, c := range ans.Citations {
			cmd.Printf("  [%d] %s p.%d (score %.4f)\n", c.Rank, c.Source, c.Page, c.Score)
			cmd.Printf("      %s\n", c.Snippet)
		}
	}
}
