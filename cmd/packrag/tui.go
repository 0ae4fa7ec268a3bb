package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"packrag/internal/domain"
	"packrag/internal/evaluation"
	"packrag/internal/logger"
	"packrag/internal/memo"
	"packrag/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive question terminal",
	Long: `Opens an interactive terminal over the saved index. Enter asks, Tab
switches the pack filter, the arrow keys browse citations and ctrl+e runs
the configured evaluation.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().Int("memo-size", memo.DefaultSize, "number of answers kept in memory")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	svc, err := loadService(appCfg)
	if err != nil {
		return err
	}
	size, _ := cmd.Flags().GetInt("memo-size")
	cache, err := memo.New[*domain.Answer](size)
	if err != nil {
		return err
	}
	reports, err := memo.New[*evaluation.Report](size)
	if err != nil {
		return err
	}
	ec := appCfg.Evaluation
	m := tui.New(svc, cache, appCfg.Retrieval.K, appCfg.Retrieval.FetchK).WithEvaluation(tui.EvalSettings{
		Manifest: ec.Manifest,
		Options: evaluation.Options{
			K:              ec.K,
			FetchK:         ec.FetchK,
			RestrictToPack: ec.RestrictToPack,
			FallbackDir:    ec.FallbackDir,
			FailFast:       ec.FailFast,
			Logger:         logger.Discard(),
		},
		Cache: reports,
	})
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
