package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"packrag/internal/evaluation"
)

var (
	evalManifest    string
	evalFallbackDir string
	evalOut         string
	evalRestrict    bool
	evalFailFast    bool
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Measure hit@k against a manifest",
	Long: `Asks the fixed field questions for every pack in the manifest and checks
whether any citation contains the ground-truth value. Writes a JSON report.`,
	Args: cobra.NoArgs,
	RunE: runEval,
}

func init() {
	f := evalCmd.Flags()
	f.StringVar(&evalManifest, "manifest", "", "manifest JSON (default from config)")
	f.Int("k", 0, "citations per question (default from config)")
	f.Int("fetch-k", 0, "neighbours fetched before pack filtering (default from config)")
	f.BoolVar(&evalRestrict, "restrict-to-pack", true, "only cite the pack under evaluation")
	f.StringVar(&evalFallbackDir, "fallback-dir", "", "directory tried for stale manifest paths (default from config)")
	f.StringVarP(&evalOut, "out", "o", "", "report path (default from config)")
	f.BoolVar(&evalFailFast, "fail-fast", false, "abort on the first unreadable ground truth")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, _ []string) error {
	ec := appCfg.Evaluation
	manifest := orDefault(evalManifest, ec.Manifest)
	out := orDefault(evalOut, ec.ReportPath)
	opts := evaluation.Options{
		K:              intFlag(cmd, "k", ec.K),
		FetchK:         intFlag(cmd, "fetch-k", ec.FetchK),
		RestrictToPack: ec.RestrictToPack,
		FallbackDir:    orDefault(evalFallbackDir, ec.FallbackDir),
		FailFast:       ec.FailFast,
	}
	if cmd.Flags().Changed("restrict-to-pack") {
		opts.RestrictToPack = evalRestrict
	}
	if cmd.Flags().Changed("fail-fast") {
		opts.FailFast = evalFailFast
	}

	svc, err := loadService(appCfg)
	if err != nil {
		return err
	}
	report, err := svc.Evaluate(manifest, opts)
	if err != nil {
		return err
	}
	if err := evaluation.WriteReport(out, report); err != nil {
		return err
	}

	cmd.Printf("Saved: %s\n", out)
	cmd.Printf("Overall hit_rate@%d: %s (%d/%d)\n", report.K, formatRate(report.Overall.HitRate), report.Overall.Hits, report.Overall.Total)
	cmd.Println("Per-field hit rates:")
	for _, row := range report.PerField {
		cmd.Printf("  %s: %s\n", row.Field, formatRate(row.HitRate))
	}
	for _, row := range report.PerPack {
		if row.Error != "" {
			cmd.PrintErrf("Skipped %s: %s\n", row.PDF, row.Error)
		}
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func formatRate(r *float64) string {
	if r == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", *r)
}
