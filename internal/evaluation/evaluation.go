// Package evaluation measures hit@k of the retrieval pipeline against a
// manifest of packs with ground-truth field values.
package evaluation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"packrag/internal/config"
	"packrag/internal/domain"
)

// Pipeline answers one question with ranked citations.
type Pipeline interface {
	Ask(question string, q domain.Query) (*domain.Answer, error)
}

// FieldQuestion is one evaluated field and the question asked for it.
type FieldQuestion struct {
	Field    string
	Question string
}

// Fields is the fixed evaluation set, in report order.
var Fields = []FieldQuestion{
	{"claim_reference", "What is the claim reference?"},
	{"policy_number", "What is the policy number?"},
	{"incident_date", "On what date did the incident occur?"},
	{"incident_time", "What time did the incident occur?"},
	{"incident_location", "Where did the incident occur?"},
	{"police_reference", "What is the police reference?"},
	{"total_claimed", "What is the total claimed amount?"},
	{"reserve_recommendation", "What is the suggested reserve?"},
}

// Options configures a run. FailFast aborts on the first unreadable ground
// truth; otherwise the pack is recorded with its error and skipped.
type Options struct {
	K              int
	FetchK         int
	RestrictToPack bool
	FallbackDir    string
	FailFast       bool
	Logger         *slog.Logger
}

// Count is a hit tally. HitRate is nil when Total is zero.
type Count struct {
	Hits    int      `json:"hits"`
	Total   int      `json:"total"`
	HitRate *float64 `json:"hit_rate"`
}

type FieldRow struct {
	Field string `json:"field"`
	Count
}

type PackRow struct {
	ClaimReference any    `json:"claim_reference"`
	PDF            string `json:"pdf"`
	Count
	Error string `json:"error,omitempty"`
}

// Report is the result of one evaluation run together with the settings
// that produced it.
type Report struct {
	K              int        `json:"k"`
	FetchK         int        `json:"fetch_k"`
	RestrictToPack bool       `json:"restrict_to_pack"`
	ManifestPath   string     `json:"manifest_path"`
	FallbackDir    *string    `json:"fallback_dir"`
	Overall        Count      `json:"overall"`
	PerField       []FieldRow `json:"per_field"`
	PerPack        []PackRow  `json:"per_pack"`
}

// Evaluate asks every field question for every pack in the manifest and
// tallies hits. A manifest that cannot be read is fatal.
func Evaluate(p Pipeline, manifestPath string, opts Options) (*Report, error) {
	if err := config.ValidateWidths(opts.K, opts.FetchK); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	entries, err := ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	fieldHits := make(map[string]int, len(Fields))
	fieldTotal := make(map[string]int, len(Fields))
	rows := make([]PackRow, 0, len(entries))

	for i, entry := range entries {
		gtPath, gtFound := ResolveManifestPath(manifestPath, entry.GroundTruth, opts.FallbackDir)
		pdfPath, _ := ResolveManifestPath(manifestPath, entry.PDF, opts.FallbackDir)
		var pdfName string
		if pdfPath != "" {
			pdfName = filepath.Base(pdfPath)
		}

		gt, err := loadGroundTruth(gtPath)
		if err != nil && !gtFound {
			err = fmt.Errorf("%w: %w", domain.ErrPathNotResolved, err)
		}
		if err == nil && strings.TrimSpace(entry.PDF) == "" {
			err = fmt.Errorf("%w: entry has no pdf", domain.ErrPathNotResolved)
		}
		if err != nil {
			if opts.FailFast {
				return nil, fmt.Errorf("pack %d (%s): %w", i, pdfName, err)
			}
			log.Warn("skipping pack", "index", i, "pdf", pdfName, "ground_truth", gtPath, "error", err)
			rows = append(rows, PackRow{PDF: pdfName, Error: err.Error()})
			continue
		}

		row := PackRow{ClaimReference: gt["claim_reference"], PDF: pdfName}
		for _, fq := range Fields {
			expected := ExpectedStrings(gt, fq.Field)
			if len(expected) == 0 {
				continue
			}
			q := domain.Query{K: opts.K, FetchK: opts.FetchK}
			if opts.RestrictToPack {
				q.Source = pdfName
			}
			ans, err := p.Ask(fq.Question, q)
			if err != nil {
				return nil, fmt.Errorf("pack %s field %s: %w", pdfName, fq.Field, err)
			}
			hit := anyContained(ans.Citations, expected)
			fieldTotal[fq.Field]++
			row.Total++
			if hit {
				fieldHits[fq.Field]++
				row.Hits++
			}
			log.Debug("evaluated field", "pdf", pdfName, "field", fq.Field, "hit", hit, "citations", len(ans.Citations))
		}
		row.HitRate = rate(row.Hits, row.Total)
		rows = append(rows, row)
	}

	report := &Report{
		K:              opts.K,
		FetchK:         opts.FetchK,
		RestrictToPack: opts.RestrictToPack,
		ManifestPath:   absPath(manifestPath),
		PerPack:        rows,
	}
	if opts.FallbackDir != "" {
		fb := absPath(expandHome(opts.FallbackDir))
		report.FallbackDir = &fb
	}
	for _, fq := range Fields {
		c := Count{Hits: fieldHits[fq.Field], Total: fieldTotal[fq.Field]}
		c.HitRate = rate(c.Hits, c.Total)
		report.PerField = append(report.PerField, FieldRow{Field: fq.Field, Count: c})
		report.Overall.Hits += c.Hits
		report.Overall.Total += c.Total
	}
	report.Overall.HitRate = rate(report.Overall.Hits, report.Overall.Total)

	log.Info("evaluation complete", "packs", len(entries), "hits", report.Overall.Hits, "total", report.Overall.Total)
	return report, nil
}

// WriteReport writes r as indented JSON, creating parent directories.
func WriteReport(path string, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

func anyContained(citations []domain.Citation, expected []string) bool {
	for _, exp := range expected {
		target := normalize(exp)
		if target == "" {
			continue
		}
		for _, c := range citations {
			text := c.Text
			if text == "" {
				text = c.Snippet
			}
			if strings.Contains(normalize(text), target) {
				return true
			}
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func rate(hits, total int) *float64 {
	if total == 0 {
		return nil
	}
	r := float64(hits) / float64(total)
	return &r
}
