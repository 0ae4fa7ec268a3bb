package evaluation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ManifestEntry pairs a pack document with its ground-truth file. Both paths
// may be absolute or relative to the manifest.
type ManifestEntry struct {
	PDF         string `json:"pdf"`
	GroundTruth string `json:"ground_truth"`
}

// moneyFields are compared against formatted amount variants.
var moneyFields = map[string]bool{
	"total_claimed":          true,
	"reserve_recommendation": true,
}

// ReadManifest parses a JSON array of manifest entries.
func ReadManifest(path string) ([]ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return entries, nil
}

// ResolveManifestPath locates ref as referenced from manifestFile. Candidates,
// first existing wins: ref itself when absolute, ref relative to the manifest
// directory, then fallbackDir/basename(ref). When none exists the
// manifest-relative candidate is returned with ok false. Only regular files
// count as found; a blank ref resolves to nothing.
func ResolveManifestPath(manifestFile, ref, fallbackDir string) (path string, ok bool) {
	if strings.TrimSpace(ref) == "" {
		return "", false
	}
	ref = expandHome(ref)

	var candidate string
	if filepath.IsAbs(ref) {
		candidate = filepath.Clean(ref)
		if exists(candidate) {
			return candidate, true
		}
	} else {
		manifestDir := filepath.Dir(absPath(manifestFile))
		candidate = filepath.Join(manifestDir, ref)
		if exists(candidate) {
			return candidate, true
		}
	}

	if fallbackDir != "" {
		fb := filepath.Join(absPath(expandHome(fallbackDir)), filepath.Base(ref))
		if exists(fb) {
			return fb, true
		}
	}
	return candidate, false
}

// loadGroundTruth reads a field→value JSON object. Numbers keep their
// literal text.
func loadGroundTruth(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var gt map[string]any
	if err := dec.Decode(&gt); err != nil {
		return nil, fmt.Errorf("parse ground truth %s: %w", path, err)
	}
	if gt == nil {
		return nil, fmt.Errorf("parse ground truth %s: not a JSON object", path)
	}
	return gt, nil
}

// ExpectedStrings lists the strings any of which counts as a hit for field.
// Absent or null values yield none. Numeric money values expand to four
// variants with and without the pound sign and thousands grouping.
func ExpectedStrings(gt map[string]any, field string) []string {
	v, ok := gt[field]
	if !ok || v == nil {
		return nil
	}
	if moneyFields[field] {
		if x, ok := toFloat(v); ok {
			return MoneyVariants(x)
		}
	}
	return []string{stringForm(v)}
}

// MoneyVariants formats x as £1,234.50, £1234.50, 1,234.50 and 1234.50.
func MoneyVariants(x float64) []string {
	plain := strconv.FormatFloat(x, 'f', 2, 64)
	grouped := plain
	sign := ""
	if strings.HasPrefix(plain, "-") {
		sign = "-"
	}
	abs := strings.TrimPrefix(plain, "-")
	if whole, frac, found := strings.Cut(abs, "."); found {
		if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
			grouped = sign + humanize.Comma(n) + "." + frac
		}
	}
	return []string{"£" + grouped, "£" + plain, grouped, plain}
}

func toFloat(v any) (float64, bool) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case string:
		s = strings.TrimSpace(t)
	default:
		return 0, false
	}
	x, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, false
	}
	return x, true
}

func stringForm(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func exists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
