// Package extract applies a fixed catalogue of pattern rules to ranked
// citations and records, per field, the first value found together with the
// citation that supports it.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"packrag/internal/domain"
	"packrag/internal/retrieval"
)

// HitSnippetRunes bounds the provenance excerpt stored with each hit.
const HitSnippetRunes = 220

// Kind selects how a rule's patterns are interpreted.
type Kind string

const (
	// KindLabeled patterns are regular expressions; a named group "val" is
	// used as the value when present, else the whole match.
	KindLabeled Kind = "labeled"
	// KindMoney patterns are literal label synonyms followed, within a short
	// window, by a pound amount.
	KindMoney Kind = "money"
	// KindList patterns are heading expressions; bullet lines after the
	// heading become the value.
	KindList Kind = "list"
)

// Rule describes how one field is found.
type Rule struct {
	Field    string
	Kind     Kind
	Patterns []string
	// Stop truncates a labeled value at the first match (labeled only).
	Stop string
	// Keywords keeps only bullets matching it (list only).
	Keywords string
	// Limit caps the number of bullets kept; zero keeps all (list only).
	Limit int
}

const moneyPattern = `£\s?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?`

// moneyWindow is the number of runes allowed between a label and its amount.
const moneyWindow = 80

var (
	bulletRe     = regexp.MustCompile(`(?m)^[ \t]*[•*\-][ \t]*(.+)$`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// DefaultRules returns the built-in catalogue for claim packs.
func DefaultRules() []Rule {
	return []Rule{
		{Field: "claim_reference", Kind: KindLabeled, Patterns: []string{
			`(?i)\bClaim Reference:\s*(?P<val>CLM-[A-Z]{3}-\d{6})\b`,
			`(?i)\bCLM[-\s]?[A-Z]{3}[-\s]?\d{6}\b`,
		}},
		{Field: "policy_number", Kind: KindLabeled, Patterns: []string{
			`(?i)\bPolicy Number:\s*(?P<val>POL-\d{8})\b`,
			`(?i)\bPOL-\d{8}\b`,
		}},
		{Field: "police_reference", Kind: KindLabeled, Patterns: []string{
			`(?i)\bPolice Reference:\s*(?P<val>PNC/\d{4}/\d{7})\b`,
			`(?i)\bPNC/\d{4}/\d{7}\b`,
		}},
		{Field: "incident_date", Kind: KindLabeled, Patterns: []string{
			`(?i)\bIncident Date:\s*(?P<val>\d{4}-\d{2}-\d{2})\b`,
		}},
		{Field: "incident_time", Kind: KindLabeled, Patterns: []string{
			`(?i)\bIncident Time:\s*(?P<val>\d{2}:\d{2})\b`,
		}},
		{Field: "incident_location", Kind: KindLabeled, Patterns: []string{
			`(?i)\bLocation:[ \t]*(?P<val>.+)`,
		}, Stop: `Incident|Police Reference|Policy Number|Claim Reference`},

		{Field: "total_claimed", Kind: KindMoney, Patterns: []string{"Total Claimed"}},
		{Field: "suggested_reserve", Kind: KindMoney, Patterns: []string{"Suggested Reserve", "Reserve"}},
		{Field: "suggested_settlement", Kind: KindMoney, Patterns: []string{"Suggested Settlement Range", "Settlement"}},
		{Field: "repair_estimate", Kind: KindMoney, Patterns: []string{"Repair Estimate"}},
		{Field: "hire_charges", Kind: KindMoney, Patterns: []string{"Total Hire Charges", "Hire Charges"}},
		{Field: "general_damages", Kind: KindMoney, Patterns: []string{"General Damages"}},
		{Field: "special_damages", Kind: KindMoney, Patterns: []string{"Special Damages"}},

		{Field: "injuries", Kind: KindList, Patterns: []string{`(?i)\bReported Injuries\b`}},
		{Field: "fraud_indicators", Kind: KindList,
			Patterns: []string{`(?i)\bFraud\b|\bindicators?\b|\btriage\b`},
			Keywords: `(?i)claim|witness|hire|damage|notification|inconsistent|prior`,
			Limit:    6,
		},
	}
}

type compiledRule struct {
	Rule
	res      []*regexp.Regexp
	stop     *regexp.Regexp
	keywords *regexp.Regexp
}

// Catalogue is a compiled, immutable rule table. It is safe for concurrent use.
type Catalogue struct {
	rules []compiledRule
}

var defaultCatalogue = mustCatalogue(DefaultRules())

func mustCatalogue(rules []Rule) *Catalogue {
	c, err := NewCatalogue(rules)
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalogue compiles rules in order. A malformed rule is a configuration error.
func NewCatalogue(rules []Rule) (*Catalogue, error) {
	c := &Catalogue{rules: make([]compiledRule, 0, len(rules))}
	seen := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		if r.Field == "" {
			return nil, fmt.Errorf("%w: rule %d has no field", domain.ErrConfiguration, i)
		}
		if _, dup := seen[r.Field]; dup {
			return nil, fmt.Errorf("%w: duplicate rule for field %q", domain.ErrConfiguration, r.Field)
		}
		seen[r.Field] = struct{}{}
		if len(r.Patterns) == 0 {
			return nil, fmt.Errorf("%w: field %q has no patterns", domain.ErrConfiguration, r.Field)
		}
		cr := compiledRule{Rule: r}
		for _, p := range r.Patterns {
			var expr string
			switch r.Kind {
			case KindLabeled, KindList:
				expr = p
			case KindMoney:
				expr = fmt.Sprintf(`(?is)%s.{0,%d}?(%s)`, regexp.QuoteMeta(p), moneyWindow, moneyPattern)
			default:
				return nil, fmt.Errorf("%w: field %q has unknown kind %q", domain.ErrConfiguration, r.Field, r.Kind)
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: %v", domain.ErrConfiguration, r.Field, err)
			}
			cr.res = append(cr.res, re)
		}
		var err error
		if r.Stop != "" {
			if cr.stop, err = regexp.Compile(r.Stop); err != nil {
				return nil, fmt.Errorf("%w: field %q stop: %v", domain.ErrConfiguration, r.Field, err)
			}
		}
		if r.Keywords != "" {
			if cr.keywords, err = regexp.Compile(r.Keywords); err != nil {
				return nil, fmt.Errorf("%w: field %q keywords: %v", domain.ErrConfiguration, r.Field, err)
			}
		}
		c.rules = append(c.rules, cr)
	}
	return c, nil
}

// Extract runs the built-in catalogue over citations.
func Extract(citations []domain.Citation) (map[string]string, []domain.Hit) {
	return defaultCatalogue.Extract(citations)
}

// Extract walks citations in the given (rank) order. Each field takes the
// first value found; later citations are not consulted for it.
func (c *Catalogue) Extract(citations []domain.Citation) (map[string]string, []domain.Hit) {
	fields := make(map[string]string)
	var hits []domain.Hit
	for _, cit := range citations {
		text := strings.TrimSpace(cit.Text)
		if text == "" {
			text = strings.TrimSpace(cit.Snippet)
		}
		if text == "" {
			continue
		}
		for i := range c.rules {
			r := &c.rules[i]
			if _, done := fields[r.Field]; done {
				continue
			}
			val, ok := r.match(text)
			if !ok {
				continue
			}
			fields[r.Field] = val
			hits = append(hits, domain.Hit{
				Field:        r.Field,
				Value:        val,
				CitationRank: cit.Rank,
				Page:         cit.Page,
				Source:       cit.Source,
				Snippet:      retrieval.Snippet(text, HitSnippetRunes),
			})
		}
	}
	return fields, hits
}

func (r *compiledRule) match(text string) (string, bool) {
	switch r.Kind {
	case KindLabeled:
		return r.matchLabeled(text)
	case KindMoney:
		for _, re := range r.res {
			if m := re.FindStringSubmatch(text); m != nil {
				return clean(m[1]), true
			}
		}
	case KindList:
		return r.matchList(text)
	}
	return "", false
}

func (r *compiledRule) matchLabeled(text string) (string, bool) {
	for _, re := range r.res {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		val := m[0]
		if i := re.SubexpIndex("val"); i > 0 {
			val = m[i]
		}
		if r.stop != nil {
			if loc := r.stop.FindStringIndex(val); loc != nil {
				val = val[:loc[0]]
			}
		}
		if val = clean(val); val != "" {
			return val, true
		}
	}
	return "", false
}

func (r *compiledRule) matchList(text string) (string, bool) {
	start := -1
	for _, re := range r.res {
		if loc := re.FindStringIndex(text); loc != nil && (start < 0 || loc[0] < start) {
			start = loc[0]
		}
	}
	if start < 0 {
		return "", false
	}
	var vals []string
	for _, m := range bulletRe.FindAllStringSubmatch(text[start:], -1) {
		v := clean(m[1])
		if len([]rune(v)) <= 3 {
			continue
		}
		if r.keywords != nil && !r.keywords.MatchString(v) {
			continue
		}
		vals = append(vals, v)
		if r.Limit > 0 && len(vals) == r.Limit {
			break
		}
	}
	if len(vals) == 0 {
		return "", false
	}
	return strings.Join(vals, "; "), true
}

func clean(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
