package tui

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"packrag/internal/domain"
	"packrag/internal/evaluation"
	"packrag/internal/index"
	"packrag/internal/memo"
)

// RAGPort is the TUI-facing subset of the RAG service.
type RAGPort interface {
	Ask(question string, q domain.Query) (*domain.Answer, error)
	Evaluate(manifestPath string, opts evaluation.Options) (*evaluation.Report, error)
	Index() *index.Index
}

// EvalSettings configures the evaluation run bound to ctrl+e.
type EvalSettings struct {
	Manifest string
	Options  evaluation.Options
	Cache    *memo.Cache[*evaluation.Report]
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	service   RAGPort
	cache     *memo.Cache[*domain.Answer]
	input     textinput.Model
	viewport  viewport.Model
	answer    *domain.Answer
	packs     []string
	pack      int
	k         int
	fetchK    int
	status    string
	cursor    int
	ready     bool
	lastQuery string
	eval      EvalSettings
	report    *evaluation.Report
}

// New creates a new TUI model. The selectable packs are the sources of the
// live index, preceded by "all packs".
func New(service RAGPort, cache *memo.Cache[*domain.Answer], k, fetchK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about a claim pack and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	packs := []string{""}
	if idx := service.Index(); idx != nil {
		packs = append(packs, idx.Sources()...)
	}
	return Model{
		service:  service,
		cache:    cache,
		input:    ti,
		viewport: vp,
		packs:    packs,
		k:        k,
		fetchK:   fetchK,
		status:   "Index loaded. Tab switches pack, ↑/↓ browse citations, ctrl+e runs evaluation.",
	}
}

// WithEvaluation enables the evaluation action.
func (m Model) WithEvaluation(s EvalSettings) Model {
	m.eval = s
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2 // header + settings
		totalFooterLines := 1 // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "ctrl+e":
			m.evaluate()
			return m, nil
		case "enter":
			if q := strings.TrimSpace(m.input.Value()); q != "" {
				m.ask(q)
				return m, nil
			}
		case "tab":
			m.pack = (m.pack + 1) % len(m.packs)
			if m.lastQuery != "" {
				m.ask(m.lastQuery)
			}
			return m, nil
		case "down":
			if m.answer != nil && len(m.answer.Citations) > 0 {
				m.cursor = (m.cursor + 1) % len(m.answer.Citations)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if m.answer != nil && len(m.answer.Citations) > 0 {
				n := len(m.answer.Citations)
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) ask(question string) {
	q := domain.Query{K: m.k, FetchK: m.fetchK, Source: m.packs[m.pack]}
	compute := func() (*domain.Answer, error) { return m.service.Ask(question, q) }

	var ans *domain.Answer
	var err error
	if idx := m.service.Index(); idx != nil && m.cache != nil {
		ans, err = m.cache.GetOrCompute(memo.AskKey(idx, question, q), compute)
	} else {
		ans, err = compute()
	}

	m.lastQuery = question
	m.cursor = 0
	m.report = nil
	switch {
	case err != nil:
		m.status = "Error: " + err.Error()
		m.answer = nil
	case len(ans.Citations) == 0:
		m.status = fmt.Sprintf("No citations in %s. Try another pack or a larger fetch_k.", m.packLabel())
		m.answer = ans
	default:
		m.status = fmt.Sprintf("%d citations for %q", len(ans.Citations), question)
		m.answer = ans
	}
	m.viewport.SetContent(m.renderCurrentResult())
}

func (m *Model) evaluate() {
	if m.eval.Manifest == "" {
		m.status = "No evaluation manifest configured."
		return
	}
	opts := m.eval.Options
	compute := func() (*evaluation.Report, error) { return m.service.Evaluate(m.eval.Manifest, opts) }

	var report *evaluation.Report
	var err error
	if idx := m.service.Index(); idx != nil && m.eval.Cache != nil {
		key := memo.EvalKey(idx, m.eval.Manifest, opts.K, opts.FetchK, opts.RestrictToPack, opts.FallbackDir)
		report, err = m.eval.Cache.GetOrCompute(key, compute)
	} else {
		report, err = compute()
	}
	if err != nil {
		m.status = "Evaluation failed: " + err.Error()
		return
	}
	m.report = report
	m.status = fmt.Sprintf("Evaluated %d packs from %s", len(report.PerPack), m.eval.Manifest)
	m.viewport.SetContent(m.renderCurrentResult())
}

func (m Model) packLabel() string {
	if p := m.packs[m.pack]; p != "" {
		return p
	}
	return "all packs"
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Claim Pack Search")
	settings := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).
		Render(fmt.Sprintf("pack: %s  k=%d  fetch_k=%d", m.packLabel(), m.k, m.fetchK))
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + settings + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if m.report != nil {
		return renderReport(m.report)
	}
	if m.answer == nil {
		return "No results yet."
	}
	var b strings.Builder
	b.WriteString(answerStyle.Render("Answer"))
	b.WriteString("\n")
	b.WriteString(m.answer.Answer)
	b.WriteString("\n")
	for _, h := range m.answer.Hits {
		fmt.Fprintf(&b, "\n  %s ← citation #%d (%s p.%d)", h.Field, h.CitationRank, h.Source, h.Page)
	}
	if len(m.answer.Citations) == 0 {
		return b.String()
	}
	c := m.answer.Citations[m.cursor]
	fmt.Fprintf(&b, "\n\n%s\n\n", answerStyle.Render(fmt.Sprintf(
		"Citation %d/%d  %s p.%d  score=%.3f", c.Rank, len(m.answer.Citations), c.Source, c.Page, c.Score)))
	b.WriteString(highlightBestSentence(c.Text, m.lastQuery))
	return b.String()
}

func renderReport(r *evaluation.Report) string {
	var b strings.Builder
	b.WriteString(answerStyle.Render(fmt.Sprintf("Evaluation  k=%d  fetch_k=%d  restrict_to_pack=%t", r.K, r.FetchK, r.RestrictToPack)))
	fmt.Fprintf(&b, "\n\nOverall hit_rate@%d: %s (%d/%d)\n", r.K, formatRate(r.Overall.HitRate), r.Overall.Hits, r.Overall.Total)
	for _, row := range r.PerField {
		fmt.Fprintf(&b, "\n  %-24s %s (%d/%d)", row.Field, formatRate(row.HitRate), row.Hits, row.Total)
	}
	for _, row := range r.PerPack {
		if row.Error != "" {
			fmt.Fprintf(&b, "\n\nSkipped %s: %s", row.PDF, row.Error)
		}
	}
	return b.String()
}

func formatRate(r *float64) string {
	if r == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", *r)
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sentenceRe     = regexp.MustCompile(`(?m)[^.!?\n]+(?:[.!?]|$)`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := index.TokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := index.Tokens(sentence)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
