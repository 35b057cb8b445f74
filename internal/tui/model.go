package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"refcite/internal/service"
	"refcite/internal/textutil"
)

// Model is the Bubble Tea model for browsing the decisions of one run.
type Model struct {
	report    *service.Report
	input     textinput.Model
	viewport  viewport.Model
	visible   []int // indexes into report.Decisions
	cursor    int
	citedOnly bool
	filter    string
	status    string
	ready     bool
}

// New creates a review model over a finished run.
func New(report *service.Report) Model {
	ti := textinput.New()
	ti.Prompt = "filter> "
	ti.Placeholder = "text to filter paragraphs, Enter to apply"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	m := Model{report: report, input: ti, viewport: vp}
	m.applyFilter()
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around detail and filter boxes
		_, rh := detailBoxStyle.GetFrameSize()
		_, qh := filterBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + run summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			m.filter = strings.TrimSpace(m.input.Value())
			m.applyFilter()
			m.viewport.SetContent(m.renderCurrent())
			return m, nil
		case "tab":
			m.citedOnly = !m.citedOnly
			m.applyFilter()
			m.viewport.SetContent(m.renderCurrent())
			return m, nil
		case "down":
			if len(m.visible) > 0 {
				m.cursor = (m.cursor + 1) % len(m.visible)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if len(m.visible) > 0 {
				m.cursor = (m.cursor - 1 + len(m.visible)) % len(m.visible)
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) applyFilter() {
	m.visible = nil
	needle := strings.ToLower(m.filter)
	for i, d := range m.report.Decisions {
		if m.citedOnly && !d.Decision.CitationRequired {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(d.Paragraph), needle) {
			continue
		}
		m.visible = append(m.visible, i)
	}
	m.cursor = 0
	m.status = fmt.Sprintf("%d of %d paragraphs shown · ↑/↓ move · tab cited only · esc quit", len(m.visible), len(m.report.Decisions))
}

// View renders the TUI layout and the selected paragraph.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("refcite review")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(fmt.Sprintf(
		"run %s  %s  %d references  %d chunks  %d cited",
		m.report.RunID, m.report.Embedder, m.report.References, m.report.Chunks, m.report.Cited))
	details := detailBoxStyle.Render(m.viewport.View())
	input := filterBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + summary + "\n" + details + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	if len(m.visible) == 0 {
		return "No paragraphs match."
	}
	d := m.report.Decisions[m.visible[m.cursor]]
	var b strings.Builder
	fmt.Fprintf(&b, "Paragraph %d  (%d/%d)\n\n%s\n\n", d.Index, m.cursor+1, len(m.visible), d.Paragraph)
	if d.Decision.CitationRequired {
		b.WriteString(citedStyle.Render(fmt.Sprintf("cite %s  confidence=%.3f", d.Decision.ReferenceID, d.Decision.ConfidenceScore)))
	} else {
		b.WriteString(rejectedStyle.Render(d.Decision.Reason))
	}
	b.WriteString("\n")
	for i, r := range d.Matches {
		fmt.Fprintf(&b, "\n#%d %s  score=%.3f\n%s\n", i+1, r.ChunkID, r.Score, highlightBestSentence(r.Text, d.Paragraph))
	}
	return b.String()
}

var (
	detailBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	filterBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	citedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	rejectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// highlightBestSentence emphasizes the chunk sentence sharing the most
// tokens with the paragraph.
func highlightBestSentence(text, paragraph string) string {
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return text
	}
	pTokens := tokenSet(paragraph)
	if len(pTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := overlap(pTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

func tokenSet(s string) map[string]struct{} {
	tokens := textutil.Tokenize(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func overlap(set map[string]struct{}, sentence string) int {
	score := 0
	for t := range tokenSet(sentence) {
		if _, ok := set[t]; ok {
			score++
		}
	}
	return score
}
