// Package tui provides a Bubble Tea browser for session logs.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tugtools/tug/internal/diff"
	"github.com/tugtools/tug/internal/sessionlog"
	"github.com/tugtools/tug/internal/stats"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	diffAddStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	diffDelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	diffMetaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabSummary tabID = iota
	tabRecords
	tabStats
	tabCount
)

var tabNames = [tabCount]string{"Summary", "Records", "Stats"}

// ── Model ────────────────────

// Model is the root Bubble Tea model for the session browser.
type Model struct {
	session   *sessionlog.Session
	report    *stats.Report
	filename  string
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	// Records tab: cursor position and expanded set
	recCursor   int
	expandedRec map[int]bool
}

// New creates a browser model for one session and its aggregate report.
func New(sess *sessionlog.Session, filename string) Model {
	return Model{
		session:     sess,
		report:      stats.Aggregate(nil, sess),
		filename:    filename,
		expandedRec: make(map[int]bool),
	}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		case "1", "2", "3":
			m.activeTab = tabID(msg.String()[0] - '1')
		case "up", "k":
			if m.activeTab == tabRecords && m.recCursor > 0 {
				m.recCursor--
				m.rebuildRecordsViewport()
				return m, nil
			}
		case "down", "j":
			if m.activeTab == tabRecords && m.recCursor < len(m.session.Entries)-1 {
				m.recCursor++
				m.rebuildRecordsViewport()
				return m, nil
			}
		case "enter", " ":
			if m.activeTab == tabRecords && len(m.session.Entries) > 0 {
				if m.expandedRec[m.recCursor] {
					delete(m.expandedRec, m.recCursor)
				} else {
					m.expandedRec[m.recCursor] = true
				}
				m.rebuildRecordsViewport()
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  tug  " + m.filename)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-3 jump  q quit"
	if m.activeTab == tabRecords {
		hint += "  ↑/↓ select  enter expand/collapse"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := m.width - lipgloss.Width(hint) - len(pct) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(
		hintStyle.Render(hint) + strings.Repeat(" ", pad) + pct,
	)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

// ── Viewport management ───────────────────────────────────────────────────────

func (m *Model) initViewports() {
	// title(1) + tabRow(1) + statusBar(1) = 3 fixed rows
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) rebuildRecordsViewport() {
	m.viewports[tabRecords].SetContent(m.renderTab(tabRecords))
}

// ── Tab renderers ─────────────────────────────────────────────────────────────

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabSummary:
		return m.renderSummary()
	case tabRecords:
		return m.renderRecords()
	case tabStats:
		return m.renderStats()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func (m *Model) renderSummary() string {
	s := m.session
	var sb strings.Builder
	sb.WriteString(heading("Session Summary"))

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	row("Session:", s.ID.String())
	row("Work Dir:", s.WorkDir)
	row("Started:", s.StartTime.Format("2006-01-02 15:04:05 MST"))
	if s.CloseTime != nil {
		row("Closed:", s.CloseTime.Format("2006-01-02 15:04:05 MST"))
	} else {
		row("Closed:", dimStyle.Render("(still open)"))
	}
	if s.CloseMessage != "" {
		row("Summary:", s.CloseMessage)
	}
	row("Baseline:", shorten(string(s.Baseline)))
	row("Records:", fmt.Sprintf("%d", len(s.Entries)))

	if len(m.report.Sessions) == 1 {
		ss := m.report.Sessions[0]
		sb.WriteString(heading("Totals"))
		row("Added:", diffAddStyle.Render(fmt.Sprintf("+%d", ss.Added)))
		row("Removed:", diffDelStyle.Render(fmt.Sprintf("-%d", ss.Removed)))
		row("Churn:", fmt.Sprintf("%.2f", ss.Churn))
	}
	return sb.String()
}

func (m *Model) renderRecords() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Diff Records (%d)", len(m.session.Entries))))
	if len(m.session.Entries) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i, entry := range m.session.Entries {
		ts := timeStyle.Render(entry.CapturedAt.Format("15:04:05"))
		st := recordSummary(entry.Record)

		toggle := dimStyle.Render("  ▶ ")
		if m.expandedRec[i] {
			toggle = dimStyle.Render("  ▼ ")
		}
		row := fmt.Sprintf("%s%s  %s → %s  %s", toggle, ts,
			shorten(string(entry.Record.From)), shorten(string(entry.Record.To)), st)
		if i == m.recCursor {
			row = selectedRowStyle.Width(m.width - 2).Render(row)
		}
		sb.WriteString(row + "\n")

		if m.expandedRec[i] {
			sb.WriteString(renderHunks(entry.Record, m.width))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *Model) renderStats() string {
	data, err := (stats.TextRenderer{Width: m.width - 4}).Render(m.report)
	if err != nil {
		return dimStyle.Render("  (stats unavailable: " + err.Error() + ")")
	}
	return heading("Statistics") + indent(string(data), "  ")
}

// recordSummary is the one-line description of a record.
func recordSummary(rec *diff.Record) string {
	added, removed := 0, 0
	for _, st := range rec.Stats() {
		added += st.Added
		removed += st.Removed
	}
	return fmt.Sprintf("%s %s %s",
		dimStyle.Render(fmt.Sprintf("[%d hunks]", len(rec.Hunks))),
		diffDelStyle.Render(fmt.Sprintf("-%d", removed)),
		diffAddStyle.Render(fmt.Sprintf("+%d", added)))
}

// renderHunks colorizes a record's hunks.
func renderHunks(rec *diff.Record, width int) string {
	var sb strings.Builder
	border := dimStyle.Render("  " + strings.Repeat("─", max(width-4, 1)))
	sb.WriteString(border + "\n")
	for _, h := range rec.Hunks {
		header := fmt.Sprintf("  @@ %s -%d,%d +%d,%d @@", h.Path, h.OldStart, h.OldLines, h.NewStart, h.NewLines)
		sb.WriteString(diffMetaStyle.Render(header) + "\n")
		for _, l := range h.Lines {
			text := strings.TrimSuffix(l.Text, "\n")
			switch l.Op {
			case diff.OpAdd:
				sb.WriteString(diffAddStyle.Render("  +"+text) + "\n")
			case diff.OpDel:
				sb.WriteString(diffDelStyle.Render("  -"+text) + "\n")
			default:
				sb.WriteString(dimStyle.Render("   "+text) + "\n")
			}
		}
	}
	sb.WriteString(border + "\n")
	return sb.String()
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func shorten(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// Run starts the browser for the given session log.
func Run(sess *sessionlog.Session, filename string) error {
	p := tea.NewProgram(New(sess, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
