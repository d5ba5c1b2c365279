package stats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Renderer turns a report into output bytes.
type Renderer interface {
	Render(r *Report) ([]byte, error)
}

// JSONRenderer emits the report as stable, pretty-printed JSON.
type JSONRenderer struct{}

func (JSONRenderer) Render(r *Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return append(data, '\n'), nil
}

// TextRenderer emits a per-session change histogram: one row per file with
// a bar scaled against the session's largest change.
type TextRenderer struct {
	Width int // terminal width; 0 means 80
}

const (
	minGraphWidth = 10
	maxGraphWidth = 42
)

var (
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	delStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	modStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	renameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

func (t TextRenderer) Render(r *Report) ([]byte, error) {
	width := t.Width
	if width <= 0 {
		width = 80
	}

	var sb strings.Builder
	for i := range r.Sessions {
		if i > 0 {
			sb.WriteByte('\n')
		}
		t.renderSession(&sb, &r.Sessions[i], width)
	}
	if len(r.Sessions) > 1 {
		fmt.Fprintf(&sb, "\n%s %s %s  churn %.2f\n",
			boldStyle.Render(fmt.Sprintf("total: %d sessions", len(r.Sessions))),
			delStyle.Render(fmt.Sprintf("-%d", r.TotalRemoved)),
			addStyle.Render(fmt.Sprintf("+%d", r.TotalAdded)),
			r.Churn)
	}
	return []byte(sb.String()), nil
}

func (t TextRenderer) renderSession(sb *strings.Builder, ss *SessionStats, width int) {
	state := "closed"
	if ss.Open {
		state = "open"
	}
	fmt.Fprintf(sb, "%s %s %s %s %s\n",
		boldStyle.Render(shortID(ss.SessionID)),
		ss.WorkDir,
		dimStyle.Render(fmt.Sprintf("(%s, %s)", ss.Duration.Round(time.Second), state)),
		delStyle.Render(fmt.Sprintf("-%d", ss.Removed)),
		addStyle.Render(fmt.Sprintf("+%d", ss.Added)))

	if len(ss.Files) == 0 {
		sb.WriteString(dimStyle.Render("  (no changes)") + "\n")
		return
	}

	maxChange := 0
	maxLeft := 0
	for _, fc := range ss.Files {
		if total := fc.Added + fc.Removed; total > maxChange {
			maxChange = total
		}
		if l := len(fc.Status) + 1 + len(fc.DisplayPath()); l > maxLeft {
			maxLeft = l
		}
	}
	maxDigits := len(fmt.Sprint(maxChange))

	graphWidth := width - maxLeft - maxDigits - 7
	if graphWidth < minGraphWidth {
		graphWidth = minGraphWidth
	}
	if graphWidth > maxGraphWidth {
		graphWidth = maxGraphWidth
	}

	for _, fc := range ss.Files {
		left := fc.Status + " " + fc.DisplayPath()
		total := fc.Added + fc.Removed

		var styled string
		switch fc.Status {
		case "A":
			styled = addStyle.Render(left)
		case "D":
			styled = delStyle.Render(left)
		case "R", "C":
			styled = renameStyle.Render(left)
		default:
			styled = modStyle.Render(left)
		}

		fmt.Fprintf(sb, "  %s%s %s %*d %s\n",
			styled,
			strings.Repeat(" ", maxLeft-len(left)),
			dimStyle.Render("|"),
			maxDigits, total,
			bar(fc.Added, fc.Removed, maxChange, graphWidth))
	}
}

// bar builds the +/- histogram bar, scaled so the session's largest change
// fills the graph width. A non-zero side always gets at least one cell.
func bar(added, removed, globalMax, maxWidth int) string {
	total := added + removed
	if total == 0 || globalMax == 0 {
		return ""
	}
	barWidth := total * maxWidth / globalMax
	if barWidth == 0 {
		barWidth = 1
	}
	if barWidth > maxWidth {
		barWidth = maxWidth
	}

	plus := barWidth * added / total
	minus := barWidth - plus
	if added > 0 && plus == 0 {
		plus, minus = 1, barWidth-1
	}
	if removed > 0 && minus == 0 && barWidth > 1 {
		plus, minus = barWidth-1, 1
	}

	return addStyle.Render(strings.Repeat("+", plus)) + delStyle.Render(strings.Repeat("-", minus))
}

// shortID abbreviates a session UUID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
