package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"autocam/pkg/api"
	"autocam/pkg/triage"
)

const cardWidth = 24

var (
	tabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("245"))
	activeTabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	cardStyle = lipgloss.NewStyle().
			Width(cardWidth - 2).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238"))
	cursorCardStyle = cardStyle.
			BorderForeground(lipgloss.Color("212")).
			Bold(true)

	badgeBlurry   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Render("blurry")
	badgeSelected = lipgloss.NewStyle().Foreground(lipgloss.Color("84")).Render("kept")
	badgeMarked   = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Render("marked")
	badgeFaces    = lipgloss.NewStyle().Foreground(lipgloss.Color("111")).Render("faces")

	statusStyle = lipgloss.NewStyle().Faint(true)
	emptyStyle  = lipgloss.NewStyle().Faint(true).Padding(1, 2)
)

var setLabels = map[triage.Set]string{
	triage.Pending: "Pending",
	triage.Blurry:  "Blurry",
	triage.Clean:   "Clean",
	triage.Final:   "Final",
}

func (m *model) View() string {
	var b strings.Builder
	b.WriteString(m.renderTabs())
	b.WriteString("\n")
	b.WriteString(m.renderGrid())
	b.WriteString("\n")
	if m.showHelp {
		b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	} else {
		b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(m.statusLine()))
	return b.String()
}

func (m *model) renderTabs() string {
	counts := m.store.Counts()
	active := m.store.ActiveSet()
	tabs := make([]string, 0, len(triage.Sets))
	for i, set := range triage.Sets {
		label := fmt.Sprintf("%d %s (%d)", i+1, setLabels[set], counts[set])
		if set == active {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *model) renderGrid() string {
	view := m.store.View()
	if len(view) == 0 {
		if !m.synced {
			return emptyStyle.Render("syncing...")
		}
		return emptyStyle.Render("nothing here")
	}
	cols := m.gridColumns()
	cursor := m.store.Cursor()
	if cursor >= len(view) {
		cursor = len(view) - 1
	}

	var rows []string
	for start := 0; start < len(view); start += cols {
		end := start + cols
		if end > len(view) {
			end = len(view)
		}
		cards := make([]string, 0, cols)
		for i := start; i < end; i++ {
			cards = append(cards, m.renderCard(view[i], i == cursor))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	}
	return strings.Join(rows, "\n")
}

func (m *model) renderCard(p api.Photo, underCursor bool) string {
	name := p.Filename
	if len(name) > cardWidth-6 {
		name = name[:cardWidth-9] + "..."
	}

	score := "unscored"
	if p.QualityScore != nil {
		score = fmt.Sprintf("q %.0f", *p.QualityScore)
		if p.BlurScore != nil {
			score += fmt.Sprintf("  blur %.0f", *p.BlurScore)
		}
	}

	var badges []string
	if p.IsBlurry {
		badges = append(badges, badgeBlurry)
	}
	if p.IsSelected {
		badges = append(badges, badgeSelected)
	}
	if p.HasFaces {
		badges = append(badges, badgeFaces)
	}
	if m.store.IsMarked(p.ID) {
		badges = append(badges, badgeMarked)
	}

	body := name + "\n" + score + "\n" + strings.Join(badges, " ")
	if underCursor {
		return cursorCardStyle.Render(body)
	}
	return cardStyle.Render(body)
}

func (m *model) statusLine() string {
	view := m.store.View()
	pos := ""
	if len(view) > 0 {
		pos = fmt.Sprintf("%d/%d", m.store.Cursor()+1, len(view))
	}
	parts := []string{pos}
	if f := m.store.Filters(); f.HideBlurry {
		if m.store.ActiveSet() == triage.Blurry {
			parts = append(parts, "hide-blurry (off here)")
		} else {
			parts = append(parts, "hide-blurry")
		}
	}
	if marked := len(m.store.MarkedIDs()); marked > 0 {
		parts = append(parts, fmt.Sprintf("%d marked", marked))
	}
	parts = append(parts, m.status)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "  ·  ")
}
