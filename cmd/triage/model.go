package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"autocam/pkg/api"
	"autocam/pkg/collection"
	"autocam/pkg/session"
	"autocam/pkg/triage"
)

// ─── async messages ──────────────────────────────────────────────────────────

type syncDoneMsg struct{ err error }

type triageDoneMsg struct {
	res session.Result
	err error
}

// ─── key bindings ────────────────────────────────────────────────────────────

type keyMap struct {
	Left       key.Binding
	Right      key.Binding
	Up         key.Binding
	Down       key.Binding
	NextSet    key.Binding
	PrevSet    key.Binding
	Keep       key.Binding
	KeepStay   key.Binding
	KeepMarked key.Binding
	Mark       key.Binding
	MarkAll    key.Binding
	ClearMarks key.Binding
	HideBlurry key.Binding
	CycleSort  key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Left:       key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "prev photo")),
		Right:      key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next photo")),
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "row up")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "row down")),
		NextSet:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next set")),
		PrevSet:    key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev set")),
		Keep:       key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "keep / drop")),
		KeepStay:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "keep, stay")),
		KeepMarked: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "keep marked")),
		Mark:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mark")),
		MarkAll:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "mark all")),
		ClearMarks: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear marks")),
		HideBlurry: key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "hide blurry")),
		CycleSort:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Keep, k.NextSet, k.Mark, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Left, k.Right, k.Up, k.Down},
		{k.Keep, k.KeepStay, k.KeepMarked, k.Mark, k.MarkAll, k.ClearMarks},
		{k.NextSet, k.PrevSet, k.HideBlurry, k.CycleSort},
		{k.Help, k.Quit},
	}
}

// ─── model ───────────────────────────────────────────────────────────────────

// model is the root Bubble Tea model. All triage behavior lives in the
// session controller; the model only translates keys to actions and renders
// the store.
type model struct {
	store *collection.Store
	ctl   *session.Controller
	keys  keyMap
	help  help.Model
	log   zerolog.Logger

	columns  int
	width    int
	height   int
	status   string
	showHelp bool
	synced   bool
}

func newModel(store *collection.Store, trans *session.Transitioner, columns int, log zerolog.Logger) *model {
	m := &model{
		store:   store,
		keys:    defaultKeys(),
		help:    help.New(),
		log:     log,
		columns: columns,
		status:  "waiting for first sync",
	}
	m.ctl = session.NewController(store, trans, m.gridColumns, log)
	return m
}

// gridColumns reports how many cards fit per row at the current width.
func (m *model) gridColumns() int {
	if m.width <= 0 {
		return m.columns
	}
	n := m.width / cardWidth
	if n < 1 {
		n = 1
	}
	if n > m.columns {
		n = m.columns
	}
	return n
}

func (m *model) Init() tea.Cmd { return nil }

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case syncDoneMsg:
		if msg.err != nil {
			m.status = "sync: " + shortError(msg.err)
			return m, nil
		}
		m.synced = true
		m.status = fmt.Sprintf("synced, %d photos", m.store.Len())
		return m, nil

	case triageDoneMsg:
		m.status = triageStatus(msg.res, msg.err)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil
	case key.Matches(msg, m.keys.Left):
		m.ctl.Dispatch(session.ActionPrevPhoto)
	case key.Matches(msg, m.keys.Right):
		m.ctl.Dispatch(session.ActionNextPhoto)
	case key.Matches(msg, m.keys.Up):
		m.ctl.Dispatch(session.ActionRowUp)
	case key.Matches(msg, m.keys.Down):
		m.ctl.Dispatch(session.ActionRowDown)
	case key.Matches(msg, m.keys.NextSet):
		m.ctl.Dispatch(session.ActionNextSet)
	case key.Matches(msg, m.keys.PrevSet):
		m.ctl.Dispatch(session.ActionPrevSet)
	case key.Matches(msg, m.keys.Mark):
		m.ctl.Dispatch(session.ActionToggleMark)
	case key.Matches(msg, m.keys.MarkAll):
		m.ctl.Dispatch(session.ActionMarkAll)
	case key.Matches(msg, m.keys.ClearMarks):
		m.ctl.Dispatch(session.ActionClearMarks)
	case key.Matches(msg, m.keys.HideBlurry):
		f := m.store.Filters()
		f.HideBlurry = !f.HideBlurry
		m.store.SetFilters(f)
	case key.Matches(msg, m.keys.CycleSort):
		so := m.store.Sorting()
		so.Key = (so.Key + 1) % 4
		m.store.SetSort(so)
		m.status = "sort: " + so.Key.String()
	case key.Matches(msg, m.keys.Keep):
		if op := m.ctl.Dispatch(session.ActionTriage); op != nil {
			return m, runOp(op)
		}
	case key.Matches(msg, m.keys.KeepStay):
		if op := m.ctl.Dispatch(session.ActionTriageStay); op != nil {
			return m, runOp(op)
		}
	case key.Matches(msg, m.keys.KeepMarked):
		if op := m.ctl.TriageMarked(); op != nil {
			return m, runOp(op)
		}
	default:
		// number keys jump straight to a set tab
		if i := msg.String(); len(i) == 1 && i[0] >= '1' && i[0] <= '4' {
			m.store.SetActiveSet(triage.Sets[i[0]-'1'])
		}
	}
	return m, nil
}

func runOp(op session.AsyncOp) tea.Cmd {
	return func() tea.Msg {
		res, err := op(context.Background())
		return triageDoneMsg{res: res, err: err}
	}
}

func triageStatus(res session.Result, err error) string {
	verb := "kept"
	if res.Demoted {
		verb = "dropped"
	}
	switch {
	case err == nil && res.Partial():
		return fmt.Sprintf("%s %d of %d (rest skipped by server)", verb, res.Affected, res.Requested)
	case err == nil:
		return fmt.Sprintf("%s %d", verb, res.Affected)
	case api.IsTransient(err):
		return "network trouble, change rolled back, press again to retry"
	case api.IsAuthorization(err):
		return "not allowed: " + shortError(err)
	default:
		return shortError(err)
	}
}

func shortError(err error) string {
	s := err.Error()
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}
