package session

import (
	"context"

	"github.com/rs/zerolog"

	"autocam/pkg/collection"
	"autocam/pkg/triage"
)

// Action is a logical review-screen command. The UI maps key events to
// actions; everything below key decoding lives here so bindings can change
// without touching triage behavior.
type Action string

const (
	ActionNextPhoto  Action = "next-photo"
	ActionPrevPhoto  Action = "prev-photo"
	ActionRowUp      Action = "row-up"
	ActionRowDown    Action = "row-down"
	ActionTriage     Action = "triage"       // keep / rescue the photo under the cursor
	ActionTriageStay Action = "triage-stay"  // same, pinned to the current card
	ActionToggleMark Action = "toggle-mark"
	ActionMarkAll    Action = "mark-all"
	ActionClearMarks Action = "clear-marks"
	ActionNextSet    Action = "next-set"
	ActionPrevSet    Action = "prev-set"
)

// AsyncOp is deferred work an action produced. The caller runs it off the
// event loop (the TUI wraps it in a tea.Cmd) and decides how to surface the
// result.
type AsyncOp func(ctx context.Context) (Result, error)

// Controller executes actions against a store and transition service.
type Controller struct {
	store   *collection.Store
	trans   *Transitioner
	columns func() int // grid width for row movement; nil means single column
	log     zerolog.Logger
}

// NewController wires a controller. columns may be nil for list layouts.
func NewController(store *collection.Store, trans *Transitioner, columns func() int, log zerolog.Logger) *Controller {
	return &Controller{store: store, trans: trans, columns: columns, log: log}
}

var handlers = map[Action]func(*Controller) AsyncOp{
	ActionNextPhoto:  func(c *Controller) AsyncOp { c.store.MoveCursor(1); return nil },
	ActionPrevPhoto:  func(c *Controller) AsyncOp { c.store.MoveCursor(-1); return nil },
	ActionRowDown:    func(c *Controller) AsyncOp { c.store.MoveCursor(c.cols()); return nil },
	ActionRowUp:      func(c *Controller) AsyncOp { c.store.MoveCursor(-c.cols()); return nil },
	ActionTriage:     func(c *Controller) AsyncOp { return c.triageCurrent() },
	ActionTriageStay: func(c *Controller) AsyncOp { return c.triageCurrent() },
	ActionToggleMark: (*Controller).toggleMark,
	ActionMarkAll:    func(c *Controller) AsyncOp { c.store.MarkAllInView(); return nil },
	ActionClearMarks: func(c *Controller) AsyncOp { c.store.ClearMarks(); return nil },
	ActionNextSet:    func(c *Controller) AsyncOp { c.cycleSet(1); return nil },
	ActionPrevSet:    func(c *Controller) AsyncOp { c.cycleSet(-1); return nil },
}

// Dispatch runs an action. Cursor, mark and tab actions complete
// synchronously and return nil; triage actions return the network work still
// to be done, or nil when the action was dropped (empty view, or another
// triage call already in flight).
func (c *Controller) Dispatch(a Action) AsyncOp {
	h, ok := handlers[a]
	if !ok {
		c.log.Warn().Str("action", string(a)).Msg("unknown action ignored")
		return nil
	}
	return h(c)
}

func (c *Controller) cols() int {
	if c.columns == nil {
		return 1
	}
	if n := c.columns(); n > 0 {
		return n
	}
	return 1
}

// triageCurrent promotes or demotes the photo under the cursor, depending on
// the active set. The in-flight check happens here, synchronously with the
// key event: a second press while a call is unresolved is dropped, never
// queued. The optimistic patch removes the photo from the active view, so the
// next photo slides under the cursor on its own; no explicit advance is
// needed on any tab.
func (c *Controller) triageCurrent() AsyncOp {
	p, ok := c.store.CurrentPhoto()
	if !ok {
		return nil
	}
	if !c.trans.TryBegin() {
		c.log.Debug().Str("photo_id", p.ID).Msg("triage dropped, operation in flight")
		return nil
	}
	demote := c.store.ActiveSet() == triage.Final
	id := p.ID
	return func(ctx context.Context) (Result, error) {
		defer c.trans.End()
		if demote {
			return c.trans.Demote(ctx, []string{id})
		}
		return c.trans.Promote(ctx, []string{id})
	}
}

func (c *Controller) toggleMark() AsyncOp {
	if p, ok := c.store.CurrentPhoto(); ok {
		c.store.ToggleMark(p.ID)
	}
	return nil
}

// TriageMarked promotes or demotes the whole marked set in one batch, then
// clears the marks on success. It shares the single-flight slot with the
// triage key.
func (c *Controller) TriageMarked() AsyncOp {
	ids := c.store.MarkedIDs()
	if len(ids) == 0 {
		return nil
	}
	if !c.trans.TryBegin() {
		return nil
	}
	demote := c.store.ActiveSet() == triage.Final
	return func(ctx context.Context) (Result, error) {
		defer c.trans.End()
		var res Result
		var err error
		if demote {
			res, err = c.trans.Demote(ctx, ids)
		} else {
			res, err = c.trans.Promote(ctx, ids)
		}
		if err == nil {
			c.store.ClearMarks()
		}
		return res, err
	}
}

func (c *Controller) cycleSet(delta int) {
	cur := c.store.ActiveSet()
	for i, set := range triage.Sets {
		if set != cur {
			continue
		}
		n := len(triage.Sets)
		c.store.SetActiveSet(triage.Sets[((i+delta)%n+n)%n])
		return
	}
	c.store.SetActiveSet(triage.Clean)
}
