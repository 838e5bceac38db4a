package store

import (
	"github.com/hupe1980/reconcile/core"
)

// Action represents one state transition request. Concrete actions implement
// the unexported isAction marker enabling a closed set.
type Action interface{ isAction() }

// Upsert applies a single canonical event. Applying an identical event twice
// is equivalent to applying it once; re-applying an existing id replaces the
// stored content in place while its position stays fixed at first sight.
type Upsert struct {
	Event core.CanonicalEvent
}

// isAction implements the Action interface for Upsert.
func (Upsert) isAction() {}

// UpsertBatch applies a sequence of events. Members are independent: each
// applies atomically on its own, in order.
type UpsertBatch struct {
	Events []core.CanonicalEvent
}

// isAction implements the Action interface for UpsertBatch.
func (UpsertBatch) isAction() {}

// Remove evicts one event by id. Unknown ids are a no-op.
type Remove struct {
	ID string
}

// isAction implements the Action interface for Remove.
func (Remove) isAction() {}

// ClearSession evicts a session bucket and every event in it.
type ClearSession struct {
	SessionID string
}

// isAction implements the Action interface for ClearSession.
func (ClearSession) isAction() {}

// ClearAll resets the ledger to empty.
type ClearAll struct{}

// isAction implements the Action interface for ClearAll.
func (ClearAll) isAction() {}

// State is the immutable ledger value. Reduce never mutates its input; it
// returns a structurally shared copy with the transition applied, which keeps
// transitions testable by feeding action sequences.
type State struct {
	events   map[string]core.CanonicalEvent
	order    []string            // Global first-sight order of event ids
	sessions map[string][]string // Session id -> ordered event ids
	pairs    map[string]core.ToolPair
	lastID   string
}

// NewState returns an empty ledger state.
func NewState() State {
	return State{
		events:   map[string]core.CanonicalEvent{},
		order:    []string{},
		sessions: map[string][]string{},
		pairs:    map[string]core.ToolPair{},
	}
}

// clone produces a copy whose containers are safe to mutate without touching
// the source state.
func (s State) clone() State {
	n := State{
		events:   make(map[string]core.CanonicalEvent, len(s.events)),
		order:    make([]string, len(s.order)),
		sessions: make(map[string][]string, len(s.sessions)),
		pairs:    make(map[string]core.ToolPair, len(s.pairs)),
		lastID:   s.lastID,
	}
	for k, v := range s.events {
		n.events[k] = v
	}
	copy(n.order, s.order)
	for k, v := range s.sessions {
		ids := make([]string, len(v))
		copy(ids, v)
		n.sessions[k] = ids
	}
	for k, v := range s.pairs {
		n.pairs[k] = v
	}
	return n
}

// Reduce is the pure transition function of the ledger: (state, action) -> state.
func Reduce(s State, a Action) State {
	switch act := a.(type) {
	case Upsert:
		n := s.clone()
		n.apply(act.Event)
		return n
	case UpsertBatch:
		n := s.clone()
		for _, ev := range act.Events {
			n.apply(ev)
		}
		return n
	case Remove:
		if _, ok := s.events[act.ID]; !ok {
			return s
		}
		n := s.clone()
		n.remove(act.ID)
		return n
	case ClearSession:
		ids, ok := s.sessions[act.SessionID]
		if !ok {
			return s
		}
		n := s.clone()
		for _, id := range ids {
			n.remove(id)
		}
		delete(n.sessions, act.SessionID)
		return n
	case ClearAll:
		return NewState()
	default:
		return s
	}
}

// apply upserts one event into a cloned state. Caller owns n.
func (n *State) apply(ev core.CanonicalEvent) {
	_, seen := n.events[ev.ID]
	n.events[ev.ID] = ev
	if !seen {
		// Position fixed at first sight. An unknown session gets its bucket
		// created here; a race against session creation is expected upstream.
		n.order = append(n.order, ev.ID)
		n.sessions[ev.SessionID] = append(n.sessions[ev.SessionID], ev.ID)
	}
	n.lastID = ev.ID
	n.index(ev)
}

// index updates the derived tool-correlation index. It works regardless of
// which half arrives first so lookup never depends on arrival order.
// Placeholder ids are excluded: they cannot correlate by lookup.
func (n *State) index(ev core.CanonicalEvent) {
	inv := ev.InvocationID()
	if core.IsPlaceholderID(inv) {
		return
	}
	switch ev.Kind {
	case core.KindToolCall:
		pair := n.pairs[inv]
		e := ev
		pair.Call = &e
		n.pairs[inv] = pair
	case core.KindToolResult:
		pair := n.pairs[inv]
		e := ev
		pair.Result = &e
		n.pairs[inv] = pair
	}
}

// remove evicts one event from a cloned state. Caller owns n.
func (n *State) remove(id string) {
	ev, ok := n.events[id]
	if !ok {
		return
	}
	delete(n.events, id)
	n.order = without(n.order, id)
	if ids, ok := n.sessions[ev.SessionID]; ok {
		trimmed := without(ids, id)
		if len(trimmed) == 0 {
			delete(n.sessions, ev.SessionID)
		} else {
			n.sessions[ev.SessionID] = trimmed
		}
	}
	if inv := ev.InvocationID(); !core.IsPlaceholderID(inv) {
		if pair, ok := n.pairs[inv]; ok {
			if ev.Kind == core.KindToolCall {
				pair.Call = nil
			} else if ev.Kind == core.KindToolResult {
				pair.Result = nil
			}
			if pair.Call == nil && pair.Result == nil {
				delete(n.pairs, inv)
			} else {
				n.pairs[inv] = pair
			}
		}
	}
	if n.lastID == id {
		n.lastID = ""
		if len(n.order) > 0 {
			n.lastID = n.order[len(n.order)-1]
		}
	}
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
