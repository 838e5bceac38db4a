package store

import (
	"sort"
	"sync"

	"github.com/hupe1980/reconcile/core"
	"github.com/hupe1980/reconcile/logging"
)

// Store owns one ledger state and serializes every mutation through Dispatch.
// All mutations occur on one logical execution context; the mutex exists
// because ingestion is asynchronous relative to producers (network callbacks,
// timers), not because internal structures need fine-grained locking.
// Queries return defensive copies to prevent callers from mutating internal
// state.
type Store struct {
	mu     sync.RWMutex
	state  State
	logger logging.Logger
}

// New constructs an empty Store. A nil logger is substituted with NoOpLogger.
func New(logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Store{state: NewState(), logger: logger}
}

// Dispatch applies an action through the reducer. It is the only mutation
// entry point.
func (s *Store) Dispatch(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, a)
}

// Upsert is shorthand for Dispatch(Upsert{event}).
func (s *Store) Upsert(ev core.CanonicalEvent) { s.Dispatch(Upsert{Event: ev}) }

// UpsertBatch is shorthand for Dispatch(UpsertBatch{events}).
func (s *Store) UpsertBatch(evs []core.CanonicalEvent) { s.Dispatch(UpsertBatch{Events: evs}) }

// Remove evicts one event by id.
func (s *Store) Remove(id string) { s.Dispatch(Remove{ID: id}) }

// Clear evicts a session bucket and all its events.
func (s *Store) Clear(sessionID string) { s.Dispatch(ClearSession{SessionID: sessionID}) }

// ClearAll resets the ledger.
func (s *Store) ClearAll() { s.Dispatch(ClearAll{}) }

// Events returns every event in global first-sight order.
func (s *Store) Events() []core.CanonicalEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.CanonicalEvent, 0, len(s.state.order))
	for _, id := range s.state.order {
		out = append(out, s.state.events[id])
	}
	return out
}

// EventsForSession returns a session's events in first-sight order. Within
// one session events apply in receipt order; no ordering is promised across
// sessions.
func (s *Store) EventsForSession(sessionID string) []core.CanonicalEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.state.sessions[sessionID]
	out := make([]core.CanonicalEvent, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.state.events[id])
	}
	return out
}

// SessionIDs returns the known session ids sorted for determinism.
func (s *Store) SessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.state.sessions))
	for id := range s.state.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ToolPair looks up the call/result pair for an invocation id. The boolean
// reports whether either half has been sighted.
func (s *Store) ToolPair(invocationID string) (core.ToolPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pair, ok := s.state.pairs[invocationID]
	if !ok {
		return core.ToolPair{}, false
	}
	return clonePair(pair), true
}

// OrphanedCalls returns tool_call events whose invocation id has no sighted
// result, in global order.
func (s *Store) OrphanedCalls() []core.CanonicalEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.CanonicalEvent
	for _, id := range s.state.order {
		ev := s.state.events[id]
		if ev.Kind != core.KindToolCall {
			continue
		}
		inv := ev.InvocationID()
		if core.IsPlaceholderID(inv) {
			continue
		}
		if pair, ok := s.state.pairs[inv]; ok && pair.Result == nil {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns the number of stored events.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.events)
}

// LastEventID returns the id of the most recently applied event, or the
// empty string for an empty ledger.
func (s *Store) LastEventID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.lastID
}

func clonePair(p core.ToolPair) core.ToolPair {
	out := core.ToolPair{}
	if p.Call != nil {
		c := *p.Call
		out.Call = &c
	}
	if p.Result != nil {
		r := *p.Result
		out.Result = &r
	}
	return out
}
