package core

import "errors"

// Sentinel errors shared across the engine. Per-event failures are contained
// to their event/session: callers log and continue rather than aborting a
// batch, except ErrRunawayMutation which is fatal at process level.
var (
	// ErrMalformedEvent marks a raw payload that could not be normalized into
	// a canonical event. Skipped with a log entry, never aborts siblings.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrNotAnEvent marks a raw object that is valid JSON but not (yet) a
	// foldable event, e.g. a patch frame. Safely ignored.
	ErrNotAnEvent = errors.New("not an event")

	// ErrRunawayMutation is returned when the loop guard detects the same
	// call site re-entering a mutation beyond its threshold within the
	// configured window. It is fatal: the engine halts to bound resource use.
	ErrRunawayMutation = errors.New("runaway mutation loop detected")

	// ErrEngineHalted is returned by ingestion entry points after a runaway
	// mutation permanently halted the engine.
	ErrEngineHalted = errors.New("engine halted")

	// ErrRestoreFailed wraps a session restoration failure after the single
	// permitted retry was spent.
	ErrRestoreFailed = errors.New("session restoration failed")
)
