// Package transcript folds a session's deduplicated, ordered canonical
// events into the assembled message list consumers read. It owns the
// streaming append logic, the tool call/result pairing heuristics and the
// terminal reconciliation rules.
//
// The pairing heuristics (ordinal-synthesized invocation ids, newest-to-oldest
// message scan, first-unmatched-wins inside a message) are deliberately
// best-effort against an inconsistent upstream. The priority order is part of
// the contract; it must be preserved, not "fixed".
package transcript
