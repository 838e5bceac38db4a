// Package store implements the canonical event ledger: an ordered,
// session-bucketed record of every canonical event together with a derived
// tool-correlation index. State transitions are expressed as a pure reducer
// over immutable state; the Store type owns one state instance behind a
// single controlled mutation entry point (Dispatch) so the ledger can be
// injected as a dependency rather than reached through ambient globals.
package store
