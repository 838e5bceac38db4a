// Package engine wires the reconciliation pipeline together: transport
// normalization, dedup suppression, guard-wrapped ledger mutation, lazy
// transcript assembly and the external collaborator hooks (persistence,
// session restoration, tool metadata). It owns the feature gate: a disabled
// engine turns every ingestion call into a no-op and every query into a zero
// value, never a panic.
package engine
