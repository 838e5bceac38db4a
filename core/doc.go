// Package core provides the foundational domain types and interfaces used by
// the reconciliation engine. It defines the core abstractions for:
//
//   - Canonical events (immutable, session-bucketed ingestion records)
//   - Event payloads (a closed tagged union over the fixed kind set)
//   - Chat messages and content parts (the assembled transcript shape)
//   - Tool pairs (call/result correlation by invocation id)
//   - Pluggable collaborators for persistence, session restoration and tool
//     metadata
//
// The package intentionally keeps implementation concerns (storage, dedup,
// assembly, transports) out of scope, exposing small interfaces to enable
// custom backends and extensions.
package core
