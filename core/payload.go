package core

import "time"

// Payload represents the kind-specific body of a canonical event. Concrete
// payload types implement the unexported isPayload marker enabling a closed
// set dispatched by exhaustive type switch instead of runtime field probing.
type Payload interface{ isPayload() }

// ChunkPayload is a streaming text delta for an assistant message.
type ChunkPayload struct {
	MessageID string `json:"message_id"`
	Delta     string `json:"delta"`
	Thinking  bool   `json:"thinking,omitempty"` // Delta belongs to a reasoning segment
}

// isPayload implements the Payload interface for ChunkPayload.
func (ChunkPayload) isPayload() {}

// ToolCallPayload describes a tool invocation request.
type ToolCallPayload struct {
	InvocationID string `json:"invocation_id,omitempty"` // May be empty or a known placeholder
	MessageID    string `json:"message_id"`
	Name         string `json:"name"`
	Input        string `json:"input,omitempty"` // Serialized argument payload (e.g. JSON)
}

// isPayload implements the Payload interface for ToolCallPayload.
func (ToolCallPayload) isPayload() {}

// ToolResultPayload describes the outcome of a tool invocation.
type ToolResultPayload struct {
	InvocationID string `json:"invocation_id,omitempty"` // Matches originating call, or a placeholder
	MessageID    string `json:"message_id,omitempty"`
	Output       string `json:"output,omitempty"`
	IsError      bool   `json:"is_error,omitempty"`
}

// isPayload implements the Payload interface for ToolResultPayload.
func (ToolResultPayload) isPayload() {}

// DonePayload marks a turn complete for the referenced message.
type DonePayload struct {
	MessageID string `json:"message_id,omitempty"`
}

// isPayload implements the Payload interface for DonePayload.
func (DonePayload) isPayload() {}

// SnapshotMessage is one message inside an authoritative history snapshot.
// Snapshots carry the backend's already-flattened view, not parts.
type SnapshotMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FinalHistoryPayload is an authoritative snapshot of a session's messages.
// The assembler reconciles snapshots, it never replaces the live transcript.
type FinalHistoryPayload struct {
	Messages []SnapshotMessage `json:"messages"`
}

// isPayload implements the Payload interface for FinalHistoryPayload.
func (FinalHistoryPayload) isPayload() {}

// ErrorPayload is a terminal error surfaced into the transcript.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// isPayload implements the Payload interface for ErrorPayload.
func (ErrorPayload) isPayload() {}

// MissingSessionCode is the error payload code backends use to report that
// they lost the session context for a send attempt. The engine reacts by
// invoking the configured SessionRestorer at most once per attempt.
const MissingSessionCode = "missing_session_context"
