package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the category of a canonical event. The set is closed;
// transports must map anything else onto one of these kinds or drop it at the
// boundary.
type EventKind string

const (
	// KindChunk is a streaming text delta belonging to an assistant message.
	KindChunk EventKind = "chunk"
	// KindToolCall is an agent-issued request to execute an external capability.
	KindToolCall EventKind = "tool_call"
	// KindToolResult is the outcome of a previously issued tool call.
	KindToolResult EventKind = "tool_result"
	// KindDone marks an assistant turn as complete.
	KindDone EventKind = "done"
	// KindFinalHistory is an authoritative snapshot of a session's messages.
	KindFinalHistory EventKind = "final_history"
	// KindError is a terminal error surfaced into the transcript.
	KindError EventKind = "error"
)

// Valid reports whether k is a member of the closed kind set.
func (k EventKind) Valid() bool {
	switch k {
	case KindChunk, KindToolCall, KindToolResult, KindDone, KindFinalHistory, KindError:
		return true
	default:
		return false
	}
}

// CanonicalEvent is the normalized, immutable record of one occurrence in a
// session's lifecycle. After ingestion it must be treated as immutable:
// re-applying the same ID replaces content in place, never duplicates
// position. It captures:
//   - Correlation (ID, SessionID)
//   - The kind discriminator plus its kind-specific Payload
//   - An optional producer sequence number (mandatory for streaming chunks)
//   - The originating transport (Source)
//   - High precision UTC timestamp
type CanonicalEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      EventKind `json:"kind"`
	Payload   Payload   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	Sequence  *int64    `json:"sequence,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// NewEvent creates a bare event of the given kind bound to a session.
// Prefer the kind-specific constructors for common cases.
func NewEvent(sessionID string, kind EventKind, payload Payload) CanonicalEvent {
	return CanonicalEvent{
		ID:        NewID(),
		SessionID: sessionID,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// NewChunkEvent constructs a streaming text delta event. Sequence is required
// for chunks because a message id alone is shared across many deltas.
func NewChunkEvent(sessionID, messageID, delta string, seq int64) CanonicalEvent {
	e := NewEvent(sessionID, KindChunk, ChunkPayload{MessageID: messageID, Delta: delta})
	e.Sequence = &seq
	return e
}

// NewToolCallEvent constructs a tool invocation request event.
func NewToolCallEvent(sessionID, messageID, invocationID, name, input string) CanonicalEvent {
	return NewEvent(sessionID, KindToolCall, ToolCallPayload{
		InvocationID: invocationID,
		MessageID:    messageID,
		Name:         name,
		Input:        input,
	})
}

// NewToolResultEvent constructs a tool outcome event. If err is non-nil its
// message is copied into the output and the error flag is set.
func NewToolResultEvent(sessionID, messageID, invocationID, output string, err error) CanonicalEvent {
	p := ToolResultPayload{InvocationID: invocationID, MessageID: messageID, Output: output}
	if err != nil {
		p.Output = err.Error()
		p.IsError = true
	}
	return NewEvent(sessionID, KindToolResult, p)
}

// NewDoneEvent constructs a turn-completion event for a message.
func NewDoneEvent(sessionID, messageID string) CanonicalEvent {
	return NewEvent(sessionID, KindDone, DonePayload{MessageID: messageID})
}

// NewErrorEvent constructs a terminal error event.
func NewErrorEvent(sessionID, code, message string) CanonicalEvent {
	return NewEvent(sessionID, KindError, ErrorPayload{Code: code, Message: message})
}

// NewFinalHistoryEvent constructs an authoritative history snapshot event.
func NewFinalHistoryEvent(sessionID string, messages []SnapshotMessage) CanonicalEvent {
	return NewEvent(sessionID, KindFinalHistory, FinalHistoryPayload{Messages: messages})
}

// NewID generates a new unique identifier for events.
//
// This function creates a UUID-based unique identifier that can be used for
// event tracking and correlation throughout the engine.
//
// Returns a string representation of a new UUID.
func NewID() string { return uuid.NewString() }

// SequenceValue returns the producer sequence number and whether one was set.
func (e CanonicalEvent) SequenceValue() (int64, bool) {
	if e.Sequence == nil {
		return 0, false
	}
	return *e.Sequence, true
}

// MessageID returns the message id carried by the payload, if the kind has
// one. Snapshot and error events return the empty string.
func (e CanonicalEvent) MessageID() string {
	switch p := e.Payload.(type) {
	case ChunkPayload:
		return p.MessageID
	case ToolCallPayload:
		return p.MessageID
	case ToolResultPayload:
		return p.MessageID
	case DonePayload:
		return p.MessageID
	case FinalHistoryPayload, ErrorPayload:
		return ""
	default:
		return ""
	}
}

// InvocationID returns the tool correlation id for tool_call / tool_result
// events and the empty string for every other kind.
func (e CanonicalEvent) InvocationID() string {
	switch p := e.Payload.(type) {
	case ToolCallPayload:
		return p.InvocationID
	case ToolResultPayload:
		return p.InvocationID
	default:
		return ""
	}
}

// IsTerminal reports whether the event closes out a turn (done, snapshot or
// error). Terminal events are the engine's trigger for fire-and-forget
// persistence of the assembled transcript.
func (e CanonicalEvent) IsTerminal() bool {
	switch e.Kind {
	case KindDone, KindFinalHistory, KindError:
		return true
	default:
		return false
	}
}
