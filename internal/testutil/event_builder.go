package testutil

import (
	"time"

	"github.com/hupe1980/reconcile/core"
)

// BaseTime is the fixed reference timestamp builders start from so tests
// stay deterministic.
var BaseTime = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

// EventBuilder provides a fluent helper for constructing canonical events in
// tests. Example:
//
//	ev := NewEventBuilder().Session("s1").Chunk("m1", "Hello", 0).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	ev core.CanonicalEvent
}

// NewEventBuilder creates a builder with default session "s1" and a fixed
// timestamp. The event id defaults to empty so dedup key rules see the
// payload identity, mirroring how transports emit events.
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{ev: core.CanonicalEvent{
		SessionID: "s1",
		Timestamp: BaseTime,
		Source:    "test",
	}}
}

// Session sets the session id (chainable).
func (b *EventBuilder) Session(id string) *EventBuilder {
	b.ev.SessionID = id
	return b
}

// ID sets the upstream event id (chainable).
func (b *EventBuilder) ID(id string) *EventBuilder {
	b.ev.ID = id
	return b
}

// At sets the event timestamp (chainable).
func (b *EventBuilder) At(t time.Time) *EventBuilder {
	b.ev.Timestamp = t
	return b
}

// Chunk makes the event a streaming text delta.
func (b *EventBuilder) Chunk(messageID, delta string, seq int64) *EventBuilder {
	b.ev.Kind = core.KindChunk
	b.ev.Payload = core.ChunkPayload{MessageID: messageID, Delta: delta}
	b.ev.Sequence = &seq
	return b
}

// ThinkingChunk makes the event a reasoning-segment delta.
func (b *EventBuilder) ThinkingChunk(messageID, delta string, seq int64) *EventBuilder {
	b.Chunk(messageID, delta, seq)
	b.ev.Payload = core.ChunkPayload{MessageID: messageID, Delta: delta, Thinking: true}
	return b
}

// ToolCall makes the event a tool invocation request.
func (b *EventBuilder) ToolCall(messageID, invocationID, name, input string) *EventBuilder {
	b.ev.Kind = core.KindToolCall
	b.ev.Payload = core.ToolCallPayload{InvocationID: invocationID, MessageID: messageID, Name: name, Input: input}
	return b
}

// ToolResult makes the event a successful tool outcome.
func (b *EventBuilder) ToolResult(messageID, invocationID, output string) *EventBuilder {
	b.ev.Kind = core.KindToolResult
	b.ev.Payload = core.ToolResultPayload{InvocationID: invocationID, MessageID: messageID, Output: output}
	return b
}

// FailedToolResult makes the event an error-flagged tool outcome.
func (b *EventBuilder) FailedToolResult(messageID, invocationID, output string) *EventBuilder {
	b.ev.Kind = core.KindToolResult
	b.ev.Payload = core.ToolResultPayload{InvocationID: invocationID, MessageID: messageID, Output: output, IsError: true}
	return b
}

// Done makes the event a turn-completion marker.
func (b *EventBuilder) Done(messageID string) *EventBuilder {
	b.ev.Kind = core.KindDone
	b.ev.Payload = core.DonePayload{MessageID: messageID}
	return b
}

// Error makes the event a terminal error.
func (b *EventBuilder) Error(code, message string) *EventBuilder {
	b.ev.Kind = core.KindError
	b.ev.Payload = core.ErrorPayload{Code: code, Message: message}
	return b
}

// History makes the event an authoritative snapshot.
func (b *EventBuilder) History(messages ...core.SnapshotMessage) *EventBuilder {
	b.ev.Kind = core.KindFinalHistory
	b.ev.Payload = core.FinalHistoryPayload{Messages: messages}
	return b
}

// Build returns the constructed event.
func (b *EventBuilder) Build() core.CanonicalEvent { return b.ev }

// Snapshot is a convenience constructor for snapshot messages.
func Snapshot(id, role, text string, at time.Time) core.SnapshotMessage {
	return core.SnapshotMessage{ID: id, Role: role, Text: text, Timestamp: at}
}
