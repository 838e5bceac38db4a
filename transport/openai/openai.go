// Package openai maps OpenAI Chat Completions wire shapes (streaming chunks
// and full completions) onto canonical events. The adapter aggregates partial
// tool call deltas by index the way the API streams them, emitting one
// tool_call event per finished invocation.
//
// Emitted events carry no upstream id: the chunk key rules (session + kind +
// message id + sequence) are what make redelivered stream frames idempotent.
package openai

import (
	"time"

	"github.com/openai/openai-go"

	"github.com/hupe1980/reconcile/core"
)

// Source is the transport name stamped on emitted events.
const Source = "openai"

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// until the finish chunk flushes them.
type aggCall struct {
	id   string
	name string
	args string
}

// Adapter converts one streaming completion into canonical events. It is
// stateful across chunks of a single stream; create a fresh Adapter per
// completion.
type Adapter struct {
	sessionID string
	seq       int64
	calls     map[int64]*aggCall
	order     []int64
}

// NewAdapter creates an adapter bound to a session.
func NewAdapter(sessionID string) *Adapter {
	return &Adapter{sessionID: sessionID, calls: map[int64]*aggCall{}}
}

// FromChunk converts one streaming chunk into zero or more canonical events.
// Text deltas become chunk events keyed by the completion id; tool call
// deltas aggregate until the finish chunk, which flushes tool_call events
// followed by a done event.
func (a *Adapter) FromChunk(ck openai.ChatCompletionChunk) []core.CanonicalEvent {
	var events []core.CanonicalEvent
	for _, ch := range ck.Choices {
		if ch.Delta.Content != "" {
			seq := a.seq
			ev := event(a.sessionID, core.KindChunk, core.ChunkPayload{MessageID: ck.ID, Delta: ch.Delta.Content})
			ev.Sequence = &seq
			a.seq++
			events = append(events, ev)
		}
		for _, tc := range ch.Delta.ToolCalls {
			ac, ok := a.calls[tc.Index]
			if !ok {
				ac = &aggCall{}
				a.calls[tc.Index] = ac
				a.order = append(a.order, tc.Index)
			}
			if tc.ID != "" {
				ac.id = tc.ID
			}
			if tc.Function.Name != "" {
				ac.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				ac.args += tc.Function.Arguments
			}
		}
		if ch.FinishReason != "" {
			events = append(events, a.flush(ck.ID)...)
			events = append(events, event(a.sessionID, core.KindDone, core.DonePayload{MessageID: ck.ID}))
		}
	}
	return events
}

// flush emits the aggregated tool calls in stream order.
func (a *Adapter) flush(messageID string) []core.CanonicalEvent {
	var events []core.CanonicalEvent
	for _, idx := range a.order {
		ac := a.calls[idx]
		if ac.name == "" {
			continue
		}
		events = append(events, event(a.sessionID, core.KindToolCall, core.ToolCallPayload{
			InvocationID: ac.id,
			MessageID:    messageID,
			Name:         ac.name,
			Input:        ac.args,
		}))
	}
	a.calls = map[int64]*aggCall{}
	a.order = nil
	return events
}

// FromCompletion converts a non-streaming completion into canonical events:
// one chunk carrying the full text, one tool_call per invocation, one done.
func FromCompletion(sessionID string, resp *openai.ChatCompletion) []core.CanonicalEvent {
	if resp == nil || len(resp.Choices) == 0 {
		return nil
	}
	ch0 := resp.Choices[0]
	var events []core.CanonicalEvent
	if ch0.Message.Content != "" {
		var seq int64
		ev := event(sessionID, core.KindChunk, core.ChunkPayload{MessageID: resp.ID, Delta: ch0.Message.Content})
		ev.Sequence = &seq
		events = append(events, ev)
	}
	for _, tc := range ch0.Message.ToolCalls {
		events = append(events, event(sessionID, core.KindToolCall, core.ToolCallPayload{
			InvocationID: tc.ID,
			MessageID:    resp.ID,
			Name:         tc.Function.Name,
			Input:        tc.Function.Arguments,
		}))
	}
	events = append(events, event(sessionID, core.KindDone, core.DonePayload{MessageID: resp.ID}))
	return events
}

// event builds a canonical event with an empty id so the dedup key rules see
// the payload identity, not a locally minted uuid.
func event(sessionID string, kind core.EventKind, payload core.Payload) core.CanonicalEvent {
	return core.CanonicalEvent{
		SessionID: sessionID,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Source:    Source,
	}
}
