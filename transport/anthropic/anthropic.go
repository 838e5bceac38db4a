// Package anthropic maps completed Anthropic Messages API responses onto
// canonical events: text blocks become chunk events, tool_use blocks become
// tool_call events (the block id is the invocation id), and a stop reason
// closes the turn with a done event.
//
// Emitted events carry no upstream id so the dedup key rules operate on
// payload identity; re-ingesting the same message is suppressed by the chunk
// sequence and invocation id keys.
package anthropic

import (
	"encoding/json"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/reconcile/core"
)

// Source is the transport name stamped on emitted events.
const Source = "anthropic"

// FromMessage converts one completed message into canonical events in block
// order.
func FromMessage(sessionID string, msg *anthropic.Message) []core.CanonicalEvent {
	if msg == nil {
		return nil
	}
	var events []core.CanonicalEvent
	var seq int64
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if textBlock.Text == "" {
				continue
			}
			ev := event(sessionID, core.KindChunk, core.ChunkPayload{MessageID: msg.ID, Delta: textBlock.Text})
			s := seq
			ev.Sequence = &s
			seq++
			events = append(events, ev)
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := ""
			if toolBlock.Input != nil {
				if argsBytes, err := json.Marshal(toolBlock.Input); err == nil {
					args = string(argsBytes)
				}
			}
			events = append(events, event(sessionID, core.KindToolCall, core.ToolCallPayload{
				InvocationID: toolBlock.ID,
				MessageID:    msg.ID,
				Name:         toolBlock.Name,
				Input:        args,
			}))
		}
	}
	if msg.StopReason != "" {
		events = append(events, event(sessionID, core.KindDone, core.DonePayload{MessageID: msg.ID}))
	}
	return events
}

func event(sessionID string, kind core.EventKind, payload core.Payload) core.CanonicalEvent {
	return core.CanonicalEvent{
		SessionID: sessionID,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Source:    Source,
	}
}
