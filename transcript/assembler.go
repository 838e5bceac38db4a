package transcript

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/hupe1980/reconcile/core"
	"github.com/hupe1980/reconcile/logging"
)

// Assembler materializes one session's transcript by folding canonical
// events in order. Build a fresh Assembler, Apply each event, then read
// Messages; assembly is lazy and the fold is deterministic, so re-running it
// over the same event sequence yields the same transcript.
type Assembler struct {
	sessionID string
	messages  []*core.ChatMessage
	logger    logging.Logger
}

// NewAssembler constructs an empty assembler for one session. A nil logger
// is substituted with NoOpLogger.
func NewAssembler(sessionID string, logger logging.Logger) *Assembler {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Assembler{sessionID: sessionID, logger: logger}
}

// Assemble is a convenience fold: it applies every event and returns the
// resulting messages.
func Assemble(sessionID string, events []core.CanonicalEvent, logger logging.Logger) []*core.ChatMessage {
	a := NewAssembler(sessionID, logger)
	for _, ev := range events {
		a.Apply(ev)
	}
	return a.Messages()
}

// Apply folds one event into the transcript. Events for other sessions are
// ignored so a caller can feed a mixed stream defensively.
func (a *Assembler) Apply(ev core.CanonicalEvent) {
	if ev.SessionID != a.sessionID {
		return
	}
	switch p := ev.Payload.(type) {
	case core.ChunkPayload:
		a.applyChunk(ev, p)
	case core.ToolCallPayload:
		a.applyToolCall(ev, p)
	case core.ToolResultPayload:
		a.applyToolResult(ev, p)
	case core.DonePayload:
		a.applyDone(p)
	case core.FinalHistoryPayload:
		a.applyFinalHistory(p)
	case core.ErrorPayload:
		a.applyError(ev, p)
	default:
		a.logger.Warn("unknown payload type skipped", "kind", string(ev.Kind), "event_id", ev.ID)
	}
}

// Messages returns deep copies of the assembled messages in transcript order.
func (a *Assembler) Messages() []*core.ChatMessage {
	out := make([]*core.ChatMessage, 0, len(a.messages))
	for _, m := range a.messages {
		out = append(out, m.Clone())
	}
	return out
}

// applyChunk appends a streaming text delta. Pure-whitespace deltas never
// create or mutate a message.
func (a *Assembler) applyChunk(ev core.CanonicalEvent, p core.ChunkPayload) {
	if strings.TrimSpace(p.Delta) == "" {
		return
	}
	msg := a.findByID(p.MessageID)
	if msg == nil {
		msg = &core.ChatMessage{
			ID:          a.messageID(p.MessageID),
			SessionID:   a.sessionID,
			Role:        "assistant",
			Parts:       []core.Part{core.TextPart{Text: p.Delta}},
			Timestamp:   ev.Timestamp,
			IsStreaming: true,
			Thinking:    p.Thinking,
		}
		a.messages = append(a.messages, msg)
		return
	}
	if !msg.IsStreaming {
		// Frozen on terminal resolution; a late delta must not thaw it.
		a.logger.Debug("late chunk for frozen message ignored", "message_id", msg.ID)
		return
	}
	if p.Thinking {
		msg.Thinking = true
	}
	if len(msg.Parts) > 0 {
		if tp, ok := msg.Parts[len(msg.Parts)-1].(core.TextPart); ok {
			tp.Text += p.Delta
			msg.Parts[len(msg.Parts)-1] = tp
			return
		}
	}
	msg.Parts = append(msg.Parts, core.TextPart{Text: p.Delta})
}

// applyToolCall appends a tool-use fragment to the message the call belongs
// to, creating the message when the call races ahead of its first chunk.
// A placeholder invocation id is replaced with a stable synthesized id made
// of the message id plus the per-message ordinal. Identical (name, input)
// fragments are skipped: backends have been observed to double-send the same
// call under different wrapper ids.
func (a *Assembler) applyToolCall(ev core.CanonicalEvent, p core.ToolCallPayload) {
	msg := a.findByID(p.MessageID)
	if msg == nil {
		msg = &core.ChatMessage{
			ID:          a.messageID(p.MessageID),
			SessionID:   a.sessionID,
			Role:        "assistant",
			Timestamp:   ev.Timestamp,
			IsStreaming: true,
		}
		a.messages = append(a.messages, msg)
	}

	for _, use := range msg.ToolUses() {
		if use.Name == p.Name && use.Input == p.Input {
			a.logger.Debug("duplicate tool call skipped", "name", p.Name, "message_id", msg.ID)
			return
		}
	}

	inv := p.InvocationID
	if core.IsPlaceholderID(inv) {
		inv = fmt.Sprintf("%s#%d", msg.ID, len(msg.ToolUses()))
	}
	msg.Parts = append(msg.Parts, core.ToolUsePart{InvocationID: inv, Name: p.Name, Input: p.Input})
	msg.Thinking = true
}

// applyToolResult pairs a result with its call, scanning messages newest to
// oldest. A real invocation id matches its tool-use fragment directly; a
// placeholder id falls back to the oldest unmatched tool-use fragment of the
// newest message that has one (first-unmatched-wins). The result fragment is
// inserted immediately after its paired call fragment so per-call ordering
// inside multi-tool messages holds. A result that matches nothing anywhere is
// materialized as a standalone message, never dropped.
func (a *Assembler) applyToolResult(ev core.CanonicalEvent, p core.ToolResultPayload) {
	placeholder := core.IsPlaceholderID(p.InvocationID)

	for i := len(a.messages) - 1; i >= 0; i-- {
		msg := a.messages[i]
		if msg.Role != "assistant" {
			continue
		}
		idx, inv := a.unmatchedUse(msg, p.InvocationID, placeholder)
		if idx < 0 {
			continue
		}
		part := core.ToolResultPart{InvocationID: inv, Output: p.Output, IsError: p.IsError}
		msg.Parts = append(msg.Parts[:idx+1], append([]core.Part{part}, msg.Parts[idx+1:]...)...)
		return
	}

	a.logger.Debug("unmatched tool result materialized standalone", "invocation_id", p.InvocationID)
	a.messages = append(a.messages, &core.ChatMessage{
		ID:        a.messageID(""),
		SessionID: a.sessionID,
		Role:      "tool",
		Parts:     []core.Part{core.ToolResultPart{InvocationID: p.InvocationID, Output: p.Output, IsError: p.IsError}},
		Timestamp: ev.Timestamp,
	})
}

// unmatchedUse locates the tool-use fragment a result should pair with
// inside one message. For a real id it must match exactly; for a placeholder
// the oldest unmatched fragment wins. Returns the part index and the
// invocation id to stamp on the result, or -1 when nothing matches.
func (a *Assembler) unmatchedUse(msg *core.ChatMessage, invocationID string, placeholder bool) (int, string) {
	resolved := map[string]bool{}
	for _, part := range msg.Parts {
		if r, ok := part.(core.ToolResultPart); ok {
			resolved[r.InvocationID] = true
		}
	}
	for i, part := range msg.Parts {
		use, ok := part.(core.ToolUsePart)
		if !ok || resolved[use.InvocationID] {
			continue
		}
		if placeholder || use.InvocationID == invocationID {
			return i, use.InvocationID
		}
	}
	return -1, ""
}

// applyDone resolves a turn. Exact message-id match wins; otherwise every
// still-thinking assistant message holding a tool-use fragment is cleared;
// otherwise any still-streaming or thinking assistant message is. A turn must
// never be left stuck "thinking" forever.
func (a *Assembler) applyDone(p core.DonePayload) {
	if msg := a.findByID(p.MessageID); msg != nil {
		msg.IsStreaming = false
		msg.Thinking = false
		return
	}

	cleared := false
	for _, msg := range a.messages {
		if msg.Role == "assistant" && msg.Thinking && msg.HasToolUse() {
			msg.IsStreaming = false
			msg.Thinking = false
			cleared = true
		}
	}
	if cleared {
		return
	}

	for _, msg := range a.messages {
		if msg.Role == "assistant" && (msg.IsStreaming || msg.Thinking) {
			msg.IsStreaming = false
			msg.Thinking = false
		}
	}
}

// applyFinalHistory reconciles an authoritative snapshot. Messages already
// present by id are untouched, absent ones are inserted, then the transcript
// is re-sorted by timestamp. Full replacement is rejected: it causes visible
// flicker and duplication when a snapshot races an in-flight stream.
func (a *Assembler) applyFinalHistory(p core.FinalHistoryPayload) {
	for _, snap := range p.Messages {
		if a.findByID(snap.ID) != nil {
			continue
		}
		msg := &core.ChatMessage{
			ID:        snap.ID,
			SessionID: a.sessionID,
			Role:      snap.Role,
			Timestamp: snap.Timestamp,
		}
		if snap.Text != "" {
			msg.Parts = []core.Part{core.TextPart{Text: snap.Text}}
		}
		a.messages = append(a.messages, msg)
	}
	sort.SliceStable(a.messages, func(i, j int) bool {
		return a.messages[i].Timestamp.Before(a.messages[j].Timestamp)
	})
}

// applyError appends a terminal error-role message. Errors are transcript
// entries like everything else, never swallowed.
func (a *Assembler) applyError(ev core.CanonicalEvent, p core.ErrorPayload) {
	text := p.Message
	if p.Code != "" {
		text = p.Code + ": " + p.Message
	}
	a.messages = append(a.messages, &core.ChatMessage{
		ID:        a.messageID(""),
		SessionID: a.sessionID,
		Role:      "error",
		Parts:     []core.Part{core.TextPart{Text: text}},
		Timestamp: ev.Timestamp,
	})
}

func (a *Assembler) findByID(id string) *core.ChatMessage {
	if id == "" {
		return nil
	}
	for _, m := range a.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// messageID keeps the upstream message id when one exists and mints a
// monotonic ULID otherwise so sorted inserts stay stable.
func (a *Assembler) messageID(upstream string) string {
	if upstream != "" {
		return upstream
	}
	return ulid.Make().String()
}
