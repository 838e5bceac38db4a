package core

import "time"

// Part represents a polymorphic fragment of an assembled message. Concrete
// part types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content fragment.
type TextPart struct {
	Text string // Plain UTF-8 text
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// ToolUsePart records a tool invocation inside an assembled message.
type ToolUsePart struct {
	InvocationID string // Stable correlation id (supplied or synthesized)
	Name         string // Tool name
	Input        string // Serialized argument payload
}

// isPart implements the Part interface for ToolUsePart.
func (ToolUsePart) isPart() {}

// ToolResultPart records a tool outcome, placed immediately after its paired
// ToolUsePart within the message's fragment list.
type ToolResultPart struct {
	InvocationID string
	Output       string
	IsError      bool
}

// isPart implements the Part interface for ToolResultPart.
func (ToolResultPart) isPart() {}

// ChatMessage is one assembled transcript entry. It is mutated incrementally
// while streaming and frozen once a terminal event resolves the turn.
type ChatMessage struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Role        string    `json:"role"` // user, assistant, tool, error
	Parts       []Part    `json:"parts"`
	Timestamp   time.Time `json:"timestamp"`
	IsStreaming bool      `json:"is_streaming,omitempty"`
	Thinking    bool      `json:"thinking,omitempty"`
}

// Text flattens the message's text fragments preserving order. Tool parts are
// skipped; use Parts directly when fragment structure matters.
func (m *ChatMessage) Text() string {
	var out string
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// ToolUses returns the message's tool-use fragments preserving their original order.
func (m *ChatMessage) ToolUses() []ToolUsePart {
	var uses []ToolUsePart
	for _, p := range m.Parts {
		if tu, ok := p.(ToolUsePart); ok {
			uses = append(uses, tu)
		}
	}
	return uses
}

// HasToolUse reports whether the message contains at least one tool-use fragment.
func (m *ChatMessage) HasToolUse() bool {
	for _, p := range m.Parts {
		if _, ok := p.(ToolUsePart); ok {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the message safe for independent mutation.
// Parts are value types so a slice copy suffices.
func (m *ChatMessage) Clone() *ChatMessage {
	clone := *m
	clone.Parts = make([]Part, len(m.Parts))
	copy(clone.Parts, m.Parts)
	return &clone
}

// ToolPair groups the two halves of one tool invocation. Either half may be
// nil: the pair is created on first sighting of whichever side arrives first.
type ToolPair struct {
	Call   *CanonicalEvent `json:"call,omitempty"`
	Result *CanonicalEvent `json:"result,omitempty"`
}

// Resolved reports whether both halves have been sighted.
func (p ToolPair) Resolved() bool { return p.Call != nil && p.Result != nil }

// Orphaned reports whether a result arrived with no matching call.
func (p ToolPair) Orphaned() bool { return p.Call == nil && p.Result != nil }
