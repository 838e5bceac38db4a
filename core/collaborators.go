package core

import "context"

// TranscriptSaver persists assembled messages. The engine calls it
// fire-and-forget after terminal events; failures are logged, never fatal to
// the live transcript.
type TranscriptSaver interface {
	SaveMessages(ctx context.Context, sessionID string, messages []*ChatMessage) error
}

// SessionRestorer re-establishes backend session context after a backend
// reports it missing. The engine invokes it at most once per send attempt
// before surfacing a terminal error message.
type SessionRestorer interface {
	Restore(ctx context.Context, sessionID string) error
}

// ToolInfo describes one externally provided tool. Metadata only; it has no
// influence on event shape or pairing.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ToolMetadataProvider exposes the tool inventory of the external lifecycle
// manager. Consumers use it to annotate transcripts; the engine itself only
// forwards it.
type ToolMetadataProvider interface {
	Tools(ctx context.Context) ([]ToolInfo, error)
}
