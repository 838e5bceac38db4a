// Package sqlite provides a reference TranscriptSaver backed by SQLite. The
// engine treats persistence as an external collaborator and calls it
// fire-and-forget; this implementation exists so integrations have a durable
// default without writing their own.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/reconcile/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	parts      TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
`

// Saver persists assembled messages into a SQLite database.
type Saver struct {
	db *sql.DB
}

// Interface compliance (compile-time assertion)
var _ core.TranscriptSaver = (*Saver)(nil)

// Open creates (or opens) the database at dsn and ensures the schema exists.
func Open(dsn string) (*Saver, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Saver{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Saver) Close() error { return s.db.Close() }

// SaveMessages upserts the batch in one transaction. Saving the same
// assembled transcript twice is idempotent: messages replace by id.
func (s *Saver) SaveMessages(ctx context.Context, sessionID string, messages []*core.ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, msg := range messages {
		parts, err := encodeParts(msg.Parts)
		if err != nil {
			return fmt.Errorf("encode parts for %s: %w", msg.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, role, parts, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET parts = excluded.parts, role = excluded.role
		`, msg.ID, sessionID, msg.Role, parts, msg.Timestamp.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("upsert message %s: %w", msg.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Messages reads a session's saved messages back in timestamp order.
func (s *Saver) Messages(ctx context.Context, sessionID string) ([]*core.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, parts, created_at FROM messages
		WHERE session_id = ? ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*core.ChatMessage
	for rows.Next() {
		var id, role, parts, createdAt string
		if err := rows.Scan(&id, &role, &parts, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		decoded, err := decodeParts([]byte(parts))
		if err != nil {
			return nil, fmt.Errorf("decode parts for %s: %w", id, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp for %s: %w", id, err)
		}
		out = append(out, &core.ChatMessage{
			ID:        id,
			SessionID: sessionID,
			Role:      role,
			Parts:     decoded,
			Timestamp: ts,
		})
	}
	return out, rows.Err()
}

// storedPart is the tagged on-disk shape of a content fragment; the closed
// part union needs an explicit discriminator to round-trip through JSON.
type storedPart struct {
	Type         string `json:"type"`
	Text         string `json:"text,omitempty"`
	InvocationID string `json:"invocation_id,omitempty"`
	Name         string `json:"name,omitempty"`
	Input        string `json:"input,omitempty"`
	Output       string `json:"output,omitempty"`
	IsError      bool   `json:"is_error,omitempty"`
}

func encodeParts(parts []core.Part) ([]byte, error) {
	stored := make([]storedPart, 0, len(parts))
	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			stored = append(stored, storedPart{Type: "text", Text: part.Text})
		case core.ToolUsePart:
			stored = append(stored, storedPart{Type: "tool_use", InvocationID: part.InvocationID, Name: part.Name, Input: part.Input})
		case core.ToolResultPart:
			stored = append(stored, storedPart{Type: "tool_result", InvocationID: part.InvocationID, Output: part.Output, IsError: part.IsError})
		default:
			return nil, fmt.Errorf("unknown part type %T", p)
		}
	}
	return json.Marshal(stored)
}

func decodeParts(data []byte) ([]core.Part, error) {
	var stored []storedPart
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	parts := make([]core.Part, 0, len(stored))
	for _, sp := range stored {
		switch sp.Type {
		case "text":
			parts = append(parts, core.TextPart{Text: sp.Text})
		case "tool_use":
			parts = append(parts, core.ToolUsePart{InvocationID: sp.InvocationID, Name: sp.Name, Input: sp.Input})
		case "tool_result":
			parts = append(parts, core.ToolResultPart{InvocationID: sp.InvocationID, Output: sp.Output, IsError: sp.IsError})
		default:
			return nil, fmt.Errorf("unknown stored part type %q", sp.Type)
		}
	}
	return parts, nil
}
