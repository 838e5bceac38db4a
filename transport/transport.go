package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/reconcile/core"
)

// ParseObject normalizes a single event-shaped JSON object. It returns
// core.ErrNotAnEvent for valid JSON that is not (yet) a foldable event and
// core.ErrMalformedEvent for anything else unusable.
func ParseObject(data []byte, source string) (core.CanonicalEvent, error) {
	if !gjson.ValidBytes(data) {
		return core.CanonicalEvent{}, fmt.Errorf("%w: invalid json", core.ErrMalformedEvent)
	}
	return decode(gjson.ParseBytes(data), source)
}

// ParseArray normalizes a JSON array of event-shaped objects. Members fail
// independently: the returned errors carry one entry per malformed member
// while its siblings still decode. Not-yet-foldable members are skipped
// silently.
func ParseArray(data []byte, source string) ([]core.CanonicalEvent, []error) {
	if !gjson.ValidBytes(data) {
		return nil, []error{fmt.Errorf("%w: invalid json", core.ErrMalformedEvent)}
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil, []error{fmt.Errorf("%w: expected array", core.ErrMalformedEvent)}
	}
	var events []core.CanonicalEvent
	var errs []error
	parsed.ForEach(func(_, raw gjson.Result) bool {
		ev, err := decode(raw, source)
		switch {
		case err == nil:
			events = append(events, ev)
		case isNotAnEvent(err):
			// Patch frame or similar; safe to ignore.
		default:
			errs = append(errs, err)
		}
		return true
	})
	return events, errs
}

// ParseBlob normalizes a newline-delimited text blob of JSON objects with
// the same partial-failure isolation as ParseArray.
func ParseBlob(blob string, source string) ([]core.CanonicalEvent, []error) {
	var events []core.CanonicalEvent
	var errs []error
	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ev, err := ParseObject([]byte(line), source)
		switch {
		case err == nil:
			events = append(events, ev)
		case isNotAnEvent(err):
		default:
			errs = append(errs, err)
		}
	}
	return events, errs
}

func isNotAnEvent(err error) bool {
	return errors.Is(err, core.ErrNotAnEvent)
}

// decode probes one raw object for the minimal envelope {kind, session id,
// optional id, optional message id, optional sequence, timestamp} plus the
// kind-specific payload fields. The upstream id is kept verbatim (possibly
// empty) because the dedup key rules depend on knowing whether the producer
// supplied one.
func decode(raw gjson.Result, source string) (core.CanonicalEvent, error) {
	if !raw.IsObject() {
		return core.CanonicalEvent{}, fmt.Errorf("%w: not an object", core.ErrMalformedEvent)
	}
	kindField := first(raw, "kind", "type")
	if !kindField.Exists() {
		return core.CanonicalEvent{}, core.ErrNotAnEvent
	}
	kind := core.EventKind(kindField.String())
	if !kind.Valid() {
		return core.CanonicalEvent{}, core.ErrNotAnEvent
	}
	sessionID := first(raw, "sessionId", "session_id").String()
	if sessionID == "" {
		return core.CanonicalEvent{}, fmt.Errorf("%w: missing session id", core.ErrMalformedEvent)
	}

	ev := core.CanonicalEvent{
		ID:        raw.Get("id").String(),
		SessionID: sessionID,
		Kind:      kind,
		Timestamp: timestamp(raw),
		Source:    source,
	}
	if seqField := first(raw, "seq", "sequence"); seqField.Exists() {
		seq := seqField.Int()
		ev.Sequence = &seq
	}

	payload, err := decodePayload(kind, raw)
	if err != nil {
		return core.CanonicalEvent{}, err
	}
	ev.Payload = payload
	return ev, nil
}

func decodePayload(kind core.EventKind, raw gjson.Result) (core.Payload, error) {
	messageID := first(raw, "messageId", "message_id").String()
	switch kind {
	case core.KindChunk:
		delta := first(raw, "delta", "text", "content")
		if !delta.Exists() {
			return nil, fmt.Errorf("%w: chunk without delta", core.ErrMalformedEvent)
		}
		return core.ChunkPayload{
			MessageID: messageID,
			Delta:     delta.String(),
			Thinking:  raw.Get("thinking").Bool(),
		}, nil

	case core.KindToolCall:
		name := first(raw, "name", "tool").String()
		if name == "" {
			return nil, fmt.Errorf("%w: tool call without name", core.ErrMalformedEvent)
		}
		return core.ToolCallPayload{
			InvocationID: first(raw, "invocationId", "tool_use_id", "call_id").String(),
			MessageID:    messageID,
			Name:         name,
			Input:        first(raw, "input", "args", "arguments").Raw,
		}, nil

	case core.KindToolResult:
		return core.ToolResultPayload{
			InvocationID: first(raw, "invocationId", "tool_use_id", "call_id").String(),
			MessageID:    messageID,
			Output:       first(raw, "output", "result", "content").String(),
			IsError:      first(raw, "isError", "is_error").Bool(),
		}, nil

	case core.KindDone:
		return core.DonePayload{MessageID: messageID}, nil

	case core.KindFinalHistory:
		msgs := first(raw, "messages", "history")
		if !msgs.IsArray() {
			return nil, fmt.Errorf("%w: final_history without messages", core.ErrMalformedEvent)
		}
		var snapshot []core.SnapshotMessage
		msgs.ForEach(func(_, m gjson.Result) bool {
			snapshot = append(snapshot, core.SnapshotMessage{
				ID:        m.Get("id").String(),
				Role:      m.Get("role").String(),
				Text:      first(m, "text", "content").String(),
				Timestamp: timestamp(m),
			})
			return true
		})
		return core.FinalHistoryPayload{Messages: snapshot}, nil

	case core.KindError:
		msg := first(raw, "message", "error")
		if !msg.Exists() {
			return nil, fmt.Errorf("%w: error event without message", core.ErrMalformedEvent)
		}
		return core.ErrorPayload{Code: raw.Get("code").String(), Message: msg.String()}, nil

	default:
		return nil, core.ErrNotAnEvent
	}
}

// first returns the first existing field among the given paths.
func first(raw gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if r := raw.Get(p); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}

// timestamp accepts RFC3339 strings or unix milliseconds; absent or
// unparseable values fall back to receipt time.
func timestamp(raw gjson.Result) time.Time {
	ts := raw.Get("timestamp")
	switch ts.Type {
	case gjson.String:
		if t, err := time.Parse(time.RFC3339Nano, ts.String()); err == nil {
			return t.UTC()
		}
	case gjson.Number:
		return time.UnixMilli(ts.Int()).UTC()
	}
	return time.Now().UTC()
}
