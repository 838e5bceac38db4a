package dedup

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/hupe1980/reconcile/core"
)

// noMessageSentinel stands in for an absent message id inside chunk keys so
// the key shape stays stable.
const noMessageSentinel = "~"

// KeyFor derives the idempotency key for a canonical event. Transports leave
// the event ID empty when the upstream payload carried no identifier of its
// own, which is what makes the priority order below meaningful:
//
//  1. An upstream-supplied event id is globally unique: use it verbatim.
//  2. Streaming chunks: session + kind + message id (or sentinel) + sequence.
//     The sequence is mandatory because a message id alone is shared across
//     many chunks; a chunk without one gets a minted key instead.
//  3. Tool calls: a real invocation id keys the call; a placeholder id mints
//     a fresh instance-scoped key so two placeholder calls never suppress
//     each other.
//  4. Tool results: identical placeholder rule, so distinct results are
//     never dropped as "duplicates".
//  5. History snapshots: session + kind + snapshot length, a coarse guard
//     against re-ingesting the same terminal round.
//  6. Turn completions: session + kind + message id when one is present. A
//     second done for the same message is always redundant; a done without a
//     message id cannot be correlated and mints instead.
//  7. Everything else: session + kind + minted key.
func KeyFor(ev core.CanonicalEvent) string {
	if ev.ID != "" {
		return ev.ID
	}

	switch p := ev.Payload.(type) {
	case core.ChunkPayload:
		seq, ok := ev.SequenceValue()
		if !ok {
			return mintKey(ev)
		}
		msgID := p.MessageID
		if msgID == "" {
			msgID = noMessageSentinel
		}
		return fmt.Sprintf("%s:%s:%s:%d", ev.SessionID, ev.Kind, msgID, seq)

	case core.ToolCallPayload:
		if core.IsPlaceholderID(p.InvocationID) {
			return mintKey(ev)
		}
		return fmt.Sprintf("%s:%s:%s", ev.SessionID, ev.Kind, p.InvocationID)

	case core.ToolResultPayload:
		if core.IsPlaceholderID(p.InvocationID) {
			return mintKey(ev)
		}
		return fmt.Sprintf("%s:%s:%s", ev.SessionID, ev.Kind, p.InvocationID)

	case core.FinalHistoryPayload:
		return fmt.Sprintf("%s:%s:%d", ev.SessionID, ev.Kind, len(p.Messages))

	case core.DonePayload:
		if p.MessageID == "" {
			return mintKey(ev)
		}
		return fmt.Sprintf("%s:%s:%s", ev.SessionID, ev.Kind, p.MessageID)

	default:
		return mintKey(ev)
	}
}

// mintKey produces a fresh instance-scoped key. ULIDs keep minted keys
// lexically sortable, which makes ledger dumps readable during debugging.
func mintKey(ev core.CanonicalEvent) string {
	return fmt.Sprintf("%s:%s:%s", ev.SessionID, ev.Kind, ulid.Make().String())
}
