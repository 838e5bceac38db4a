package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reconcile/core"
	"github.com/hupe1980/reconcile/internal/testutil"
)

func assemble(t *testing.T, events ...core.CanonicalEvent) []*core.ChatMessage {
	t.Helper()
	return Assemble("s1", events, nil)
}

func TestAssembler_StreamingTextAccumulates(t *testing.T) {
	a := NewAssembler("s1", nil)
	a.Apply(testutil.NewEventBuilder().Chunk("m1", "Hello", 0).Build())
	a.Apply(testutil.NewEventBuilder().Chunk("m1", ", world", 1).Build())

	open := a.Messages()
	require.Len(t, open, 1)
	require.Len(t, open[0].Parts, 1, "consecutive deltas extend one text fragment")
	assert.Equal(t, "Hello, world", open[0].Text())
	assert.True(t, open[0].IsStreaming, "streaming until a matching done")

	a.Apply(testutil.NewEventBuilder().Done("m1").Build())

	msgs := a.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "assistant", msgs[0].Role)
	assert.False(t, msgs[0].IsStreaming)
	assert.False(t, msgs[0].Thinking)
}

func TestAssembler_WhitespaceDeltasSuppressed(t *testing.T) {
	msgs := assemble(t,
		testutil.NewEventBuilder().Chunk("m1", "   ", 0).Build(),
		testutil.NewEventBuilder().Chunk("m1", "\n\t", 1).Build(),
	)
	assert.Empty(t, msgs, "pure whitespace must not create a message")

	msgs = assemble(t,
		testutil.NewEventBuilder().Chunk("m1", "Hi", 0).Build(),
		testutil.NewEventBuilder().Chunk("m1", "  \n", 1).Build(),
	)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hi", msgs[0].Text(), "whitespace delta must not mutate the message")
}

func TestAssembler_LateChunkAfterDoneIgnored(t *testing.T) {
	msgs := assemble(t,
		testutil.NewEventBuilder().Chunk("m1", "final answer", 0).Build(),
		testutil.NewEventBuilder().Done("m1").Build(),
		testutil.NewEventBuilder().Chunk("m1", " plus straggler", 1).Build(),
	)

	require.Len(t, msgs, 1)
	assert.Equal(t, "final answer", msgs[0].Text(), "a frozen message must not thaw")
	assert.False(t, msgs[0].IsStreaming)
}

func TestAssembler_ToolCallBeforeFirstChunkCreatesMessage(t *testing.T) {
	msgs := assemble(t,
		testutil.NewEventBuilder().ToolCall("m1", "t1", "search", `{"q":"go"}`).Build(),
		testutil.NewEventBuilder().Chunk("m1", "Searching now.", 0).Build(),
	)

	require.Len(t, msgs, 1)
	require.True(t, msgs[0].HasToolUse())
	assert.True(t, msgs[0].Thinking)
	assert.Equal(t, "Searching now.", msgs[0].Text())
}

func TestAssembler_DuplicateToolCallFragmentsSkipped(t *testing.T) {
	msgs := assemble(t,
		testutil.NewEventBuilder().ToolCall("m1", "t1", "search", `{"q":"go"}`).Build(),
		testutil.NewEventBuilder().ToolCall("m1", "t2", "search", `{"q":"go"}`).Build(),
	)

	require.Len(t, msgs, 1)
	assert.Len(t, msgs[0].ToolUses(), 1, "same (name, input) under a new wrapper id is the same call")
}

func TestAssembler_PlaceholderCallGetsSynthesizedID(t *testing.T) {
	msgs := assemble(t,
		testutil.NewEventBuilder().ToolCall("m1", "", "search", `{"q":"a"}`).Build(),
		testutil.NewEventBuilder().ToolCall("m1", "null", "fetch", `{"url":"b"}`).Build(),
	)

	require.Len(t, msgs, 1)
	uses := msgs[0].ToolUses()
	require.Len(t, uses, 2)
	assert.Equal(t, "m1#0", uses[0].InvocationID)
	assert.Equal(t, "m1#1", uses[1].InvocationID)
}

func TestAssembler_ResultInsertedAfterItsCall(t *testing.T) {
	msgs := assemble(t,
		testutil.NewEventBuilder().ToolCall("m1", "t1", "search", `{"q":"a"}`).Build(),
		testutil.NewEventBuilder().ToolCall("m1", "t2", "fetch", `{"url":"b"}`).Build(),
		testutil.NewEventBuilder().ToolResult("m1", "t2", "page body").Build(),
		testutil.NewEventBuilder().ToolResult("m1", "t1", "3 hits").Build(),
	)

	require.Len(t, msgs, 1)
	parts := msgs[0].Parts
	require.Len(t, parts, 4)

	// Each result sits immediately after its call regardless of arrival order.
	assert.Equal(t, "t1", parts[0].(core.ToolUsePart).InvocationID)
	assert.Equal(t, "t1", parts[1].(core.ToolResultPart).InvocationID)
	assert.Equal(t, "3 hits", parts[1].(core.ToolResultPart).Output)
	assert.Equal(t, "t2", parts[2].(core.ToolUsePart).InvocationID)
	assert.Equal(t, "t2", parts[3].(core.ToolResultPart).InvocationID)
}

func TestAssembler_PlaceholderResultPairsOldestUnmatched(t *testing.T) {
	msgs := assemble(t,
		testutil.NewEventBuilder().ToolCall("m1", "", "search", `{"q":"a"}`).Build(),
		testutil.NewEventBuilder().ToolCall("m1", "", "fetch", `{"url":"b"}`).Build(),
		testutil.NewEventBuilder().ToolResult("m1", "null", "first result").Build(),
		testutil.NewEventBuilder().ToolResult("m1", "null", "second result").Build(),
	)

	require.Len(t, msgs, 1)
	parts := msgs[0].Parts
	require.Len(t, parts, 4)
	assert.Equal(t, "m1#0", parts[1].(core.ToolResultPart).InvocationID)
	assert.Equal(t, "first result", parts[1].(core.ToolResultPart).Output)
	assert.Equal(t, "m1#1", parts[3].(core.ToolResultPart).InvocationID)
	assert.Equal(t, "second result", parts[3].(core.ToolResultPart).Output)
}

func TestAssembler_ResultPairsNewestMessageFirst(t *testing.T) {
	msgs := assemble(t,
		testutil.NewEventBuilder().ToolCall("m1", "", "search", `{"q":"old"}`).Build(),
		testutil.NewEventBuilder().Done("m1").Build(),
		testutil.NewEventBuilder().ToolCall("m2", "", "search", `{"q":"new"}`).Build(),
		testutil.NewEventBuilder().ToolResult("m2", "null", "for the new turn").Build(),
	)

	require.Len(t, msgs, 2)
	newest := msgs[1]
	require.Len(t, newest.Parts, 2)
	assert.Equal(t, "m2#0", newest.Parts[1].(core.ToolResultPart).InvocationID)
	assert.Len(t, msgs[0].Parts, 1, "the older turn keeps its call unresolved")
}

func TestAssembler_OrphanResultMaterializedStandalone(t *testing.T) {
	msgs := assemble(t,
		testutil.NewEventBuilder().Chunk("m1", "no tools here", 0).Build(),
		testutil.NewEventBuilder().ToolResult("m2", "t_ghost", "orphan output").Build(),
	)

	require.Len(t, msgs, 2)
	orphan := msgs[1]
	assert.Equal(t, "tool", orphan.Role)
	require.Len(t, orphan.Parts, 1)
	assert.Equal(t, "orphan output", orphan.Parts[0].(core.ToolResultPart).Output)
}

func TestAssembler_FailedResultKeepsErrorFlag(t *testing.T) {
	msgs := assemble(t,
		testutil.NewEventBuilder().ToolCall("m1", "t1", "search", "{}").Build(),
		testutil.NewEventBuilder().FailedToolResult("m1", "t1", "timeout").Build(),
	)

	require.Len(t, msgs, 1)
	res := msgs[0].Parts[1].(core.ToolResultPart)
	assert.True(t, res.IsError)
	assert.Equal(t, "timeout", res.Output)
}

func TestAssembler_DoneFallbackClearsThinkingToolMessages(t *testing.T) {
	// The done event carries a message id the assembler never saw, so the
	// fallback must clear the thinking tool-bearing message instead.
	msgs := assemble(t,
		testutil.NewEventBuilder().ToolCall("m1", "t1", "search", "{}").Build(),
		testutil.NewEventBuilder().ToolResult("m1", "t1", "ok").Build(),
		testutil.NewEventBuilder().Done("m_other").Build(),
	)

	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Thinking)
	assert.False(t, msgs[0].IsStreaming)
}

func TestAssembler_DoneLastResortClearsStreaming(t *testing.T) {
	msgs := assemble(t,
		testutil.NewEventBuilder().Chunk("m1", "still going", 0).Build(),
		testutil.NewEventBuilder().Done("m_other").Build(),
	)

	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].IsStreaming, "no turn may stay stuck streaming after done")
}

func TestAssembler_FinalHistoryInsertsWithoutReplacing(t *testing.T) {
	streamed := testutil.NewEventBuilder().Chunk("m2", "streamed text", 0).
		At(testutil.BaseTime.Add(time.Minute)).Build()
	snapshot := testutil.NewEventBuilder().History(
		testutil.Snapshot("m1", "user", "earlier question", testutil.BaseTime),
		testutil.Snapshot("m2", "assistant", "SNAPSHOT OVERWRITE", testutil.BaseTime.Add(time.Minute)),
		testutil.Snapshot("m3", "assistant", "later answer", testutil.BaseTime.Add(2*time.Minute)),
	).Build()

	msgs := assemble(t, streamed, snapshot)

	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, "streamed text", msgs[1].Text(), "snapshot must never overwrite a streamed message")
	assert.True(t, msgs[1].IsStreaming, "an in-flight message stays in flight through a snapshot")
	assert.Equal(t, "m3", msgs[2].ID)
	assert.Equal(t, "later answer", msgs[2].Text())
}

func TestAssembler_FinalHistoryResortsByTimestamp(t *testing.T) {
	late := testutil.NewEventBuilder().Chunk("m9", "arrived first, happened last", 0).
		At(testutil.BaseTime.Add(time.Hour)).Build()
	snapshot := testutil.NewEventBuilder().History(
		testutil.Snapshot("m1", "user", "happened first", testutil.BaseTime),
	).Build()

	msgs := assemble(t, late, snapshot)

	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m9", msgs[1].ID)
}

func TestAssembler_ErrorBecomesTranscriptEntry(t *testing.T) {
	msgs := assemble(t,
		testutil.NewEventBuilder().Chunk("m1", "working", 0).Build(),
		testutil.NewEventBuilder().Error("rate_limited", "try again later").Build(),
	)

	require.Len(t, msgs, 2)
	assert.Equal(t, "error", msgs[1].Role)
	assert.Equal(t, "rate_limited: try again later", msgs[1].Text())
}

func TestAssembler_IgnoresOtherSessions(t *testing.T) {
	msgs := assemble(t,
		testutil.NewEventBuilder().Session("other").Chunk("m1", "leak", 0).Build(),
		testutil.NewEventBuilder().Chunk("m2", "mine", 0).Build(),
	)

	require.Len(t, msgs, 1)
	assert.Equal(t, "mine", msgs[0].Text())
}

func TestAssembler_MessagesReturnsDeepCopies(t *testing.T) {
	a := NewAssembler("s1", nil)
	a.Apply(testutil.NewEventBuilder().Chunk("m1", "hi", 0).Build())

	first := a.Messages()
	first[0].Parts[0] = core.TextPart{Text: "mutated"}

	assert.Equal(t, "hi", a.Messages()[0].Text())
}

func TestAssembler_DeterministicRefold(t *testing.T) {
	events := []core.CanonicalEvent{
		testutil.NewEventBuilder().ToolCall("m1", "t1", "search", "{}").Build(),
		testutil.NewEventBuilder().Chunk("m1", "Looking", 0).Build(),
		testutil.NewEventBuilder().ToolResult("m1", "t1", "done").Build(),
		testutil.NewEventBuilder().Done("m1").Build(),
	}

	first := Assemble("s1", events, nil)
	second := Assemble("s1", events, nil)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Parts, second[i].Parts)
		assert.Equal(t, first[i].Role, second[i].Role)
	}
}
