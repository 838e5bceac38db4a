package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reconcile/core"
	"github.com/hupe1980/reconcile/internal/testutil"
)

func TestReduce_IsPure(t *testing.T) {
	ev := testutil.NewEventBuilder().ID("e1").Chunk("m1", "hi", 0).Build()

	before := NewState()
	after := Reduce(before, Upsert{Event: ev})

	assert.Empty(t, before.order, "input state must not be mutated")
	assert.Len(t, after.order, 1)
}

func TestReduce_UpsertIdempotent(t *testing.T) {
	ev := testutil.NewEventBuilder().ID("e1").Chunk("m1", "hi", 0).Build()

	once := Reduce(NewState(), Upsert{Event: ev})
	twice := Reduce(once, Upsert{Event: ev})

	assert.Equal(t, once.order, twice.order)
	assert.Equal(t, once.events, twice.events)
	assert.Equal(t, once.sessions, twice.sessions)
}

func TestReduce_ReplaceByIDKeepsPosition(t *testing.T) {
	first := testutil.NewEventBuilder().ID("e1").Chunk("m1", "hi", 0).Build()
	second := testutil.NewEventBuilder().ID("e2").Chunk("m1", " there", 1).Build()
	replacement := testutil.NewEventBuilder().ID("e1").Chunk("m1", "hello", 0).Build()

	s := Reduce(NewState(), UpsertBatch{Events: []core.CanonicalEvent{first, second}})
	s = Reduce(s, Upsert{Event: replacement})

	require.Equal(t, []string{"e1", "e2"}, s.order, "position fixed at first sight")
	assert.Equal(t, "hello", s.events["e1"].Payload.(core.ChunkPayload).Delta)
	assert.Len(t, s.sessions["s1"], 2)
}

func TestStore_ToolIndexEitherOrderFirst(t *testing.T) {
	call := testutil.NewEventBuilder().ID("e1").ToolCall("m1", "t1", "search", "{}").Build()
	result := testutil.NewEventBuilder().ID("e2").ToolResult("m1", "t1", "ok").Build()

	callFirst := New(nil)
	callFirst.Upsert(call)
	callFirst.Upsert(result)

	resultFirst := New(nil)
	resultFirst.Upsert(result)
	resultFirst.Upsert(call)

	for name, s := range map[string]*Store{"call-first": callFirst, "result-first": resultFirst} {
		pair, ok := s.ToolPair("t1")
		require.True(t, ok, "%s: pair must exist", name)
		require.True(t, pair.Resolved(), "%s: pair must be resolved", name)
		assert.Equal(t, "e1", pair.Call.ID, name)
		assert.Equal(t, "e2", pair.Result.ID, name)
	}
}

func TestStore_PlaceholderIDsStayOutOfIndex(t *testing.T) {
	s := New(nil)
	s.Upsert(testutil.NewEventBuilder().ID("e1").ToolCall("m1", "", "search", "{}").Build())

	_, ok := s.ToolPair("")
	assert.False(t, ok, "placeholder ids cannot correlate by lookup")
	assert.Empty(t, s.OrphanedCalls())
}

func TestStore_OrphanedCalls(t *testing.T) {
	s := New(nil)
	s.Upsert(testutil.NewEventBuilder().ID("e1").ToolCall("m1", "t1", "search", "{}").Build())
	s.Upsert(testutil.NewEventBuilder().ID("e2").ToolCall("m1", "t2", "fetch", "{}").Build())
	s.Upsert(testutil.NewEventBuilder().ID("e3").ToolResult("m1", "t1", "ok").Build())

	orphans := s.OrphanedCalls()
	require.Len(t, orphans, 1)
	assert.Equal(t, "e2", orphans[0].ID)
}

func TestStore_SessionBucketsAndQueries(t *testing.T) {
	s := New(nil)
	s.Upsert(testutil.NewEventBuilder().ID("e1").Session("s1").Chunk("m1", "a", 0).Build())
	s.Upsert(testutil.NewEventBuilder().ID("e2").Session("s2").Chunk("m2", "b", 0).Build())
	s.Upsert(testutil.NewEventBuilder().ID("e3").Session("s1").Done("m1").Build())

	assert.Equal(t, []string{"s1", "s2"}, s.SessionIDs())
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, "e3", s.LastEventID())

	s1Events := s.EventsForSession("s1")
	require.Len(t, s1Events, 2)
	assert.Equal(t, "e1", s1Events[0].ID)
	assert.Equal(t, "e3", s1Events[1].ID)

	assert.Empty(t, s.EventsForSession("unknown"), "unknown session reads are empty, not errors")
}

func TestStore_RemoveAndClear(t *testing.T) {
	s := New(nil)
	s.Upsert(testutil.NewEventBuilder().ID("e1").Session("s1").ToolCall("m1", "t1", "search", "{}").Build())
	s.Upsert(testutil.NewEventBuilder().ID("e2").Session("s1").ToolResult("m1", "t1", "ok").Build())
	s.Upsert(testutil.NewEventBuilder().ID("e3").Session("s2").Chunk("m2", "b", 0).Build())

	s.Remove("e2")
	pair, ok := s.ToolPair("t1")
	require.True(t, ok)
	assert.Nil(t, pair.Result, "removing the result half must unresolve the pair")

	s.Clear("s1")
	assert.Equal(t, []string{"s2"}, s.SessionIDs())
	assert.Equal(t, 1, s.Count())
	_, ok = s.ToolPair("t1")
	assert.False(t, ok, "clearing a session evicts its pair index entries")

	s.ClearAll()
	assert.Zero(t, s.Count())
	assert.Empty(t, s.LastEventID())
}

func TestStore_DefensiveCopies(t *testing.T) {
	s := New(nil)
	s.Upsert(testutil.NewEventBuilder().ID("e1").Chunk("m1", "hi", 0).Build())

	events := s.Events()
	events[0].ID = "mutated"

	assert.Equal(t, "e1", s.Events()[0].ID, "query results must not alias internal state")
}
