package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced clock for deterministic sweep tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func TestLedger_ObserveFirstThenDuplicate(t *testing.T) {
	l := NewLedger()

	assert.False(t, l.Observe("k1"), "first sighting is not a duplicate")
	assert.True(t, l.Observe("k1"), "second sighting is a duplicate")
	assert.False(t, l.Observe("k2"))
	assert.Equal(t, 2, l.Len())
}

func TestLedger_SweepEvictsExpired(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
	l := NewLedger(func(o *Options) {
		o.TTL = time.Minute
		o.Clock = clock.Now
	})

	l.Observe("old")
	clock.Advance(45 * time.Second)
	l.Observe("fresh")
	clock.Advance(30 * time.Second)

	evicted := l.Sweep()
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, l.Len())
	assert.True(t, l.Observe("fresh"), "surviving key still suppresses")
	assert.False(t, l.Observe("old"), "evicted key behaves as never seen")
}

func TestLedger_RedeliveryRefreshesTTL(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
	l := NewLedger(func(o *Options) {
		o.TTL = time.Minute
		o.Clock = clock.Now
	})

	l.Observe("k1")
	clock.Advance(50 * time.Second)
	l.Observe("k1")
	clock.Advance(50 * time.Second)

	assert.Zero(t, l.Sweep(), "an actively redelivering key must not expire")
	assert.Equal(t, 1, l.Len())
}

func TestLedger_SweepEnforcesEntryCap(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
	l := NewLedger(func(o *Options) {
		o.TTL = time.Hour
		o.MaxEntries = 3
		o.Clock = clock.Now
	})

	for i := 0; i < 10; i++ {
		l.Observe(fmt.Sprintf("k%d", i))
		clock.Advance(time.Second)
	}

	evicted := l.Sweep()
	assert.Equal(t, 7, evicted)
	assert.Equal(t, 3, l.Len())

	// The most recently seen keys survive.
	for _, key := range []string{"k7", "k8", "k9"} {
		assert.True(t, l.Observe(key), "expected %s to survive the cap", key)
	}
	assert.False(t, l.Observe("k0"), "oldest keys are evicted first")
}

func TestLedger_BoundedMemory(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
	l := NewLedger(func(o *Options) {
		o.TTL = time.Hour
		o.MaxEntries = 100
		o.Clock = clock.Now
	})

	for i := 0; i < 1000; i++ {
		l.Observe(fmt.Sprintf("k%d", i))
		if i%250 == 0 {
			l.Sweep()
		}
	}
	l.Sweep()

	assert.LessOrEqual(t, l.Len(), 100, "ledger never grows past the cap after a sweep")
}
