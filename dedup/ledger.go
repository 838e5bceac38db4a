package dedup

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/reconcile/logging"
)

// Options configures a Ledger. All values have safe defaults; the TTL and
// entry cap were tuned empirically upstream and are deliberately
// configuration, not constants.
type Options struct {
	// TTL bounds how long a key suppresses redelivery. Measured against the
	// most recent sighting so an actively redelivering producer stays
	// suppressed.
	TTL time.Duration

	// MaxEntries caps the ledger size after a sweep. When the TTL pass
	// leaves more entries than this, only the most recently seen survive.
	MaxEntries int

	// SweepInterval is the timer period for Run.
	SweepInterval time.Duration

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	// Logger receives sweep diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

type entry struct {
	firstSeen time.Time
	lastSeen  time.Time
}

// Ledger is the TTL- and count-bounded record of recently seen idempotency
// keys. It never grows unbounded: Sweep (or the Run timer) enforces both
// limits.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]entry
	opts    Options
}

// NewLedger constructs a Ledger with optional overrides.
func NewLedger(optFns ...func(o *Options)) *Ledger {
	opts := Options{
		TTL:           5 * time.Minute,
		MaxEntries:    10000,
		SweepInterval: 30 * time.Second,
		Clock:         time.Now,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Ledger{entries: map[string]entry{}, opts: opts}
}

// Observe records a key sighting and reports whether the key had been seen
// before. The first sighting returns false; subsequent sightings refresh the
// last-seen time and return true.
func (l *Ledger) Observe(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.opts.Clock()
	if e, ok := l.entries[key]; ok {
		e.lastSeen = now
		l.entries[key] = e
		return true
	}
	l.entries[key] = entry{firstSeen: now, lastSeen: now}
	return false
}

// Len returns the current entry count.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep evicts entries not seen within the TTL and, if the ledger is still
// over MaxEntries, keeps only the most recently seen. Returns the number of
// evicted entries.
func (l *Ledger) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.opts.Clock()
	evicted := 0
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > l.opts.TTL {
			delete(l.entries, key)
			evicted++
		}
	}
	if l.opts.MaxEntries > 0 && len(l.entries) > l.opts.MaxEntries {
		type keyed struct {
			key string
			e   entry
		}
		all := make([]keyed, 0, len(l.entries))
		for k, e := range l.entries {
			all = append(all, keyed{key: k, e: e})
		}
		sort.Slice(all, func(i, j int) bool { return all[i].e.lastSeen.After(all[j].e.lastSeen) })
		for _, ke := range all[l.opts.MaxEntries:] {
			delete(l.entries, ke.key)
			evicted++
		}
	}
	return evicted
}

// Run sweeps on a ticker until the context is cancelled.
func (l *Ledger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := l.Sweep()
			if evicted == 0 {
				continue
			}
			if il, ok := l.opts.Logger.(logging.IngestionLogger); ok {
				il.LogSweep(evicted, l.Len())
			} else {
				l.opts.Logger.Debug("dedup ledger swept", "evicted", evicted, "remaining", l.Len())
			}
		}
	}
}
