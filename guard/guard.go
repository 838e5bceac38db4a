// Package guard implements the loop guard wrapped around every mutation
// entry point of the engine. It fingerprints the calling code path and fails
// fast when the same call site re-enters a mutation beyond a threshold within
// a short sliding window, so a runaway synchronous loop halts the process
// instead of spinning. Outside the window the counter resets, which
// distinguishes legitimate bursts (fast streaming) from true re-entrancy.
package guard

import (
	"fmt"
	"hash/fnv"
	"runtime"
	"sync"
	"time"

	"github.com/hupe1980/reconcile/core"
	"github.com/hupe1980/reconcile/logging"
)

// Options configures a Guard. Threshold and window were tuned empirically
// upstream and stay configuration, not constants.
type Options struct {
	// Threshold is the number of same-signature invocations inside one
	// window that trips the guard.
	Threshold int

	// Window is the sliding time window for counting recurrences.
	Window time.Duration

	// Depth is how many stack frames (beyond the guard's own) make up a
	// call-site signature.
	Depth int

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	// Logger receives trip diagnostics including the offending stack.
	Logger logging.Logger
}

type window struct {
	count int
	start time.Time
}

// Guard tracks mutation call sites inside a sliding window.
type Guard struct {
	mu   sync.Mutex
	seen map[uint64]window
	opts Options
}

// New constructs a Guard with optional overrides.
func New(optFns ...func(o *Options)) *Guard {
	opts := Options{
		Threshold: 25,
		Window:    250 * time.Millisecond,
		Depth:     8,
		Clock:     time.Now,
		Logger:    logging.NoOpLogger{},
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
	if opts.Depth <= 0 {
		opts.Depth = 8
	}
	return &Guard{seen: map[uint64]window{}, opts: opts}
}

// Check records one invocation of the calling site and returns
// core.ErrRunawayMutation when the site exceeds the threshold within the
// window. The signature excludes the guard's own frames so wrapping depth
// does not perturb it.
func (g *Guard) Check() error {
	sig, stack := g.signature()

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.opts.Clock()
	w, ok := g.seen[sig]
	if !ok || now.Sub(w.start) > g.opts.Window {
		g.seen[sig] = window{count: 1, start: now}
		return nil
	}
	w.count++
	g.seen[sig] = w
	if w.count > g.opts.Threshold {
		trip := []any{
			"signature", fmt.Sprintf("%x", sig),
			"count", w.count,
			"window", g.opts.Window.String(),
			"stack", stack,
		}
		if sl, ok := g.opts.Logger.(logging.StackLogger); ok {
			sl.ErrorWithStack(core.ErrRunawayMutation, "runaway mutation loop detected", trip...)
		} else {
			g.opts.Logger.Error("runaway mutation loop detected", trip...)
		}
		return core.ErrRunawayMutation
	}
	return nil
}

// Reset clears all tracked call sites.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = map[uint64]window{}
}

// signature hashes the truncated caller stack, skipping runtime.Callers,
// signature, Check and the immediate guard wrapper frame. The raw frame list
// is returned alongside for trip diagnostics.
func (g *Guard) signature() (uint64, string) {
	pcs := make([]uintptr, g.opts.Depth+4)
	// Skip runtime.Callers, signature and Check; the engine wrapper frame
	// stays in so distinct entry points count separately.
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	h := fnv.New64a()
	var stack string
	collected := 0
	for collected < g.opts.Depth {
		frame, more := frames.Next()
		fmt.Fprintf(h, "%s:%d|", frame.Function, frame.Line)
		stack += fmt.Sprintf("%s (%s:%d)\n", frame.Function, frame.File, frame.Line)
		collected++
		if !more {
			break
		}
	}
	return h.Sum64(), stack
}
