package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/reconcile/core"
	"github.com/hupe1980/reconcile/dedup"
	"github.com/hupe1980/reconcile/guard"
	"github.com/hupe1980/reconcile/logging"
	"github.com/hupe1980/reconcile/store"
	"github.com/hupe1980/reconcile/transcript"
	"github.com/hupe1980/reconcile/transport"
)

// Options configures an Engine instance using the functional options pattern.
// All service dependencies have safe defaults so tests and local development
// need no setup; production deployments supply a durable saver and a
// structured logger.
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// Store is the canonical event ledger. Defaults to a fresh in-memory store.
	Store *store.Store

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Saver receives fire-and-forget transcript batches after terminal
	// events. Optional; failures are logged, never fatal.
	Saver core.TranscriptSaver

	// Restorer re-establishes backend session context when a backend reports
	// it missing. Optional.
	Restorer core.SessionRestorer

	// Tools exposes external tool metadata to consumers. Optional.
	Tools core.ToolMetadataProvider

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	// SaveTimeout bounds each fire-and-forget persistence call.
	SaveTimeout time.Duration
}

// Diagnostics is the engine's observable health summary.
type Diagnostics struct {
	TotalEvents          int `json:"total_events"`
	SuppressedDuplicates int `json:"suppressed_duplicates"`
	OrphanedToolCalls    int `json:"orphaned_tool_calls"`
	Sessions             int `json:"sessions"`
}

// Engine is the reconciliation pipeline. Every mutation entry point is
// wrapped by the loop guard and filtered through the dedup ledger before it
// reaches the store; per-event failures are contained to their event and
// session.
type Engine struct {
	config   Config
	store    *store.Store
	ledger   *dedup.Ledger
	guard    *guard.Guard
	logger   logging.Logger
	saver    core.TranscriptSaver
	restorer core.SessionRestorer
	tools    core.ToolMetadataProvider
	clock    func() time.Time

	saveTimeout time.Duration

	mu           sync.Mutex
	halted       bool
	suppressed   int
	restoreTried map[string]bool
	pendingSaves sync.WaitGroup
}

// New constructs an Engine with optional overrides.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:      DefaultConfig,
		Logger:      logging.NoOpLogger{},
		Clock:       time.Now,
		SaveTimeout: 10 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Store == nil {
		opts.Store = store.New(logging.WithComponent(opts.Logger, "store"))
	}

	e := &Engine{
		config: opts.Config,
		store:  opts.Store,
		ledger: dedup.NewLedger(func(o *dedup.Options) {
			o.TTL = opts.Config.DedupTTL
			o.MaxEntries = opts.Config.DedupMaxEntries
			o.SweepInterval = opts.Config.DedupSweepInterval
			o.Clock = opts.Clock
			o.Logger = logging.WithComponent(opts.Logger, "dedup")
		}),
		guard: guard.New(func(o *guard.Options) {
			o.Threshold = opts.Config.GuardThreshold
			o.Window = opts.Config.GuardWindow
			o.Clock = opts.Clock
			o.Logger = logging.WithComponent(opts.Logger, "guard")
		}),
		logger:       logging.WithComponent(opts.Logger, "engine"),
		saver:        opts.Saver,
		restorer:     opts.Restorer,
		tools:        opts.Tools,
		clock:        opts.Clock,
		saveTimeout:  opts.SaveTimeout,
		restoreTried: map[string]bool{},
	}
	return e
}

// Run drives the periodic work (dedup ledger sweep) until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	if !e.config.Enabled {
		return
	}
	e.ledger.Run(ctx)
}

// Enabled reports the feature gate state.
func (e *Engine) Enabled() bool { return e.config.Enabled }

// IngestEvent applies one canonical event.
func (e *Engine) IngestEvent(ctx context.Context, ev core.CanonicalEvent) error {
	if !e.config.Enabled {
		return nil
	}
	if err := e.checkGuard(); err != nil {
		return err
	}
	return e.ingestOne(ctx, ev)
}

// IngestEvents applies a batch. Members are independent: a failing member is
// contained and its siblings still apply; the combined error reports every
// contained failure. A runaway-mutation trip aborts immediately.
func (e *Engine) IngestEvents(ctx context.Context, events []core.CanonicalEvent) error {
	if !e.config.Enabled {
		return nil
	}
	if err := e.checkGuard(); err != nil {
		return err
	}
	var errs []error
	for _, ev := range events {
		if err := e.ingestOne(ctx, ev); err != nil {
			if errors.Is(err, core.ErrRunawayMutation) || errors.Is(err, core.ErrEngineHalted) {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IngestObject normalizes and applies a single event-shaped JSON object.
// A payload that is not yet a foldable event is safely ignored.
func (e *Engine) IngestObject(ctx context.Context, data []byte, source string) error {
	if !e.config.Enabled {
		return nil
	}
	ev, err := transport.ParseObject(data, source)
	if err != nil {
		if errors.Is(err, core.ErrNotAnEvent) {
			e.logger.Debug("non-event object ignored", "source", source)
			return nil
		}
		e.logger.Warn("malformed event skipped", "source", source, "error", err.Error())
		return err
	}
	return e.IngestEvent(ctx, ev)
}

// IngestArray normalizes and applies a JSON array of event-shaped objects
// with partial-failure isolation: malformed members are logged and skipped
// without aborting their siblings.
func (e *Engine) IngestArray(ctx context.Context, data []byte, source string) error {
	if !e.config.Enabled {
		return nil
	}
	events, errs := transport.ParseArray(data, source)
	for _, err := range errs {
		e.logger.Warn("malformed event skipped", "source", source, "error", err.Error())
	}
	return e.IngestEvents(ctx, events)
}

// IngestBlob normalizes and applies a delimited text blob of events with the
// same partial-failure isolation as IngestArray.
func (e *Engine) IngestBlob(ctx context.Context, blob string, source string) error {
	if !e.config.Enabled {
		return nil
	}
	events, errs := transport.ParseBlob(blob, source)
	for _, err := range errs {
		e.logger.Warn("malformed event skipped", "source", source, "error", err.Error())
	}
	return e.IngestEvents(ctx, events)
}

// checkGuard runs the loop guard and the halt latch shared by every mutation
// entry point. A trip halts the engine permanently: bounding resource use
// matters more than limping on with a spinning caller.
func (e *Engine) checkGuard() error {
	e.mu.Lock()
	halted := e.halted
	e.mu.Unlock()
	if halted {
		return core.ErrEngineHalted
	}
	if err := e.guard.Check(); err != nil {
		e.mu.Lock()
		e.halted = true
		e.mu.Unlock()
		e.logger.Error("mutation entry point halted", "error", err.Error())
		return err
	}
	return nil
}

// ingestOne applies one event atomically: dedup, id assignment, store upsert,
// terminal side effects. Events within a batch pass through here
// independently.
func (e *Engine) ingestOne(ctx context.Context, ev core.CanonicalEvent) error {
	if !ev.Kind.Valid() || ev.Payload == nil || ev.SessionID == "" {
		e.logger.Warn("malformed event skipped", "kind", string(ev.Kind), "session_id", ev.SessionID)
		return core.ErrMalformedEvent
	}

	key := dedup.KeyFor(ev)
	if e.ledger.Observe(key) {
		e.mu.Lock()
		e.suppressed++
		e.mu.Unlock()
		if il, ok := e.logger.(logging.IngestionLogger); ok {
			il.LogDuplicateSuppressed(string(ev.Kind), key)
		} else {
			e.logger.Debug("duplicate event suppressed", "kind", string(ev.Kind), "dedup_key", key)
		}
		return nil
	}

	if ev.ID == "" {
		ev.ID = core.NewID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.clock().UTC()
	}

	if ev.Kind == core.KindError {
		if e.handleMissingSession(ctx, ev) {
			return nil
		}
	} else {
		e.mu.Lock()
		delete(e.restoreTried, ev.SessionID)
		e.mu.Unlock()
	}

	start := e.clock()
	e.store.Upsert(ev)
	if il, ok := e.logger.(logging.IngestionLogger); ok {
		il.LogEventApplied(string(ev.Kind), ev.ID, e.clock().Sub(start))
	}

	if ev.IsTerminal() {
		e.saveAsync(ev.SessionID)
	}
	return nil
}

// handleMissingSession intercepts a backend's missing-session report. The
// restorer runs at most once per send attempt; a successful restoration
// swallows the error event (the send will be retried upstream), anything
// else lets the event surface as a terminal error message. Returns true when
// the event was consumed by a successful restoration.
func (e *Engine) handleMissingSession(ctx context.Context, ev core.CanonicalEvent) bool {
	p, ok := ev.Payload.(core.ErrorPayload)
	if !ok || p.Code != core.MissingSessionCode || e.restorer == nil {
		return false
	}

	e.mu.Lock()
	tried := e.restoreTried[ev.SessionID]
	e.restoreTried[ev.SessionID] = true
	e.mu.Unlock()
	if tried {
		return false
	}

	if err := e.restorer.Restore(ctx, ev.SessionID); err != nil {
		e.logger.Warn("session restoration failed", "session_id", ev.SessionID, "error", err.Error())
		return false
	}
	e.logger.Info("session context restored", "session_id", ev.SessionID)
	return true
}

// saveAsync persists the session's assembled transcript fire-and-forget.
func (e *Engine) saveAsync(sessionID string) {
	if e.saver == nil {
		return
	}
	messages := e.Messages(sessionID)
	e.pendingSaves.Add(1)
	go func() {
		defer e.pendingSaves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.saveTimeout)
		defer cancel()
		if err := e.saver.SaveMessages(ctx, sessionID, messages); err != nil {
			e.logger.Warn("transcript save failed", "session_id", sessionID, "error", err.Error())
		}
	}()
}

// WaitForSaves blocks until every in-flight fire-and-forget save completed.
// Intended for shutdown paths and tests.
func (e *Engine) WaitForSaves() { e.pendingSaves.Wait() }

// Events returns every stored event in global order.
func (e *Engine) Events() []core.CanonicalEvent {
	if !e.config.Enabled {
		return nil
	}
	return e.store.Events()
}

// EventsForSession returns one session's events in receipt order.
func (e *Engine) EventsForSession(sessionID string) []core.CanonicalEvent {
	if !e.config.Enabled {
		return nil
	}
	return e.store.EventsForSession(sessionID)
}

// Messages lazily assembles one session's transcript from its deduplicated,
// ordered events.
func (e *Engine) Messages(sessionID string) []*core.ChatMessage {
	if !e.config.Enabled {
		return nil
	}
	return transcript.Assemble(sessionID, e.store.EventsForSession(sessionID), logging.WithSession(e.logger, sessionID))
}

// SessionIDs returns the known session ids.
func (e *Engine) SessionIDs() []string {
	if !e.config.Enabled {
		return nil
	}
	return e.store.SessionIDs()
}

// ToolPair looks up a call/result pair by invocation id.
func (e *Engine) ToolPair(invocationID string) (core.ToolPair, bool) {
	if !e.config.Enabled {
		return core.ToolPair{}, false
	}
	return e.store.ToolPair(invocationID)
}

// OrphanedCalls returns tool calls still waiting for a result.
func (e *Engine) OrphanedCalls() []core.CanonicalEvent {
	if !e.config.Enabled {
		return nil
	}
	return e.store.OrphanedCalls()
}

// ClearSession evicts a session's events and discards its assembled
// transcript. Guard-wrapped like every mutation.
func (e *Engine) ClearSession(sessionID string) error {
	if !e.config.Enabled {
		return nil
	}
	if err := e.checkGuard(); err != nil {
		return err
	}
	e.store.Clear(sessionID)
	return nil
}

// Tools forwards the external lifecycle manager's tool metadata.
func (e *Engine) Tools(ctx context.Context) ([]core.ToolInfo, error) {
	if !e.config.Enabled || e.tools == nil {
		return nil, nil
	}
	return e.tools.Tools(ctx)
}

// Diagnostics summarizes engine health.
func (e *Engine) Diagnostics() Diagnostics {
	if !e.config.Enabled {
		return Diagnostics{}
	}
	e.mu.Lock()
	suppressed := e.suppressed
	e.mu.Unlock()
	return Diagnostics{
		TotalEvents:          e.store.Count(),
		SuppressedDuplicates: suppressed,
		OrphanedToolCalls:    len(e.store.OrphanedCalls()),
		Sessions:             len(e.store.SessionIDs()),
	}
}
