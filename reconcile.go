// Package reconcile provides a high-level façade over the reconciliation
// engine and its service abstractions (event store, dedup ledger, loop guard,
// transcript assembly & logging) enabling rapid construction of live
// transcript consumers. Most applications interact with this package by:
//  1. Creating a Reconciler via New() (optionally overriding default in-memory services)
//  2. Feeding raw payloads through the Ingest* methods from any transport
//  3. Reading assembled transcripts, tool pairs and diagnostics
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable TranscriptSaver
// and a structured logger.
package reconcile

import (
	"context"

	"github.com/hupe1980/reconcile/core"
	"github.com/hupe1980/reconcile/engine"
	"github.com/hupe1980/reconcile/logging"
	"github.com/hupe1980/reconcile/store"
)

// Options configures the Reconciler instance.
type Options struct {
	// Config contains the engine's operational parameters (feature gate,
	// dedup bounds, guard threshold/window).
	Config engine.Config

	// Store is the canonical event ledger (defaults to a fresh in-memory store).
	Store *store.Store

	// Saver receives fire-and-forget transcript batches (optional).
	Saver core.TranscriptSaver

	// Restorer re-establishes backend session context (optional).
	Restorer core.SessionRestorer

	// Tools exposes external tool metadata (optional).
	Tools core.ToolMetadataProvider

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Reconciler is the high-level façade aggregating the underlying engine and services.
type Reconciler struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new Reconciler with optional overrides. Any unset service is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Reconciler {
	opts := Options{
		Config: engine.DefaultConfig,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.Config
		o.Store = opts.Store
		o.Logger = opts.Logger
		o.Saver = opts.Saver
		o.Restorer = opts.Restorer
		o.Tools = opts.Tools
	})

	return &Reconciler{opts: opts, engine: e}
}

// Run drives the engine's periodic work (dedup sweep) until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) { r.engine.Run(ctx) }

// IngestEvent applies one already-normalized canonical event.
func (r *Reconciler) IngestEvent(ctx context.Context, ev core.CanonicalEvent) error {
	return r.engine.IngestEvent(ctx, ev)
}

// IngestEvents applies a batch of canonical events with per-member isolation.
func (r *Reconciler) IngestEvents(ctx context.Context, events []core.CanonicalEvent) error {
	return r.engine.IngestEvents(ctx, events)
}

// IngestObject normalizes and applies a single event-shaped JSON object.
func (r *Reconciler) IngestObject(ctx context.Context, data []byte, source string) error {
	return r.engine.IngestObject(ctx, data, source)
}

// IngestArray normalizes and applies a JSON array of event-shaped objects.
func (r *Reconciler) IngestArray(ctx context.Context, data []byte, source string) error {
	return r.engine.IngestArray(ctx, data, source)
}

// IngestBlob normalizes and applies a delimited text blob of events.
func (r *Reconciler) IngestBlob(ctx context.Context, blob string, source string) error {
	return r.engine.IngestBlob(ctx, blob, source)
}

// Events returns every stored event in global order.
func (r *Reconciler) Events() []core.CanonicalEvent { return r.engine.Events() }

// EventsForSession returns one session's events in receipt order.
func (r *Reconciler) EventsForSession(sessionID string) []core.CanonicalEvent {
	return r.engine.EventsForSession(sessionID)
}

// Messages lazily assembles one session's transcript.
func (r *Reconciler) Messages(sessionID string) []*core.ChatMessage {
	return r.engine.Messages(sessionID)
}

// SessionIDs returns the known session ids.
func (r *Reconciler) SessionIDs() []string { return r.engine.SessionIDs() }

// ToolPair looks up a call/result pair by invocation id.
func (r *Reconciler) ToolPair(invocationID string) (core.ToolPair, bool) {
	return r.engine.ToolPair(invocationID)
}

// OrphanedCalls returns tool calls still waiting for a result.
func (r *Reconciler) OrphanedCalls() []core.CanonicalEvent { return r.engine.OrphanedCalls() }

// ClearSession evicts a session's events and discards its transcript.
func (r *Reconciler) ClearSession(sessionID string) error { return r.engine.ClearSession(sessionID) }

// Tools forwards the external lifecycle manager's tool metadata.
func (r *Reconciler) Tools(ctx context.Context) ([]core.ToolInfo, error) {
	return r.engine.Tools(ctx)
}

// Diagnostics summarizes engine health.
func (r *Reconciler) Diagnostics() engine.Diagnostics { return r.engine.Diagnostics() }

// WaitForSaves blocks until in-flight fire-and-forget saves complete.
// Intended for shutdown paths.
func (r *Reconciler) WaitForSaves() { r.engine.WaitForSaves() }
