// Package transport normalizes the three inbound payload shapes (a delimited
// text blob, a JSON array of event-shaped objects, a single event-shaped
// object) into canonical events. Raw payloads come from untrusted producers,
// so field probing is shape-tolerant and every failure is contained to the
// offending member: a malformed event inside a batch is reported and skipped
// without aborting its siblings, and objects that are not yet foldable events
// (patch frames) are ignored rather than crashing the pipeline.
//
// Provider-specific sub-packages map vendor SDK wire shapes onto the same
// canonical events.
package transport
