// Package importer drives the ordered pipeline steps over one batch:
// scan, hash, copy, validate, finalize. It persists resumable session
// state after every step, emits unified progress events, and converts a
// sustained-network-failure escalation into a paused, resumable session
// instead of a failed one.
package importer
