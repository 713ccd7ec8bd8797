// Package monitoring persists metric events, completed trace spans, and
// fired alerts to SQLite and bundles the three collectors into one
// service with periodic flush and retention cleanup.
package monitoring
