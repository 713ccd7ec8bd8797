// Package daemon runs the watch mode: a single-instance background
// process that watches the inbox for new media, logs removable-media
// attachment, runs queued imports one at a time, and keeps the
// monitoring loops alive.
package daemon
