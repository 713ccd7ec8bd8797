// Package session persists import sessions and the archive catalog in
// SQLite so an interrupted batch can be inspected and, when paused by a
// network failure, resumed without redoing verified work.
package session
