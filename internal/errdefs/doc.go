// Package errdefs defines the sentinel error markers shared across the
// pipeline and a Wrap helper that tags failures with step context while
// keeping the marker reachable through errors.Is.
package errdefs
