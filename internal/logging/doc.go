// Package logging constructs the slog loggers used across darkroom and
// provides the attribute helpers the rest of the codebase logs with.
package logging
