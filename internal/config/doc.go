// Package config loads, normalizes, and validates the TOML configuration
// that drives the darkroom CLI and watch daemon.
package config
