// Package transfer copies source files into the archive and re-verifies
// them afterwards. Both services share one consecutive-error counter per
// batch: sustained retryable transport errors escalate to a
// NetworkFailureError so the orchestrator can pause the session instead
// of failing file after file against a dead mount.
package transfer
