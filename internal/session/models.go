package session

import (
	"strings"
	"time"

	"darkroom/internal/media"
)

// Status represents the lifecycle of an import session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusScanning   Status = "scanning"
	StatusHashing    Status = "hashing"
	StatusCopying    Status = "copying"
	StatusValidating Status = "validating"
	StatusFinalizing Status = "finalizing"
	StatusCompleted  Status = "completed"
	StatusPaused     Status = "paused"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusScanning,
	StatusHashing,
	StatusCopying,
	StatusValidating,
	StatusFinalizing,
	StatusCompleted,
	StatusPaused,
	StatusCancelled,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether a status ends the session.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// Snapshot holds the per-step result arrays persisted after each step.
type Snapshot struct {
	Scanned   []media.ScannedFile   `json:"scanned,omitempty"`
	Hashed    []media.HashedFile    `json:"hashed,omitempty"`
	Copied    []media.CopiedFile    `json:"copied,omitempty"`
	Validated []media.ValidatedFile `json:"validated,omitempty"`
	Finalized []media.FinalizedFile `json:"finalized,omitempty"`
}

// Session represents one batch run persisted in SQLite.
type Session struct {
	ID             string
	Status         Status
	SourcePaths    []string
	ArchiveRoot    string
	Resumed        bool
	SnapshotJSON   string
	FilesTotal     int
	FilesProcessed int
	BytesTotal     int64
	BytesProcessed int64
	Duplicates     int
	Errors         int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// Resumable reports whether the session may be resumed. Only a paused
// session (graceful stop after sustained network failure) qualifies.
func (s *Session) Resumable() bool {
	return s != nil && s.Status == StatusPaused
}
