package media

import (
	"time"

	"darkroom/internal/storagekind"
)

// Type is the coarse media classification used for counting and layout.
type Type string

const (
	TypeVideo   Type = "video"
	TypeImage   Type = "image"
	TypeSidecar Type = "sidecar"
	TypeOther   Type = "other"
)

// ScannedFile is a file discovered at a source root.
type ScannedFile struct {
	ID         string
	Filename   string
	SourcePath string
	Extension  string
	Size       int64
	ModTime    time.Time
	Type       Type
}

// HashedFile is a ScannedFile plus its content hash. Hash stays empty
// when hashing was deferred (network sources hash during copy) or failed.
type HashedFile struct {
	ScannedFile
	Hash        string
	HashError   string
	Duplicate   bool
	DuplicateOf string
}

// CopiedFile is a HashedFile plus its copy outcome. ArchivePath is set
// exactly when CopyError is empty.
type CopiedFile struct {
	HashedFile
	ArchivePath string
	CopyError   string
	Retries     int
	Storage     storagekind.Kind
	Cancelled   bool
}

// ValidatedFile is a CopiedFile plus its verification outcome. IsValid is
// true only when the re-computed destination hash equals Hash.
type ValidatedFile struct {
	CopiedFile
	IsValid         bool
	ValidationError string
}

// FinalizedFile is a ValidatedFile plus its catalog linkage.
type FinalizedFile struct {
	ValidatedFile
	RecordID   int64
	ImportedAt time.Time
}

// Copied reports whether the file reached the archive.
func (f CopiedFile) Copied() bool {
	return f.ArchivePath != "" && f.CopyError == ""
}
