package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// Length is the hex length of a content hash. SHA-256 truncated to 128
// bits: short enough to embed in archive filenames, wide enough that a
// dedup collision is not a practical concern.
const Length = 32

const defaultBufferSize = 128 * 1024

// New returns the digest used for content hashing. Callers that already
// stream file bytes (the copy tee) feed it directly and finish with
// Format.
func New() hash.Hash {
	return sha256.New()
}

// Format renders a finished digest as the canonical content hash string.
func Format(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))[:Length]
}

// Sum hashes an in-memory payload. Test helper and small-file shortcut.
func Sum(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])[:Length]
}

// HashFile streams a file through the digest, honoring context
// cancellation between chunks. bufferSize <= 0 selects the default.
func HashFile(ctx context.Context, path string, bufferSize int) (string, error) {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	digest := New()
	buf := make([]byte, bufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, readErr := file.Read(buf)
		if n > 0 {
			if _, err := digest.Write(buf[:n]); err != nil {
				return "", fmt.Errorf("hash %s: %w", path, err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("read %s: %w", path, readErr)
		}
	}
	return Format(digest), nil
}
