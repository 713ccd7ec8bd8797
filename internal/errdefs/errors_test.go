package errdefs_test

import (
	"errors"
	"strings"
	"testing"

	"darkroom/internal/errdefs"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := errdefs.Wrap(errdefs.ErrValidation, "validate", "rehash", "mismatch", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errdefs.ErrValidation) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"validate", "rehash", "mismatch"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := errdefs.Wrap(nil, "copy", "", "", errors.New("io"))
	if !errors.Is(err, errdefs.ErrTransient) {
		t.Fatalf("nil marker should default to transient, got %v", err)
	}
}

func TestWrapWithoutInnerError(t *testing.T) {
	err := errdefs.Wrap(errdefs.ErrNotFound, "session", "resume", "no such id", nil)
	if !errors.Is(err, errdefs.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
	if errors.Unwrap(err) == nil {
		t.Fatalf("marker must remain unwrappable: %v", err)
	}
}
