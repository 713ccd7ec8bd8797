package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"darkroom/internal/hashing"
	"darkroom/internal/logging"
	"darkroom/internal/media"
)

// Validator re-hashes copied destination files and rolls back mismatches.
type Validator struct {
	opts   Options
	guard  *NetGuard
	logger *slog.Logger
}

// ValidationResult aggregates a validate pass over one batch.
type ValidationResult struct {
	Files     []media.ValidatedFile
	Valid     int
	Invalid   int
	Skipped   int
	Cancelled int
}

// NewValidator constructs a validator sharing the batch's NetGuard.
func NewValidator(opts Options, guard *NetGuard, logger *slog.Logger) *Validator {
	return &Validator{
		opts:   opts,
		guard:  guard,
		logger: logging.WithComponent(logger, "validator"),
	}
}

// Validate re-verifies a single copied file. A hash mismatch indicates
// corruption, not connectivity: it resets the network counter and, unless
// rollback is disabled, deletes the destination.
func (v *Validator) Validate(ctx context.Context, file media.CopiedFile) (media.ValidatedFile, error) {
	out := media.ValidatedFile{CopiedFile: file}

	if !file.Copied() || file.Cancelled {
		return out, nil
	}

	var rehashed string
	_, err, escalation := withRetry(ctx, v.logger, v.guard, v.opts, "validate", func(opCtx context.Context) error {
		var hashErr error
		rehashed, hashErr = hashing.HashFile(opCtx, file.ArchivePath, v.opts.Policy.BufferSize)
		return hashErr
	})

	if escalation != nil {
		out.ValidationError = escalation.Error()
		return out, escalation
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			out.Cancelled = true
		} else {
			out.ValidationError = err.Error()
		}
		return out, nil
	}

	if rehashed != file.Hash {
		v.guard.Reset()
		out.ValidationError = fmt.Sprintf("%v: expected %s, destination hashed %s", ErrHashMismatch, file.Hash, rehashed)
		if v.opts.Rollback {
			if removeErr := os.Remove(file.ArchivePath); removeErr != nil && !os.IsNotExist(removeErr) {
				v.logger.Warn("rollback failed",
					logging.String("archive_path", file.ArchivePath),
					logging.Error(removeErr),
				)
			} else {
				out.ArchivePath = ""
			}
		}
		v.logger.Error("destination failed verification",
			logging.String(logging.FieldFile, file.Filename),
			logging.String("expected", file.Hash),
			logging.String("actual", rehashed),
		)
		return out, nil
	}

	out.IsValid = true
	return out, nil
}

// ValidateBatch verifies copied files strictly sequentially, keeping the
// consecutive-error signal meaningful and the load on a failing mount
// flat. The abort check before each file marks the remainder cancelled.
func (v *Validator) ValidateBatch(
	ctx context.Context,
	files []media.CopiedFile,
	onFile func(index int, file media.ValidatedFile),
) (ValidationResult, error) {
	result := ValidationResult{Files: make([]media.ValidatedFile, len(files))}

	record := func(i int, validated media.ValidatedFile) {
		result.Files[i] = validated
		switch {
		case validated.Cancelled:
			result.Cancelled++
		case !validated.CopiedFile.Copied() && validated.ValidationError == "":
			result.Skipped++
		case validated.IsValid:
			result.Valid++
		default:
			result.Invalid++
		}
		if onFile != nil {
			onFile(i, validated)
		}
	}

	for i, file := range files {
		if ctx.Err() != nil {
			cancelled := media.ValidatedFile{CopiedFile: file}
			cancelled.Cancelled = true
			record(i, cancelled)
			continue
		}

		validated, err := v.Validate(ctx, file)
		record(i, validated)
		if err != nil {
			for j := i + 1; j < len(files); j++ {
				record(j, media.ValidatedFile{CopiedFile: files[j]})
			}
			return result, err
		}
	}

	return result, nil
}
