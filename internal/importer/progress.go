package importer

import (
	"encoding/json"
	"time"

	"darkroom/internal/session"
)

// Step identifies one pipeline stage.
type Step int

const (
	StepScan Step = iota
	StepHash
	StepCopy
	StepValidate
	StepFinalize
)

// TotalSteps is the pipeline length reported in progress events.
const TotalSteps = 5

func (s Step) String() string {
	switch s {
	case StepScan:
		return "scan"
	case StepHash:
		return "hash"
	case StepCopy:
		return "copy"
	case StepValidate:
		return "validate"
	case StepFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the step by name so JSON consumers are not coupled
// to the internal ordering.
func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// stepWeights blend per-step completion into one overall percent so a
// slow copy does not visually stall progress hashing already advanced.
var stepWeights = [TotalSteps]float64{
	StepScan:     5,
	StepHash:     25,
	StepCopy:     45,
	StepValidate: 20,
	StepFinalize: 5,
}

// overallPercent returns the weighted percent through the pipeline given
// the current step and the fraction of that step completed.
func overallPercent(step Step, fraction float64) float64 {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	var done float64
	for s := Step(0); s < step; s++ {
		done += stepWeights[s]
	}
	return done + stepWeights[step]*fraction
}

// ProgressEvent is the unified per-update progress record.
type ProgressEvent struct {
	SessionID            string         `json:"sessionId"`
	Status               session.Status `json:"status"`
	Step                 Step           `json:"step"`
	TotalSteps           int            `json:"totalSteps"`
	Percent              float64        `json:"percent"`
	CurrentFile          string         `json:"currentFile"`
	FilesProcessed       int            `json:"filesProcessed"`
	FilesTotal           int            `json:"filesTotal"`
	BytesProcessed       int64          `json:"bytesProcessed"`
	BytesTotal           int64          `json:"bytesTotal"`
	DuplicatesFound      int            `json:"duplicatesFound"`
	ErrorsFound          int            `json:"errorsFound"`
	EstimatedRemainingMs int64          `json:"estimatedRemainingMs"`
}

// CompletionEvent is emitted exactly once when a run stops for any
// reason, terminal or paused.
type CompletionEvent struct {
	SessionID       string         `json:"sessionId"`
	Status          session.Status `json:"status"`
	TotalImported   int            `json:"totalImported"`
	TotalDuplicates int            `json:"totalDuplicates"`
	TotalErrors     int            `json:"totalErrors"`
	TotalDurationMs int64          `json:"totalDurationMs"`
}

func estimateRemaining(elapsed time.Duration, percent float64) int64 {
	if percent <= 0 || percent >= 100 {
		return 0
	}
	total := float64(elapsed) / (percent / 100)
	remaining := time.Duration(total) - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining.Milliseconds()
}
