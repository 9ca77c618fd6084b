// Package burn coordinates disc burning around an external burn/erase tool
// that reports progress as unstructured "PERCENT:<float>" stdout lines.
package burn

import (
	"strconv"
	"strings"
)

const percentPrefix = "PERCENT:"

// ParseProgressLine extracts the percentage from one stdout line. Negative
// values are the tool's indeterminate sentinel and are passed through as-is.
// Returns false for lines that are not progress reports.
func ParseProgressLine(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, percentPrefix) {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(line[len(percentPrefix):]), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// Stage labels the coordinator's position in the burn workflow.
type Stage string

const (
	StageConverting   Stage = "converting"
	StageCreatingIso  Stage = "creating_iso"
	StageWaitingForCd Stage = "waiting_for_cd"
	StageErasableDisc Stage = "erasable_disc_detected"
	StageErasing      Stage = "erasing"
	StageBurning      Stage = "burning"
	StageFinishing    Stage = "finishing"
	StageComplete     Stage = "complete"
	StageCancelled    Stage = "cancelled"
)

// Description is the user-facing label for a stage.
func (s Stage) Description() string {
	switch s {
	case StageConverting:
		return "Converting folders"
	case StageCreatingIso:
		return "Creating disc image"
	case StageWaitingForCd:
		return "Waiting for a blank CD"
	case StageErasableDisc:
		return "Disc contains data, erase required"
	case StageErasing:
		return "Erasing disc"
	case StageBurning:
		return "Burning disc"
	case StageFinishing:
		return "Finalizing disc"
	case StageComplete:
		return "Burn complete"
	case StageCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// stageTracker infers stage transitions from the progress stream. The tool
// emits no stage markers, so two threshold heuristics tuned against its
// observed behavior stand in: a fall to the indeterminate sentinel after
// reaching 95 while burning means finalization started, and a drop from
// above 50 to below 20 while erasing means the erase finished and the burn
// began.
type stageTracker struct {
	stage   Stage
	prev    float64
	hasPrev bool
}

func newStageTracker(initial Stage) *stageTracker {
	return &stageTracker{stage: initial}
}

// observe feeds one parsed percentage and returns the current stage.
func (t *stageTracker) observe(percent float64) Stage {
	if percent < 0 {
		if t.stage == StageBurning && t.hasPrev && t.prev >= 95 {
			t.stage = StageFinishing
		}
		return t.stage
	}
	if t.stage == StageErasing && t.hasPrev && t.prev > 50 && percent < 20 {
		t.stage = StageBurning
	}
	t.prev = percent
	t.hasPrev = true
	return t.stage
}
