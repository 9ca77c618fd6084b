package folders

import (
	"fmt"
	"time"
)

// State is the lifecycle position of one folder's conversion.
type State string

const (
	StateNotConverted  State = "not_converted"
	StateConverting    State = "converting"
	StateConverted     State = "converted"
	StateNeedsReencode State = "needs_reencode"
)

// ReencodeKind names why a converted folder must be redone.
type ReencodeKind string

const (
	ReencodeBitrateChanged      ReencodeKind = "bitrate_changed"
	ReencodeSourceFilesModified ReencodeKind = "source_files_modified"
	ReencodeIsoSizeExceeded     ReencodeKind = "iso_size_exceeded"
)

// ReencodeReason carries the kind plus the bitrate pair when the capacity
// recomputation moved the target.
type ReencodeReason struct {
	Kind       ReencodeKind
	OldBitrate int
	NewBitrate int
}

func (r ReencodeReason) String() string {
	switch r.Kind {
	case ReencodeBitrateChanged:
		return fmt.Sprintf("bitrate changed %d -> %d kbps", r.OldBitrate, r.NewBitrate)
	case ReencodeSourceFilesModified:
		return "source files modified"
	case ReencodeIsoSizeExceeded:
		return "image size exceeded"
	default:
		return string(r.Kind)
	}
}

// ConversionStatus is the engine-owned conversion record for one folder.
// Only the engine mutates it; everything else reads snapshots.
type ConversionStatus struct {
	State State

	// Converting.
	Completed int
	Total     int

	// Converted.
	OutputDir string
	// LosslessBitrate is nil when the folder contained no lossless tracks.
	LosslessBitrate *int
	OutputSize      int64
	CompletedAt     time.Time

	// NeedsReencode.
	Reason ReencodeReason
}

// NotConverted is the zero lifecycle value.
func NotConverted() ConversionStatus {
	return ConversionStatus{State: StateNotConverted}
}

// Converting marks in-progress work with file counts for display.
func Converting(completed, total int) ConversionStatus {
	return ConversionStatus{State: StateConverting, Completed: completed, Total: total}
}

// Converted records a finished folder.
func Converted(outputDir string, losslessBitrate *int, outputSize int64, completedAt time.Time) ConversionStatus {
	return ConversionStatus{
		State:           StateConverted,
		OutputDir:       outputDir,
		LosslessBitrate: losslessBitrate,
		OutputSize:      outputSize,
		CompletedAt:     completedAt,
	}
}

// NeedsReencode flags a previously converted folder for another pass.
func NeedsReencode(reason ReencodeReason) ConversionStatus {
	return ConversionStatus{State: StateNeedsReencode, Reason: reason}
}

// IsConverted reports whether the folder's output can be trusted as-is.
func (s ConversionStatus) IsConverted() bool {
	return s.State == StateConverted
}

func (s ConversionStatus) String() string {
	switch s.State {
	case StateConverting:
		return fmt.Sprintf("converting %d/%d", s.Completed, s.Total)
	case StateConverted:
		if s.LosslessBitrate != nil {
			return fmt.Sprintf("converted at %d kbps", *s.LosslessBitrate)
		}
		return "converted"
	case StateNeedsReencode:
		return "needs re-encode: " + s.Reason.String()
	default:
		return "not converted"
	}
}
