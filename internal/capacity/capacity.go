// Package capacity computes the highest lossless bitrate that lets a batch
// of audio files fit a fixed disc budget.
//
// Two computation modes coexist. The preliminary estimate models transcode
// sizes before any encoding has happened and is used for planning display.
// The exact recomputation runs once the lossy pass has produced real output
// on disk; it divides the measured remainder of the budget across the
// lossless duration, deferring the capacity-critical number until sizes are
// ground truth instead of compounding per-file estimation error.
package capacity

import (
	"mixpress/internal/media"
	"mixpress/internal/strategy"
)

const (
	// BudgetBytes is the disc content budget: 700 MB in decimal megabytes,
	// matching how CD-R media is labeled. Never the binary interpretation.
	BudgetBytes int64 = 700 * 1000 * 1000

	// MinBitrate and MaxBitrate bound every computed bitrate.
	MinBitrate = 64
	MaxBitrate = 320

	// mp3OverheadMultiplier accounts for framing, headers, and padding in
	// modeled transcode sizes.
	mp3OverheadMultiplier = 1.065

	// perFileFramingOverhead is the fixed per-file allowance in the
	// preliminary model, covering headers and tag padding.
	perFileFramingOverhead = 10_000

	// preliminarySafetyMargin covers VBR variance and estimation error in
	// the preliminary pass.
	preliminarySafetyMargin = 0.05

	// exactSafetyFactor is the tighter factor used once lossy sizes are
	// measured rather than modeled.
	exactSafetyFactor = 0.98

	// overheadCompensation shrinks the working budget for the iterative
	// fit refinement so its estimates stay conservative.
	overheadCompensation = 0.80

	maxIterations = 5

	bytesPerKbpsSecond = 125.0
)

// Clamp bounds a bitrate to the supported MP3 range.
func Clamp(bitrate int) int {
	if bitrate < MinBitrate {
		return MinBitrate
	}
	if bitrate > MaxBitrate {
		return MaxBitrate
	}
	return bitrate
}

// Estimate is the result of the preliminary computation.
type Estimate struct {
	TargetBitrate       int
	FixedSizeBytes      int64
	LosslessDuration    float64
	WouldExceedCapacity bool
}

// Preliminary computes the mode-1 estimate used before encoding starts.
//
// Fixed-size content is everything whose output size does not depend on the
// lossless target: copied files at their exact size, lossy transcodes modeled
// at duration x source bitrate x 125 bytes plus framing overhead. A 5% margin
// is applied to that total, and the remaining budget is spread across the
// total lossless duration.
func Preliminary(files []media.FileInfo, noLossyMode bool) Estimate {
	var fixedSize float64
	var losslessDuration float64
	var totalDuration float64

	for _, file := range files {
		totalDuration += file.DurationSeconds
		if !file.Lossy {
			losslessDuration += file.DurationSeconds
			continue
		}
		// MaxBitrate as the reference target keeps every MP3 within the
		// copy threshold, which is the fixed-size assumption.
		decided := strategy.Determine(file.Codec, file.BitrateKbps, MaxBitrate, file.Lossy, noLossyMode, true)
		if decided.IsCopy() {
			fixedSize += float64(file.SizeBytes)
		} else {
			fixedSize += file.DurationSeconds*float64(decided.BitrateKbps)*bytesPerKbpsSecond + perFileFramingOverhead
		}
	}

	adjusted := fixedSize * (1 + preliminarySafetyMargin)
	est := Estimate{
		FixedSizeBytes:   int64(fixedSize),
		LosslessDuration: losslessDuration,
	}

	if losslessDuration <= 0 {
		if adjusted > float64(BudgetBytes) && totalDuration > 0 {
			est.WouldExceedCapacity = true
			est.TargetBitrate = Clamp(int(float64(BudgetBytes) * (1 - preliminarySafetyMargin) * 8 / totalDuration / 1000))
			return est
		}
		est.TargetBitrate = MaxBitrate
		return est
	}

	remaining := float64(BudgetBytes) - adjusted
	if remaining <= 0 {
		est.WouldExceedCapacity = true
		est.TargetBitrate = MinBitrate
		return est
	}
	est.TargetBitrate = Clamp(int(remaining * 8 / losslessDuration / 1000))
	return est
}

// Exact recomputes the lossless bitrate from the measured on-disk size of
// all lossy-sourced output. Zero lossless duration returns the maximum
// without dividing.
func Exact(measuredLossySize int64, losslessDuration float64) int {
	if losslessDuration <= 0 {
		return MaxBitrate
	}
	usable := float64(BudgetBytes) * exactSafetyFactor
	remaining := usable - float64(measuredLossySize)
	if remaining < 0 {
		remaining = 0
	}
	return Clamp(int(remaining * 8 / losslessDuration / 1000))
}
