package capacity

import (
	"mixpress/internal/media"
	"mixpress/internal/strategy"
)

const bitrateStep = 8

// EstimatedSize models the total output size for a batch at the given
// lossless target bitrate. Copies contribute their exact size; transcodes
// use the bitrate x duration model with the framing multiplier.
func EstimatedSize(files []media.FileInfo, targetBitrate int, noLossyMode bool) int64 {
	var total float64
	for _, file := range files {
		decided := strategy.Determine(file.Codec, file.BitrateKbps, targetBitrate, file.Lossy, noLossyMode, true)
		if decided.IsCopy() {
			total += float64(file.SizeBytes)
		} else {
			total += file.DurationSeconds * float64(decided.BitrateKbps) * bytesPerKbpsSecond * mp3OverheadMultiplier
		}
	}
	return int64(total)
}

// WillFit reports whether the modeled batch size stays within the budget.
func WillFit(files []media.FileInfo, targetBitrate int, noLossyMode bool) bool {
	return EstimatedSize(files, targetBitrate, noLossyMode) <= BudgetBytes
}

// Refine walks the target bitrate in fixed steps until the modeled size sits
// just inside the working budget. The working budget carries the overhead
// compensation so the refined bitrate errs low.
//
// The result is a display and planning number. The exact recomputation after
// the lossy pass supersedes it for the actual lossless encode.
func Refine(files []media.FileInfo, startBitrate int, noLossyMode bool) int {
	budget := float64(BudgetBytes) * overheadCompensation
	bitrate := Clamp(startBitrate)

	if float64(EstimatedSize(files, bitrate, noLossyMode)) > budget {
		// Step down until it fits or the floor is hit.
		for bitrate > MinBitrate {
			next := Clamp(bitrate - bitrateStep)
			bitrate = next
			if float64(EstimatedSize(files, bitrate, noLossyMode)) <= budget {
				break
			}
		}
		return bitrate
	}

	// Step up while the next step still fits.
	for bitrate < MaxBitrate {
		next := Clamp(bitrate + bitrateStep)
		if float64(EstimatedSize(files, next, noLossyMode)) > budget {
			break
		}
		bitrate = next
	}
	return bitrate
}

// Calculate produces the planning bitrate for a batch: the preliminary
// estimate refined by stepped fitting, converging within a bounded number
// of iterations.
func Calculate(files []media.FileInfo, noLossyMode bool) Estimate {
	est := Preliminary(files, noLossyMode)
	bitrate := est.TargetBitrate
	for i := 0; i < maxIterations; i++ {
		refined := Refine(files, bitrate, noLossyMode)
		if refined == bitrate {
			break
		}
		bitrate = refined
	}
	est.TargetBitrate = bitrate
	if !WillFit(files, bitrate, noLossyMode) && bitrate == MinBitrate {
		est.WouldExceedCapacity = true
	}
	return est
}
