// Package strategy decides, per audio file, whether to copy or transcode and
// at which bitrate. The decision is a pure function of probe facts plus the
// caller's flags; it performs no I/O.
package strategy

// Kind enumerates the possible per-file actions.
type Kind int

const (
	// Copy keeps the file byte-for-byte, album art included.
	Copy Kind = iota
	// CopyWithoutArt keeps the audio stream but strips embedded artwork.
	CopyWithoutArt
	// ConvertAtSourceBitrate transcodes a lossy source at its own bitrate.
	ConvertAtSourceBitrate
	// ConvertAtTargetBitrate transcodes a lossless source at the disc target.
	ConvertAtTargetBitrate
)

func (k Kind) String() string {
	switch k {
	case Copy:
		return "copy"
	case CopyWithoutArt:
		return "copy-without-art"
	case ConvertAtSourceBitrate:
		return "convert-at-source-bitrate"
	case ConvertAtTargetBitrate:
		return "convert-at-target-bitrate"
	default:
		return "unknown"
	}
}

// Strategy pairs an action with the bitrate it applies at. Bitrate is zero
// for the copy variants.
type Strategy struct {
	Kind        Kind
	BitrateKbps int
}

// IsCopy reports whether the strategy keeps the source encoding.
func (s Strategy) IsCopy() bool {
	return s.Kind == Copy || s.Kind == CopyWithoutArt
}

// copyThreshold absorbs artwork-inflated bitrate estimates so MP3s within
// 20 kbps of the target are kept rather than re-encoded for marginal savings.
const copyThreshold = 20

// maxMP3Bitrate is the highest rate the MP3 format supports.
const maxMP3Bitrate = 320

// Determine maps a file's codec, bitrate, and loss type plus the current
// target bitrate to an encoding strategy.
//
// Lossy content is never capped to the lossless target: re-encoding
// lossy-to-lossy at a lower rate compounds quality loss, so lossy sources
// keep their own bitrate (bounded only by the MP3 format maximum).
func Determine(codec string, sourceBitrate, targetBitrate int, lossy, noLossyMode, embedAlbumArt bool) Strategy {
	if noLossyMode {
		switch {
		case codec == "mp3":
			return copyStrategy(embedAlbumArt)
		case lossy:
			return Strategy{Kind: ConvertAtSourceBitrate, BitrateKbps: sourceBitrate}
		default:
			return Strategy{Kind: ConvertAtTargetBitrate, BitrateKbps: targetBitrate}
		}
	}

	switch {
	case codec == "mp3" && sourceBitrate <= targetBitrate+copyThreshold:
		return copyStrategy(embedAlbumArt)
	case lossy:
		capped := sourceBitrate
		if capped > maxMP3Bitrate {
			capped = maxMP3Bitrate
		}
		return Strategy{Kind: ConvertAtSourceBitrate, BitrateKbps: capped}
	default:
		return Strategy{Kind: ConvertAtTargetBitrate, BitrateKbps: targetBitrate}
	}
}

func copyStrategy(embedAlbumArt bool) Strategy {
	if embedAlbumArt {
		return Strategy{Kind: Copy}
	}
	return Strategy{Kind: CopyWithoutArt}
}
