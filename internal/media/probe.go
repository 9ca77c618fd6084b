package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"mixpress/internal/services/ffprobe"
)

// FileInfo is an immutable snapshot of one audio file. Produced once by the
// prober and never mutated afterwards.
type FileInfo struct {
	Path            string
	DurationSeconds float64
	BitrateKbps     int
	SizeBytes       int64
	Codec           string
	Lossy           bool
}

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".flac": {}, ".wav": {}, ".ogg": {}, ".m4a": {},
	".aac": {}, ".aiff": {}, ".opus": {}, ".alac": {},
}

var lossyCodecs = map[string]struct{}{
	"mp3": {}, "aac": {}, "ogg": {}, "opus": {}, "m4a": {},
}

// IsAudioFile reports whether the path carries a recognized audio extension.
func IsAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := audioExtensions[ext]
	return ok
}

// Prober extracts FileInfo snapshots via ffprobe.
type Prober struct {
	binary string
}

// NewProber constructs a prober using the given ffprobe binary.
func NewProber(binary string) *Prober {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary}
}

// Probe inspects a single file. Probe failures degrade to extension-based
// heuristics so a bad tag never removes a track from the folder.
func (p *Prober) Probe(ctx context.Context, path string) (FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat audio file: %w", err)
	}

	info := FileInfo{Path: path, SizeBytes: stat.Size()}

	result, err := ffprobe.Inspect(ctx, p.binary, path)
	if err != nil {
		return fallbackFromExtension(info), nil
	}

	duration := result.DurationSeconds()
	if math.IsNaN(duration) || duration < 0 {
		duration = 0
	}
	info.DurationSeconds = duration
	info.Codec = normalizeCodec(result.FirstAudioCodec(), path)
	if info.Codec == "" {
		return fallbackFromExtension(info), nil
	}
	info.Lossy = isLossyCodec(info.Codec)
	info.BitrateKbps = computeBitrate(info.SizeBytes, duration)
	return info, nil
}

// computeBitrate derives an average bitrate from the real file size rather
// than trusting tag headers, which artwork blocks routinely inflate.
func computeBitrate(sizeBytes int64, durationSeconds float64) int {
	if durationSeconds <= 0 {
		return 0
	}
	return int(float64(sizeBytes) * 8 / durationSeconds / 1000)
}

func normalizeCodec(codec, path string) string {
	switch codec {
	case "mp3":
		return "mp3"
	case "flac":
		return "flac"
	case "aac":
		if strings.EqualFold(filepath.Ext(path), ".m4a") {
			return "m4a"
		}
		return "aac"
	case "vorbis":
		return "ogg"
	case "opus":
		return "opus"
	case "alac":
		return "alac"
	}
	if strings.HasPrefix(codec, "pcm_") {
		return "wav"
	}
	return ""
}

func isLossyCodec(codec string) bool {
	_, ok := lossyCodecs[codec]
	return ok
}

func fallbackFromExtension(info FileInfo) FileInfo {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(info.Path), "."))
	switch ext {
	case "aiff":
		ext = "wav"
	}
	info.Codec = ext
	info.Lossy = isLossyCodec(ext)
	return info
}
