// Package ffmpeg wraps the ffmpeg command line for per-file MP3 transcodes.
//
// It exposes a Client interface so the encoding engine can swap in fakes, a
// CLI implementation that shells out to ffmpeg, and request types describing
// the transcode (target bitrate, metadata passthrough, artwork handling).
// Success is determined by exit status; the last stderr line is surfaced as
// the error detail.
package ffmpeg
