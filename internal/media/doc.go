// Package media probes audio files for the immutable facts the pipeline
// needs: duration, bitrate, codec, loss type, and embedded artwork.
//
// ffprobe is the authoritative source for duration and codec; artwork and
// album tags come from the file's own tag atoms. When probing fails the
// package falls back to extension heuristics rather than dropping the file.
package media
