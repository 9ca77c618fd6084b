package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var commandContext = exec.CommandContext

// Request describes a single-file conversion.
type Request struct {
	InputPath  string
	OutputPath string
	// BitrateKbps selects the MP3 target bitrate. Zero means stream copy
	// (used when stripping artwork from an MP3 that is otherwise kept).
	BitrateKbps int
	// ArtworkPath optionally embeds a cover image into the output.
	ArtworkPath string
}

// Client defines transcoding behaviour.
type Client interface {
	Transcode(ctx context.Context, req Request) error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if strings.TrimSpace(binary) != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the ffmpeg command-line tool.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Transcode runs ffmpeg for the request, blocking until the process exits.
// A failed run removes the partial output file before returning.
func (c *CLI) Transcode(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.InputPath) == "" {
		return errors.New("input path required")
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return errors.New("output path required")
	}
	if req.BitrateKbps < 0 {
		return fmt.Errorf("invalid bitrate %d", req.BitrateKbps)
	}

	args := buildArgs(req)
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stdout = nil
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(req.OutputPath)
		if detail := lastLine(stderr.String()); detail != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, detail)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

func buildArgs(req Request) []string {
	args := []string{"-y", "-i", req.InputPath}

	embedArt := strings.TrimSpace(req.ArtworkPath) != ""
	if embedArt {
		args = append(args, "-i", req.ArtworkPath,
			"-map", "0:a", "-map", "1:v",
			"-c:v", "copy",
			"-metadata:s:v", "title=Album cover",
			"-metadata:s:v", "comment=Cover (front)",
		)
	} else {
		args = append(args, "-vn")
	}

	if req.BitrateKbps > 0 {
		args = append(args, "-codec:a", "libmp3lame", "-b:a", fmt.Sprintf("%dk", req.BitrateKbps))
	} else {
		args = append(args, "-codec:a", "copy")
	}

	args = append(args, "-map_metadata", "0", "-id3v2_version", "3", req.OutputPath)
	return args
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

var _ Client = (*CLI)(nil)
