package iso

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"mixpress/internal/folders"
	"mixpress/internal/services"
)

var commandContext = exec.CommandContext

const imageFileName = "mixpress.iso"

// Builder produces a hybrid ISO/Joliet image from a staging directory.
type Builder interface {
	Build(ctx context.Context, stagingDir, volumeLabel string) (*State, error)
}

// Option configures the CLI builder.
type Option func(*CLI)

// WithBinary overrides the default image tool.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if strings.TrimSpace(binary) != "" {
			c.binary = binary
		}
	}
}

// CLI shells out to an hdiutil-style makehybrid tool.
type CLI struct {
	binary string
}

var _ Builder = (*CLI)(nil)

// NewCLI constructs a builder with defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "hdiutil"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Build writes the image next to the staging dir at a deterministic path,
// replacing any previous image first. The returned state carries the content
// hash of nothing; the caller stamps it with the folder hash it was built
// for.
func (c *CLI) Build(ctx context.Context, stagingDir, volumeLabel string) (*State, error) {
	outputPath := filepath.Join(filepath.Dir(stagingDir), imageFileName)
	if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
		return nil, services.Wrap(services.ErrExternalTool, "iso", "build", "cannot replace previous image", err)
	}

	label := SanitizeVolumeLabel(volumeLabel)
	cmd := commandContext(ctx, c.binary,
		"makehybrid",
		"-iso", "-joliet",
		"-joliet-volume-name", label,
		"-default-volume-name", label,
		"-o", outputPath,
		stagingDir,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		detail := lastLine(string(out))
		if detail == "" {
			detail = "image tool exited with an error"
		}
		return nil, services.Wrap(services.ErrExternalTool, "iso", "build", detail, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "iso", "build", "image tool reported success but produced no file", err)
	}
	return &State{Path: outputPath, SizeBytes: info.Size(), Valid: true}, nil
}

// Stamp records the folder list the image was built for.
func (s *State) Stamp(ordered []folders.ID) {
	s.ContentHash = folders.ContentHash(ordered)
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
