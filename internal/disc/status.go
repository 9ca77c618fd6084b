// Package disc probes removable media state and waits for usable blanks.
package disc

import (
	"context"
	"os/exec"
	"strings"

	"mixpress/internal/services"
)

var commandContext = exec.CommandContext

// MediaState classifies what is currently in the drive.
type MediaState string

const (
	NoDisc           MediaState = "no_disc"
	Blank            MediaState = "blank"
	ErasableWithData MediaState = "erasable_with_data"
	NonErasable      MediaState = "non_erasable"
)

// Classify infers the media state from the status tool's textual output.
// The tool has no structured mode, so this is substring matching against
// observed output. "blank" is checked before the erasable markers because a
// blank CD-RW reports both.
func Classify(output string) MediaState {
	text := strings.ToLower(output)
	switch {
	case strings.Contains(text, "no media"):
		return NoDisc
	case strings.Contains(text, "blank"):
		return Blank
	case strings.Contains(text, "erasable"),
		strings.Contains(text, "cd-rw"),
		strings.Contains(text, "dvd-rw"),
		strings.Contains(text, "dvd+rw"):
		return ErasableWithData
	default:
		return NonErasable
	}
}

// Prober reports the drive's media state.
type Prober interface {
	Status(ctx context.Context) (MediaState, error)
}

// CLIProber shells out to the configured status tool.
type CLIProber struct {
	binary string
}

// NewCLIProber builds a prober around the status binary.
func NewCLIProber(binary string) *CLIProber {
	if strings.TrimSpace(binary) == "" {
		binary = "drutil"
	}
	return &CLIProber{binary: binary}
}

var _ Prober = (*CLIProber)(nil)

// Status runs the tool and classifies its combined output.
func (p *CLIProber) Status(ctx context.Context) (MediaState, error) {
	cmd := commandContext(ctx, p.binary, "status")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return NoDisc, services.Wrap(services.ErrExternalTool, "disc", "status", "status probe failed", err)
	}
	return Classify(string(out)), nil
}
