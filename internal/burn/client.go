package burn

import (
	"bufio"
	"context"
	"os/exec"
	"strings"

	"mixpress/internal/services"
)

var commandContext = exec.CommandContext

// Request describes one burn invocation.
type Request struct {
	ImagePath string
	// EraseFirst asks the tool to erase rewritable media before writing.
	EraseFirst bool
	// Verify enables the tool's post-burn verification pass.
	Verify bool
}

// Burner runs the external burn tool for one image.
type Burner interface {
	// Burn blocks until the tool exits. onProgress is invoked inline on the
	// reading goroutine for every parsed percentage and must not block.
	Burn(ctx context.Context, req Request, onProgress func(float64)) error
}

// Option configures the CLI burner.
type Option func(*CLI)

// WithBinary overrides the default burn binary.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if strings.TrimSpace(binary) != "" {
			c.binary = binary
		}
	}
}

// CLI shells out to an hdiutil-style burn tool.
type CLI struct {
	binary string
}

var _ Burner = (*CLI)(nil)

// NewCLI constructs a burner with defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "hdiutil"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Burn starts the tool in puppet mode and streams its stdout line by line.
func (c *CLI) Burn(ctx context.Context, req Request, onProgress func(float64)) error {
	args := []string{"burn"}
	if !req.Verify {
		args = append(args, "-noverifyburn")
	}
	args = append(args, "-puppetstrings")
	if req.EraseFirst {
		args = append(args, "-erase")
	}
	args = append(args, req.ImagePath)

	cmd := commandContext(ctx, c.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "burn", "start", "cannot attach to burn tool output", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "burn", "start", "burn tool failed to start", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if percent, ok := ParseProgressLine(scanner.Text()); ok && onProgress != nil {
			onProgress(percent)
		}
	}

	if err := cmd.Wait(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "burn tool exited with an error"
		}
		return services.Wrap(services.ErrExternalTool, "burn", "write", detail, err)
	}
	return nil
}
