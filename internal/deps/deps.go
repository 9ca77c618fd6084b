// Package deps verifies the external tools the pipeline shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"mixpress/internal/config"
	"mixpress/internal/services"
)

// Requirement defines an external dependency mixpress relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements derives the tool list from the configuration.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "ffmpeg", Command: cfg.Encoding.FFmpeg, Description: "audio transcoder"},
		{Name: "ffprobe", Command: cfg.Encoding.FFprobe, Description: "audio prober"},
		{Name: "image builder", Command: cfg.Burning.ImageBinary, Description: "disc image creation"},
		{Name: "burn tool", Command: cfg.Burning.BurnBinary, Description: "disc burning", Optional: cfg.Burning.Simulate},
		{Name: "status probe", Command: cfg.Burning.StatusBinary, Description: "drive media detection", Optional: cfg.Burning.Simulate},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Verify fails when any required tool is missing. Missing tools are fatal
// before any pipeline starts; there is no point failing mid-encode.
func Verify(cfg *config.Config) error {
	var missing []string
	for _, status := range CheckBinaries(Requirements(cfg)) {
		if !status.Available && !status.Optional {
			missing = append(missing, fmt.Sprintf("%s (%s)", status.Name, status.Detail))
		}
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrConfiguration, "deps", "verify",
			"missing required tools: "+strings.Join(missing, ", "), nil)
	}
	return nil
}
