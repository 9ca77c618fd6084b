package disc

import (
	"context"
	"strings"

	"mixpress/internal/services"
)

// Eject opens the drive tray so the finished disc can be removed. An empty
// device lets the eject utility pick the default drive.
func Eject(ctx context.Context, device string) error {
	var args []string
	if device != "" {
		args = append(args, device)
	}
	cmd := commandContext(ctx, "eject", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		detail := "eject failed"
		if trimmed := strings.TrimSpace(string(out)); trimmed != "" {
			detail = trimmed
		}
		return services.Wrap(services.ErrExternalTool, "disc", "eject", detail, err)
	}
	return nil
}
