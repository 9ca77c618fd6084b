//go:build linux

package main

import (
	"log/slog"

	"mixpress/internal/disc"
)

// newMediaWake starts the udev media monitor for the configured drive. The
// returned channel short-circuits the 1 Hz disc poll on insertion events.
func newMediaWake(device string, logger *slog.Logger) (<-chan struct{}, func()) {
	monitor := disc.NewMonitor(device, logger)
	if monitor == nil {
		return nil, func() {}
	}
	monitor.Start()
	return monitor.Wake(), monitor.Stop
}
