//go:build !linux

package main

import "log/slog"

// newMediaWake is a stub off Linux; the media wait relies on polling alone.
func newMediaWake(device string, logger *slog.Logger) (<-chan struct{}, func()) {
	return nil, func() {}
}
