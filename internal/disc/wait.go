package disc

import (
	"context"
	"log/slog"
	"time"

	"mixpress/internal/logging"
	"mixpress/internal/services"
)

const (
	pollInterval = time.Second
	// Foreign media rarely changes without a swap, so back off the poll.
	nonErasableBackoff = 2 * time.Second
)

// WaitForMedia polls the drive at 1 Hz until usable media appears, the
// timeout elapses, or the context is cancelled. Blank and erasable media are
// both usable; the caller decides whether erasing is approved. The optional
// wake channel short-circuits the sleep when a media-change notification
// arrives.
//
// A timeout returns the last observed state together with the media-timeout
// marker so callers can treat it as a non-fatal outcome.
func WaitForMedia(ctx context.Context, prober Prober, timeout time.Duration, wake <-chan struct{}, logger *slog.Logger) (MediaState, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	deadline := time.Now().Add(timeout)
	last := NoDisc

	for {
		state, err := prober.Status(ctx)
		if err != nil {
			logger.Warn("media status probe failed", logging.Error(err))
			state = NoDisc
		}
		last = state

		switch state {
		case Blank, ErasableWithData:
			return state, nil
		}

		if !time.Now().Before(deadline) {
			return last, services.Wrap(services.ErrMediaTimeout, "disc", "wait_media", "no usable media before timeout", nil)
		}

		delay := pollInterval
		if state == NonErasable {
			delay = nonErasableBackoff
		}
		select {
		case <-ctx.Done():
			return last, services.Wrap(services.ErrCancelled, "disc", "wait_media", "media wait cancelled", ctx.Err())
		case <-wake:
		case <-time.After(delay):
		}
	}
}
