package burn

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mixpress/internal/disc"
	"mixpress/internal/logging"
	"mixpress/internal/services"
)

// Outcome is the terminal result of one burn attempt.
type Outcome string

const (
	OutcomeComplete    Outcome = "complete"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeNoCdTimeout Outcome = "no_cd_timeout"
	OutcomeSimulated   Outcome = "simulated"
	OutcomeFailed      Outcome = "failed"
)

const eraseApprovalPoll = 100 * time.Millisecond

// Options configures a coordinator.
type Options struct {
	// MediaTimeout bounds the wait for usable media.
	MediaTimeout time.Duration
	// Simulate skips the media wait and the burn entirely.
	Simulate bool
	// Verify enables the tool's post-burn verification pass.
	Verify bool
	// Wake optionally short-circuits the media poll on insertion events.
	Wake <-chan struct{}
	// OnStage is notified of stage changes. Must not block.
	OnStage func(Stage, float64)
}

// Coordinator drives one burn: wait for media, obtain erase approval when
// the disc carries data, run the tool, and map its progress stream onto
// stages. Cancellation is cooperative and honored only at wait points; a
// running burn subprocess is never interrupted, since stopping a write
// mid-burn ruins the disc anyway.
type Coordinator struct {
	prober disc.Prober
	burner Burner
	opts   Options
	logger *slog.Logger

	stage         atomic.Value
	eraseApproved atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewCoordinator builds a coordinator for one or more sequential burns.
func NewCoordinator(prober disc.Prober, burner Burner, opts Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.MediaTimeout <= 0 {
		opts.MediaTimeout = 120 * time.Second
	}
	c := &Coordinator{
		prober: prober,
		burner: burner,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "burn"),
	}
	c.stage.Store(StageWaitingForCd)
	return c
}

// Stage reports the current workflow position.
func (c *Coordinator) Stage() Stage {
	return c.stage.Load().(Stage)
}

// ApproveErase releases a burn blocked on ErasableDiscDetected.
func (c *Coordinator) ApproveErase() {
	c.eraseApproved.Store(true)
}

// Cancel requests cooperative cancellation. Takes effect at the next wait
// point; it does not interrupt an active burn subprocess.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Coordinator) setStage(stage Stage, percent float64) {
	if c.stage.Swap(stage) != stage {
		c.logger.Info("stage changed", logging.String(logging.FieldStage, string(stage)))
	}
	if c.opts.OnStage != nil {
		c.opts.OnStage(stage, percent)
	}
}

// Run executes the burn workflow for a built image. The returned error
// carries the services marker matching the outcome for non-complete results.
func (c *Coordinator) Run(ctx context.Context, imagePath string) (Outcome, error) {
	if c.opts.Simulate {
		c.logger.Info("simulate mode, skipping burn", logging.String("image", imagePath))
		c.setStage(StageComplete, 100)
		return OutcomeSimulated, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.setStage(StageWaitingForCd, -1)
	state, err := disc.WaitForMedia(ctx, c.prober, c.opts.MediaTimeout, c.opts.Wake, c.logger)
	if err != nil {
		if services.IsMediaTimeout(err) {
			return OutcomeNoCdTimeout, err
		}
		c.setStage(StageCancelled, -1)
		return OutcomeCancelled, err
	}

	eraseFirst := state == disc.ErasableWithData
	if eraseFirst {
		c.setStage(StageErasableDisc, -1)
		if err := c.waitEraseApproval(ctx); err != nil {
			c.setStage(StageCancelled, -1)
			return OutcomeCancelled, err
		}
	}

	initial := StageBurning
	if eraseFirst {
		initial = StageErasing
	}
	c.setStage(initial, -1)
	tracker := newStageTracker(initial)

	// The subprocess gets a background context on purpose: once writing
	// starts it runs to completion.
	err = c.burner.Burn(context.Background(), Request{ImagePath: imagePath, EraseFirst: eraseFirst, Verify: c.opts.Verify}, func(percent float64) {
		c.setStage(tracker.observe(percent), percent)
	})
	if err != nil {
		if services.IsCancelled(err) {
			c.setStage(StageCancelled, -1)
			return OutcomeCancelled, err
		}
		return OutcomeFailed, err
	}

	c.setStage(StageComplete, 100)
	return OutcomeComplete, nil
}

// waitEraseApproval blocks until the user approves erasing or cancels.
func (c *Coordinator) waitEraseApproval(ctx context.Context) error {
	for {
		if c.eraseApproved.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return services.Wrap(services.ErrCancelled, "burn", "erase_approval", "cancelled before erase approval", ctx.Err())
		case <-time.After(eraseApprovalPoll):
		}
	}
}
