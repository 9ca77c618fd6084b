// Package workflow coordinates a full burn: drive the encoding engine until
// every folder is converted, stage and build the disc image, then hand the
// image to the burn coordinator. An image build failure aborts the burn but
// leaves the encoded output untouched, so a retry never redoes transcoding.
package workflow

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"mixpress/internal/burn"
	"mixpress/internal/config"
	"mixpress/internal/disc"
	"mixpress/internal/engine"
	"mixpress/internal/iso"
	"mixpress/internal/logging"
	"mixpress/internal/output"
)

// Manager runs one burn at a time over the shared engine and output layout.
type Manager struct {
	cfg     *config.Config
	eng     *engine.Engine
	out     *output.Manager
	prober  disc.Prober
	burner  burn.Burner
	builder iso.Builder
	logger  *slog.Logger

	wake    <-chan struct{}
	onStage func(burn.Stage, float64)

	stage atomic.Value

	mu      sync.Mutex
	running bool
	cancel  func()
	coord   *burn.Coordinator
	image   *iso.State
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithWake short-circuits the media poll on drive insertion events.
func WithWake(wake <-chan struct{}) Option {
	return func(m *Manager) { m.wake = wake }
}

// WithStageCallback forwards every stage change. Must not block.
func WithStageCallback(fn func(burn.Stage, float64)) Option {
	return func(m *Manager) { m.onStage = fn }
}

// WithImage seeds the manager with a previously built image, typically
// restored from a saved profile. A matching content hash lets a burn skip
// both encoding and image generation.
func WithImage(image *iso.State) Option {
	return func(m *Manager) { m.image = image }
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, eng *engine.Engine, out *output.Manager, prober disc.Prober, burner burn.Burner, builder iso.Builder, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:     cfg,
		eng:     eng,
		out:     out,
		prober:  prober,
		burner:  burner,
		builder: builder,
		logger:  logging.NewComponentLogger(logger, "workflow"),
	}
	m.stage.Store(burn.StageConverting)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Stage reports the current burn workflow position.
func (m *Manager) Stage() burn.Stage {
	return m.stage.Load().(burn.Stage)
}

// Image returns the most recently built or seeded image state.
func (m *Manager) Image() *iso.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.image
}

// ApproveErase releases a burn blocked on an erasable disc with data.
func (m *Manager) ApproveErase() {
	m.mu.Lock()
	coord := m.coord
	m.mu.Unlock()
	if coord != nil {
		coord.ApproveErase()
	}
}

// Cancel requests cooperative cancellation of the running burn. Honored at
// wait points only; an active burn subprocess always runs to completion.
func (m *Manager) Cancel() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) setStage(stage burn.Stage, percent float64) {
	if m.stage.Swap(stage) != stage {
		m.logger.Info("stage changed", logging.String(logging.FieldStage, string(stage)))
	}
	if m.onStage != nil {
		m.onStage(stage, percent)
	}
}
