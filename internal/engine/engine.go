// Package engine drives the two-pass conversion of music folders. The
// engine owns a single long-lived goroutine running a blocking poll loop;
// every external mutation (folder changes, bitrate override, resume) is
// expressed as a restart request, and the loop re-reads the folder snapshot
// from the top. Idempotent per-file skip makes restarts cheap: unchanged
// work is rediscovered on disk instead of redone.
package engine

import (
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"mixpress/internal/capacity"
	"mixpress/internal/folders"
	"mixpress/internal/logging"
	"mixpress/internal/output"
	"mixpress/internal/services/ffmpeg"
)

// Phase is the engine's position in the conversion cycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseLossyPass
	PhaseLosslessPass
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseLossyPass:
		return "lossy pass"
	case PhaseLosslessPass:
		return "lossless pass"
	case PhaseComplete:
		return "complete"
	default:
		return "idle"
	}
}

const pollInterval = 100 * time.Millisecond

// Config carries the encoding options the engine needs.
type Config struct {
	NoLossyMode   bool
	EmbedAlbumArt bool
	// Workers overrides the derived pool size when positive.
	Workers int
}

// Engine converts folders in two passes: lossy-sourced files first, then
// lossless-sourced files at a bitrate computed from the measured lossy
// output. Folder statuses are mutated only by the engine goroutine; callers
// read them through Statuses.
type Engine struct {
	cfg        Config
	out        *output.Manager
	transcoder ffmpeg.Client
	logger     *slog.Logger

	mu      sync.Mutex
	folders []*folders.MusicFolder

	phase           atomic.Int32
	losslessBitrate atomic.Int32
	manualBitrate   atomic.Int32
	restart         atomic.Bool
	paused          atomic.Bool
	cycles          atomic.Uint64

	events    chan Event
	quit      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New constructs an engine. Call Start to launch the loop.
func New(cfg Config, out *output.Manager, transcoder ffmpeg.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		cfg:        cfg,
		out:        out,
		transcoder: transcoder,
		logger:     logging.NewComponentLogger(logger, "engine"),
		events:     make(chan Event, eventQueueBound),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the engine goroutine. Safe to call once.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		go e.run()
	})
}

// Stop asks the loop to exit and waits for it. An in-flight transcode is
// allowed to finish; it is never killed.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.quit)
	})
	<-e.done
}

// Events is the notification stream. The consumer must drain it.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Phase reports the current cycle position.
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

// LosslessBitrate is the bitrate used for the most recent lossless pass,
// zero before the first computation.
func (e *Engine) LosslessBitrate() int {
	return int(e.losslessBitrate.Load())
}

// SetFolders replaces the folder list and requests a restart. The engine
// observes the new list at the top of its next cycle, never mid-pass.
func (e *Engine) SetFolders(list []*folders.MusicFolder) {
	e.mu.Lock()
	e.folders = make([]*folders.MusicFolder, len(list))
	copy(e.folders, list)
	e.mu.Unlock()
	e.RequestRestart()
}

// RequestRestart schedules a fresh cycle over the current snapshot.
func (e *Engine) RequestRestart() {
	e.restart.Store(true)
}

// Pause blocks the dispatch of new file work. In-flight transcodes finish.
func (e *Engine) Pause() {
	e.paused.Store(true)
}

// Resume clears the pause flag and schedules a cycle in case the loop had
// already returned to idle.
func (e *Engine) Resume() {
	e.paused.Store(false)
	e.RequestRestart()
}

// SetManualBitrate pins the lossless bitrate, bypassing the capacity
// computation. Zero clears the override. Values are clamped to the
// supported range.
func (e *Engine) SetManualBitrate(kbps int) {
	if kbps != 0 {
		kbps = capacity.Clamp(kbps)
	}
	e.manualBitrate.Store(int32(kbps))
	e.RequestRestart()
}

// Cycles counts completed conversion cycles. Callers compare values around
// a restart request to tell a finished cycle from one not yet picked up.
func (e *Engine) Cycles() uint64 {
	return e.cycles.Load()
}

// FlagImageOversize marks every converted folder with lossless tracks as
// needing a re-encode because the built disc image exceeded the media
// ceiling. The next cycle after a bitrate change redoes only those folders.
func (e *Engine) FlagImageOversize() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, folder := range e.folders {
		if !folder.Status.IsConverted() {
			continue
		}
		if folder.Status.LosslessBitrate == nil {
			continue
		}
		folder.Status = folders.NeedsReencode(folders.ReencodeReason{
			Kind: folders.ReencodeIsoSizeExceeded,
		})
	}
}

// Statuses returns a copy of every folder's conversion status.
func (e *Engine) Statuses() map[folders.ID]folders.ConversionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	statuses := make(map[folders.ID]folders.ConversionStatus, len(e.folders))
	for _, folder := range e.folders {
		statuses[folder.ID] = folder.Status
	}
	return statuses
}

// AllConverted reports whether every folder in the current list is fully
// converted. False for an empty list.
func (e *Engine) AllConverted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.folders) == 0 {
		return false
	}
	for _, folder := range e.folders {
		if !folder.Status.IsConverted() {
			return false
		}
	}
	return true
}

func (e *Engine) snapshot() []*folders.MusicFolder {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := make([]*folders.MusicFolder, len(e.folders))
	copy(snap, e.folders)
	return snap
}

func (e *Engine) setStatus(folder *folders.MusicFolder, status folders.ConversionStatus) {
	e.mu.Lock()
	folder.Status = status
	e.mu.Unlock()
}

func (e *Engine) stopping() bool {
	select {
	case <-e.quit:
		return true
	default:
		return false
	}
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		if e.stopping() {
			return
		}
		if !e.restart.CompareAndSwap(true, false) {
			select {
			case <-e.quit:
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		e.runCycle()
		e.cycles.Add(1)
	}
}

func workerCount(override int) int {
	if override > 0 {
		return override
	}
	n := int(math.Ceil(0.75 * float64(runtime.NumCPU())))
	if n < 2 {
		n = 2
	}
	if n > 8 {
		n = 8
	}
	return n
}
