package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mixpress/internal/capacity"
	"mixpress/internal/folders"
	"mixpress/internal/logging"
	"mixpress/internal/media"
	"mixpress/internal/output"
	"mixpress/internal/services/ffmpeg"
	"mixpress/internal/strategy"
)

type fileJob struct {
	file       media.FileInfo
	strat      strategy.Strategy
	outputPath string
}

// runCycle executes one full conversion over the current snapshot. Another
// restart request or shutdown aborts between files; in-flight work finishes.
func (e *Engine) runCycle() {
	snap := e.snapshot()
	if len(snap) == 0 {
		e.phase.Store(int32(PhaseIdle))
		return
	}
	e.verifyConverted(snap)

	losslessDuration := totalLosslessDuration(snap)
	target := e.planningBitrate(snap)

	e.phase.Store(int32(PhaseLossyPass))
	e.emit(Event{Type: EventPhaseTransition, Phase: PhaseLossyPass})
	e.logger.Info("lossy pass started",
		logging.Int("folders", len(snap)),
		logging.Int("planning_bitrate", target))

	failures := make(map[folders.ID]int, len(snap))
	if !e.runPass(snap, true, target, failures) {
		return
	}

	measured := e.measureLossyOutput(snap, target)
	bitrate := e.losslessTarget(measured, losslessDuration)
	previous := e.LosslessBitrate()
	invalidated, rerun := e.invalidateStaleLossless(snap, previous, bitrate, target)
	e.losslessBitrate.Store(int32(bitrate))
	e.emit(Event{Type: EventBitrateRecalculated, NewBitrate: bitrate, ReencodeNeeded: invalidated})
	if rerun {
		// A flagged folder's output lives outside the current session, so
		// its lossy files must go back through a full cycle too.
		e.logger.Info("rerunning cycle to rebuild restored folders",
			logging.Int("bitrate", bitrate))
		e.restart.Store(true)
		return
	}

	e.phase.Store(int32(PhaseLosslessPass))
	e.emit(Event{
		Type:              EventPhaseTransition,
		Phase:             PhaseLosslessPass,
		MeasuredLossySize: measured,
		NewBitrate:        bitrate,
	})
	e.logger.Info("lossless pass started",
		logging.Int64("measured_lossy_bytes", measured),
		logging.Int("bitrate", bitrate))

	if !e.runPass(snap, false, bitrate, failures) {
		return
	}

	e.phase.Store(int32(PhaseComplete))
	e.emit(Event{Type: EventPhaseTransition, Phase: PhaseComplete})
	e.logger.Info("conversion complete")
}

// planningBitrate is the reference target for lossy-pass strategy decisions.
// The manual override wins; otherwise the modeled estimate is used until the
// exact recomputation replaces it between passes.
func (e *Engine) planningBitrate(snap []*folders.MusicFolder) int {
	if manual := int(e.manualBitrate.Load()); manual != 0 {
		return manual
	}
	var tracks []media.FileInfo
	for _, folder := range snap {
		tracks = append(tracks, folder.ActiveTracks()...)
	}
	return capacity.Calculate(tracks, e.cfg.NoLossyMode).TargetBitrate
}

func (e *Engine) losslessTarget(measuredLossySize int64, losslessDuration float64) int {
	if manual := int(e.manualBitrate.Load()); manual != 0 {
		return manual
	}
	return capacity.Exact(measuredLossySize, losslessDuration)
}

func totalLosslessDuration(snap []*folders.MusicFolder) float64 {
	var total float64
	for _, folder := range snap {
		for _, file := range folder.ActiveTracks() {
			if !file.Lossy {
				total += file.DurationSeconds
			}
		}
	}
	return total
}

// verifyConverted re-checks Converted statuses against the filesystem before
// trusting them. A missing or empty output directory resets the folder.
func (e *Engine) verifyConverted(snap []*folders.MusicFolder) {
	for _, folder := range snap {
		status := folder.Status
		if !status.IsConverted() {
			continue
		}
		entries, err := os.ReadDir(status.OutputDir)
		if err != nil || len(entries) == 0 {
			e.logger.Warn("converted output missing, resetting folder",
				logging.String(logging.FieldFolderID, string(folder.ID)))
			e.setStatus(folder, folders.NotConverted())
		}
	}
}

// runPass processes one source class (lossy or lossless) across the
// snapshot, one folder at a time. Returns false when aborted by a restart
// request or shutdown.
func (e *Engine) runPass(snap []*folders.MusicFolder, lossy bool, target int, failures map[folders.ID]int) bool {
	for _, folder := range snap {
		if folder.Status.IsConverted() {
			continue
		}
		outDir, err := e.out.FolderDir(folder.ID)
		if err != nil {
			e.logger.Error("cannot create output dir",
				logging.String(logging.FieldFolderID, string(folder.ID)),
				logging.Error(err))
			failures[folder.ID]++
			e.emit(Event{Type: EventFolderFailed, FolderID: folder.ID, Failed: 1})
			continue
		}
		jobs := e.buildJobs(folder, outDir, lossy, target)
		if len(jobs) == 0 {
			if !lossy {
				e.finalizeFolder(folder, outDir, target, failures[folder.ID])
			}
			continue
		}

		e.emit(Event{Type: EventFolderStarted, FolderID: folder.ID, Total: len(jobs)})
		e.setStatus(folder, folders.Converting(0, len(jobs)))

		completed, failed, aborted := e.processJobs(folder, jobs)
		failures[folder.ID] += failed
		if aborted {
			e.emit(Event{Type: EventFolderCancelled, FolderID: folder.ID, Completed: completed, Total: len(jobs)})
			return false
		}
		if failed > 0 {
			e.logger.Warn("folder finished with failures",
				logging.String(logging.FieldFolderID, string(folder.ID)),
				logging.Int("failed", failed),
				logging.Int("total", len(jobs)))
			e.emit(Event{Type: EventFolderFailed, FolderID: folder.ID, Completed: completed, Total: len(jobs), Failed: failed})
			continue
		}
		if lossy {
			e.emit(Event{Type: EventFolderCompleted, FolderID: folder.ID, Completed: completed, Total: len(jobs)})
		} else {
			e.finalizeFolder(folder, outDir, target, failures[folder.ID])
		}
	}
	return true
}

// buildJobs selects the pass's source class from the folder's active tracks
// and resolves each file's strategy and output path.
func (e *Engine) buildJobs(folder *folders.MusicFolder, outDir string, lossy bool, target int) []fileJob {
	tracks := folder.ActiveTracks()
	jobs := make([]fileJob, 0, len(tracks))
	for i, file := range tracks {
		if file.Lossy != lossy {
			continue
		}
		strat := strategy.Determine(file.Codec, file.BitrateKbps, target, file.Lossy, e.cfg.NoLossyMode, e.cfg.EmbedAlbumArt)
		jobs = append(jobs, fileJob{
			file:       file,
			strat:      strat,
			outputPath: filepath.Join(outDir, outputName(folder, i, file, strat)),
		})
	}
	return jobs
}

// outputName keeps copy names intact and renames transcodes to .mp3. Custom
// layouts get ordinal prefixes so players that sort by name preserve the
// chosen order.
func outputName(folder *folders.MusicFolder, index int, file media.FileInfo, strat strategy.Strategy) string {
	name := filepath.Base(file.Path)
	if !strat.IsCopy() {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".mp3"
	}
	if folder.HasCustomLayout() {
		name = fmt.Sprintf("%02d-%s", index+1, name)
	}
	return name
}

// processJobs fans folder work across the pool. Restart and shutdown are
// honored before each dispatch only; a running transcode is never killed.
func (e *Engine) processJobs(folder *folders.MusicFolder, jobs []fileJob) (completed, failed int, aborted bool) {
	sem := make(chan struct{}, workerCount(e.cfg.Workers))
	var wg sync.WaitGroup
	var done, failures atomic.Int32
	total := len(jobs)

	for _, job := range jobs {
		if !e.waitWhilePaused() {
			aborted = true
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(job fileJob) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := e.processFile(job); err != nil {
				failures.Add(1)
				e.logger.Warn("file conversion failed",
					logging.String(logging.FieldFolderID, string(folder.ID)),
					logging.String("path", job.file.Path),
					logging.String("strategy", job.strat.Kind.String()),
					logging.Error(err))
			}
			n := int(done.Add(1))
			e.setStatus(folder, folders.Converting(n, total))
			e.emit(Event{Type: EventFolderProgress, FolderID: folder.ID, Completed: n, Total: total})
		}(job)
	}
	wg.Wait()

	failed = int(failures.Load())
	completed = int(done.Load()) - failed
	return completed, failed, aborted
}

// waitWhilePaused blocks dispatch while paused. Returns false when the pass
// must abort for a restart or shutdown.
func (e *Engine) waitWhilePaused() bool {
	for {
		if e.stopping() || e.restart.Load() {
			return false
		}
		if !e.paused.Load() {
			return true
		}
		time.Sleep(pollInterval)
	}
}

// processFile performs one unit of work. An existing non-empty output means
// the work was already done on a previous cycle and is skipped.
func (e *Engine) processFile(job fileJob) error {
	if info, err := os.Stat(job.outputPath); err == nil && info.Size() > 0 {
		return nil
	}

	// context.Background keeps the subprocess alive across restart and
	// shutdown; abort points are between files.
	ctx := context.Background()

	switch job.strat.Kind {
	case strategy.Copy:
		return copyFile(job.file.Path, job.outputPath)
	case strategy.CopyWithoutArt:
		return e.transcoder.Transcode(ctx, ffmpeg.Request{
			InputPath:  job.file.Path,
			OutputPath: job.outputPath,
		})
	default:
		req := ffmpeg.Request{
			InputPath:   job.file.Path,
			OutputPath:  job.outputPath,
			BitrateKbps: job.strat.BitrateKbps,
		}
		if e.cfg.EmbedAlbumArt {
			if art, err := media.ExtractArtwork(job.file.Path, e.out.ArtworkCacheDir()); err == nil {
				req.ArtworkPath = art
			}
		}
		return e.transcoder.Transcode(ctx, req)
	}
}

// finalizeFolder flips a folder to Converted when the cycle produced no
// failures for it. Runs only during the lossless pass.
func (e *Engine) finalizeFolder(folder *folders.MusicFolder, outDir string, bitrate int, failedTotal int) {
	if failedTotal > 0 {
		return
	}
	size, err := output.DirSize(outDir)
	if err != nil {
		e.logger.Warn("cannot measure folder output",
			logging.String(logging.FieldFolderID, string(folder.ID)),
			logging.Error(err))
	}
	var used *int
	if hasLosslessTracks(folder) {
		b := bitrate
		used = &b
	}
	e.setStatus(folder, folders.Converted(outDir, used, size, time.Now()))
	e.emit(Event{Type: EventFolderCompleted, FolderID: folder.ID})
}

func hasLosslessTracks(folder *folders.MusicFolder) bool {
	for _, file := range folder.ActiveTracks() {
		if !file.Lossy {
			return true
		}
	}
	return false
}

// measureLossyOutput sums the real on-disk size of every lossy-sourced
// output across all folders, converted ones included. Converted folders are
// measured from their recorded output directory, which may belong to an
// earlier session when state was restored from a profile. Lossless outputs
// from earlier cycles are excluded so a stale bitrate cannot skew the result.
func (e *Engine) measureLossyOutput(snap []*folders.MusicFolder, target int) int64 {
	var total int64
	for _, folder := range snap {
		var outDir string
		if status := folder.Status; status.IsConverted() && status.OutputDir != "" {
			outDir = status.OutputDir
		} else {
			dir, err := e.out.FolderDir(folder.ID)
			if err != nil {
				continue
			}
			outDir = dir
		}
		for _, job := range e.buildJobs(folder, outDir, true, target) {
			if info, err := os.Stat(job.outputPath); err == nil {
				total += info.Size()
			}
		}
	}
	return total
}

// invalidateStaleLossless removes lossless-sourced outputs rendered stale by
// a bitrate change and flags their folders for re-encode. A converted folder
// is judged by its recorded bitrate, not the engine's in-memory history, so
// state restored from a profile is invalidated on the first cycle when the
// target differs. Returns whether anything was flagged, and whether a fresh
// cycle is needed because a flagged folder's output lives outside the
// current session directory.
func (e *Engine) invalidateStaleLossless(snap []*folders.MusicFolder, previous, newBitrate, target int) (invalidated, rerun bool) {
	for _, folder := range snap {
		if !hasLosslessTracks(folder) {
			continue
		}
		status := folder.Status
		oldBitrate := previous
		if status.IsConverted() {
			if status.LosslessBitrate == nil || *status.LosslessBitrate == newBitrate {
				continue
			}
			oldBitrate = *status.LosslessBitrate
		} else if previous == 0 || previous == newBitrate {
			continue
		}
		outDir, err := e.out.FolderDir(folder.ID)
		if err != nil {
			continue
		}
		for _, job := range e.buildJobs(folder, outDir, false, target) {
			if err := os.Remove(job.outputPath); err != nil && !os.IsNotExist(err) {
				e.logger.Warn("cannot remove stale output",
					logging.String("path", job.outputPath),
					logging.Error(err))
			}
		}
		if status.IsConverted() {
			if status.OutputDir != outDir {
				rerun = true
			}
			e.setStatus(folder, folders.NeedsReencode(folders.ReencodeReason{
				Kind:       folders.ReencodeBitrateChanged,
				OldBitrate: oldBitrate,
				NewBitrate: newBitrate,
			}))
		}
		invalidated = true
	}
	return invalidated, rerun
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
