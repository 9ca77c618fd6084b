package workflow

import (
	"context"
	"fmt"
	"time"

	"mixpress/internal/burn"
	"mixpress/internal/engine"
	"mixpress/internal/folders"
	"mixpress/internal/iso"
	"mixpress/internal/logging"
	"mixpress/internal/output"
	"mixpress/internal/services"
)

const convertPollInterval = 200 * time.Millisecond

// Run executes the full burn for the ordered folder list and blocks until a
// terminal outcome. One run at a time; a second call while a burn is in
// progress fails immediately.
func (m *Manager) Run(ctx context.Context, list []*folders.MusicFolder) (burn.Outcome, error) {
	if len(list) == 0 {
		return burn.OutcomeFailed, services.Wrap(services.ErrValidation, "workflow", "run", "no folders selected", nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return burn.OutcomeFailed, services.Wrap(services.ErrValidation, "workflow", "run", "a burn is already in progress", nil)
	}
	m.running = true
	m.cancel = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.cancel = nil
		m.coord = nil
		m.mu.Unlock()
	}()

	ordered := make([]folders.ID, len(list))
	encoded := make(map[folders.ID]struct{}, len(list))
	for i, folder := range list {
		ordered[i] = folder.ID
		if folder.Status.IsConverted() {
			encoded[folder.ID] = struct{}{}
		}
	}

	action := iso.DetermineAction(ordered, encoded, m.Image())
	m.logger.Info("burn plan decided",
		logging.String("action", string(action.Kind)),
		logging.Int("folders", len(list)),
		logging.Int("missing_encodes", len(action.FoldersToEncode)))

	imagePath := ""
	if action.Kind == iso.BurnExisting {
		imagePath = m.Image().Path
	} else {
		m.setStage(burn.StageConverting, -1)
		if err := m.waitForConversion(ctx, list); err != nil {
			if services.IsCancelled(err) {
				m.setStage(burn.StageCancelled, -1)
				return burn.OutcomeCancelled, err
			}
			return burn.OutcomeFailed, err
		}

		m.setStage(burn.StageCreatingIso, -1)
		state, err := m.buildImage(ctx, list, ordered)
		if err != nil {
			// Encoded output stays valid; only the image layer failed.
			return burn.OutcomeFailed, err
		}
		if state.ExceedsCapacity() {
			m.eng.FlagImageOversize()
			return burn.OutcomeFailed, services.Wrap(services.ErrValidation, "workflow", "image",
				fmt.Sprintf("image is %d bytes, above the %d byte media ceiling", state.SizeBytes, iso.ImageSizeCeiling), nil)
		}
		m.mu.Lock()
		m.image = state
		m.mu.Unlock()
		imagePath = state.Path
	}

	coord := burn.NewCoordinator(m.prober, m.burner, burn.Options{
		MediaTimeout: time.Duration(m.cfg.Burning.MediaTimeout) * time.Second,
		Simulate:     m.cfg.Burning.Simulate,
		Verify:       m.cfg.Burning.VerifyAfterBurn,
		Wake:         m.wake,
		OnStage:      m.setStage,
	}, m.logger)
	m.mu.Lock()
	m.coord = coord
	m.mu.Unlock()

	return coord.Run(ctx, imagePath)
}

// waitForConversion hands the folder list to the engine and polls until a
// full cycle over that list finishes. The engine's idempotent skip makes the
// no-op case cheap: already-converted folders are re-verified, not redone.
func (m *Manager) waitForConversion(ctx context.Context, list []*folders.MusicFolder) error {
	before := m.eng.Cycles()
	m.eng.SetFolders(list)

	for {
		if m.eng.Cycles() > before && m.eng.Phase() == engine.PhaseComplete {
			if m.eng.AllConverted() {
				return nil
			}
			statuses := m.eng.Statuses()
			pending := 0
			for _, status := range statuses {
				if !status.IsConverted() {
					pending++
				}
			}
			return services.Wrap(services.ErrTransient, "workflow", "convert",
				fmt.Sprintf("%d of %d folders failed to convert", pending, len(statuses)), nil)
		}
		select {
		case <-ctx.Done():
			return services.Wrap(services.ErrCancelled, "workflow", "convert", "cancelled while waiting for conversion", ctx.Err())
		case <-time.After(convertPollInterval):
		}
	}
}

// buildImage stages the converted output in list order and builds the image.
// Custom-layout folders already carry numbered output files, so a plain
// symlink per folder preserves playback order on the disc.
func (m *Manager) buildImage(ctx context.Context, list []*folders.MusicFolder, ordered []folders.ID) (*iso.State, error) {
	statuses := m.eng.Statuses()
	entries := make([]output.StagingEntry, 0, len(list))
	for _, folder := range list {
		status := statuses[folder.ID]
		if !status.IsConverted() {
			return nil, services.Wrap(services.ErrValidation, "workflow", "stage",
				fmt.Sprintf("folder %q is not converted", folder.DisplayName()), nil)
		}
		entries = append(entries, output.StagingEntry{
			Name:      folder.DisplayName(),
			SourceDir: status.OutputDir,
		})
	}

	staging, err := m.out.CreateISOStaging(entries)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "stage", "cannot build staging tree", err)
	}

	state, err := m.builder.Build(ctx, staging, m.cfg.Burning.VolumeLabel)
	if err != nil {
		return nil, err
	}
	state.Stamp(ordered)
	m.logger.Info("image built",
		logging.String("path", state.Path),
		logging.Int64("size_bytes", state.SizeBytes))
	return state, nil
}
