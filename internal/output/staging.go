package output

import (
	"fmt"
	"os"
	"path/filepath"

	"mixpress/internal/logging"
)

// StagingEntry describes one ordinal slot in the staging tree. SourceDir is
// the folder's converted output. When Tracks is non-empty the entry gets an
// explicit numbered file layout instead of mirroring the source directory,
// which is how mixtapes and custom-ordered albums keep their playback order
// on players that sort by name.
type StagingEntry struct {
	Name      string
	SourceDir string
	Tracks    []string
}

// CreateISOStaging builds the directory the image is generated from. Entries
// are laid out as "NN-<name>" in the order given, so the disc reflects the
// user's folder order. Each entry is a symlink to the converted output;
// filesystems that refuse the symlink get a full copy instead.
//
// Any previous staging tree is replaced.
func (m *Manager) CreateISOStaging(entries []StagingEntry) (string, error) {
	staging := filepath.Join(m.RootDir(), stagingDirName)
	if err := os.RemoveAll(staging); err != nil {
		return "", fmt.Errorf("clear staging dir: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	for i, entry := range entries {
		slot := filepath.Join(staging, fmt.Sprintf("%02d-%s", i+1, sanitizePathComponent(entry.Name)))
		if len(entry.Tracks) > 0 {
			if err := stageNumberedTracks(slot, entry.Tracks); err != nil {
				return "", fmt.Errorf("stage %s: %w", entry.Name, err)
			}
			continue
		}
		if err := os.Symlink(entry.SourceDir, slot); err != nil {
			m.logger.Warn("symlink failed, copying instead",
				logging.String("entry", entry.Name),
				logging.Error(err))
			if err := copyTree(entry.SourceDir, slot); err != nil {
				return "", fmt.Errorf("stage %s: %w", entry.Name, err)
			}
		}
	}
	m.logger.Info("staging tree ready",
		logging.String("path", staging),
		logging.Int("entries", len(entries)))
	return staging, nil
}

func stageNumberedTracks(slot string, tracks []string) error {
	if err := os.MkdirAll(slot, 0o755); err != nil {
		return err
	}
	for i, track := range tracks {
		name := fmt.Sprintf("%02d-%s", i+1, sanitizePathComponent(filepath.Base(track)))
		target := filepath.Join(slot, name)
		if err := os.Symlink(track, target); err != nil {
			if err := copyFile(track, target); err != nil {
				return err
			}
		}
	}
	return nil
}
